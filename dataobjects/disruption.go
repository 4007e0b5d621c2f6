package dataobjects

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gbl08ma/sqalx"
	"github.com/hako/durafmt"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	uuid "github.com/satori/go.uuid"
	"github.com/ulule/deepcopier"
)

// ErrDisruptionNotFound is returned when no disruption exists for a lookup,
// including attempts to resolve an already-inactive record
var ErrDisruptionNotFound = errors.New("Disruption not found")

// Disruption represents a road or transit disruption reported by an
// upstream source. Identity is the source-assigned external ID, which is
// expected to denote the same real-world event across fetch cycles.
type Disruption struct {
	ID            string
	ExternalID    string
	Category      string
	Severity      string
	Title         string
	Description   string
	AffectedLines pq.StringArray
	Payload       types.JSONText
	Source        *Source
	ContentHash   string

	Latitude     sql.NullFloat64
	Longitude    sql.NullFloat64
	CoordSource  string
	GeohashCells pq.StringArray

	Active     bool
	LastSeen   time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt pq.NullTime

	MatchedStreet   sql.NullString
	MatchConfidence float64
	MatchType       string
	MatchHash       sql.NullString
	MatchedAt       pq.NullTime
}

var disruptionColumns = []string{
	"disruption.id", "disruption.external_id", "disruption.category",
	"disruption.severity", "disruption.title", "disruption.description",
	"disruption.affected_lines", "disruption.payload", "disruption.source",
	"disruption.content_hash", "disruption.latitude", "disruption.longitude",
	"disruption.coord_source", "disruption.geohash_cells", "disruption.active",
	"disruption.last_seen", "disruption.created_at", "disruption.updated_at",
	"disruption.resolved_at", "disruption.matched_street",
	"disruption.match_confidence", "disruption.match_type",
	"disruption.match_hash", "disruption.matched_at",
}

// GetDisruptions returns a slice with all registered disruptions
func GetDisruptions(node sqalx.Node) ([]*Disruption, error) {
	s := sdb.Select().
		OrderBy("created_at ASC")
	return getDisruptionsWithSelect(node, s)
}

// GetActiveDisruptions returns a slice with all currently active disruptions
func GetActiveDisruptions(node sqalx.Node) ([]*Disruption, error) {
	s := sdb.Select().
		Where(sq.Eq{"active": true}).
		OrderBy("created_at ASC")
	return getDisruptionsWithSelect(node, s)
}

// GetActiveDisruptionsLastSeenBefore returns the active disruptions whose
// last successful fetch is older than t, candidates for the inactivity sweep
func GetActiveDisruptionsLastSeenBefore(node sqalx.Node, t time.Time) ([]*Disruption, error) {
	s := sdb.Select().
		Where(sq.Eq{"active": true}).
		Where(sq.Lt{"last_seen": t}).
		OrderBy("last_seen ASC")
	return getDisruptionsWithSelect(node, s)
}

func getDisruptionsWithSelect(node sqalx.Node, sbuilder sq.SelectBuilder) ([]*Disruption, error) {
	disruptions := []*Disruption{}

	tx, err := node.Beginx()
	if err != nil {
		return disruptions, err
	}
	defer tx.Commit() // read-only tx

	rows, err := sbuilder.Columns(disruptionColumns...).
		From("disruption").
		RunWith(tx).Query()
	if err != nil {
		return disruptions, fmt.Errorf("getDisruptionsWithSelect: %s", err)
	}

	sourceIDs := []string{}
	for rows.Next() {
		var disruption Disruption
		var sourceID string
		err := rows.Scan(
			&disruption.ID,
			&disruption.ExternalID,
			&disruption.Category,
			&disruption.Severity,
			&disruption.Title,
			&disruption.Description,
			&disruption.AffectedLines,
			&disruption.Payload,
			&sourceID,
			&disruption.ContentHash,
			&disruption.Latitude,
			&disruption.Longitude,
			&disruption.CoordSource,
			&disruption.GeohashCells,
			&disruption.Active,
			&disruption.LastSeen,
			&disruption.CreatedAt,
			&disruption.UpdatedAt,
			&disruption.ResolvedAt,
			&disruption.MatchedStreet,
			&disruption.MatchConfidence,
			&disruption.MatchType,
			&disruption.MatchHash,
			&disruption.MatchedAt)
		if err != nil {
			rows.Close()
			return disruptions, fmt.Errorf("getDisruptionsWithSelect: %s", err)
		}
		disruptions = append(disruptions, &disruption)
		sourceIDs = append(sourceIDs, sourceID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return disruptions, fmt.Errorf("getDisruptionsWithSelect: %s", err)
	}
	rows.Close()

	for i := range disruptions {
		disruptions[i].Source, err = GetSource(tx, sourceIDs[i])
		if err != nil {
			return disruptions, fmt.Errorf("getDisruptionsWithSelect: %s", err)
		}
	}
	return disruptions, nil
}

// GetDisruption returns the Disruption with the given ID
func GetDisruption(node sqalx.Node, id string) (*Disruption, error) {
	s := sdb.Select().
		Where(sq.Eq{"id": id})
	disruptions, err := getDisruptionsWithSelect(node, s)
	if err != nil {
		return nil, err
	}
	if len(disruptions) == 0 {
		return nil, ErrDisruptionNotFound
	}
	return disruptions[0], nil
}

// GetDisruptionByExternalID returns the Disruption with the given external ID
func GetDisruptionByExternalID(node sqalx.Node, externalID string) (*Disruption, error) {
	s := sdb.Select().
		Where(sq.Eq{"external_id": externalID})
	disruptions, err := getDisruptionsWithSelect(node, s)
	if err != nil {
		return nil, err
	}
	if len(disruptions) == 0 {
		return nil, ErrDisruptionNotFound
	}
	return disruptions[0], nil
}

// Update upserts the disruption keyed on its external ID, reaffirming the
// active flag and bumping the last-seen and update timestamps. The latest
// fetched values always win; when the content hash is unchanged from the
// stored record the insert is rejected as a duplicate and the remaining
// fields are written in place.
func (disruption *Disruption) Update(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	disruption.ContentHash = ComputeContentHash(
		disruption.Category, disruption.Severity, disruption.Title, disruption.Description)
	disruption.Active = true
	disruption.LastSeen = now
	disruption.UpdatedAt = now

	existing, err := GetDisruptionByExternalID(tx, disruption.ExternalID)
	switch err {
	case nil:
		disruption.ID = existing.ID
		disruption.CreatedAt = existing.CreatedAt
		// the match is computed by the matching stage, never by upserts
		disruption.MatchedStreet = existing.MatchedStreet
		disruption.MatchConfidence = existing.MatchConfidence
		disruption.MatchType = existing.MatchType
		disruption.MatchHash = existing.MatchHash
		disruption.MatchedAt = existing.MatchedAt

		if existing.ContentHash == disruption.ContentHash {
			// exact duplicate of the stored content: skip the content hash
			// rewrite, but fields outside the hash still win over the
			// stored values
			_, err = sdb.Update("disruption").
				Set("affected_lines", disruption.AffectedLines).
				Set("payload", disruption.Payload).
				Set("source", disruption.Source.ID).
				Set("latitude", disruption.Latitude).
				Set("longitude", disruption.Longitude).
				Set("coord_source", disruption.CoordSource).
				Set("geohash_cells", disruption.GeohashCells).
				Set("active", true).
				Set("last_seen", now).
				Set("updated_at", now).
				Where(sq.Eq{"id": disruption.ID}).
				RunWith(tx).Exec()
			if err != nil {
				return errors.New("AddDisruption: " + err.Error())
			}
			return tx.Commit()
		}
	case ErrDisruptionNotFound:
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		disruption.ID = id.String()
		disruption.CreatedAt = now
	default:
		return err
	}

	_, err = sdb.Insert("disruption").
		Columns("id", "external_id", "category", "severity", "title",
			"description", "affected_lines", "payload", "source",
			"content_hash", "latitude", "longitude", "coord_source",
			"geohash_cells", "active", "last_seen", "created_at", "updated_at").
		Values(disruption.ID, disruption.ExternalID, disruption.Category,
			disruption.Severity, disruption.Title, disruption.Description,
			disruption.AffectedLines, disruption.Payload, disruption.Source.ID,
			disruption.ContentHash, disruption.Latitude, disruption.Longitude,
			disruption.CoordSource, disruption.GeohashCells, disruption.Active,
			disruption.LastSeen, disruption.CreatedAt, disruption.UpdatedAt).
		Suffix("ON CONFLICT (external_id) DO UPDATE SET "+
			"category = ?, severity = ?, title = ?, description = ?, "+
			"affected_lines = ?, payload = ?, source = ?, content_hash = ?, "+
			"latitude = ?, longitude = ?, coord_source = ?, geohash_cells = ?, "+
			"active = ?, last_seen = ?, updated_at = ?",
			disruption.Category, disruption.Severity, disruption.Title,
			disruption.Description, disruption.AffectedLines, disruption.Payload,
			disruption.Source.ID, disruption.ContentHash, disruption.Latitude,
			disruption.Longitude, disruption.CoordSource, disruption.GeohashCells,
			disruption.Active, disruption.LastSeen, disruption.UpdatedAt).
		RunWith(tx).Exec()
	if err != nil {
		return errors.New("AddDisruption: " + err.Error())
	}

	contentHash := &ContentHash{
		DisruptionID: disruption.ID,
		Hash:         disruption.ContentHash,
	}
	err = contentHash.Update(tx)
	if err != nil {
		return errors.New("AddDisruption: " + err.Error())
	}
	return tx.Commit()
}

// UpdateMatch writes only the street match attributes of the disruption
func (disruption *Disruption) UpdateMatch(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = sdb.Update("disruption").
		Set("matched_street", disruption.MatchedStreet).
		Set("match_confidence", disruption.MatchConfidence).
		Set("match_type", disruption.MatchType).
		Set("match_hash", disruption.MatchHash).
		Set("matched_at", disruption.MatchedAt).
		Where(sq.Eq{"id": disruption.ID}).
		RunWith(tx).Exec()
	if err != nil {
		return errors.New("UpdateMatch: " + err.Error())
	}
	return tx.Commit()
}

// Resolve archives the disruption and deactivates the live record in a
// single transaction. It fails with ErrDisruptionNotFound if the disruption
// no longer exists or is already inactive.
func (disruption *Disruption) Resolve(node sqalx.Node, reason string) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	fresh, err := GetDisruptionByExternalID(tx, disruption.ExternalID)
	if err != nil {
		return err
	}
	if !fresh.Active {
		return ErrDisruptionNotFound
	}

	now := time.Now().UTC()
	elapsed := now.Sub(fresh.CreatedAt)

	archived := &ArchivedDisruption{}
	deepcopier.Copy(fresh).To(archived)
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	archived.ID = id.String()
	archived.DisruptionID = fresh.ID
	archived.SourceID = fresh.Source.ID
	archived.ArchivedAt = now
	archived.DurationSeconds = int64(elapsed.Seconds())
	archived.DurationText = durafmt.Parse(elapsed.Truncate(time.Second)).String()
	archived.Reason = reason

	err = archived.Update(tx)
	if err != nil {
		return errors.New("ResolveDisruption: " + err.Error())
	}

	_, err = sdb.Update("disruption").
		Set("active", false).
		Set("resolved_at", now).
		Set("updated_at", now).
		Where(sq.Eq{"id": fresh.ID}).
		RunWith(tx).Exec()
	if err != nil {
		return errors.New("ResolveDisruption: " + err.Error())
	}

	disruption.Active = false
	disruption.ResolvedAt = pq.NullTime{Time: now, Valid: true}
	return tx.Commit()
}

// ResolveDisruption resolves the active disruption with the given external ID
func ResolveDisruption(node sqalx.Node, externalID string, reason string) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	disruption, err := GetDisruptionByExternalID(tx, externalID)
	if err != nil {
		return err
	}
	err = disruption.Resolve(tx, reason)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// FindDuplicateGroups groups currently active disruptions by exact title
// equality and returns the groups with more than one member, ordered by the
// creation time of their earliest member. This is an offline remediation
// helper for sources that fail to keep external IDs stable; it is not part
// of steady-state deduplication.
func FindDuplicateGroups(node sqalx.Node) ([][]*Disruption, error) {
	groups := [][]*Disruption{}

	tx, err := node.Beginx()
	if err != nil {
		return groups, err
	}
	defer tx.Commit() // read-only tx

	active, err := GetActiveDisruptions(tx)
	if err != nil {
		return groups, err
	}

	byTitle := map[string][]*Disruption{}
	titleOrder := []string{}
	for _, disruption := range active {
		if len(byTitle[disruption.Title]) == 0 {
			titleOrder = append(titleOrder, disruption.Title)
		}
		byTitle[disruption.Title] = append(byTitle[disruption.Title], disruption)
	}
	// active is ordered by created_at, so titleOrder already reflects the
	// earliest member of each group
	for _, title := range titleOrder {
		if len(byTitle[title]) > 1 {
			groups = append(groups, byTitle[title])
		}
	}
	return groups, nil
}

// CleanupOldResolved irreversibly deletes inactive disruptions resolved more
// than daysOld days ago, along with their content hash records and street
// match links. Archive rows are never touched. Returns the number of
// disruptions deleted.
func CleanupOldResolved(node sqalx.Node, daysOld int) (int, error) {
	tx, err := node.Beginx()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	cutoff := time.Now().UTC().AddDate(0, 0, -daysOld)

	rows, err := sdb.Select("id").
		From("disruption").
		Where(sq.Eq{"active": false}).
		Where(sq.Lt{"resolved_at": cutoff}).
		RunWith(tx).Query()
	if err != nil {
		return 0, fmt.Errorf("CleanupOldResolved: %s", err)
	}
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("CleanupOldResolved: %s", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("CleanupOldResolved: %s", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return 0, tx.Commit()
	}

	_, err = sdb.Delete("disruption_street_match").
		Where(sq.Eq{"disruption_id": ids}).RunWith(tx).Exec()
	if err != nil {
		return 0, fmt.Errorf("CleanupOldResolved: %s", err)
	}
	_, err = sdb.Delete("disruption_content_hash").
		Where(sq.Eq{"disruption_id": ids}).RunWith(tx).Exec()
	if err != nil {
		return 0, fmt.Errorf("CleanupOldResolved: %s", err)
	}
	_, err = sdb.Delete("disruption").
		Where(sq.Eq{"id": ids}).RunWith(tx).Exec()
	if err != nil {
		return 0, fmt.Errorf("CleanupOldResolved: %s", err)
	}
	return len(ids), tx.Commit()
}

// Delete deletes the disruption and its content hash record
func (disruption *Disruption) Delete(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = sdb.Delete("disruption_street_match").
		Where(sq.Eq{"disruption_id": disruption.ID}).RunWith(tx).Exec()
	if err != nil {
		return fmt.Errorf("RemoveDisruption: %s", err)
	}
	_, err = sdb.Delete("disruption_content_hash").
		Where(sq.Eq{"disruption_id": disruption.ID}).RunWith(tx).Exec()
	if err != nil {
		return fmt.Errorf("RemoveDisruption: %s", err)
	}
	_, err = sdb.Delete("disruption").
		Where(sq.Eq{"id": disruption.ID}).RunWith(tx).Exec()
	if err != nil {
		return fmt.Errorf("RemoveDisruption: %s", err)
	}
	return tx.Commit()
}
