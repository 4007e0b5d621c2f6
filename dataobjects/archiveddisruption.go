package dataobjects

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gbl08ma/sqalx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// ArchivedDisruption is the append-only historical copy of a resolved or
// removed disruption, retained for audit and analytics. Rows are written
// once by Resolve and never mutated or deleted by the pipeline.
type ArchivedDisruption struct {
	ID           string
	DisruptionID string
	ExternalID   string
	Category     string
	Severity     string
	Title        string
	Description  string

	AffectedLines pq.StringArray
	Payload       types.JSONText
	SourceID      string
	ContentHash   string

	Latitude     sql.NullFloat64
	Longitude    sql.NullFloat64
	CoordSource  string
	GeohashCells pq.StringArray

	MatchedStreet   sql.NullString
	MatchConfidence float64
	MatchType       string

	CreatedAt       time.Time
	ArchivedAt      time.Time
	DurationSeconds int64
	DurationText    string
	Reason          string
}

// GetArchivedDisruptions returns a slice with all archived disruptions
func GetArchivedDisruptions(node sqalx.Node) ([]*ArchivedDisruption, error) {
	s := sdb.Select().
		OrderBy("archived_at ASC")
	return getArchivedDisruptionsWithSelect(node, s)
}

// GetArchivedDisruptionsForExternalID returns the archive history of one
// external ID, oldest first
func GetArchivedDisruptionsForExternalID(node sqalx.Node, externalID string) ([]*ArchivedDisruption, error) {
	s := sdb.Select().
		Where(sq.Eq{"external_id": externalID}).
		OrderBy("archived_at ASC")
	return getArchivedDisruptionsWithSelect(node, s)
}

func getArchivedDisruptionsWithSelect(node sqalx.Node, sbuilder sq.SelectBuilder) ([]*ArchivedDisruption, error) {
	archived := []*ArchivedDisruption{}

	tx, err := node.Beginx()
	if err != nil {
		return archived, err
	}
	defer tx.Commit() // read-only tx

	rows, err := sbuilder.Columns("id", "disruption_id", "external_id",
		"category", "severity", "title", "description", "affected_lines",
		"payload", "source", "content_hash", "latitude", "longitude",
		"coord_source", "geohash_cells", "matched_street", "match_confidence",
		"match_type", "created_at", "archived_at", "duration_seconds",
		"duration_text", "reason").
		From("disruption_archive").
		RunWith(tx).Query()
	if err != nil {
		return archived, fmt.Errorf("getArchivedDisruptionsWithSelect: %s", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a ArchivedDisruption
		err := rows.Scan(
			&a.ID,
			&a.DisruptionID,
			&a.ExternalID,
			&a.Category,
			&a.Severity,
			&a.Title,
			&a.Description,
			&a.AffectedLines,
			&a.Payload,
			&a.SourceID,
			&a.ContentHash,
			&a.Latitude,
			&a.Longitude,
			&a.CoordSource,
			&a.GeohashCells,
			&a.MatchedStreet,
			&a.MatchConfidence,
			&a.MatchType,
			&a.CreatedAt,
			&a.ArchivedAt,
			&a.DurationSeconds,
			&a.DurationText,
			&a.Reason)
		if err != nil {
			return archived, fmt.Errorf("getArchivedDisruptionsWithSelect: %s", err)
		}
		archived = append(archived, &a)
	}
	if err := rows.Err(); err != nil {
		return archived, fmt.Errorf("getArchivedDisruptionsWithSelect: %s", err)
	}
	return archived, nil
}

// Update inserts the archive row
func (archived *ArchivedDisruption) Update(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = sdb.Insert("disruption_archive").
		Columns("id", "disruption_id", "external_id", "category", "severity",
			"title", "description", "affected_lines", "payload", "source",
			"content_hash", "latitude", "longitude", "coord_source",
			"geohash_cells", "matched_street", "match_confidence", "match_type",
			"created_at", "archived_at", "duration_seconds", "duration_text",
			"reason").
		Values(archived.ID, archived.DisruptionID, archived.ExternalID,
			archived.Category, archived.Severity, archived.Title,
			archived.Description, archived.AffectedLines, archived.Payload,
			archived.SourceID, archived.ContentHash, archived.Latitude,
			archived.Longitude, archived.CoordSource, archived.GeohashCells,
			archived.MatchedStreet, archived.MatchConfidence, archived.MatchType,
			archived.CreatedAt, archived.ArchivedAt, archived.DurationSeconds,
			archived.DurationText, archived.Reason).
		RunWith(tx).Exec()
	if err != nil {
		return errors.New("AddArchivedDisruption: " + err.Error())
	}
	return tx.Commit()
}
