package dataobjects

import (
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gbl08ma/sqalx"
	uuid "github.com/satori/go.uuid"
)

// StreetMatch links a disruption to the street segment it was matched
// against. Links are recreated whenever a fresh match is computed, never
// mutated in place.
type StreetMatch struct {
	ID           string
	DisruptionID string
	SegmentID    int64
	MatchType    string
	Confidence   float64
	MatchedName  string
	CreatedAt    time.Time
}

// GetStreetMatchForDisruption returns the street match link for the given
// disruption, or ErrDisruptionNotFound if none exists
func GetStreetMatchForDisruption(node sqalx.Node, disruptionID string) (*StreetMatch, error) {
	var match StreetMatch
	tx, err := node.Beginx()
	if err != nil {
		return &match, err
	}
	defer tx.Commit() // read-only tx

	err = sdb.Select("id", "disruption_id", "segment_id", "match_type",
		"confidence", "matched_name", "created_at").
		From("disruption_street_match").
		Where(sq.Eq{"disruption_id": disruptionID}).
		RunWith(tx).QueryRow().
		Scan(&match.ID, &match.DisruptionID, &match.SegmentID,
			&match.MatchType, &match.Confidence, &match.MatchedName,
			&match.CreatedAt)
	if err != nil {
		return &match, errors.New("GetStreetMatchForDisruption: " + err.Error())
	}
	return &match, nil
}

// Replace deletes any previous link for this disruption and inserts this one
func (match *StreetMatch) Replace(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if match.ID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		match.ID = id.String()
	}
	if match.CreatedAt.IsZero() {
		match.CreatedAt = time.Now().UTC()
	}

	_, err = sdb.Delete("disruption_street_match").
		Where(sq.Eq{"disruption_id": match.DisruptionID}).
		RunWith(tx).Exec()
	if err != nil {
		return fmt.Errorf("AddStreetMatch: %s", err)
	}

	_, err = sdb.Insert("disruption_street_match").
		Columns("id", "disruption_id", "segment_id", "match_type",
			"confidence", "matched_name", "created_at").
		Values(match.ID, match.DisruptionID, match.SegmentID, match.MatchType,
			match.Confidence, match.MatchedName, match.CreatedAt).
		RunWith(tx).Exec()
	if err != nil {
		return fmt.Errorf("AddStreetMatch: %s", err)
	}
	return tx.Commit()
}

// Delete deletes the street match link
func (match *StreetMatch) Delete(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = sdb.Delete("disruption_street_match").
		Where(sq.Eq{"id": match.ID}).RunWith(tx).Exec()
	if err != nil {
		return fmt.Errorf("RemoveStreetMatch: %s", err)
	}
	return tx.Commit()
}
