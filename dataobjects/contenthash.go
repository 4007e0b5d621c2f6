package dataobjects

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/gbl08ma/sqalx"
)

// ContentHash is the fingerprint of a disruption's normalized content,
// kept as a weak one-to-one reference so redundant inserts can be rejected
type ContentHash struct {
	DisruptionID string
	Hash         string
}

// ComputeContentHash fingerprints the normalized content fields of a
// disruption
func ComputeContentHash(category, severity, title, description string) string {
	content := strings.Join([]string{
		strings.ToLower(strings.TrimSpace(category)),
		strings.ToLower(strings.TrimSpace(severity)),
		strings.ToLower(strings.TrimSpace(title)),
		strings.ToLower(strings.TrimSpace(description)),
	}, "|")
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// GetContentHash returns the ContentHash for the given disruption ID
func GetContentHash(node sqalx.Node, disruptionID string) (*ContentHash, error) {
	var contentHash ContentHash
	tx, err := node.Beginx()
	if err != nil {
		return &contentHash, err
	}
	defer tx.Commit() // read-only tx

	err = sdb.Select("disruption_id", "hash").
		From("disruption_content_hash").
		Where(sq.Eq{"disruption_id": disruptionID}).
		RunWith(tx).QueryRow().
		Scan(&contentHash.DisruptionID, &contentHash.Hash)
	if err != nil {
		return &contentHash, errors.New("GetContentHash: " + err.Error())
	}
	return &contentHash, nil
}

// Update adds or updates the content hash record
func (contentHash *ContentHash) Update(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = sdb.Insert("disruption_content_hash").
		Columns("disruption_id", "hash").
		Values(contentHash.DisruptionID, contentHash.Hash).
		Suffix("ON CONFLICT (disruption_id) DO UPDATE SET hash = ?",
			contentHash.Hash).
		RunWith(tx).Exec()
	if err != nil {
		return errors.New("AddContentHash: " + err.Error())
	}
	return tx.Commit()
}

// Delete deletes the content hash record
func (contentHash *ContentHash) Delete(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = sdb.Delete("disruption_content_hash").
		Where(sq.Eq{"disruption_id": contentHash.DisruptionID}).
		RunWith(tx).Exec()
	if err != nil {
		return fmt.Errorf("RemoveContentHash: %s", err)
	}
	return tx.Commit()
}
