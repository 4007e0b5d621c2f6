package dataobjects

import (
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gbl08ma/sqalx"
)

// RefreshLog records when a slow-changing reference dataset was last
// refreshed, so a process restart on the same day does not re-fetch it
type RefreshLog struct {
	Dataset     string
	LastRefresh time.Time
}

// GetRefreshLog returns the refresh log entry for the given dataset
func GetRefreshLog(node sqalx.Node, dataset string) (*RefreshLog, error) {
	var refreshLog RefreshLog
	tx, err := node.Beginx()
	if err != nil {
		return &refreshLog, err
	}
	defer tx.Commit() // read-only tx

	err = sdb.Select("dataset", "last_refresh").
		From("refresh_log").
		Where(sq.Eq{"dataset": dataset}).
		RunWith(tx).QueryRow().
		Scan(&refreshLog.Dataset, &refreshLog.LastRefresh)
	if err != nil {
		return &refreshLog, errors.New("GetRefreshLog: " + err.Error())
	}
	return &refreshLog, nil
}

// Update adds or updates the refresh log entry
func (refreshLog *RefreshLog) Update(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = sdb.Insert("refresh_log").
		Columns("dataset", "last_refresh").
		Values(refreshLog.Dataset, refreshLog.LastRefresh).
		Suffix("ON CONFLICT (dataset) DO UPDATE SET last_refresh = ?",
			refreshLog.LastRefresh).
		RunWith(tx).Exec()
	if err != nil {
		return errors.New("AddRefreshLog: " + err.Error())
	}
	return tx.Commit()
}
