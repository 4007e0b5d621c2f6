package scheduler

import (
	"errors"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gbl08ma/sqalx"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencivic/disruptionsto/compute"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testScheduler(config Config) *Scheduler {
	return New(nil, testLogger(), nil, nil, compute.NewStatsHandler(), config)
}

func TestBackoffDelaySequence(t *testing.T) {
	s := testScheduler(Config{
		MinInterval:       5 * time.Second,
		MaxInterval:       30 * time.Second,
		MaxRetries:        3,
		BackoffMultiplier: 2,
	})
	assert.Equal(t, 30*time.Second, s.backoffDelay(0))
	assert.Equal(t, 60*time.Second, s.backoffDelay(1))
	assert.Equal(t, 120*time.Second, s.backoffDelay(2))
}

func TestNextIntervalBounds(t *testing.T) {
	s := testScheduler(Config{
		MinInterval: 5 * time.Second,
		MaxInterval: 30 * time.Second,
	})
	for i := 0; i < 1000; i++ {
		interval := s.nextInterval()
		assert.GreaterOrEqual(t, interval, 5*time.Second)
		assert.LessOrEqual(t, interval, 30*time.Second)
	}
}

func TestNextIntervalDegenerateRange(t *testing.T) {
	s := testScheduler(Config{
		MinInterval: 10 * time.Second,
		MaxInterval: 10 * time.Second,
	})
	assert.Equal(t, 10*time.Second, s.nextInterval())
}

func TestRunWithRetriesExhaustsAndDefers(t *testing.T) {
	s := testScheduler(Config{
		MinInterval:       time.Millisecond,
		MaxInterval:       time.Millisecond,
		MaxRetries:        2,
		BackoffMultiplier: 1,
	})
	s.stopChan = make(chan struct{})

	calls := 0
	s.run = func() runResult {
		calls++
		return runResult{err: errors.New("fetch failed")}
	}
	s.runWithRetries()

	// the initial attempt plus two retries, then deferral
	assert.Equal(t, 3, calls)
	stats := s.stats.Snapshot()
	assert.Equal(t, 3, stats.TotalRuns)
	assert.Equal(t, 3, stats.FailedRuns)
	assert.Equal(t, "fetch failed", stats.LastError)
}

func TestRunWithRetriesStopsAfterSuccess(t *testing.T) {
	s := testScheduler(Config{
		MinInterval:       time.Millisecond,
		MaxInterval:       time.Millisecond,
		MaxRetries:        3,
		BackoffMultiplier: 1,
	})
	s.stopChan = make(chan struct{})

	calls := 0
	s.run = func() runResult {
		calls++
		if calls < 2 {
			return runResult{err: errors.New("transient")}
		}
		return runResult{processed: 7, archived: 1}
	}
	s.runWithRetries()

	assert.Equal(t, 2, calls)
	stats := s.stats.Snapshot()
	assert.Equal(t, 1, stats.SuccessfulRuns)
	assert.Equal(t, 1, stats.FailedRuns)
	assert.Equal(t, 7, stats.Processed)
	assert.Equal(t, 1, stats.Archived)
}

func TestBeginEndLifecycle(t *testing.T) {
	s := testScheduler(Config{
		MinInterval:       5 * time.Millisecond,
		MaxInterval:       10 * time.Millisecond,
		MaxRetries:        0,
		BackoffMultiplier: 2,
	})

	var calls int64
	s.run = func() runResult {
		atomic.AddInt64(&calls, 1)
		return runResult{}
	}

	s.Begin()
	require.True(t, s.Running())
	s.Begin() // idempotent

	time.Sleep(60 * time.Millisecond)
	s.End()
	require.False(t, s.Running())
	s.End() // idempotent

	ran := atomic.LoadInt64(&calls)
	assert.GreaterOrEqual(t, ran, int64(2), "expected repeated runs before End")

	// pending timers are cancelled; no new runs get scheduled
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt64(&calls)-ran, int64(1))
}

func mockNode(t *testing.T) (sqalx.Node, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	node, err := sqalx.New(sqlx.NewDb(db, "sqlmock"))
	require.NoError(t, err)
	return node, mock
}

var disruptionRowColumns = []string{
	"id", "external_id", "category", "severity", "title", "description",
	"affected_lines", "payload", "source", "content_hash", "latitude",
	"longitude", "coord_source", "geohash_cells", "active", "last_seen",
	"created_at", "updated_at", "resolved_at", "matched_street",
	"match_confidence", "match_type", "match_hash", "matched_at",
}

func staleDisruptionRows(items ...[2]string) *sqlmock.Rows {
	lastSeen := time.Now().UTC().Add(-time.Hour)
	rows := sqlmock.NewRows(disruptionRowColumns)
	for _, item := range items {
		rows.AddRow(item[0], item[1], "road", "major", item[1]+" closed",
			"", nil, nil, "tordata-rr", "h", nil, nil, "", nil, true,
			lastSeen, lastSeen.Add(-time.Hour), lastSeen, nil, nil,
			0.0, "", nil, nil)
	}
	return rows
}

func sourceRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "url", "automatic", "official"}).
		AddRow("tordata-rr", "Road Restrictions", "https://example.org/rr", true, true)
}

func TestSweepInactive(t *testing.T) {
	node, mock := mockNode(t)
	s := New(node, testLogger(), nil, nil, compute.NewStatsHandler(), Config{
		InactivityThreshold: 30 * time.Minute,
	})

	// three active records past the threshold: one absent from the fetch,
	// one still reported, one that fails to resolve
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM disruption").
		WillReturnRows(staleDisruptionRows(
			[2]string{"d-1", "rr-gone"},
			[2]string{"d-2", "rr-seen"},
			[2]string{"d-3", "rr-fail"}))
	for i := 0; i < 3; i++ {
		mock.ExpectQuery("SELECT .+ FROM source").WillReturnRows(sourceRow())
	}
	mock.ExpectCommit()

	// rr-gone is absent and stale: resolved and archived
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM disruption").
		WillReturnRows(staleDisruptionRows([2]string{"d-1", "rr-gone"}))
	mock.ExpectQuery("SELECT .+ FROM source").WillReturnRows(sourceRow())
	mock.ExpectExec("INSERT INTO disruption_archive").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE disruption SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// rr-seen is stale but still reported, so it is skipped; rr-fail is
	// gone from the store by resolve time and must not abort the sweep
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM disruption").
		WillReturnRows(sqlmock.NewRows(disruptionRowColumns))
	mock.ExpectRollback()

	archived, err := s.sweepInactive("testrun", []string{"rr-seen"})
	require.NoError(t, err)
	assert.Equal(t, 1, archived)
	assert.NoError(t, mock.ExpectationsWereMet())
}
