package compute

import (
	"database/sql"
	"log"
	"os"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gbl08ma/sqalx"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencivic/disruptionsto/dataobjects"
	"github.com/opencivic/disruptionsto/matcher"
)

var testLog = log.New(os.Stdout, "test", log.Ldate|log.Ltime)

func mockNode(t *testing.T) (sqalx.Node, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	node, err := sqalx.New(sqlx.NewDb(db, "sqlmock"))
	require.NoError(t, err)
	return node, mock
}

func TestMatchDisruptionReusesCachedMatch(t *testing.T) {
	node, mock := mockNode(t)
	h := NewMatchHandler(node, testLog, 3, 30*24*time.Hour, 6)

	disruption := &dataobjects.Disruption{
		ID:          "d-1",
		Title:       "Bloor St W closed",
		Description: "watermain break",
		MatchedStreet: sql.NullString{
			String: "Bloor Street West", Valid: true,
		},
		MatchHash: sql.NullString{
			String: matcher.ComputeMatchHash("Bloor St W closed", "watermain break"),
			Valid:  true,
		},
		MatchedAt: pq.NullTime{Time: time.Now().Add(-time.Hour), Valid: true},
	}

	// no expectations registered: a usable cached match must not touch the store
	require.NoError(t, h.MatchDisruption(node, disruption))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchDisruptionStaleCacheRecomputes(t *testing.T) {
	node, mock := mockNode(t)
	h := NewMatchHandler(node, testLog, 3, 30*24*time.Hour, 6)
	h.reference.Set(referenceCacheKey, []*dataobjects.StreetSegment{
		{ID: 7, Name: "Bloor St W", NormalizedName: "bloor st w"},
	}, 0)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE disruption SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM disruption_street_match").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO disruption_street_match").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	disruption := &dataobjects.Disruption{
		ID:          "d-1",
		Title:       "Bloor St W closed",
		Description: "watermain break",
		MatchedStreet: sql.NullString{
			String: "Bloor Street West", Valid: true,
		},
		// hash from different content, so the cached match is unusable
		MatchHash: sql.NullString{
			String: matcher.ComputeMatchHash("old title", "old description"),
			Valid:  true,
		},
		MatchedAt: pq.NullTime{Time: time.Now().Add(-time.Hour), Valid: true},
	}

	require.NoError(t, h.MatchDisruption(node, disruption))
	assert.Equal(t, string(matcher.MatchTypeExact), disruption.MatchType)
	assert.Equal(t, "Bloor St W", disruption.MatchedStreet.String)
	assert.Equal(t, 1.0, disruption.MatchConfidence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchDisruptionNoCandidates(t *testing.T) {
	node, mock := mockNode(t)
	h := NewMatchHandler(node, testLog, 3, 30*24*time.Hour, 6)
	h.reference.Set(referenceCacheKey, []*dataobjects.StreetSegment{
		{ID: 7, Name: "Bloor St W", NormalizedName: "bloor st w"},
	}, 0)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE disruption SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	disruption := &dataobjects.Disruption{
		ID:          "d-2",
		Title:       "Service adjustments",
		Description: "schedule change systemwide",
	}

	require.NoError(t, h.MatchDisruption(node, disruption))
	assert.Equal(t, string(matcher.MatchTypeNone), disruption.MatchType)
	assert.False(t, disruption.MatchedStreet.Valid)
	assert.True(t, disruption.MatchedAt.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBestMatchPrefersExact(t *testing.T) {
	h := NewMatchHandler(nil, testLog, 3, 30*24*time.Hour, 6)
	segments := []*dataobjects.StreetSegment{
		{ID: 1, Name: "Bloor St E", NormalizedName: "bloor st e"},
		{ID: 2, Name: "Bloor St W", NormalizedName: "bloor st w"},
	}

	disruption := &dataobjects.Disruption{
		Title:       "Bloor St W closed at Ossington Ave",
		Description: "",
	}
	match, segment := h.bestMatch(disruption, segments)
	assert.Equal(t, matcher.MatchTypeExact, match.Type)
	assert.Equal(t, "Bloor St W", match.Name)
	require.NotNil(t, segment)
	assert.Equal(t, int64(2), segment.ID)
}

func TestBestMatchEmptyReference(t *testing.T) {
	h := NewMatchHandler(nil, testLog, 3, 30*24*time.Hour, 6)
	disruption := &dataobjects.Disruption{Title: "Bloor St W closed"}
	match, segment := h.bestMatch(disruption, nil)
	assert.Equal(t, matcher.MatchTypeNone, match.Type)
	assert.Nil(t, segment)
}
