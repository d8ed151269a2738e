package database

import (
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"easy2trade/internal/types"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *DB {
	db, err := Open(filepath.Join(t.TempDir(), "easy2trade.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMetricsRoundTrip(t *testing.T) {
	db := openTemp(t)

	v, err := db.GetMetric("recommendations")
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, db.SaveMetric("recommendations", "", "", 3))
	require.NoError(t, db.SaveMetric("recommendations", "", "", 5))
	require.NoError(t, db.SaveMetric("feedback_actions", "like", "applied", 2))
	require.NoError(t, db.SaveMetric("feedback_actions", "dislike", "already", 1))

	v, err = db.GetMetric("recommendations")
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)

	labeled, err := db.GetMetricsWithLabels("feedback_actions")
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]float64{
		"like":    {"applied": 2},
		"dislike": {"already": 1},
	}, labeled)

	labeled, err = db.GetMetricsWithLabels("recommendations")
	require.NoError(t, err)
	assert.Empty(t, labeled)
}

func TestNotifications(t *testing.T) {
	db := openTemp(t)
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := db.InsertNotification(types.NotificationRecord{Coin: "SOL", Change: 6, Channel: "email", Recipient: "me@example.com", SentAt: at})
	require.NoError(t, err)
	id, err := db.InsertNotification(types.NotificationRecord{Coin: "ADA", Change: -12.5, Channel: "email", Recipient: "me@example.com", Error: "535 auth failed", SentAt: at})
	require.NoError(t, err)

	records, err := db.GetNotifications(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, "ADA", records[0].Coin)
	assert.Equal(t, "535 auth failed", records[0].Error)
	assert.Equal(t, at, records[1].SentAt)

	records, err = db.GetNotifications(1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestErrorsAreWrapped(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	db := New(conn)

	mock.ExpectExec(regexp.QuoteMeta("INSERT OR REPLACE INTO metrics")).
		WillReturnError(errors.New("database is locked"))
	err = db.SaveMetric("recommendations", "", "", 1)
	assert.ErrorContains(t, err, "failed to save metric recommendations")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT metric_value")).
		WillReturnError(errors.New("disk I/O error"))
	_, err = db.GetMetric("recommendations")
	assert.ErrorContains(t, err, "disk I/O error")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT label_key")).
		WillReturnRows(sqlmock.NewRows([]string{"label_key", "label_value", "metric_value"}).
			AddRow("like", "applied", "not a number"))
	_, err = db.GetMetricsWithLabels("feedback_actions")
	assert.ErrorContains(t, err, "failed to scan row")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnError(errors.New("readonly database"))
	_, err = db.InsertNotification(types.NotificationRecord{Coin: "SOL"})
	assert.ErrorContains(t, err, "failed to insert notification")

	assert.NoError(t, mock.ExpectationsWereMet())
}
