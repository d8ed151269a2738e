package database

import (
	"time"

	"easy2trade/internal/types"

	"github.com/pkg/errors"
)

// InsertNotification records one dispatch attempt. A failed attempt carries
// the delivery error text.
func (db *DB) InsertNotification(n types.NotificationRecord) (int64, error) {
	query := `
	INSERT INTO notifications (coin, pct_change, channel, recipient, error, sent_at)
	VALUES (?, ?, ?, ?, ?, ?);`

	sentAt := n.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	res, err := db.conn.Exec(query, n.Coin, n.Change, n.Channel, n.Recipient, n.Error, sentAt.Unix())
	if err != nil {
		return 0, errors.Wrap(err, "failed to insert notification")
	}
	return res.LastInsertId()
}

// GetNotifications returns the most recent records first.
func (db *DB) GetNotifications(limit int) ([]types.NotificationRecord, error) {
	query := `
	SELECT id, coin, pct_change, channel, recipient, error, sent_at
	FROM notifications
	ORDER BY id DESC
	LIMIT ?;`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query notifications")
	}
	defer rows.Close()

	var records []types.NotificationRecord
	for rows.Next() {
		var n types.NotificationRecord
		var sentAt int64
		if err := rows.Scan(&n.ID, &n.Coin, &n.Change, &n.Channel, &n.Recipient, &n.Error, &sentAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		n.SentAt = time.Unix(sentAt, 0).UTC()
		records = append(records, n)
	}
	return records, errors.Wrap(rows.Err(), "failed to read notifications")
}
