package database

import (
	"database/sql"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// DB is the sqlite side store for metrics and the notification audit log.
// The CSV tables remain the record of feedback, features and tracked coins.
type DB struct {
	conn *sql.DB
}

// Open connects to the sqlite file at path and creates missing tables.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	// sqlite allows a single writer
	conn.SetMaxOpenConns(1)

	db := New(conn)
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	log.Debugf("Database %s initialized successfully.", path)
	return db, nil
}

// New wraps an existing connection without touching the schema.
func New(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

func (db *DB) migrate() error {
	createNotificationsTable := `
	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		coin TEXT NOT NULL,
		pct_change REAL NOT NULL,
		channel TEXT NOT NULL,
		recipient TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		sent_at INTEGER NOT NULL
	);`
	if _, err := db.conn.Exec(createNotificationsTable); err != nil {
		return errors.Wrap(err, "failed to create notifications table")
	}

	createMetricsTable := `
	CREATE TABLE IF NOT EXISTS metrics (
		metric_name TEXT NOT NULL,
		label_key TEXT NOT NULL DEFAULT '',
		label_value TEXT NOT NULL DEFAULT '',
		metric_value REAL NOT NULL,
		PRIMARY KEY (metric_name, label_key, label_value)
	);`
	if _, err := db.conn.Exec(createMetricsTable); err != nil {
		return errors.Wrap(err, "failed to create metrics table")
	}
	return nil
}

func (db *DB) Close() error {
	if db == nil || db.conn == nil {
		return nil
	}
	return db.conn.Close()
}
