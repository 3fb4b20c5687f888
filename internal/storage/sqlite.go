package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS exchanges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	session_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	user_message TEXT NOT NULL,
	bot_response TEXT NOT NULL,
	outcome TEXT NOT NULL,
	latency_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_exchanges_ts ON exchanges(ts);
`

// SQLiteRecorder keeps events in a single exchanges table.
type SQLiteRecorder struct {
	db *sql.DB
}

func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// one writer; sqlite serializes anyway and this avoids "database is locked"
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "init schema")
	}
	return &SQLiteRecorder{db: db}, nil
}

func (r *SQLiteRecorder) AppendInteraction(event Event) error {
	_, err := r.db.Exec(
		"INSERT INTO exchanges(ts, session_id, channel, user_message, bot_response, outcome, latency_ms) VALUES(?,?,?,?,?,?,?)",
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		event.SessionID,
		event.Channel,
		event.UserMessage,
		event.BotResponse,
		event.Outcome,
		event.LatencyMS,
	)
	if err != nil {
		return errors.Wrap(err, "insert exchange")
	}
	return nil
}

func (r *SQLiteRecorder) LoadInteractions() ([]Event, error) {
	rows, err := r.db.Query("SELECT ts, session_id, channel, user_message, bot_response, outcome, latency_ms FROM exchanges ORDER BY ts, id")
	if err != nil {
		return nil, errors.Wrap(err, "query exchanges")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev Event
			ts string
		)
		if err := rows.Scan(&ts, &ev.SessionID, &ev.Channel, &ev.UserMessage, &ev.BotResponse, &ev.Outcome, &ev.LatencyMS); err != nil {
			return nil, errors.Wrap(err, "scan exchange")
		}
		ev.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, errors.Wrapf(err, "parse timestamp %q", ts)
		}
		events = append(events, ev)
	}
	return events, errors.Wrap(rows.Err(), "iterate exchanges")
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
