// Package sessiondb stores capture-session summaries in SQLite so past
// sessions and their per-identifier statistics survive the process.
package sessiondb

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/canlab/canrx/internal/capture"
	"github.com/canlab/canrx/internal/stats"
)

type DB struct {
	*sql.DB
}

// Open opens (or creates) the session database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id    TEXT PRIMARY KEY,
			port          TEXT,
			started_at    TIMESTAMP,
			ended_at      TIMESTAMP,
			frame_count   BIGINT,
			log_path      TEXT
		);
		CREATE TABLE IF NOT EXISTS id_stats (
			session_id    TEXT,
			can_id        BIGINT,
			frame_count   BIGINT,
			ema_hz        DOUBLE,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create session schema: %w", err)
	}

	return &DB{db}, nil
}

// RecordSession inserts one completed session.
func (db *DB) RecordSession(s capture.Session) error {
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, port, started_at, ended_at, frame_count, log_path)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Port, s.StartedAt.UTC(), s.EndedAt.UTC(), s.FrameCount, s.LogPath,
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", s.ID, err)
	}
	return nil
}

// RecordStats inserts the end-of-session statistics snapshot.
func (db *DB) RecordStats(sessionID string, entries []stats.Entry) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range entries {
		_, err := tx.Exec(
			`INSERT INTO id_stats (session_id, can_id, frame_count, ema_hz) VALUES (?, ?, ?, ?)`,
			sessionID, e.ID, e.Count, e.Hz,
		)
		if err != nil {
			return fmt.Errorf("insert stats for %s: %w", sessionID, err)
		}
	}
	return tx.Commit()
}

// Sessions lists recorded sessions, newest first.
func (db *DB) Sessions() ([]capture.Session, error) {
	rows, err := db.Query(
		`SELECT session_id, port, started_at, ended_at, frame_count, log_path
		 FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []capture.Session
	for rows.Next() {
		var s capture.Session
		var started, ended time.Time
		if err := rows.Scan(&s.ID, &s.Port, &started, &ended, &s.FrameCount, &s.LogPath); err != nil {
			return nil, err
		}
		s.StartedAt = started
		s.EndedAt = ended
		out = append(out, s)
	}
	return out, rows.Err()
}

// SessionStats returns the statistics snapshot for one session,
// identifiers ascending.
func (db *DB) SessionStats(sessionID string) ([]stats.Entry, error) {
	rows, err := db.Query(
		`SELECT can_id, frame_count, ema_hz FROM id_stats
		 WHERE session_id = ? ORDER BY can_id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stats.Entry
	for rows.Next() {
		var e stats.Entry
		if err := rows.Scan(&e.ID, &e.Count, &e.Hz); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
