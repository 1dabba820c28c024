package server

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultHistoryLimit is the number of entries History returns when the
// request does not set a limit.
const DefaultHistoryLimit = 50

// HistoryStore records evaluations in a SQLite database.
type HistoryStore struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenHistory opens (creating if needed) the history database at path.
// Use ":memory:" for a throwaway store.
func OpenHistory(path string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes
	// writers.
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS history (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT    NOT NULL,
		source     TEXT    NOT NULL,
		result     TEXT    NOT NULL,
		success    INTEGER NOT NULL,
		engine     TEXT    NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history table: %w", err)
	}

	_, err = db.Exec("CREATE INDEX IF NOT EXISTS history_session ON history (session_id, id)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history index: %w", err)
	}

	return &HistoryStore{db: db}, nil
}

// Close closes the database connection.
func (h *HistoryStore) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

// Record stores one evaluation. Result holds the rendered value on success
// and the error message otherwise.
func (h *HistoryStore) Record(ctx context.Context, sessionID string, e *HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	success := 0
	if e.Success {
		success = 1
	}
	_, err := h.db.ExecContext(ctx,
		"INSERT INTO history (session_id, source, result, success, engine, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		sessionID, e.Source, e.Result, success, e.Engine, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("recording history: %w", err)
	}
	return nil
}

// List returns up to limit entries for a session, newest first. A limit of
// zero or less means DefaultHistoryLimit.
func (h *HistoryStore) List(ctx context.Context, sessionID string, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := h.db.QueryContext(ctx,
		"SELECT source, result, success, engine, created_at FROM history WHERE session_id = ? ORDER BY id DESC LIMIT ?",
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var (
			e       HistoryEntry
			success int
			created int64
		)
		if err := rows.Scan(&e.Source, &e.Result, &success, &e.Engine, &created); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		e.Success = success != 0
		e.CreatedAt = time.Unix(0, created)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return entries, nil
}
