package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"GemChat/internal/session"
)

// sqliteStore implements session.Store backed by a SQLite database.
// The turn log is stored as a JSON payload under the record ID.
type sqliteStore struct {
	db *sql.DB
}

func newSQLiteStore(path string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createHistoryTable := `
	CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		saved_at DATETIME,
		payload TEXT
	);`

	if _, err := db.Exec(createHistoryTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history table: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

// Save implements session.Store.
func (s *sqliteStore) Save(ctx context.Context, rec *session.Record) error {
	payload, err := json.Marshal(rec.Turns)
	if err != nil {
		return fmt.Errorf("failed to marshal history payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO history (id, saved_at, payload) VALUES (?, ?, ?)",
		rec.ID, rec.SavedAt, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// Load implements session.Store.
func (s *sqliteStore) Load(ctx context.Context, id string) (*session.Record, error) {
	rec := &session.Record{ID: id}
	var payload string

	err := s.db.QueryRowContext(ctx,
		"SELECT saved_at, payload FROM history WHERE id = ?", id).
		Scan(&rec.SavedAt, &payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &rec.Turns); err != nil {
		return nil, fmt.Errorf("failed to parse history payload: %w", err)
	}
	return rec, nil
}

// Close implements session.Store.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}
