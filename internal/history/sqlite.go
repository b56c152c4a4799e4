package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteBusyTimeout bounds how long a write waits on another process holding
// the database, such as `toolchat history` reading during a chat.
const sqliteBusyTimeout = 5 * time.Second

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tool_calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	called_at TEXT NOT NULL,
	session_id TEXT NOT NULL,
	tool TEXT NOT NULL,
	arguments BLOB,
	result TEXT NOT NULL,
	failed INTEGER NOT NULL DEFAULT 0
);`

// SQLiteStore persists tool-call entries in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a store at dsn. Parent directories of a
// file path are created.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("history: sqlite dsn is required")
	}
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("history: create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: sqlite open: %w", err)
	}
	// One connection serializes writers from concurrent sessions, keeps the
	// pragmas below in effect and gives :memory: a single database.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", sqliteBusyTimeout.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: sqlite set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: sqlite set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: sqlite create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Record inserts one entry.
func (s *SQLiteStore) Record(ctx context.Context, e Entry) error {
	failed := 0
	if e.Failed {
		failed = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (called_at, session_id, tool, arguments, result, failed) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Time.UTC().Format(time.RFC3339Nano), e.SessionID, e.Tool, []byte(e.Arguments), e.Result, failed,
	)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT called_at, session_id, tool, arguments, result, failed FROM tool_calls ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			ts     string
			args   []byte
			failed int
		)
		if err := rows.Scan(&ts, &e.SessionID, &e.Tool, &args, &e.Result, &failed); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if e.Time, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("history: parse time %q: %w", ts, err)
		}
		if len(args) > 0 {
			e.Arguments = args
		}
		e.Failed = failed != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Recorder = (*SQLiteStore)(nil)
