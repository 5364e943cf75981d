package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS searches (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	search_id     TEXT NOT NULL UNIQUE,
	idea          TEXT NOT NULL,
	keywords      TEXT NOT NULL DEFAULT '[]',
	content_types TEXT NOT NULL DEFAULT '[]',
	intent        TEXT NOT NULL,
	total_results INTEGER NOT NULL,
	video_ids     TEXT NOT NULL DEFAULT '[]',
	quota_used    INTEGER NOT NULL,
	degraded      INTEGER NOT NULL DEFAULT 0,
	duration_ms   INTEGER NOT NULL,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS searches_created_at ON searches (created_at DESC);`

// SQLiteStore keeps history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultSQLitePath is ~/.go_vidsearch/history.db.
func DefaultSQLitePath() string {
	return filepath.Join(os.Getenv("HOME"), ".go_vidsearch", "history.db")
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = DefaultSQLitePath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("history: mkdir %s: %w", filepath.Dir(path), err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, e Entry) error {
	keywords, _ := json.Marshal(nonNil(e.Keywords))
	types, _ := json.Marshal(nonNil(e.ContentTypes))
	ids, _ := json.Marshal(nonNil(e.VideoIDs))
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO searches (search_id, idea, keywords, content_types, intent, total_results,
		 video_ids, quota_used, degraded, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SearchID, e.Idea, string(keywords), string(types), e.Intent, e.TotalResults,
		string(ids), e.QuotaUsed, e.Degraded, e.DurationMS, e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT search_id, idea, keywords, content_types, intent, total_results,
		 video_ids, quota_used, degraded, duration_ms, created_at
		 FROM searches ORDER BY created_at DESC, id DESC LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var keywords, types, ids, created string
		if err := rows.Scan(&e.SearchID, &e.Idea, &keywords, &types, &e.Intent, &e.TotalResults,
			&ids, &e.QuotaUsed, &e.Degraded, &e.DurationMS, &created); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		_ = json.Unmarshal([]byte(keywords), &e.Keywords)
		_ = json.Unmarshal([]byte(types), &e.ContentTypes)
		_ = json.Unmarshal([]byte(ids), &e.VideoIDs)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of stored searches.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM searches`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
