// Package sqlite implements store.Store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gyaneshwarpardhi/opscore/internal/condition"
	"github.com/gyaneshwarpardhi/opscore/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE TABLE IF NOT EXISTS processed (
	key        TEXT PRIMARY KEY,
	applied_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS activity (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id   TEXT NOT NULL,
	event_type TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	user_id    TEXT NOT NULL DEFAULT '',
	summary    TEXT NOT NULL DEFAULT '',
	at         INTEGER NOT NULL
);
`

// Store is a store.Store backed by a single SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	// Every connection to ":memory:" is a separate database, and SQLite
	// serialises writers anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	return get(ctx, s.db, collection, id)
}

func (s *Store) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.update(ctx, collection, id, func(data map[string]any) error {
		maps.Copy(data, fields)
		return nil
	})
}

func (s *Store) Increment(ctx context.Context, collection, id, field string, delta float64, dedupKey string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if dedupKey != "" {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO processed (key, applied_at) VALUES (?, ?)`,
			dedupKey, s.now().UnixNano())
		if err != nil {
			return false, fmt.Errorf("record %s: %w", dedupKey, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return false, nil
		}
	}

	err = updateTx(ctx, tx, s.now(), collection, id, func(data map[string]any) error {
		current := 0.0
		if v, ok := data[field]; ok {
			f, ok := condition.Number(v)
			if !ok {
				return fmt.Errorf("%s/%s: field %q is %T, not a number", collection, id, field, v)
			}
			current = f
		}
		data[field] = current + delta
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *Store) AppendActivity(ctx context.Context, a store.Activity) error {
	if a.At.IsZero() {
		a.At = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity (event_id, event_type, source, user_id, summary, at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.EventID, a.EventType, a.Source, a.UserID, a.Summary, a.At.UnixNano())
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

func (s *Store) RecentActivity(ctx context.Context, limit int) ([]store.Activity, error) {
	if limit <= 0 {
		return []store.Activity{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, event_type, source, user_id, summary, at FROM activity ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	out := []store.Activity{}
	for rows.Next() {
		var a store.Activity
		var at int64
		if err := rows.Scan(&a.EventID, &a.EventType, &a.Source, &a.UserID, &a.Summary, &at); err != nil {
			return nil, err
		}
		a.At = time.Unix(0, at).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) update(ctx context.Context, collection, id string, fn func(map[string]any) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := updateTx(ctx, tx, s.now(), collection, id, fn); err != nil {
		return err
	}
	return tx.Commit()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q querier, collection, id string) (store.Document, error) {
	var raw string
	var updated int64
	err := q.QueryRowContext(ctx,
		`SELECT data, updated_at FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	doc := store.Document{Collection: collection, ID: id, UpdatedAt: time.Unix(0, updated).UTC()}
	if err := json.Unmarshal([]byte(raw), &doc.Fields); err != nil {
		return store.Document{}, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func updateTx(ctx context.Context, tx *sql.Tx, now time.Time, collection, id string, fn func(map[string]any) error) error {
	if collection == "" || id == "" {
		return fmt.Errorf("collection and id are required")
	}
	data := map[string]any{}
	doc, err := get(ctx, tx, collection, id)
	switch {
	case err == nil:
		if doc.Fields != nil {
			data = doc.Fields
		}
	case !errors.Is(err, store.ErrNotFound):
		return err
	}
	if err := fn(data); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, id, string(raw), now.UnixNano())
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, id, err)
	}
	return nil
}
