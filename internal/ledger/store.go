// Package ledger persists, per community, which lessons have been fully
// materialized on disk. Presence of an entry means "skip on resume"; the
// entry and its asset manifest are committed in one transaction so a
// crash can never leave a half-recorded lesson behind.
package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"coursemirror/lib/slugutil"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Entry is one committed lesson in the ledger.
type Entry struct {
	Key         string
	Title       string
	CompletedAt time.Time
	Assets      []string
}

// DbPath computes the on-disk store location for a community. The slug
// is encoded so arbitrary community names always yield one legal path
// segment.
func DbPath(cacheDir, communitySlug string) string {
	return filepath.Join(cacheDir, slugutil.DbFileName(communitySlug)+".db")
}

// Open opens (creating if needed) the ledger for one community.
func Open(cacheDir, communitySlug string) (*Store, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", DbPath(cacheDir, communitySlug))
	if err != nil {
		return nil, err
	}
	store, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an already-open database, applying the schema. Used directly
// by tests with an in-memory database.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Has reports whether a lesson has already been fully materialized.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM lessons WHERE key = ?`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkComplete records a lesson and its produced file paths atomically.
// Re-marking an existing key refreshes its manifest instead of failing,
// which keeps repeated runs idempotent.
func (s *Store) MarkComplete(ctx context.Context, key, title string, manifest []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lessons (key, title, completed_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET title = excluded.title
	`, key, title, time.Now().Unix())
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM assets WHERE lesson_key = ?`, key)
	if err != nil {
		return err
	}
	for _, path := range manifest {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO assets (lesson_key, path) VALUES (?, ?)`, key, path)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Assets returns the file manifest recorded for a lesson.
func (s *Store) Assets(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM assets WHERE lesson_key = ? ORDER BY path`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Entries lists every committed lesson with its manifest.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, title, completed_at FROM lessons ORDER BY completed_at, key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.Key, &e.Title, &ts); err != nil {
			return nil, err
		}
		e.CompletedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		assets, err := s.Assets(ctx, entries[i].Key)
		if err != nil {
			return nil, err
		}
		entries[i].Assets = assets
	}
	return entries, nil
}

// Clear wipes the ledger. Only explicit re-sync uses this; the normal
// flow never deletes entries.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM assets`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM lessons`); err != nil {
		return err
	}
	return tx.Commit()
}
