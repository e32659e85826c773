package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore stores all collections in a single SQLite database.
//
// Tables:
//
//	documents(collection, key, data)  PRIMARY KEY (collection, key)
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, AuthError(BackendSQLite, err)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, AuthError(BackendSQLite, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, AuthError(BackendSQLite, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		key TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (collection, key)
	)`); err != nil {
		db.Close()
		return nil, AuthError(BackendSQLite, err)
	}

	return &SQLiteStore{db: db}, nil
}

// WriteBatch upserts docs inside a single transaction.
func (s *SQLiteStore) WriteBatch(ctx context.Context, collection string, docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (collection, key, data) VALUES (?, ?, ?)
		 ON CONFLICT(collection, key) DO UPDATE SET data = excluded.data`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		key := doc.ID
		if key == "" {
			key = uuid.NewString()
		}
		b, err := json.Marshal(doc.Data)
		if err != nil {
			return 0, fmt.Errorf("failed to encode document %s/%s: %w", collection, key, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, key, string(b)); err != nil {
			return 0, fmt.Errorf("failed to write document %s/%s: %w", collection, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return len(docs), nil
}

// Get returns a single document by key, or nil if not found.
func (s *SQLiteStore) Get(ctx context.Context, collection, key string) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND key = ?",
		collection, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s/%s: %w", collection, key, err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s/%s: %w", collection, key, err)
	}

	return doc, nil
}

// Count returns the number of documents in a collection.
func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE collection = ?", collection,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count collection %s: %w", collection, err)
	}

	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close(_ context.Context) error {
	return s.db.Close()
}
