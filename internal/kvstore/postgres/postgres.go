// Package postgres implements kvstore.Store on a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/gofm/gofm/internal/kvstore"
)

// Store implements kvstore.Store using PostgreSQL. The space column
// namespaces multiple logical containers inside one table.
type Store struct {
	db    *sql.DB
	table string
	space string
}

// New connects to PostgreSQL and ensures the schema exists.
func New(connStr, table, space string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	s := &Store{db: db, table: table, space: space}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key VARCHAR(4096) NOT NULL,
			space VARCHAR(255) NOT NULL,
			data BYTEA,
			size BIGINT NOT NULL DEFAULT 0,
			mtime TIMESTAMP NOT NULL DEFAULT NOW(),
			PRIMARY KEY (space, key)
		);
		CREATE INDEX IF NOT EXISTS idx_%s_prefix ON %s(key text_pattern_ops);
	`, s.table, s.table, s.table)

	_, err := s.db.Exec(query)
	return err
}

func (s *Store) List(ctx context.Context, prefix string) ([]kvstore.Entry, error) {
	query := fmt.Sprintf(
		"SELECT key, size, mtime FROM %s WHERE space = $1 AND key LIKE $2 ORDER BY key", s.table)
	rows, err := s.db.QueryContext(ctx, query, s.space, likePattern(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var entries []kvstore.Entry
	for rows.Next() {
		var entry kvstore.Entry
		if err := rows.Scan(&entry.Key, &entry.Size, &entry.ModTime); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// likePattern escapes LIKE metacharacters so a key prefix matches
// literally.
func likePattern(prefix string) string {
	escaped := make([]byte, 0, len(prefix)+1)
	for i := 0; i < len(prefix); i++ {
		switch prefix[i] {
		case '%', '_', '\\':
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, prefix[i])
	}
	return string(escaped) + "%"
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE space = $1 AND key = $2", s.table)
	var data []byte
	err := s.db.QueryRowContext(ctx, query, s.space, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("key not found: %w", os.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	return data, nil
}

func (s *Store) Write(ctx context.Context, key string, data []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (space, key, data, size, mtime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (space, key)
		DO UPDATE SET
			data = EXCLUDED.data,
			size = EXCLUDED.size,
			mtime = EXCLUDED.mtime
	`, s.table)

	_, err := s.db.ExecContext(ctx, query, s.space, key, data, len(data), time.Now())
	if err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE space = $1 AND key = $2", s.table)
	result, err := s.db.ExecContext(ctx, query, s.space, key)
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("key not found: %w", os.ErrNotExist)
	}
	return nil
}

// Rename replaces any existing row at newKey. The destination delete
// and the key update commit together, so a crash never leaves both rows.
func (s *Store) Rename(ctx context.Context, oldKey, newKey string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to rename key: %w", err)
	}
	defer tx.Rollback()

	del := fmt.Sprintf("DELETE FROM %s WHERE space = $1 AND key = $2", s.table)
	if _, err := tx.ExecContext(ctx, del, s.space, newKey); err != nil {
		return fmt.Errorf("failed to rename key: %w", err)
	}

	upd := fmt.Sprintf(
		"UPDATE %s SET key = $1, mtime = $2 WHERE space = $3 AND key = $4", s.table)
	result, err := tx.ExecContext(ctx, upd, newKey, time.Now(), s.space, oldKey)
	if err != nil {
		return fmt.Errorf("failed to rename key: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("key not found: %w", os.ErrNotExist)
	}
	return tx.Commit()
}

func (s *Store) Stat(ctx context.Context, key string) (kvstore.Entry, error) {
	query := fmt.Sprintf("SELECT size, mtime FROM %s WHERE space = $1 AND key = $2", s.table)
	entry := kvstore.Entry{Key: key}
	err := s.db.QueryRowContext(ctx, query, s.space, key).Scan(&entry.Size, &entry.ModTime)
	if err == sql.ErrNoRows {
		return kvstore.Entry{}, fmt.Errorf("key not found: %w", os.ErrNotExist)
	}
	if err != nil {
		return kvstore.Entry{}, fmt.Errorf("failed to stat key: %w", err)
	}
	return entry, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE space = $1 AND key = $2 LIMIT 1", s.table)
	var one int
	err := s.db.QueryRowContext(ctx, query, s.space, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
