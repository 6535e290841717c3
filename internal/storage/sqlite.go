package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/partysync/internal/common"
	"github.com/dmitrijs2005/partysync/internal/dbx"
)

// SQLiteStore implements Store using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore returns a new SQLiteStore bound to the given database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetItem returns the value stored under key.
func (s *SQLiteStore) GetItem(ctx context.Context, key string) (string, error) {
	query := `SELECT value FROM kv_items WHERE key = ?`
	row := s.db.QueryRowContext(ctx, query, key)

	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("query row scan failed: %w", err)
	}
	return value, nil
}

// SetItem upserts the value for key.
func (s *SQLiteStore) SetItem(ctx context.Context, key string, value string) error {
	query := `INSERT INTO kv_items (key, value, updated_at)
			VALUES (?, ?, unixepoch())
			ON CONFLICT(key) DO UPDATE SET value = excluded.value,
				updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, key, value)
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}
	return nil
}

// RemoveItem deletes the row for key if present.
func (s *SQLiteStore) RemoveItem(ctx context.Context, key string) error {
	query := `DELETE FROM kv_items WHERE key = ?`
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

// MultiRemove deletes all given keys inside a single transaction.
func (s *SQLiteStore) MultiRemove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv_items WHERE key = ?`, key); err != nil {
				return fmt.Errorf("failed to delete item %q: %w", key, err)
			}
		}
		return nil
	})
}

// Keys lists all stored keys in insertion-independent (sorted) order.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	query := `SELECT key FROM kv_items ORDER BY key`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select keys: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		result = append(result, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
