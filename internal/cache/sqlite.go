package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists the snapshot in a key-value table. A write is a single
// upsert in a transaction, so a reader sees either the old or the new blob.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Write(ctx context.Context, list []models.Message) error {
	data, err := Encode(list)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", models.ErrCacheWrite, err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, MessagesKey, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: upsert: %w", models.ErrCacheWrite, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", models.ErrCacheWrite, err)
	}
	return nil
}

func (s *SQLiteStore) Read(ctx context.Context) ([]models.Message, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, MessagesKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrCacheRead, err)
	}
	return Decode(data)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
