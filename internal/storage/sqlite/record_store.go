// Package sqlite provides the SQLite-backed RecordStore used for local crawls.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/JakeFAU/thegirl-crawler/internal/crawler"
)

const defaultTable = "tests"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls where the SQLite database lives.
type Config struct {
	Path  string
	Table string
}

// RecordStore writes article records into a SQLite table.
type RecordStore struct {
	db    *sql.DB
	table string
}

// NewRecordStore opens (creating if absent) the database at cfg.Path and
// ensures the records table exists.
func NewRecordStore(ctx context.Context, cfg Config) (*RecordStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("store.path is required")
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	store := &RecordStore{db: db, table: table}
	if err := store.ensureSchema(ctx); err != nil {
		closeQuietly(db)
		return nil, err
	}
	return store, nil
}

func (s *RecordStore) ensureSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	title TEXT,
	tags TEXT NOT NULL DEFAULT ''
)`, s.table)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Save inserts the record unless a row with the same URL already exists.
// Each insert is committed on its own.
func (s *RecordStore) Save(ctx context.Context, record crawler.Record) (stored bool, err error) {
	if record.ID == "" || record.URL == "" {
		return false, fmt.Errorf("record id and url are required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil || !stored {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE url = ?`, s.table)
	if err := tx.QueryRowContext(ctx, query, record.URL).Scan(&count); err != nil {
		return false, fmt.Errorf("count url: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	insert := fmt.Sprintf(`
INSERT INTO %s (id, url, title, tags) VALUES (?, ?, ?, ?)
ON CONFLICT DO NOTHING`, s.table)
	res, err := tx.ExecContext(ctx, insert, record.ID, record.URL, nullableString(record.Title), record.Tags)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit record: %w", err)
	}
	return true, nil
}

// Exists reports whether a row with url is stored.
func (s *RecordStore) Exists(ctx context.Context, url string) (bool, error) {
	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE url = ?`, s.table)
	if err := s.db.QueryRowContext(ctx, query, url).Scan(&count); err != nil {
		return false, fmt.Errorf("count url: %w", err)
	}
	return count > 0, nil
}

// Count returns the number of stored rows.
func (s *RecordStore) Count(ctx context.Context) (int64, error) {
	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// Get loads the record stored for url.
func (s *RecordStore) Get(ctx context.Context, url string) (crawler.Record, error) {
	var (
		record crawler.Record
		title  sql.NullString
	)
	query := fmt.Sprintf(`SELECT id, url, title, tags FROM %s WHERE url = ?`, s.table)
	err := s.db.QueryRowContext(ctx, query, url).Scan(&record.ID, &record.URL, &title, &record.Tags)
	if err != nil {
		return crawler.Record{}, fmt.Errorf("get record: %w", err)
	}
	if title.Valid {
		record.Title = &title.String
	}
	return record, nil
}

// Close releases the database handle.
func (s *RecordStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func closeQuietly(db *sql.DB) {
	_ = db.Close()
}
