// Package sqlite keeps form and instance records in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const backend = "sqlite"

// Observer receives the latency and outcome of every statement.
type Observer interface {
	Observe(backend, operation string, d time.Duration, err error)
}

type Store struct {
	db       *sql.DB
	observer Observer
}

// Open opens (creating if needed) the database at path and applies
// migrations.
func Open(ctx context.Context, path string, observer Observer) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, observer: observer}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Forms() *FormRepo { return &FormRepo{s: s} }

func (s *Store) Instances() *InstanceRepo { return &InstanceRepo{s: s} }

func (s *Store) observe(op string, start time.Time, err error) {
	if s.observer != nil {
		s.observer.Observe(backend, op, time.Since(start), err)
	}
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }
