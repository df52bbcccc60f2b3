package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"trades-sim/internal/config"
)

func TestNewSQLite_FileAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "trades.db")
	s, err := NewSQLite(config.DatabaseConfig{
		Path:            path,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Migrate(ctx, `CREATE TABLE IF NOT EXISTS probe (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}
	if _, err := s.DB().ExecContext(ctx, `INSERT INTO probe (name) VALUES (?)`, "ok"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM probe`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}
}

func TestNewSQLite_InMemorySurvivesBetweenStatements(t *testing.T) {
	s, err := NewSQLite(config.DatabaseConfig{
		InMemory:        true,
		MaxOpenConns:    4,
		MaxIdleConns:    0,
		ConnMaxLifetime: time.Nanosecond,
	})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Migrate(ctx,
		`CREATE TABLE IF NOT EXISTS events (id INTEGER PRIMARY KEY, kind TEXT)`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind)`,
	); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}
	if _, err := s.DB().ExecContext(ctx, `INSERT INTO events (kind) VALUES (?)`, "trade"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.DB().ExecContext(ctx, `INSERT INTO events (kind) VALUES (?)`, "skip"); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 rows, got %d", count)
	}
}

func TestNewSQLite_InMemoryDatabasesAreIsolated(t *testing.T) {
	first, err := NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	defer first.Close()
	second, err := NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	defer second.Close()

	ctx := context.Background()
	if err := first.Migrate(ctx, `CREATE TABLE only_first (id INTEGER)`); err != nil {
		t.Fatalf("migrate first: %v", err)
	}
	if err := second.Migrate(ctx, `CREATE TABLE only_first (id INTEGER)`); err != nil {
		t.Errorf("expected separate in-memory databases, got %v", err)
	}
}

func TestMigrate_InvalidStatement(t *testing.T) {
	s, err := NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	defer s.Close()

	if err := s.Migrate(context.Background(), "CREATE TABLE"); err == nil {
		t.Fatalf("expected migrate error for invalid SQL")
	}
}

func TestClose_NilDB(t *testing.T) {
	var s Store
	if err := s.Close(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
