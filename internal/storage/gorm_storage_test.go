package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestSQLite(t *testing.T) *GormStorage {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "rates.db")
	st, err := NewGormStorage("sqlite", dsn)
	if err != nil {
		t.Fatalf("NewGormStorage: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestGormStorage_SQLiteRates(t *testing.T) {
	exerciseRates(t, newTestSQLite(t))
}

func TestGormStorage_SQLiteRules(t *testing.T) {
	exerciseRules(t, newTestSQLite(t))
}

func TestGormStorage_Ping(t *testing.T) {
	st := newTestSQLite(t)
	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestOpen_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "open.db")
	st, err := Open(context.Background(), Config{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*GormStorage); !ok {
		t.Fatalf("expected *GormStorage, got %T", st)
	}
}
