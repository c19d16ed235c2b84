package migrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func TestUpDown_SQLite(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "migrate.db")

	if err := Up(ctx, "sqlite", dsn); err != nil {
		t.Fatalf("Up: %v", err)
	}
	v, err := Version(ctx, "sqlite", dsn)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != 1 {
		t.Fatalf("expected schema version 1, got %d", v)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, `INSERT INTO casbin_rules (ptype, v0, v1) VALUES ('g','alice','subscriber')`); err != nil {
		t.Fatalf("insert into migrated table: %v", err)
	}

	if err := Down(ctx, "sqlite", dsn); err != nil {
		t.Fatalf("Down: %v", err)
	}
	v, err = Version(ctx, "sqlite", dsn)
	if err != nil {
		t.Fatalf("Version after down: %v", err)
	}
	if v != 0 {
		t.Fatalf("expected schema version 0 after down, got %d", v)
	}
}

func TestConfigureGoose_UnsupportedDriver(t *testing.T) {
	if err := configureGoose("mysql"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
