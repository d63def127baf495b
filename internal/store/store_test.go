package store

import (
	"path/filepath"
	"testing"
)

func TestOpenCreatesDirectoryAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "analytics.duckdb")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
}

func TestInitSchemaIdempotent(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "analytics.duckdb"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := InitSchema(db); err != nil {
			t.Fatalf("InitSchema run %d failed: %v", i+1, err)
		}
	}

	var tables int
	row := db.QueryRow(`SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = 'main'`)
	if err := row.Scan(&tables); err != nil {
		t.Fatalf("counting tables: %v", err)
	}
	if tables != 4 {
		t.Errorf("expected 4 tables, got %d", tables)
	}
}

func TestSequenceStartsAtOne(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "analytics.duckdb"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	var id int64
	if err := db.QueryRow(`SELECT nextval('etl_run_log_seq')`).Scan(&id); err != nil {
		t.Fatalf("nextval: %v", err)
	}
	if id != 1 {
		t.Errorf("expected first sequence value 1, got %d", id)
	}
}

func TestOpenReadOnlyMissingFile(t *testing.T) {
	if _, err := OpenReadOnly(filepath.Join(t.TempDir(), "absent.duckdb")); err == nil {
		t.Fatal("expected error for missing database file")
	}
}

func TestOpenReadOnlyRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analytics.duckdb")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	db.Close()

	ro, err := OpenReadOnly(path)
	if err != nil {
		t.Fatalf("OpenReadOnly failed: %v", err)
	}
	defer ro.Close()

	if _, err := ro.Exec(`INSERT INTO dex_usage_total VALUES ('sol', 'Raydium', 1, 1, 1, 100.0, '2025-06-01', CURRENT_TIMESTAMP)`); err == nil {
		t.Error("expected write to fail on read-only connection")
	}
}
