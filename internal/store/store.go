// Package store owns the embedded DuckDB database: connection lifecycle and
// schema management for the usage tables and the run ledger.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb/v2"

	"dexflow/logger"
)

var log = logger.GetLogger()

// Open opens (creating if necessary) the DuckDB database at path. The parent
// directory is created when missing.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// The json extension ships with most builds; failing to load it only
	// matters once an extraction query runs, so degrade to a warning here.
	if _, err := db.Exec("LOAD json"); err != nil {
		log.WithComponent("store").WithError(err).Warn("could not load json extension")
	}

	return db, nil
}

// OpenReadOnly opens an existing database without write access. Unlike Open
// it refuses to create a missing file.
func OpenReadOnly(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database not found at %s: %w", path, err)
	}

	db, err := sql.Open("duckdb", path+"?access_mode=read_only")
	if err != nil {
		return nil, fmt.Errorf("opening database read-only: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS dex_usage_hourly (
		chain_id VARCHAR NOT NULL,
		date DATE NOT NULL,
		hour INTEGER NOT NULL,
		dex_name VARCHAR NOT NULL,
		usage_count INTEGER NOT NULL,
		total_weight BIGINT NOT NULL,
		unique_orders INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (chain_id, date, hour, dex_name)
	)`,
	`CREATE TABLE IF NOT EXISTS dex_usage_daily (
		chain_id VARCHAR NOT NULL,
		date DATE NOT NULL,
		dex_name VARCHAR NOT NULL,
		usage_count INTEGER NOT NULL,
		total_weight BIGINT NOT NULL,
		unique_orders INTEGER NOT NULL,
		percentage DECIMAL(5,2),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (chain_id, date, dex_name)
	)`,
	`CREATE TABLE IF NOT EXISTS dex_usage_total (
		chain_id VARCHAR NOT NULL,
		dex_name VARCHAR NOT NULL,
		usage_count INTEGER NOT NULL,
		total_weight BIGINT NOT NULL,
		unique_orders INTEGER NOT NULL,
		percentage DECIMAL(5,2),
		first_seen DATE,
		last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (chain_id, dex_name)
	)`,
	`CREATE TABLE IF NOT EXISTS etl_run_log (
		run_id INTEGER PRIMARY KEY,
		chain_id VARCHAR NOT NULL,
		run_date DATE NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP,
		status VARCHAR NOT NULL,
		records_processed INTEGER,
		error_message TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE SEQUENCE IF NOT EXISTS etl_run_log_seq START 1`,
	`CREATE INDEX IF NOT EXISTS idx_hourly_date ON dex_usage_hourly(chain_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_date ON dex_usage_daily(chain_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_etl_log ON etl_run_log(chain_id, run_date, status)`,
}

// InitSchema creates the usage tables, the run ledger, its id sequence and
// the supporting indexes. All statements are idempotent.
func InitSchema(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("initializing schema: %w", err)
		}
	}
	return nil
}
