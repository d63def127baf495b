package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	appconfig "dexflow/config"
	"dexflow/internal/sampledata"
	"dexflow/internal/store"
	"dexflow/models"
)

// fixedNow pins the processing window so fixture dates line up with the
// days-back arithmetic.
var fixedNow = time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)

func writeTestConfig(t *testing.T, dir string, initEnabled bool, initDays int) *appconfig.Config {
	t.Helper()

	yaml := fmt.Sprintf(`dexflow:
  name: dexflow
  version: 1.0.0

chains:
  - sol

data:
  database_path: %s
  parquet_root: %s
  reports_path: %s

time:
  daily_run_hour: 2
  daily_run_minute: 30

logging:
  level: error
  format: text
  output: stderr
  max_age: 0

exclusions:
  tokens:
    - ExcludedMint11111111111111111111111111111111

init:
  enabled: %t
  days: %d
  auto_generate_report: true

report:
  title: DEX Analytics Dashboard
`,
		filepath.Join(dir, "analytics.duckdb"),
		filepath.Join(dir, "parquet"),
		filepath.Join(dir, "reports"),
		initEnabled, initDays)

	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := appconfig.LoadConfig(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	return cfg
}

func seedDay(t *testing.T, root, date string) {
	t.Helper()
	records := []sampledata.SwapRecord{
		{
			OrderID:     "order-" + date + "-1",
			InputToken:  "So11111111111111111111111111111111111111112",
			OutputToken: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			Request: sampledata.SwapRequest(sampledata.SingleRoute(
				sampledata.DexLeg{Dex: "Raydium", Weight: 70},
				sampledata.DexLeg{Dex: "Orca", Weight: 30},
			)),
		},
		{
			OrderID:     "order-" + date + "-2",
			InputToken:  "So11111111111111111111111111111111111111112",
			OutputToken: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			Request: sampledata.SwapRequest(sampledata.SingleRoute(
				sampledata.DexLeg{Dex: "Raydium", Weight: 100},
			)),
		},
	}
	if _, err := sampledata.WriteHour(root, "sol", date, 12, records); err != nil {
		t.Fatalf("seeding %s: %v", date, err)
	}
}

func newTestPipeline(t *testing.T, cfg *appconfig.Config) (*Pipeline, *sql.DB) {
	t.Helper()
	db, err := store.Open(cfg.Data.DatabasePath)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	if err := store.InitSchema(db); err != nil {
		t.Fatalf("initializing schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	p := New(cfg, db)
	p.now = func() time.Time { return fixedNow }
	return p, db
}

func countWhere(t *testing.T, db *sql.DB, query string, args ...interface{}) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	return n
}

func TestRunDailyProcessesYesterday(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir, false, 0)
	seedDay(t, cfg.Data.ParquetRoot, "2025-06-02")

	p, db := newTestPipeline(t, cfg)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if n := countWhere(t, db, `SELECT COUNT(*) FROM dex_usage_daily WHERE chain_id = 'sol' AND date = '2025-06-02'`); n != 2 {
		t.Errorf("expected 2 daily rows for yesterday, got %d", n)
	}
	if n := countWhere(t, db, `SELECT COUNT(*) FROM etl_run_log WHERE chain_id = 'sol' AND status = ?`, models.RunStatusSuccess); n != 1 {
		t.Errorf("expected 1 success ledger row, got %d", n)
	}
}

func TestRunSkipsAlreadyProcessedDay(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir, false, 0)
	seedDay(t, cfg.Data.ParquetRoot, "2025-06-02")

	p, db := newTestPipeline(t, cfg)
	for i := 0; i < 2; i++ {
		if err := p.Run(context.Background()); err != nil {
			t.Fatalf("Run %d failed: %v", i+1, err)
		}
	}

	var usage int64
	err := db.QueryRow(`SELECT usage_count FROM dex_usage_total WHERE chain_id = 'sol' AND dex_name = 'Raydium'`).Scan(&usage)
	if err != nil {
		t.Fatalf("reading total: %v", err)
	}
	if usage != 2 {
		t.Errorf("rerun must not re-merge totals: expected 2, got %d", usage)
	}
}

func TestRunSkipsDayWhenHistoryCheckFails(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir, false, 0)
	seedDay(t, cfg.Data.ParquetRoot, "2025-06-02")

	p, db := newTestPipeline(t, cfg)
	if _, err := db.Exec(`DROP TABLE etl_run_log`); err != nil {
		t.Fatalf("dropping ledger table: %v", err)
	}

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// With no readable history the day may already be in the totals, so
	// nothing must be merged.
	if n := countWhere(t, db, `SELECT COUNT(*) FROM dex_usage_daily`); n != 0 {
		t.Errorf("expected no daily rows after unreadable history, got %d", n)
	}
	if n := countWhere(t, db, `SELECT COUNT(*) FROM dex_usage_total`); n != 0 {
		t.Errorf("expected no total rows after unreadable history, got %d", n)
	}
}

func TestRunNoDataStillAudits(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir, false, 0)

	p, db := newTestPipeline(t, cfg)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var records int64
	err := db.QueryRow(`SELECT records_processed FROM etl_run_log WHERE chain_id = 'sol' AND status = ?`, models.RunStatusSuccess).Scan(&records)
	if err != nil {
		t.Fatalf("reading ledger: %v", err)
	}
	if records != 0 {
		t.Errorf("expected 0 records for an empty window, got %d", records)
	}
}

func TestInitModeBackfillsAndDisablesItself(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir, true, 2)
	seedDay(t, cfg.Data.ParquetRoot, "2025-06-01")
	seedDay(t, cfg.Data.ParquetRoot, "2025-06-02")

	p, db := newTestPipeline(t, cfg)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, date := range []string{"2025-06-01", "2025-06-02"} {
		if n := countWhere(t, db, `SELECT COUNT(*) FROM dex_usage_daily WHERE date = '`+date+`'`); n != 2 {
			t.Errorf("expected 2 daily rows for %s, got %d", date, n)
		}
	}

	var usage int64
	if err := db.QueryRow(`SELECT usage_count FROM dex_usage_total WHERE dex_name = 'Raydium'`).Scan(&usage); err != nil {
		t.Fatalf("reading total: %v", err)
	}
	if usage != 4 {
		t.Errorf("expected totals accumulated across both days, got %d", usage)
	}

	// First-seen keeps the oldest replayed day.
	var firstSeen time.Time
	if err := db.QueryRow(`SELECT first_seen FROM dex_usage_total WHERE dex_name = 'Raydium'`).Scan(&firstSeen); err != nil {
		t.Fatalf("reading first_seen: %v", err)
	}
	if got := firstSeen.Format("2006-01-02"); got != "2025-06-01" {
		t.Errorf("expected first_seen 2025-06-01, got %s", got)
	}

	if _, err := os.Stat(filepath.Join(cfg.Data.ReportsPath, "index.html")); err != nil {
		t.Errorf("auto-generated report missing: %v", err)
	}

	reloaded, err := appconfig.LoadConfig(cfg.Path())
	if err != nil {
		t.Fatalf("reloading config: %v", err)
	}
	if reloaded.Init.Enabled {
		t.Error("init mode should be disabled after a successful backfill")
	}
}

func TestWindow(t *testing.T) {
	begin, end, runDate := Window(fixedNow, 1)
	if begin != "2025-06-02 00:00:00" || end != "2025-06-03 00:00:00" {
		t.Errorf("unexpected window: %s .. %s", begin, end)
	}
	if runDate.Format("2006-01-02") != "2025-06-02" {
		t.Errorf("unexpected run date: %s", runDate)
	}

	begin, _, _ = Window(fixedNow, 7)
	if begin != "2025-05-27 00:00:00" {
		t.Errorf("unexpected backfill begin: %s", begin)
	}
}
