package models

import (
	"time"
)

// RunStatus values recorded in the etl_run_log table.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// HourlyUsage is one row of dex_usage_hourly: usage of a single DEX during a
// single hour of a single day on one chain. Rows for a (chain, date) are fully
// replaced on every ETL run of that date.
type HourlyUsage struct {
	ChainID      string    `json:"chain_id"`
	Date         time.Time `json:"date"`
	Hour         int       `json:"hour"`
	DexName      string    `json:"dex_name"`
	UsageCount   int64     `json:"usage_count"`
	TotalWeight  int64     `json:"total_weight"`
	UniqueOrders int64     `json:"unique_orders"`
}

// DailyUsage is one row of dex_usage_daily. Percentage is the share of this
// DEX among all DEX usage on the same date, rounded to two decimals.
type DailyUsage struct {
	ChainID      string    `json:"chain_id"`
	Date         time.Time `json:"date"`
	DexName      string    `json:"dex_name"`
	UsageCount   int64     `json:"usage_count"`
	TotalWeight  int64     `json:"total_weight"`
	UniqueOrders int64     `json:"unique_orders"`
	Percentage   float64   `json:"percentage"`
}

// TotalUsage is one row of dex_usage_total, the running accumulator across all
// processed history of a chain. Counts only ever grow; percentage is
// recomputed chain-wide after every merge.
type TotalUsage struct {
	ChainID      string    `json:"chain_id"`
	DexName      string    `json:"dex_name"`
	UsageCount   int64     `json:"usage_count"`
	TotalWeight  int64     `json:"total_weight"`
	UniqueOrders int64     `json:"unique_orders"`
	Percentage   float64   `json:"percentage"`
	FirstSeen    time.Time `json:"first_seen"`
	LastUpdated  time.Time `json:"last_updated"`
}

// RunLogEntry is one immutable audit row in etl_run_log, written exactly once
// per (chain, run date) processing attempt.
type RunLogEntry struct {
	RunID            int64     `json:"run_id"`
	ChainID          string    `json:"chain_id"`
	RunDate          time.Time `json:"run_date"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	Status           string    `json:"status"`
	RecordsProcessed int64     `json:"records_processed"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}

// ExtractResult carries the three aggregation passes of one extraction window.
// A nil slice means that pass produced no data (source missing or the pass
// failed); an empty non-nil slice means the pass ran and matched zero rows.
type ExtractResult struct {
	Hourly []HourlyUsage
	Daily  []DailyUsage
	Total  []TotalUsage
}

// Records is the number of hourly plus daily rows, the figure recorded in the
// run ledger as records_processed.
func (r ExtractResult) Records() int64 {
	return int64(len(r.Hourly) + len(r.Daily))
}

// Empty reports whether all three passes came back as the no-data sentinel.
func (r ExtractResult) Empty() bool {
	return r.Hourly == nil && r.Daily == nil && r.Total == nil
}
