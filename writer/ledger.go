package writer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dexflow/logger"
	"dexflow/models"
)

// Ledger appends immutable rows to etl_run_log. Rows are never updated after
// insert; a retry of a failed day writes a second row.
type Ledger struct {
	db  *sql.DB
	log *logger.Entry
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db, log: logger.GetLogger().WithComponent("ledger")}
}

// Record writes one audit row and returns its sequence-assigned run id.
// errorMessage is stored as NULL when empty.
func (l *Ledger) Record(ctx context.Context, chainID string, runDate time.Time, status string, recordsProcessed int64, errorMessage string) (int64, error) {
	var runID int64
	if err := l.db.QueryRowContext(ctx, `SELECT nextval('etl_run_log_seq')`).Scan(&runID); err != nil {
		return 0, fmt.Errorf("allocating run id: %w", err)
	}

	var errMsg interface{}
	if errorMessage != "" {
		errMsg = errorMessage
	}

	if _, err := l.db.ExecContext(ctx,
		`INSERT INTO etl_run_log (run_id, chain_id, run_date, start_time, end_time, status, records_processed, error_message)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, ?, ?, ?)`,
		runID, chainID, runDate, status, recordsProcessed, errMsg); err != nil {
		return 0, fmt.Errorf("recording run: %w", err)
	}

	l.log.WithFields(logger.Fields{
		"run_id":   runID,
		"chain_id": chainID,
		"run_date": runDate.Format("2006-01-02"),
		"status":   status,
	}).Info("recorded run")
	return runID, nil
}

// HasSucceeded reports whether a success row already exists for (chain,
// runDate). The pipeline uses it to keep reruns from re-merging a day into
// the running totals.
func (l *Ledger) HasSucceeded(ctx context.Context, chainID string, runDate time.Time) (bool, error) {
	var n int64
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM etl_run_log WHERE chain_id = ? AND run_date = ? AND status = ?`,
		chainID, runDate, models.RunStatusSuccess).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking run history: %w", err)
	}
	return n > 0, nil
}
