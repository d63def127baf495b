// Package writer merges extraction results into the usage tables and records
// every run in the audit ledger. Hourly and daily grains are replaced per
// (chain, date); the running totals only ever accumulate.
package writer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dexflow/logger"
	"dexflow/models"
)

// Loader writes aggregated usage into the three grain tables.
type Loader struct {
	db  *sql.DB
	log *logger.Entry
}

func NewLoader(db *sql.DB) *Loader {
	return &Loader{db: db, log: logger.GetLogger().WithComponent("writer")}
}

// Load merges one extraction result for runDate. Each non-empty pass is
// applied independently; nil passes are skipped.
func (l *Loader) Load(ctx context.Context, result models.ExtractResult, runDate time.Time) error {
	if len(result.Hourly) > 0 {
		if err := l.loadHourly(ctx, result.Hourly, runDate); err != nil {
			return err
		}
	}
	if len(result.Daily) > 0 {
		if err := l.loadDaily(ctx, result.Daily, runDate); err != nil {
			return err
		}
	}
	if len(result.Total) > 0 {
		if err := l.mergeTotals(ctx, result.Total, runDate); err != nil {
			return err
		}
	}
	return nil
}

// loadHourly replaces the hourly rows for (chain, runDate) in one
// transaction, so a rerun of the same day converges instead of doubling.
func (l *Loader) loadHourly(ctx context.Context, rows []models.HourlyUsage, runDate time.Time) error {
	chainID := rows[0].ChainID

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning hourly load: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM dex_usage_hourly WHERE chain_id = ? AND date = ?`,
		chainID, runDate); err != nil {
		return fmt.Errorf("clearing hourly rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dex_usage_hourly (chain_id, date, hour, dex_name, usage_count, total_weight, unique_orders)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing hourly insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.ChainID, row.Date, row.Hour, row.DexName,
			row.UsageCount, row.TotalWeight, row.UniqueOrders); err != nil {
			return fmt.Errorf("inserting hourly row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing hourly load: %w", err)
	}
	l.log.WithFields(logger.Fields{"chain_id": chainID, "records": len(rows)}).Info("loaded hourly usage")
	return nil
}

// loadDaily replaces the daily rows for (chain, runDate), same contract as
// loadHourly.
func (l *Loader) loadDaily(ctx context.Context, rows []models.DailyUsage, runDate time.Time) error {
	chainID := rows[0].ChainID

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning daily load: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM dex_usage_daily WHERE chain_id = ? AND date = ?`,
		chainID, runDate); err != nil {
		return fmt.Errorf("clearing daily rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dex_usage_daily (chain_id, date, dex_name, usage_count, total_weight, unique_orders, percentage)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing daily insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.ChainID, row.Date, row.DexName,
			row.UsageCount, row.TotalWeight, row.UniqueOrders, row.Percentage); err != nil {
			return fmt.Errorf("inserting daily row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing daily load: %w", err)
	}
	l.log.WithFields(logger.Fields{"chain_id": chainID, "records": len(rows)}).Info("loaded daily usage")
	return nil
}

// mergeTotals adds the window's counts into the running totals and then
// recomputes the chain's percentage column against the new grand total.
// Applying the same window twice doubles its contribution; the run ledger is
// the guard against that, not this function.
func (l *Loader) mergeTotals(ctx context.Context, rows []models.TotalUsage, runDate time.Time) error {
	chainID := rows[0].ChainID

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning totals merge: %w", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		var existing int64
		err := tx.QueryRowContext(ctx,
			`SELECT usage_count FROM dex_usage_total WHERE chain_id = ? AND dex_name = ?`,
			row.ChainID, row.DexName).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO dex_usage_total (chain_id, dex_name, usage_count, total_weight, unique_orders, percentage, first_seen)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				row.ChainID, row.DexName, row.UsageCount, row.TotalWeight,
				row.UniqueOrders, row.Percentage, runDate); err != nil {
				return fmt.Errorf("inserting total row: %w", err)
			}
		case err != nil:
			return fmt.Errorf("checking existing total: %w", err)
		default:
			if _, err := tx.ExecContext(ctx,
				`UPDATE dex_usage_total
				 SET usage_count = usage_count + ?,
				     total_weight = total_weight + ?,
				     unique_orders = unique_orders + ?,
				     last_updated = CURRENT_TIMESTAMP
				 WHERE chain_id = ? AND dex_name = ?`,
				row.UsageCount, row.TotalWeight, row.UniqueOrders,
				row.ChainID, row.DexName); err != nil {
				return fmt.Errorf("updating total row: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE dex_usage_total t
		 SET percentage = ROUND(CAST(t.usage_count AS DECIMAL) * 100.0 / total.sum, 2)
		 FROM (
		     SELECT SUM(usage_count) AS sum
		     FROM dex_usage_total
		     WHERE chain_id = ?
		 ) total
		 WHERE t.chain_id = ?`,
		chainID, chainID); err != nil {
		return fmt.Errorf("recomputing total percentages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing totals merge: %w", err)
	}
	l.log.WithFields(logger.Fields{"chain_id": chainID, "records": len(rows)}).Info("merged running totals")
	return nil
}
