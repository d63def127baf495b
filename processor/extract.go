// Package processor runs the aggregation passes over raw swap logs. Each
// extraction window is flattened from the nested routing payload down to
// individual (dex, weight) legs, then rolled up at hourly, daily and
// whole-window grain.
package processor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"dexflow/logger"
	"dexflow/models"
	"dexflow/reader"
)

// Extractor aggregates DEX usage out of parquet swap logs through a DuckDB
// connection. The connection is shared with the loader; Extractor only ever
// creates and drops its scratch view on it.
type Extractor struct {
	db             *sql.DB
	parquetRoot    string
	excludedTokens []string
	log            *logger.Entry
}

func New(db *sql.DB, parquetRoot string, excludedTokens []string) *Extractor {
	return &Extractor{
		db:             db,
		parquetRoot:    parquetRoot,
		excludedTokens: excludedTokens,
		log:            logger.GetLogger().WithComponent("processor"),
	}
}

// Extract runs the three aggregation passes for one chain over [beginTime,
// endTime]. A missing or unreadable source yields an all-nil result rather
// than an error; a pass that fails yields a nil slice for that pass only.
// Errors are reserved for malformed inputs.
func (e *Extractor) Extract(ctx context.Context, chainID, beginTime, endTime string) (models.ExtractResult, error) {
	var result models.ExtractResult

	patterns, err := reader.PatternsForRange(e.parquetRoot, chainID, beginTime, endTime)
	if err != nil {
		return result, err
	}
	unionSQL, err := reader.UnionAll(patterns)
	if err != nil {
		return result, err
	}

	log := e.log.WithFields(logger.Fields{"chain_id": chainID, "begin": beginTime, "end": endTime})
	log.WithFields(logger.Fields{"patterns": len(patterns)}).Info("extracting usage window")

	if _, err := e.db.ExecContext(ctx, "DROP VIEW IF EXISTS temp_dex_data"); err != nil {
		return result, fmt.Errorf("dropping stale scratch view: %w", err)
	}
	if _, err := e.db.ExecContext(ctx, "CREATE VIEW temp_dex_data AS "+unionSQL); err != nil {
		// read_parquet resolves globs at bind time, so a window with no
		// files at all lands here.
		log.WithError(err).Warn("no readable parquet data for window")
		return result, nil
	}
	defer e.db.ExecContext(ctx, "DROP VIEW IF EXISTS temp_dex_data")

	filter, filterArgs := e.exclusionFilter()

	result.Hourly = e.extractHourly(ctx, log, chainID, filter, filterArgs)
	result.Daily = e.extractDaily(ctx, log, chainID, filter, filterArgs)
	result.Total = e.extractTotal(ctx, log, chainID, filter, filterArgs)

	return result, nil
}

// exclusionFilter renders the configured token exclusions as a parameterized
// conjunction over inputToken and outputToken.
func (e *Extractor) exclusionFilter() (string, []interface{}) {
	if len(e.excludedTokens) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(e.excludedTokens))
	args := make([]interface{}, 0, 2*len(e.excludedTokens))
	for _, token := range e.excludedTokens {
		clauses = append(clauses, "inputToken != ? AND outputToken != ?")
		args = append(args, token, token)
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

// flattenCTEs unrolls request.swapInfo.routePlans[].subRouters[].dexes[] into
// one row per routing leg. keep lists the source columns to carry through.
func flattenCTEs(keep string, filter string) string {
	return fmt.Sprintf(`WITH dex_extracted AS (
	SELECT %[1]s,
		json_extract(request, '$.swapInfo.routePlans') AS route_plans
	FROM temp_dex_data
	WHERE request IS NOT NULL%[2]s
),
dex_flattened AS (
	SELECT %[1]s,
		json_extract(route_plan, '$.subRouters') AS sub_routers
	FROM dex_extracted, unnest(CAST(route_plans AS JSON[])) AS r(route_plan)
),
dex_details AS (
	SELECT %[1]s,
		json_extract(sub_router, '$.dexes') AS dexes
	FROM dex_flattened, unnest(CAST(sub_routers AS JSON[])) AS s(sub_router)
),
dex_final AS (
	SELECT %[1]s,
		REPLACE(CAST(json_extract(dex, '$.dex') AS VARCHAR), '"', '') AS dex_name,
		CAST(json_extract(dex, '$.weight') AS INTEGER) AS weight
	FROM dex_details, unnest(CAST(dexes AS JSON[])) AS d(dex)
	WHERE json_extract(dex, '$.dex') IS NOT NULL
)`, keep, filter)
}

func (e *Extractor) extractHourly(ctx context.Context, log *logger.Entry, chainID, filter string, filterArgs []interface{}) []models.HourlyUsage {
	query := flattenCTEs("date, hour, orderId", filter) + `
SELECT
	CAST(date AS DATE) AS date,
	CAST(hour AS INTEGER) AS hour,
	dex_name,
	COUNT(*) AS usage_count,
	CAST(SUM(weight) AS BIGINT) AS total_weight,
	COUNT(DISTINCT orderId) AS unique_orders
FROM dex_final
GROUP BY date, hour, dex_name
ORDER BY date, hour, usage_count DESC`

	rows, err := e.db.QueryContext(ctx, query, filterArgs...)
	if err != nil {
		log.WithError(err).Error("hourly extraction failed")
		return nil
	}
	defer rows.Close()

	out := []models.HourlyUsage{}
	for rows.Next() {
		u := models.HourlyUsage{ChainID: chainID}
		if err := rows.Scan(&u.Date, &u.Hour, &u.DexName, &u.UsageCount, &u.TotalWeight, &u.UniqueOrders); err != nil {
			log.WithError(err).Error("scanning hourly row failed")
			return nil
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		log.WithError(err).Error("hourly extraction failed")
		return nil
	}
	log.WithFields(logger.Fields{"records": len(out)}).Info("extracted hourly usage")
	return out
}

func (e *Extractor) extractDaily(ctx context.Context, log *logger.Entry, chainID, filter string, filterArgs []interface{}) []models.DailyUsage {
	query := flattenCTEs("date, orderId", filter) + `,
daily_stats AS (
	SELECT
		CAST(date AS DATE) AS date,
		dex_name,
		COUNT(*) AS usage_count,
		CAST(SUM(weight) AS BIGINT) AS total_weight,
		COUNT(DISTINCT orderId) AS unique_orders
	FROM dex_final
	GROUP BY date, dex_name
)
SELECT
	date,
	dex_name,
	usage_count,
	total_weight,
	unique_orders,
	CAST(ROUND(CAST(usage_count AS DECIMAL) * 100.0 / SUM(usage_count) OVER (PARTITION BY date), 2) AS DOUBLE) AS percentage
FROM daily_stats
ORDER BY date, usage_count DESC`

	rows, err := e.db.QueryContext(ctx, query, filterArgs...)
	if err != nil {
		log.WithError(err).Error("daily extraction failed")
		return nil
	}
	defer rows.Close()

	out := []models.DailyUsage{}
	for rows.Next() {
		u := models.DailyUsage{ChainID: chainID}
		if err := rows.Scan(&u.Date, &u.DexName, &u.UsageCount, &u.TotalWeight, &u.UniqueOrders, &u.Percentage); err != nil {
			log.WithError(err).Error("scanning daily row failed")
			return nil
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		log.WithError(err).Error("daily extraction failed")
		return nil
	}
	log.WithFields(logger.Fields{"records": len(out)}).Info("extracted daily usage")
	return out
}

func (e *Extractor) extractTotal(ctx context.Context, log *logger.Entry, chainID, filter string, filterArgs []interface{}) []models.TotalUsage {
	query := flattenCTEs("orderId", filter) + `
SELECT
	dex_name,
	COUNT(*) AS usage_count,
	CAST(SUM(weight) AS BIGINT) AS total_weight,
	COUNT(DISTINCT orderId) AS unique_orders,
	CAST(ROUND(CAST(COUNT(*) AS DECIMAL) * 100.0 / SUM(COUNT(*)) OVER (), 2) AS DOUBLE) AS percentage
FROM dex_final
GROUP BY dex_name
ORDER BY usage_count DESC`

	rows, err := e.db.QueryContext(ctx, query, filterArgs...)
	if err != nil {
		log.WithError(err).Error("window total extraction failed")
		return nil
	}
	defer rows.Close()

	out := []models.TotalUsage{}
	for rows.Next() {
		u := models.TotalUsage{ChainID: chainID}
		if err := rows.Scan(&u.DexName, &u.UsageCount, &u.TotalWeight, &u.UniqueOrders, &u.Percentage); err != nil {
			log.WithError(err).Error("scanning window total row failed")
			return nil
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		log.WithError(err).Error("window total extraction failed")
		return nil
	}
	log.WithFields(logger.Fields{"records": len(out)}).Info("extracted window totals")
	return out
}
