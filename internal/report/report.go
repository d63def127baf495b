// Package report renders the usage tables into a standalone interactive HTML
// dashboard. All data is embedded in the page, so the output needs nothing
// but a browser.
package report

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dexflow/logger"
	"dexflow/models"
)

//go:embed templates/report.tmpl
var templates embed.FS

// ErrNoData is returned when neither hourly nor daily tables hold any rows.
var ErrNoData = errors.New("report: no usage data in database")

// Generator reads the usage tables and renders the dashboard.
type Generator struct {
	db  *sql.DB
	log *logger.Entry
}

func NewGenerator(db *sql.DB) *Generator {
	return &Generator{db: db, log: logger.GetLogger().WithComponent("report")}
}

// Options controls presentation details of the rendered page.
type Options struct {
	Title     string
	Chains    []string
	RunHour   int
	RunMinute int
}

type pageData struct {
	Title       string
	GeneratedAt string
	Chains      []string
	RunHour     int
	RunMinute   int
	HourlyJSON  template.JS
	DailyJSON   template.JS
	TotalJSON   template.JS
}

// Generate renders the dashboard HTML. It returns ErrNoData when the
// database holds no hourly and no daily rows.
func (g *Generator) Generate(ctx context.Context, opts Options) ([]byte, error) {
	hourly, err := g.loadHourly(ctx)
	if err != nil {
		return nil, err
	}
	daily, err := g.loadDaily(ctx)
	if err != nil {
		return nil, err
	}
	total, err := g.loadTotal(ctx)
	if err != nil {
		return nil, err
	}

	if len(hourly) == 0 && len(daily) == 0 {
		return nil, ErrNoData
	}

	g.log.WithFields(logger.Fields{
		"hourly": len(hourly),
		"daily":  len(daily),
		"total":  len(total),
	}).Info("loaded usage data for report")

	hourlyJSON, err := json.Marshal(hourly)
	if err != nil {
		return nil, fmt.Errorf("encoding hourly data: %w", err)
	}
	dailyJSON, err := json.Marshal(daily)
	if err != nil {
		return nil, fmt.Errorf("encoding daily data: %w", err)
	}
	totalJSON, err := json.Marshal(total)
	if err != nil {
		return nil, fmt.Errorf("encoding total data: %w", err)
	}

	tmpl, err := template.New("report.tmpl").
		Funcs(template.FuncMap{"upper": strings.ToUpper}).
		ParseFS(templates, "templates/report.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing report template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, pageData{
		Title:       opts.Title,
		GeneratedAt: time.Now().UTC().Format("2006-01-02 15:04:05 UTC"),
		Chains:      opts.Chains,
		RunHour:     opts.RunHour,
		RunMinute:   opts.RunMinute,
		HourlyJSON:  template.JS(hourlyJSON),
		DailyJSON:   template.JS(dailyJSON),
		TotalJSON:   template.JS(totalJSON),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile renders the dashboard and writes it as index.html under dir.
func (g *Generator) WriteFile(ctx context.Context, dir string, opts Options) (string, error) {
	html, err := g.Generate(ctx, opts)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating reports directory: %w", err)
	}
	path := filepath.Join(dir, "index.html")
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	g.log.WithFields(logger.Fields{"path": path, "size": len(html)}).Info("report written")
	return path, nil
}

func (g *Generator) loadHourly(ctx context.Context) ([]models.HourlyUsage, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT chain_id, date, CAST(hour AS INTEGER), dex_name, usage_count,
		       CAST(total_weight AS BIGINT), unique_orders
		FROM dex_usage_hourly
		ORDER BY chain_id, date, hour, usage_count DESC`)
	if err != nil {
		return nil, fmt.Errorf("loading hourly usage: %w", err)
	}
	defer rows.Close()

	var out []models.HourlyUsage
	for rows.Next() {
		var u models.HourlyUsage
		if err := rows.Scan(&u.ChainID, &u.Date, &u.Hour, &u.DexName, &u.UsageCount, &u.TotalWeight, &u.UniqueOrders); err != nil {
			return nil, fmt.Errorf("scanning hourly row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (g *Generator) loadDaily(ctx context.Context) ([]models.DailyUsage, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT chain_id, date, dex_name, usage_count,
		       CAST(total_weight AS BIGINT), unique_orders, CAST(percentage AS DOUBLE)
		FROM dex_usage_daily
		ORDER BY chain_id, date, usage_count DESC`)
	if err != nil {
		return nil, fmt.Errorf("loading daily usage: %w", err)
	}
	defer rows.Close()

	var out []models.DailyUsage
	for rows.Next() {
		var u models.DailyUsage
		if err := rows.Scan(&u.ChainID, &u.Date, &u.DexName, &u.UsageCount, &u.TotalWeight, &u.UniqueOrders, &u.Percentage); err != nil {
			return nil, fmt.Errorf("scanning daily row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (g *Generator) loadTotal(ctx context.Context) ([]models.TotalUsage, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT chain_id, dex_name, usage_count,
		       CAST(total_weight AS BIGINT), unique_orders,
		       CAST(percentage AS DOUBLE), first_seen, last_updated
		FROM dex_usage_total
		ORDER BY chain_id, usage_count DESC`)
	if err != nil {
		return nil, fmt.Errorf("loading total usage: %w", err)
	}
	defer rows.Close()

	var out []models.TotalUsage
	for rows.Next() {
		var u models.TotalUsage
		if err := rows.Scan(&u.ChainID, &u.DexName, &u.UsageCount, &u.TotalWeight, &u.UniqueOrders, &u.Percentage, &u.FirstSeen, &u.LastUpdated); err != nil {
			return nil, fmt.Errorf("scanning total row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
