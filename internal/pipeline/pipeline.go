// Package pipeline orchestrates the daily ETL: it walks the configured
// chains, extracts one day's window per chain, merges the results and writes
// the audit ledger. Initialization mode replays a configurable backlog of
// days, oldest first, before handing off to the daily cadence.
package pipeline

import (
	"context"
	"database/sql"
	"time"

	appconfig "dexflow/config"
	"dexflow/internal/metrics"
	"dexflow/internal/report"
	"dexflow/logger"
	"dexflow/models"
	"dexflow/processor"
	"dexflow/writer"
)

const reportTimeout = 5 * time.Minute

// Pipeline runs the extract-load cycle for all configured chains.
type Pipeline struct {
	cfg       *appconfig.Config
	db        *sql.DB
	extractor *processor.Extractor
	loader    *writer.Loader
	ledger    *writer.Ledger
	publisher *metrics.Publisher
	log       *logger.Entry

	// now is swapped out by tests to pin the processing window.
	now func() time.Time
}

func New(cfg *appconfig.Config, db *sql.DB) *Pipeline {
	var publisher *metrics.Publisher
	if cfg.Metrics.Enabled {
		publisher = metrics.NewPublisher(cfg.Metrics.Region, cfg.Metrics.Namespace)
	}

	return &Pipeline{
		cfg:       cfg,
		db:        db,
		extractor: processor.New(db, cfg.Data.ParquetRoot, cfg.Exclusions.Tokens),
		loader:    writer.NewLoader(db),
		ledger:    writer.NewLedger(db),
		publisher: publisher,
		log:       logger.GetLogger().WithComponent("pipeline"),
		now:       time.Now,
	}
}

// Window computes the extraction bounds for a run daysBack days before now:
// one whole UTC day, midnight to midnight. The returned run date is the day
// being processed.
func Window(now time.Time, daysBack int) (beginTime, endTime string, runDate time.Time) {
	midnight := now.UTC().Truncate(24 * time.Hour)
	begin := midnight.AddDate(0, 0, -daysBack)
	end := begin.AddDate(0, 0, 1)
	return begin.Format("2006-01-02 15:04:05"), end.Format("2006-01-02 15:04:05"), begin
}

// Run executes one invocation of the ETL. In initialization mode it replays
// cfg.Init.Days days oldest first, optionally renders the dashboard, and
// turns init mode off in the config file so the next invocation is a normal
// daily run.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.cfg.Init.Enabled {
		p.log.WithFields(logger.Fields{"days": p.cfg.Init.Days}).Info("initialization mode, replaying backlog")

		var total int64
		for daysBack := p.cfg.Init.Days; daysBack >= 1; daysBack-- {
			total += p.processDay(ctx, daysBack)
		}
		p.log.WithFields(logger.Fields{"records": total, "days": p.cfg.Init.Days}).Info("backlog replay complete")

		if p.cfg.Init.AutoGenerateReport {
			p.generateReport(ctx)
		}

		if err := p.cfg.DisableInit(); err != nil {
			return err
		}
		p.log.Info("init mode disabled, next run processes yesterday only")
		return nil
	}

	total := p.processDay(ctx, 1)
	p.log.WithFields(logger.Fields{"records": total}).Info("daily run complete")
	return nil
}

// processDay runs one day's window for every configured chain. A chain's
// failure is recorded in the ledger and does not stop the other chains.
func (p *Pipeline) processDay(ctx context.Context, daysBack int) int64 {
	beginTime, endTime, runDate := Window(p.now(), daysBack)
	log := p.log.WithFields(logger.Fields{
		"run_date": runDate.Format("2006-01-02"),
		"begin":    beginTime,
		"end":      endTime,
	})
	log.Info("processing day")

	var total int64
	for _, chainID := range p.cfg.Chains {
		total += p.processChain(ctx, chainID, beginTime, endTime, runDate)
	}
	return total
}

func (p *Pipeline) processChain(ctx context.Context, chainID, beginTime, endTime string, runDate time.Time) int64 {
	log := p.log.WithFields(logger.Fields{"chain_id": chainID, "run_date": runDate.Format("2006-01-02")})
	started := time.Now()

	done, err := p.ledger.HasSucceeded(ctx, chainID, runDate)
	if err != nil {
		// Without the ledger answer the day may already be merged into the
		// totals, so do not risk applying it twice.
		log.WithError(err).Error("could not check run history")
		p.recordRun(ctx, chainID, runDate, models.RunStatusFailed, 0, err.Error())
		p.publishRun(ctx, chainID, 0, time.Since(started), true)
		return 0
	}
	if done {
		// The totals merge is additive, so a day that already succeeded
		// must not be applied again.
		log.Info("day already processed, skipping")
		return 0
	}

	result, err := p.extractor.Extract(ctx, chainID, beginTime, endTime)
	if err != nil {
		log.WithError(err).Error("extraction failed")
		p.recordRun(ctx, chainID, runDate, models.RunStatusFailed, 0, err.Error())
		p.publishRun(ctx, chainID, 0, time.Since(started), true)
		return 0
	}

	if result.Empty() {
		log.Warn("no data extracted")
		p.recordRun(ctx, chainID, runDate, models.RunStatusSuccess, 0, "")
		p.publishRun(ctx, chainID, 0, time.Since(started), false)
		return 0
	}

	if err := p.loader.Load(ctx, result, runDate); err != nil {
		log.WithError(err).Error("load failed")
		p.recordRun(ctx, chainID, runDate, models.RunStatusFailed, 0, err.Error())
		p.publishRun(ctx, chainID, 0, time.Since(started), true)
		return 0
	}

	records := result.Records()
	p.recordRun(ctx, chainID, runDate, models.RunStatusSuccess, records, "")
	p.publishRun(ctx, chainID, records, time.Since(started), false)
	log.WithFields(logger.Fields{"records": records}).Info("chain processed")
	return records
}

func (p *Pipeline) recordRun(ctx context.Context, chainID string, runDate time.Time, status string, records int64, errMsg string) {
	if _, err := p.ledger.Record(ctx, chainID, runDate, status, records, errMsg); err != nil {
		p.log.WithError(err).WithFields(logger.Fields{"chain_id": chainID}).Error("could not record run")
	}
}

func (p *Pipeline) publishRun(ctx context.Context, chainID string, records int64, duration time.Duration, failed bool) {
	p.publisher.RecordRun(ctx, chainID, records, duration, failed)
}

// generateReport renders the dashboard after a backlog replay. Failures are
// logged; they never fail the run.
func (p *Pipeline) generateReport(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()

	gen := report.NewGenerator(p.db)
	path, err := gen.WriteFile(ctx, p.cfg.Data.ReportsPath, report.Options{
		Title:     p.cfg.Report.Title,
		Chains:    p.cfg.Chains,
		RunHour:   p.cfg.Time.DailyRunHour,
		RunMinute: p.cfg.Time.DailyRunMinute,
	})
	if err != nil {
		p.log.WithError(err).Error("report generation failed")
		return
	}
	p.log.WithFields(logger.Fields{"path": path}).Info("report generated")

	if p.cfg.Storage.S3.Enabled {
		uploader, err := report.NewUploader(p.cfg.Storage.S3)
		if err != nil {
			p.log.WithError(err).Warn("report upload skipped")
			return
		}
		if err := uploader.Upload(ctx, path); err != nil {
			p.log.WithError(err).Warn("report upload failed")
		}
	}
}
