// Command report renders the analytics dashboard from the current database
// contents. The database is opened read-only, so it can run while the ETL
// is idle without risking writes.
package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"dexflow/config"
	"dexflow/internal/report"
	"dexflow/internal/store"
	"dexflow/logger"
)

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	upload := flag.Bool("upload", false, "Upload the rendered report to S3 when storage is enabled")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	db, err := store.OpenReadOnly(cfg.Data.DatabasePath)
	if err != nil {
		log.WithError(err).Error("Failed to open database; run initdb and the ETL first")
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	gen := report.NewGenerator(db)

	path, err := gen.WriteFile(ctx, cfg.Data.ReportsPath, report.Options{
		Title:     cfg.Report.Title,
		Chains:    cfg.Chains,
		RunHour:   cfg.Time.DailyRunHour,
		RunMinute: cfg.Time.DailyRunMinute,
	})
	if err != nil {
		if errors.Is(err, report.ErrNoData) {
			log.Error("No usage data in database; run the ETL first")
		} else {
			log.WithError(err).Error("Failed to generate report")
		}
		os.Exit(1)
	}

	log.WithFields(logger.Fields{"path": path}).Info("report generated")

	if *upload && cfg.Storage.S3.Enabled {
		uploader, err := report.NewUploader(cfg.Storage.S3)
		if err != nil {
			log.WithError(err).Error("Failed to create uploader")
			os.Exit(1)
		}
		if err := uploader.Upload(ctx, path); err != nil {
			log.WithError(err).Error("Failed to upload report")
			os.Exit(1)
		}
	}
}
