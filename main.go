package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"dexflow/config"
	"dexflow/internal/pipeline"
	"dexflow/internal/store"
	"dexflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
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

	log.WithFields(logger.Fields{
		"service": cfg.Dexflow.Name,
		"version": cfg.Dexflow.Version,
	}).Info("starting dexflow ETL")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Data.DatabasePath)
	if err != nil {
		log.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	defer db.Close()

	if err := store.InitSchema(db); err != nil {
		log.WithError(err).Error("Failed to initialize schema")
		os.Exit(1)
	}

	if err := pipeline.New(cfg, db).Run(ctx); err != nil {
		log.WithError(err).Error("ETL run failed")
		os.Exit(1)
	}

	log.Info("dexflow ETL finished")
}
