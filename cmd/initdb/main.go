// Command initdb creates the analytics database and its schema. It is safe
// to run against an existing database; every statement is idempotent.
package main

import (
	"flag"
	"os"

	"github.com/joho/godotenv"

	"dexflow/config"
	"dexflow/internal/store"
	"dexflow/logger"
)

func main() {
	log := logger.GetLogger()

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

	log.WithFields(logger.Fields{"path": cfg.Data.DatabasePath}).Info("initializing database")

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

	log.Info("database initialized")
}
