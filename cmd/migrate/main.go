// Package main provides a CLI tool for running database migrations.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/uptime-rewards/internal/config"
	"github.com/uptime-rewards/internal/logging"
	"github.com/uptime-rewards/internal/storage"
)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		path   = flag.String("path", "migrations/postgres", "Migrations directory")
	)
	flag.Parse()

	logger := logging.GetGlobalLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}

	if _, err := os.Stat(*path); os.IsNotExist(err) {
		logger.WithField("path", *path).Fatal("Migrations directory not found")
	}

	if err := runPostgresMigrations(cfg.Database.Postgres.URL(), *path, *action, logger); err != nil {
		logger.WithError(err).Fatal("Postgres migration failed")
	}
}

func runPostgresMigrations(databaseURL, migrationsPath, action string, logger *logging.Logger) error {
	switch action {
	case "up":
		logger.Info("Running Postgres migrations...")
		if err := storage.RunMigrations(databaseURL, migrationsPath); err != nil {
			return err
		}
		logger.Info("Postgres migrations completed successfully")

	case "down":
		logger.Info("Rolling back Postgres migration...")
		if err := storage.RollbackMigrations(databaseURL, migrationsPath); err != nil {
			return err
		}
		logger.Info("Postgres migration rolled back successfully")

	case "version":
		version, dirty, err := storage.MigrationVersion(databaseURL, migrationsPath)
		if err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"version": version,
			"dirty":   dirty,
		}).Info("Current Postgres migration version")

	default:
		return fmt.Errorf("unknown action: %s", action)
	}

	return nil
}
