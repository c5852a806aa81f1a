// Package database opens the SQLite job history database and runs
// migrations.
package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/auralabs/aura/internal/config"
	"github.com/auralabs/aura/internal/models"
)

// Open opens (creating if needed) the history database and migrates the
// schema.
func Open(cfg config.DatabaseConfig, logger *slog.Logger) (*gorm.DB, error) {
	if dir := filepath.Dir(cfg.DSN); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.DSN, err)
	}

	if err := db.AutoMigrate(&models.JobRecord{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	logger.Info("database ready", slog.String("dsn", cfg.DSN))
	return db, nil
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug", "info":
		return gormlogger.Info
	case "warn":
		return gormlogger.Warn
	case "error":
		return gormlogger.Error
	}
	return gormlogger.Silent
}
