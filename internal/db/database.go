package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"face-search-go/config"
	"face-search-go/internal/core/models"

	"github.com/glebarez/sqlite" // pure Go SQLite driver
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlog "gorm.io/gorm/logger"
)

// Open initializes the database connection and runs migrations.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	if cfg.File != "" && cfg.File != ":memory:" {
		dbDir := filepath.Dir(cfg.File)
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	gormLogger := gormlog.New(
		log.StandardLogger(),
		gormlog.Config{
			SlowThreshold:             time.Second * 2,
			LogLevel:                  gormlog.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Infof("Connecting to database: %s", cfg.File)
	database, err := gorm.Open(sqlite.Open(cfg.File), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("Database connection established")

	log.Info("Running database migrations...")
	if err := database.AutoMigrate(
		&models.Collection{},
		&models.Image{},
		&models.Face{},
	); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	log.Info("Database migrations completed")

	return database, nil
}
