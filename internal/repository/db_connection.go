package repository

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/petermazzocco/go-denoise-project/internal/config"
	"github.com/petermazzocco/go-denoise-project/models"
)

// Open connects to the configured database and creates the schema if it does
// not exist yet.
func Open(settings config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch settings.Type {
	case config.SqliteDbType:
		dialector = sqlite.Open(settings.DSN)
	case config.PostgresDbType:
		dialector = postgres.Open(settings.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", settings.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
		// Rows reference each other by id only.
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", settings.Type, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate is idempotent.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to auto migrate models: %w", err)
	}
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
