package database

import (
	"fmt"

	"bizledger/internal/model"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// NewConnection opens the ledger database, migrates the core models and makes
// sure the single sync-state row exists.
func NewConnection(driver, dsn string, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres, "":
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		// One connection keeps an in-memory database alive and matches the
		// single-writer model.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	// Auto-migrate core models
	if err := db.AutoMigrate(
		&model.Client{},
		&model.Depot{},
		&model.Product{},
		&model.StockEntry{},
		&model.StockMovement{},
		&model.Document{},
		&model.DocumentLine{},
		&model.Payment{},
		&model.Counter{},
		&model.AuditLog{},
		&model.SyncState{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.SyncState{ID: model.SyncStateID}).Error; err != nil {
		return nil, fmt.Errorf("failed to initialize sync state: %w", err)
	}

	if log != nil {
		log.Info("database ready", zap.String("driver", dialector.Name()))
	}
	return db, nil
}
