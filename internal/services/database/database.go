// Package database opens the SQL store shared by the cursor store and the
// output sink.
package database

import (
	"fmt"
	"time"

	"github.com/Egham-7/substreams-bridge/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DB struct {
	*gorm.DB
	config     models.DatabaseConfig
	driverName string
}

func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (db *DB) Ping() error {
	if db.DB == nil {
		return fmt.Errorf("database not connected")
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (db *DB) DriverName() string {
	return db.driverName
}

// SupportsUpsert reports whether the driver understands ON CONFLICT clauses.
// ClickHouse tables dedupe through ReplacingMergeTree instead.
func (db *DB) SupportsUpsert() bool {
	return db.driverName != "clickhouse"
}

// Migrate creates the cursors and block_outputs tables
func (db *DB) Migrate() error {
	if db.driverName == "clickhouse" {
		return RunClickHouseMigrations(db.DB)
	}
	if err := db.AutoMigrate(&models.CursorRecord{}, &models.OutputRecord{}); err != nil {
		return fmt.Errorf("failed to migrate bridge tables: %w", err)
	}
	return nil
}

func (db *DB) setConnectionPool() {
	if db.DB == nil {
		return
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return
	}

	if db.config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(db.config.MaxOpenConns)
	}
	if db.config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(db.config.MaxIdleConns)
	}
	if db.config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(db.config.ConnMaxLifetime) * time.Second)
	}
}

// Per-statement SQL logging would drown the per-call log lines
func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}
}

// New opens and pings the database described by config
func New(config models.DatabaseConfig) (*DB, error) {
	d, err := lookupDriver(config.Type)
	if err != nil {
		return nil, err
	}

	dsn, err := config.ConnectionString()
	if err != nil {
		return nil, err
	}

	gormCfg := gormConfig()
	if d.tune != nil {
		d.tune(gormCfg)
	}

	gormDB, err := gorm.Open(d.open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", d.label, err)
	}

	db := &DB{
		DB:         gormDB,
		config:     config,
		driverName: d.name,
	}

	db.setConnectionPool()

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", d.label, err)
	}

	return db, nil
}
