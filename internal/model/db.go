package model

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MSK every timestamp is written in UTC+3
var MSK = time.FixedZone("MSK", 3*60*60)

// Now current time in MSK
func Now() time.Time {
	return time.Now().In(MSK)
}

var DB *gorm.DB

// DBConfig connection and pool settings
type DBConfig struct {
	Driver          string // postgres, mysql, sqlite
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	LogLevel        string
}

// APIPool returns settings for the long lived request pool
func APIPool(driver, dsn string, maxOpen, maxIdle int, lifetime time.Duration) DBConfig {
	return DBConfig{
		Driver:          driver,
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: lifetime,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// JobPool returns settings for a per-run pool that keeps no idle connections
func JobPool(driver, dsn string, maxOpen int) DBConfig {
	return DBConfig{
		Driver:       driver,
		DSN:          dsn,
		MaxOpenConns: maxOpen,
		MaxIdleConns: 0,
	}
}

// InitDB opens the API pool and stores it as the package default
func InitDB(cfg DBConfig) error {
	db, err := OpenDB(cfg)
	if err != nil {
		return err
	}
	DB = db
	slog.Info("database connected",
		"driver", cfg.Driver,
		"max_open", cfg.MaxOpenConns,
		"max_idle", cfg.MaxIdleConns)
	return nil
}

// OpenDB opens and pings a gorm connection with its own pool
func OpenDB(cfg DBConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel(cfg.LogLevel)),
		NowFunc:        Now,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// CloseDB closes the pool behind db
func CloseDB(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// AutoMigrate creates or alters the tables from the model structs
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&CurrencyGroup{},
		&Currency{},
		&CurrencyRate{},
	)
}

// GetDBStats pool statistics of the default connection
func GetDBStats() map[string]interface{} {
	return DBStats(DB)
}

// DBStats pool statistics of db
func DBStats(db *gorm.DB) map[string]interface{} {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil
	}
	stats := sqlDB.Stats()
	return map[string]interface{}{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration.String(),
	}
}

// CheckDBHealth pings the default connection
func CheckDBHealth(ctx context.Context) error {
	return PingDB(ctx, DB)
}

// PingDB pings the pool behind db
func PingDB(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// GetDB returns the default connection
func GetDB() *gorm.DB {
	return DB
}
