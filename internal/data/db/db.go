package db

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/platform/envutil"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

type Config struct {
	// PostgresDSN selects Postgres when set; otherwise a pure-Go SQLite file at SQLitePath is used.
	PostgresDSN string
	SQLitePath  string
}

func ConfigFromEnv() Config {
	return Config{
		PostgresDSN: envutil.String("POSTGRES_DSN", ""),
		SQLitePath:  envutil.String("SQLITE_PATH", "./data/workbench.db"),
	}
}

// Open connects to the audit database and migrates its tables.
func Open(logg *logger.Logger, cfg Config) (*gorm.DB, error) {
	serviceLog := logg.With("service", "SQLService")

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gcfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	}

	var (
		dialector gorm.Dialector
		driver    string
	)
	if dsn := strings.TrimSpace(cfg.PostgresDSN); dsn != "" {
		dialector, driver = postgres.Open(dsn), "postgres"
	} else {
		path := strings.TrimSpace(cfg.SQLitePath)
		if path == "" {
			path = "./data/workbench.db"
		}
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		dialector, driver = sqlite.Open(path), "sqlite"
	}

	gdb, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// SQLite allows one writer at a time.
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	if err := AutoMigrateAll(gdb); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", driver, err)
	}
	serviceLog.Info("audit database ready", "driver", driver)
	return gdb, nil
}

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.LedgerEntry{},
	)
}
