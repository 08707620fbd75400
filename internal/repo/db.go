// Package repo implements the data persistence layer for the quota store and
// transcript tables, backed by GORM. This file contains database
// bootstrapping helpers for SQLite (pure Go driver) and schema migrations.
package repo

import (
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/luminahq/go-chat-gate/internal/domain"
)

// Connection PRAGMAs for the counter workload: WAL keeps quota reads from
// blocking increment transactions, busy_timeout covers writer contention.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA foreign_keys=ON;",
	"PRAGMA busy_timeout=5000;",
}

// OpenSQLite opens (or creates) the quota database at path, applies the
// connection PRAGMAs and sizes the pool.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early when the parent directory is missing; the driver's own
	// error for that case is an unhelpful "out of memory (14)".
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	for _, pragma := range sqlitePragmas {
		if res := db.Exec(pragma); res.Error != nil {
			return nil, res.Error
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// AutoMigrate creates or updates the quota store schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.GuestUsage{},
		&domain.UserUsage{},
		&domain.ChatSession{},
		&domain.StoredMessage{},
		&domain.Receipt{},
	)
}
