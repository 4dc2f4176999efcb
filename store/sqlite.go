package store

import (
	"fmt"
	"os"
	"path/filepath"

	"geoguess/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// NewSQLite opens the embedded single-file engine at path (":memory:" for an
// in-memory database). SQLite allows one writer at a time, so the pool is
// limited to a single connection and every transaction runs alone.
func NewSQLite(path string, opts Options) (*GormStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), opts.gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("setting %q: %w", pragma, err)
		}
	}

	return newGormStore(db, "sqlite", opts, checkMatchExists), nil
}

// checkMatchExists is the sqlite lock: the single connection already
// serializes transactions, so it only verifies the match is there.
func checkMatchExists(tx *gorm.DB, matchID uint) error {
	var m models.Match
	return tx.Select("id").First(&m, matchID).Error
}
