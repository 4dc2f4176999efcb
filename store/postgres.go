package store

import (
	"fmt"

	"geoguess/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewPostgres opens the client/server engine. Concurrent round
// materialization for a match is serialized by a row lock on the match.
func NewPostgres(dsn string, opts Options) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), opts.gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return newGormStore(db, "postgres", opts, lockMatchRow), nil
}

func lockMatchRow(tx *gorm.DB, matchID uint) error {
	var m models.Match
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&m, matchID).Error
}
