package models

import "time"

// Round is one target location of a match. Rows are written once, at start.
type Round struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	MatchID     uint      `json:"match_id" gorm:"not null;uniqueIndex:idx_rounds_match_no"`
	RoundNo     int       `json:"round_no" gorm:"not null;uniqueIndex:idx_rounds_match_no"`
	PlaceID     string    `json:"place_id"`
	Clue        string    `json:"clue"`
	DisplayName string    `json:"display_name"`
	Address     string    `json:"address"`
	Lat         float64   `json:"lat" gorm:"not null"`
	Lon         float64   `json:"lon" gorm:"not null"`
	StartedAt   time.Time `json:"started_at"`

	// Relationships
	Guesses []Guess `json:"-" gorm:"foreignKey:RoundID"`
}
