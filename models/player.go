package models

import "time"

type Player struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	MatchID   uint      `json:"match_id" gorm:"not null;uniqueIndex:idx_players_match_nickname"`
	Nickname  string    `json:"nickname" gorm:"size:64;not null;uniqueIndex:idx_players_match_nickname"`
	JoinedAt  time.Time `json:"joined_at"`
	CreatedAt time.Time `json:"created_at"`

	// Relationships
	Guesses []Guess `json:"-" gorm:"foreignKey:PlayerID"`
}
