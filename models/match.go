package models

import "time"

const (
	MatchStatusLobby    = "lobby"
	MatchStatusActive   = "active"
	MatchStatusFinished = "finished"
)

// Match is one multiplayer play-through, addressed by its short numeric code.
type Match struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	Code       string     `json:"code" gorm:"size:16;uniqueIndex;not null"`
	HostName   string     `json:"host_name" gorm:"not null"`
	City       string     `json:"city" gorm:"size:64;not null"`
	Rounds     int        `json:"rounds" gorm:"not null"`
	Status     string     `json:"status" gorm:"size:16;not null;default:'lobby';index"` // lobby, active, finished
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// Relationships
	Players    []Player `json:"players,omitempty" gorm:"foreignKey:MatchID"`
	RoundsList []Round  `json:"-" gorm:"foreignKey:MatchID"`
}

// StatusRank orders statuses so transitions can be checked as forward-only.
func StatusRank(status string) int {
	switch status {
	case MatchStatusLobby:
		return 0
	case MatchStatusActive:
		return 1
	case MatchStatusFinished:
		return 2
	default:
		return -1
	}
}
