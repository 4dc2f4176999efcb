package models

import "time"

// Score is a finished single-player run on the public leaderboard.
type Score struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null"`
	Score     int       `json:"score" gorm:"not null;index"`
	Rounds    int       `json:"rounds" gorm:"not null"`
	City      string    `json:"city" gorm:"size:64;index"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

func (Score) TableName() string { return "leaderboard" }
