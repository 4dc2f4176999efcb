package models

import "time"

// Guess is a player's answer for a round. At most one row exists per
// (round, player); resubmissions overwrite it.
type Guess struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	MatchID   uint      `json:"match_id" gorm:"not null;index"`
	RoundID   uint      `json:"round_id" gorm:"not null;uniqueIndex:idx_guesses_round_player"`
	PlayerID  uint      `json:"player_id" gorm:"not null;uniqueIndex:idx_guesses_round_player"`
	GuessLat  float64   `json:"guess_lat" gorm:"not null"`
	GuessLon  float64   `json:"guess_lon" gorm:"not null"`
	DistanceM int       `json:"distance_m" gorm:"not null"`
	TimedOut  bool      `json:"timed_out" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
}
