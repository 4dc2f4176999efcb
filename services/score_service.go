package services

import (
	"context"
	"strings"
	"time"

	"geoguess/catalog"
	"geoguess/models"
	"geoguess/store"
)

const (
	defaultScoreName  = "Anon"
	maxScoreRounds    = 50
	defaultScoreLimit = 50
	maxScoreLimit     = 200
)

// ScoreService keeps the single-player leaderboard. Lower scores are better.
type ScoreService struct {
	store   store.Store
	catalog *catalog.Catalog
}

func NewScoreService(st store.Store, cat *catalog.Catalog) *ScoreService {
	return &ScoreService{store: st, catalog: cat}
}

type ScoreRequest struct {
	Name   string `json:"name"`
	Score  *int   `json:"score" binding:"required"`
	Rounds *int   `json:"rounds" binding:"required"`
	City   string `json:"city"`
}

type ScoreView struct {
	ID        uint      `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `json:"name"`
	Score     int       `json:"score"`
	Rounds    int       `json:"rounds"`
	City      string    `json:"city"`
}

func (s *ScoreService) Submit(ctx context.Context, req *ScoreRequest) (*models.Score, error) {
	if req.Score == nil || *req.Score < 0 {
		return nil, validationf("score must be zero or more")
	}
	if req.Rounds == nil || *req.Rounds < 1 || *req.Rounds > maxScoreRounds {
		return nil, validationf("rounds must be between 1 and %d", maxScoreRounds)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultScoreName
	}

	city := strings.TrimSpace(req.City)
	if city != "" {
		city = catalog.CityKey(city)
	}

	sc := &models.Score{
		Name:      name,
		Score:     *req.Score,
		Rounds:    *req.Rounds,
		City:      city,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveScore(ctx, sc); err != nil {
		return nil, storeError("failed to save score", err)
	}
	return sc, nil
}

// Top lists scores ordered "best" (lowest first) or "latest". The limit is
// clamped to 1..200.
func (s *ScoreService) Top(ctx context.Context, limit int, order, city string) ([]ScoreView, error) {
	limit = max(1, min(limit, maxScoreLimit))

	q := store.ScoreQuery{Limit: limit, Latest: order == "latest"}
	if city = strings.TrimSpace(city); city != "" {
		q.City = catalog.CityKey(city)
		if !s.catalog.Known(q.City) {
			return nil, validationf("unknown city %q", city)
		}
	}

	rows, err := s.store.TopScores(ctx, q)
	if err != nil {
		return nil, storeError("failed to load leaderboard", err)
	}

	items := make([]ScoreView, 0, len(rows))
	for _, r := range rows {
		items = append(items, ScoreView{
			ID:        r.ID,
			CreatedAt: r.CreatedAt,
			Name:      r.Name,
			Score:     r.Score,
			Rounds:    r.Rounds,
			City:      catalog.DisplayName(r.City),
		})
	}
	return items, nil
}
