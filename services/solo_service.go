package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"geoguess/catalog"
	"geoguess/geo"
	"geoguess/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRoundExpired is returned by a RoundCache for unknown or expired tokens.
var ErrRoundExpired = errors.New("round expired")

// SoloRound is the server-side half of a single-player round.
type SoloRound struct {
	City  string        `json:"city"`
	Place catalog.Place `json:"place"`
}

// RoundCache holds solo rounds between handing out a target and scoring the guess.
type RoundCache interface {
	Put(ctx context.Context, token string, round *SoloRound) error
	// Take returns the round and evicts it.
	Take(ctx context.Context, token string) (*SoloRound, error)
}

// RedisRoundCache keeps solo rounds in redis with a TTL.
type RedisRoundCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRoundCache(client *redis.Client, ttl time.Duration) *RedisRoundCache {
	return &RedisRoundCache{client: client, ttl: ttl}
}

func soloKey(token string) string {
	return "solo:" + token
}

func (c *RedisRoundCache) Put(ctx context.Context, token string, round *SoloRound) error {
	// Convert to JSON for Redis storage
	data, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("failed to marshal solo round: %w", err)
	}

	if err := c.client.Set(ctx, soloKey(token), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store in Redis: %w", err)
	}
	return nil
}

func (c *RedisRoundCache) Take(ctx context.Context, token string) (*SoloRound, error) {
	data, err := c.client.GetDel(ctx, soloKey(token)).Result()
	if err == redis.Nil {
		return nil, ErrRoundExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from Redis: %w", err)
	}

	var round SoloRound
	if err := json.Unmarshal([]byte(data), &round); err != nil {
		return nil, fmt.Errorf("failed to unmarshal solo round: %w", err)
	}
	return &round, nil
}

// SoloService serves single-player rounds. Nothing is persisted beyond the
// round cache.
type SoloService struct {
	catalog *catalog.Catalog
	cache   RoundCache
}

func NewSoloService(cat *catalog.Catalog, cache RoundCache) *SoloService {
	return &SoloService{catalog: cat, cache: cache}
}

type SoloGuessRequest struct {
	PlaceID string   `json:"place_id" binding:"required"`
	Lat     *float64 `json:"lat" binding:"required"`
	Lon     *float64 `json:"lon" binding:"required"`
}

type SoloPlace struct {
	ID          string  `json:"id"`
	Lat         float64 `json:"lat,omitempty"`
	Lon         float64 `json:"lon,omitempty"`
	DisplayName string  `json:"display_name"`
	Clue        string  `json:"clue"`
	Street      string  `json:"street"`
	Address     string  `json:"address"`
}

type SoloGuessResult struct {
	DistanceKm float64    `json:"distance_km"`
	Score      int        `json:"score"`
	Solution   Coordinate `json:"solution"`
	Place      SoloPlace  `json:"place"`
}

// Cities lists the cities with at least one place.
func (s *SoloService) Cities() []catalog.City {
	return s.catalog.Cities()
}

// NewRound picks a random place in city and returns it under a fresh token.
func (s *SoloService) NewRound(ctx context.Context, city string) (*SoloPlace, error) {
	key := catalog.CityKey(city)
	place, err := s.catalog.Random(key)
	if err != nil {
		return nil, validationf("no place data for city %q", city)
	}

	// Opaque token for the client, place kept server-side
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.cache.Put(ctx, token, &SoloRound{City: key, Place: place}); err != nil {
		return nil, storeError("failed to store round", err)
	}

	logger.Debug("solo round %s in %s: %s", token, key, place.ID)
	return &SoloPlace{
		ID:          token,
		Lat:         place.Lat,
		Lon:         place.Lon,
		DisplayName: place.Label(),
		Clue:        place.Clue(),
		Street:      place.Street,
		Address:     place.Address(),
	}, nil
}

// Guess scores a guess for a solo round. Each token can be scored once.
func (s *SoloService) Guess(ctx context.Context, req *SoloGuessRequest) (*SoloGuessResult, error) {
	if req.Lat == nil || req.Lon == nil {
		return nil, validationf("lat and lon are required")
	}
	if !geo.ValidCoordinate(*req.Lat, *req.Lon) {
		return nil, validationf("coordinate %.5f,%.5f is out of range", *req.Lat, *req.Lon)
	}

	// Fetch and evict the round
	round, err := s.cache.Take(ctx, req.PlaceID)
	if errors.Is(err, ErrRoundExpired) {
		return nil, notFoundf("place %s not found", req.PlaceID)
	}
	if err != nil {
		return nil, storeError("failed to load round", err)
	}

	p := round.Place
	km := geo.DistanceKm(*req.Lat, *req.Lon, p.Lat, p.Lon)
	return &SoloGuessResult{
		DistanceKm: km,
		Score:      geo.Meters(km),
		Solution:   Coordinate{Lat: p.Lat, Lon: p.Lon},
		Place: SoloPlace{
			ID:          req.PlaceID,
			DisplayName: p.Label(),
			Clue:        p.Clue(),
			Street:      p.Street,
			Address:     p.Address(),
		},
	}, nil
}
