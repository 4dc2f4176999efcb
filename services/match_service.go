package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"geoguess/catalog"
	"geoguess/geo"
	"geoguess/logger"
	"geoguess/models"
	"geoguess/store"

	"golang.org/x/text/unicode/norm"
)

const maxNicknameLen = 32

// MatchOptions bound what a match may be created with.
type MatchOptions struct {
	MinRounds       int
	MaxRounds       int
	DefaultRounds   int
	TimeoutPenaltyM int
}

func DefaultMatchOptions() MatchOptions {
	return MatchOptions{
		MinRounds:       1,
		MaxRounds:       20,
		DefaultRounds:   5,
		TimeoutPenaltyM: 50000,
	}
}

// MatchService drives the multiplayer lifecycle. It keeps no state of its
// own: every call re-reads the store, so any number of server processes can
// serve the same match.
type MatchService struct {
	store   store.Store
	catalog *catalog.Catalog
	opts    MatchOptions
}

func NewMatchService(st store.Store, cat *catalog.Catalog, opts MatchOptions) *MatchService {
	return &MatchService{
		store:   st,
		catalog: cat,
		opts:    opts,
	}
}

type CreateMatchRequest struct {
	HostName string `json:"host_name" binding:"required"`
	City     string `json:"city" binding:"required"`
	Rounds   *int   `json:"rounds"`
}

type JoinMatchRequest struct {
	Code     string `json:"code" binding:"required"`
	Nickname string `json:"nickname" binding:"required"`
}

type StartMatchRequest struct {
	Code string `json:"code" binding:"required"`
}

type GuessRequest struct {
	Code     string   `json:"code" binding:"required"`
	Nickname string   `json:"nickname" binding:"required"`
	RoundNo  int      `json:"round_no"`
	Lat      *float64 `json:"lat" binding:"required"`
	Lon      *float64 `json:"lon" binding:"required"`
	TimedOut bool     `json:"timed_out"`
}

type MatchSummary struct {
	Code      string     `json:"code"`
	HostName  string     `json:"host_name"`
	City      string     `json:"city"`
	CityName  string     `json:"city_name"`
	Rounds    int        `json:"rounds"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

type LobbyView struct {
	MatchSummary
	Players []string `json:"players"`
}

type StartResult struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Rounds int    `json:"rounds"`
}

type RoundView struct {
	RoundNo   int       `json:"round_no"`
	Clue      string    `json:"clue"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	StartedAt time.Time `json:"started_at"`
}

type GuessResult struct {
	RoundNo   int  `json:"round_no"`
	DistanceM int  `json:"distance_m"`
	TimedOut  bool `json:"timed_out"`
}

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type PlaceInfo struct {
	DisplayName string `json:"display_name"`
	Clue        string `json:"clue"`
	Address     string `json:"address"`
}

type RoundResult struct {
	RoundNo     int                `json:"round_no"`
	Solution    Coordinate         `json:"solution"`
	Place       PlaceInfo          `json:"place"`
	Leaderboard []store.RoundEntry `json:"leaderboard"`
}

type FinalResult struct {
	Code   string             `json:"code"`
	Status string             `json:"status"`
	Rounds int                `json:"rounds"`
	Final  []store.FinalEntry `json:"final"`
}

func summarize(m *models.Match) MatchSummary {
	return MatchSummary{
		Code:      m.Code,
		HostName:  m.HostName,
		City:      m.City,
		CityName:  catalog.DisplayName(m.City),
		Rounds:    m.Rounds,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
		StartedAt: m.StartedAt,
	}
}

// normalizeNickname trims and NFC-normalizes a name so that visually equal
// nicknames collide on the (match, nickname) key.
func normalizeNickname(field, name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return "", validationf("%s is required", field)
	}
	if utf8.RuneCountInString(name) > maxNicknameLen {
		return "", validationf("%s must be at most %d characters", field, maxNicknameLen)
	}
	return name, nil
}

func (s *MatchService) matchByCode(ctx context.Context, code string) (*models.Match, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, validationf("match code is required")
	}

	m, err := s.store.MatchByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundf("match %s does not exist", code)
	}
	if err != nil {
		return nil, storeError("failed to load match", err)
	}
	return m, nil
}

func (s *MatchService) roundByNo(ctx context.Context, m *models.Match, roundNo int) (*models.Round, error) {
	if roundNo < 1 || roundNo > m.Rounds {
		return nil, notFoundf("round %d does not exist in match %s (1-%d)", roundNo, m.Code, m.Rounds)
	}

	r, err := s.store.RoundByNo(ctx, m.ID, roundNo)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundf("round %d of match %s has not started", roundNo, m.Code)
	}
	if err != nil {
		return nil, storeError("failed to load round", err)
	}
	return r, nil
}

// Create opens a new match in the lobby with the host as its first player.
func (s *MatchService) Create(ctx context.Context, req *CreateMatchRequest) (*MatchSummary, error) {
	host, err := normalizeNickname("host_name", req.HostName)
	if err != nil {
		return nil, err
	}

	// Normalize city and check that it has places
	city := catalog.CityKey(req.City)
	if city == "" || !s.catalog.Has(city) {
		return nil, validationf("no place data for city %q", req.City)
	}

	// Rounds default when omitted, out of range is rejected
	rounds := s.opts.DefaultRounds
	if req.Rounds != nil {
		rounds = *req.Rounds
	}
	if rounds < s.opts.MinRounds || rounds > s.opts.MaxRounds {
		return nil, validationf("rounds must be between %d and %d, got %d", s.opts.MinRounds, s.opts.MaxRounds, rounds)
	}

	m := &models.Match{
		HostName: host,
		City:     city,
		Rounds:   rounds,
		Status:   models.MatchStatusLobby,
	}
	// Draw a code and enroll the host in one go
	if _, err := s.store.CreateMatch(ctx, m, host); err != nil {
		if errors.Is(err, store.ErrCodeSpaceExhausted) {
			logger.Error("match: code space exhausted, cannot create match for %s", host)
		}
		return nil, storeError("failed to create match", err)
	}

	logger.Info("match %s created by %s (%s, %d rounds)", m.Code, host, city, rounds)
	summary := summarize(m)
	return &summary, nil
}

// Join adds a player to a lobby or running match. Joining twice with the
// same nickname returns the existing player.
func (s *MatchService) Join(ctx context.Context, req *JoinMatchRequest) (*models.Player, error) {
	m, err := s.matchByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if m.Status == models.MatchStatusFinished {
		return nil, invalidStatef("match %s is finished and cannot be joined", m.Code)
	}

	nickname, err := normalizeNickname("nickname", req.Nickname)
	if err != nil {
		return nil, err
	}

	// Insert or return the existing player
	player, err := s.store.AddPlayer(ctx, m.ID, nickname)
	if err != nil {
		return nil, storeError("failed to join match", err)
	}

	logger.Info("match %s: %s joined (status %s)", m.Code, nickname, m.Status)
	return player, nil
}

// Lobby returns the match summary and its players in join order.
func (s *MatchService) Lobby(ctx context.Context, code string) (*LobbyView, error) {
	m, err := s.matchByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	players, err := s.store.Players(ctx, m.ID)
	if err != nil {
		return nil, storeError("failed to list players", err)
	}

	view := &LobbyView{MatchSummary: summarize(m), Players: make([]string, 0, len(players))}
	for _, p := range players {
		view.Players = append(view.Players, p.Nickname)
	}
	return view, nil
}

// Start materializes the rounds, once, and moves the match to active.
// Repeated or concurrent calls are safe.
func (s *MatchService) Start(ctx context.Context, code string) (*StartResult, error) {
	m, err := s.matchByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if m.Status == models.MatchStatusFinished {
		return nil, invalidStatef("match %s is already finished", m.Code)
	}

	// Create the rounds once; later calls find them in place
	created, err := s.store.MaterializeRounds(ctx, m.ID, m.Rounds, func(n int) ([]catalog.Place, error) {
		return s.catalog.Sample(m.City, n)
	})
	if errors.Is(err, catalog.ErrEmptyCity) {
		return nil, validationf("no place data for city %q", m.City)
	}
	if err != nil {
		return nil, storeError("failed to create rounds", err)
	}

	count, err := s.store.RoundCount(ctx, m.ID)
	if err != nil {
		return nil, storeError("failed to count rounds", err)
	}
	if count == 0 {
		return nil, validationf("no place data for city %q", m.City)
	}
	if created {
		logger.Info("match %s: materialized %d of %d rounds", m.Code, count, m.Rounds)
	} else {
		logger.Debug("match %s: %d rounds already in place", m.Code, count)
	}

	// Move to active; a finished match never goes back
	err = s.store.SetStatus(ctx, m.ID, models.MatchStatusActive)
	if errors.Is(err, store.ErrStatusRegression) {
		return nil, invalidStatef("match %s finished while starting", m.Code)
	}
	if err != nil {
		return nil, storeError("failed to start match", err)
	}

	if m.Status == models.MatchStatusLobby {
		logger.Info("match %s started", m.Code)
	}
	return &StartResult{Code: m.Code, Status: models.MatchStatusActive, Rounds: m.Rounds}, nil
}

// Round returns the target of a round. Rounds exist only once the match has started.
func (s *MatchService) Round(ctx context.Context, code string, roundNo int) (*RoundView, error) {
	m, err := s.matchByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	r, err := s.roundByNo(ctx, m, roundNo)
	if err != nil {
		return nil, err
	}

	return &RoundView{
		RoundNo:   r.RoundNo,
		Clue:      r.Clue,
		Lat:       r.Lat,
		Lon:       r.Lon,
		StartedAt: r.StartedAt,
	}, nil
}

// Guess scores a player's answer against the stored target and records it,
// replacing any earlier answer for the same round. Distances sent by clients
// are never used; a timed-out guess gets the configured penalty added.
func (s *MatchService) Guess(ctx context.Context, req *GuessRequest) (*GuessResult, error) {
	if req.Lat == nil || req.Lon == nil {
		return nil, validationf("lat and lon are required")
	}
	lat, lon := *req.Lat, *req.Lon
	if !geo.ValidCoordinate(lat, lon) {
		return nil, validationf("coordinate %.5f,%.5f is out of range", lat, lon)
	}

	// Guesses are only accepted while the match runs
	m, err := s.matchByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	switch m.Status {
	case models.MatchStatusLobby:
		return nil, invalidStatef("match %s has not started", m.Code)
	case models.MatchStatusFinished:
		return nil, invalidStatef("match %s is finished", m.Code)
	}

	r, err := s.roundByNo(ctx, m, req.RoundNo)
	if err != nil {
		return nil, err
	}

	nickname, err := normalizeNickname("nickname", req.Nickname)
	if err != nil {
		return nil, err
	}
	// Only enrolled players may guess
	player, err := s.store.PlayerByNickname(ctx, m.ID, nickname)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundf("%s is not a player in match %s", nickname, m.Code)
	}
	if err != nil {
		return nil, storeError("failed to load player", err)
	}

	// Score against the stored target
	distance := geo.DistanceMeters(lat, lon, r.Lat, r.Lon)
	if req.TimedOut {
		distance += s.opts.TimeoutPenaltyM
	}

	g := &models.Guess{
		MatchID:   m.ID,
		RoundID:   r.ID,
		PlayerID:  player.ID,
		GuessLat:  lat,
		GuessLon:  lon,
		DistanceM: distance,
		TimedOut:  req.TimedOut,
		CreatedAt: time.Now(),
	}
	// Replace any earlier guess for this round
	if err := s.store.UpsertGuess(ctx, g); err != nil {
		return nil, storeError("failed to record guess", err)
	}

	logger.Debug("match %s round %d: %s guessed %d m", m.Code, r.RoundNo, nickname, distance)
	return &GuessResult{RoundNo: r.RoundNo, DistanceM: distance, TimedOut: req.TimedOut}, nil
}

// RoundResult reveals a round's target with its leaderboard, closest first.
func (s *MatchService) RoundResult(ctx context.Context, code string, roundNo int) (*RoundResult, error) {
	m, err := s.matchByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	r, err := s.roundByNo(ctx, m, roundNo)
	if err != nil {
		return nil, err
	}

	board, err := s.store.RoundLeaderboard(ctx, r.ID)
	if err != nil {
		return nil, storeError("failed to load round leaderboard", err)
	}

	return &RoundResult{
		RoundNo:  r.RoundNo,
		Solution: Coordinate{Lat: r.Lat, Lon: r.Lon},
		Place: PlaceInfo{
			DisplayName: r.DisplayName,
			Clue:        r.Clue,
			Address:     r.Address,
		},
		Leaderboard: board,
	}, nil
}

// Final returns the match standings and marks the match finished. It may be
// called repeatedly; players who never guessed are listed with a zero total.
func (s *MatchService) Final(ctx context.Context, code string) (*FinalResult, error) {
	m, err := s.matchByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if m.Status == models.MatchStatusLobby {
		return nil, invalidStatef("match %s has not started", m.Code)
	}

	// Totals include players without guesses
	board, err := s.store.FinalLeaderboard(ctx, m.ID)
	if err != nil {
		return nil, storeError("failed to load final leaderboard", err)
	}

	// Mark finished; repeating this is a no-op
	if err := s.store.SetStatus(ctx, m.ID, models.MatchStatusFinished); err != nil {
		return nil, storeError("failed to finish match", err)
	}
	if m.Status != models.MatchStatusFinished {
		logger.Info("match %s finished with %d players", m.Code, len(board))
	}

	return &FinalResult{
		Code:   m.Code,
		Status: models.MatchStatusFinished,
		Rounds: m.Rounds,
		Final:  board,
	}, nil
}
