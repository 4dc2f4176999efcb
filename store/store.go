// Package store persists matches, players, rounds and guesses, and owns
// their uniqueness and referential invariants.
package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"geoguess/catalog"
	"geoguess/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrCodeSpaceExhausted = errors.New("no free match code")
	ErrStatusRegression   = errors.New("match status cannot move backwards")
)

// maxCodeAttempts bounds the random draws for a free match code. With the
// default 3-digit codes the space is 1000 matches in total, codes are never
// reused, and creation starts failing as the space fills up.
const maxCodeAttempts = 64

// SampleFunc supplies n places when rounds are materialized.
type SampleFunc func(n int) ([]catalog.Place, error)

// RoundEntry is one line of a round leaderboard.
type RoundEntry struct {
	Nickname  string `json:"nickname"`
	DistanceM int    `json:"distance_m"`
	TimedOut  bool   `json:"timed_out"`
}

// FinalEntry is one line of a match leaderboard.
type FinalEntry struct {
	Nickname   string `json:"nickname"`
	TotalM     int    `json:"total_m"`
	GuessCount int    `json:"guess_count"`
}

// ScoreQuery selects solo leaderboard rows.
type ScoreQuery struct {
	Limit  int
	Latest bool
	City   string
}

// Store is the engine-agnostic repository used by the services.
type Store interface {
	Migrate(ctx context.Context) error

	CreateMatch(ctx context.Context, m *models.Match, host string) (*models.Player, error)
	MatchByCode(ctx context.Context, code string) (*models.Match, error)
	SetStatus(ctx context.Context, matchID uint, status string) error
	FinishStale(ctx context.Context, createdBefore time.Time) (int64, error)

	AddPlayer(ctx context.Context, matchID uint, nickname string) (*models.Player, error)
	Players(ctx context.Context, matchID uint) ([]models.Player, error)
	PlayerByNickname(ctx context.Context, matchID uint, nickname string) (*models.Player, error)

	MaterializeRounds(ctx context.Context, matchID uint, n int, sample SampleFunc) (bool, error)
	RoundByNo(ctx context.Context, matchID uint, roundNo int) (*models.Round, error)
	RoundCount(ctx context.Context, matchID uint) (int64, error)

	UpsertGuess(ctx context.Context, g *models.Guess) error
	RoundLeaderboard(ctx context.Context, roundID uint) ([]RoundEntry, error)
	FinalLeaderboard(ctx context.Context, matchID uint) ([]FinalEntry, error)

	SaveFeedback(ctx context.Context, f *models.Feedback) error
	ListFeedback(ctx context.Context) ([]models.Feedback, error)
	SaveScore(ctx context.Context, s *models.Score) error
	TopScores(ctx context.Context, q ScoreQuery) ([]models.Score, error)

	Close() error
}

// Options tune both engines.
type Options struct {
	CodeDigits int
	LogLevel   gormlogger.LogLevel
}

func (o Options) gormConfig() *gorm.Config {
	level := o.LogLevel
	if level == 0 {
		level = gormlogger.Silent
	}
	return &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(level),
	}
}

var _ Store = (*GormStore)(nil)

// GormStore implements Store on top of gorm. The engine constructors only
// differ in how they open the database and how a match is locked.
type GormStore struct {
	db         *gorm.DB
	engine     string
	codeDigits int
	lockMatch  func(tx *gorm.DB, matchID uint) error
}

func newGormStore(db *gorm.DB, engine string, opts Options, lock func(tx *gorm.DB, matchID uint) error) *GormStore {
	digits := opts.CodeDigits
	if digits <= 0 {
		digits = 3
	}
	return &GormStore{db: db, engine: engine, codeDigits: digits, lockMatch: lock}
}

// Engine names the backing database ("postgres" or "sqlite").
func (s *GormStore) Engine() string {
	return s.engine
}

// DB exposes the underlying handle for health checks.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&models.Match{},
		&models.Player{},
		&models.Round{},
		&models.Guess{},
		&models.Feedback{},
		&models.Score{},
	)
}

// Ping checks that the database is reachable.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) drawCode() (string, error) {
	space := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(s.codeDigits)), nil)
	n, err := rand.Int(rand.Reader, space)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", s.codeDigits, n.Int64()), nil
}

// CreateMatch stores m under a fresh code and enrolls the host as its first player.
func (s *GormStore) CreateMatch(ctx context.Context, m *models.Match, host string) (*models.Player, error) {
	db := s.db.WithContext(ctx)

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.drawCode()
		if err != nil {
			return nil, err
		}

		var taken int64
		if err := db.Model(&models.Match{}).Where("code = ?", code).Count(&taken).Error; err != nil {
			return nil, err
		}
		if taken > 0 {
			continue
		}

		m.ID = 0
		m.Code = code
		if m.Status == "" {
			m.Status = models.MatchStatusLobby
		}

		var player *models.Player
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(m).Error; err != nil {
				return err
			}
			player = &models.Player{MatchID: m.ID, Nickname: host, JoinedAt: time.Now()}
			return tx.Create(player).Error
		})
		if isUniqueViolation(err) {
			// lost a race for the same code
			continue
		}
		if err != nil {
			return nil, err
		}
		return player, nil
	}

	return nil, ErrCodeSpaceExhausted
}

func (s *GormStore) MatchByCode(ctx context.Context, code string) (*models.Match, error) {
	var m models.Match
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// SetStatus moves a match forward along lobby -> active -> finished and
// stamps the first time each state was reached. Setting the current status
// again is allowed; moving backwards returns ErrStatusRegression.
func (s *GormStore) SetStatus(ctx context.Context, matchID uint, status string) error {
	rank := models.StatusRank(status)
	if rank < 0 {
		return fmt.Errorf("unknown match status %q", status)
	}

	from := make([]string, 0, 3)
	for _, st := range []string{models.MatchStatusLobby, models.MatchStatusActive, models.MatchStatusFinished} {
		if models.StatusRank(st) <= rank {
			from = append(from, st)
		}
	}

	now := time.Now()
	updates := map[string]any{"status": status}
	switch status {
	case models.MatchStatusActive:
		updates["started_at"] = gorm.Expr("COALESCE(started_at, ?)", now)
	case models.MatchStatusFinished:
		updates["finished_at"] = gorm.Expr("COALESCE(finished_at, ?)", now)
	}

	res := s.db.WithContext(ctx).Model(&models.Match{}).
		Where("id = ? AND status IN ?", matchID, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Match{}).Where("id = ?", matchID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrStatusRegression
}

// FinishStale finishes every unfinished match created before the cutoff.
func (s *GormStore) FinishStale(ctx context.Context, createdBefore time.Time) (int64, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.Match{}).
		Where("status <> ? AND created_at < ?", models.MatchStatusFinished, createdBefore).
		Updates(map[string]any{
			"status":      models.MatchStatusFinished,
			"finished_at": now,
		})
	return res.RowsAffected, res.Error
}

// AddPlayer inserts the player unless the nickname is already taken in the
// match, and returns the stored row either way.
func (s *GormStore) AddPlayer(ctx context.Context, matchID uint, nickname string) (*models.Player, error) {
	db := s.db.WithContext(ctx)

	p := models.Player{MatchID: matchID, Nickname: nickname, JoinedAt: time.Now()}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "match_id"}, {Name: "nickname"}},
		DoNothing: true,
	}).Create(&p).Error
	if err != nil {
		return nil, err
	}

	return s.PlayerByNickname(ctx, matchID, nickname)
}

func (s *GormStore) Players(ctx context.Context, matchID uint) ([]models.Player, error) {
	var players []models.Player
	err := s.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("joined_at ASC, id ASC").
		Find(&players).Error
	return players, err
}

func (s *GormStore) PlayerByNickname(ctx context.Context, matchID uint, nickname string) (*models.Player, error) {
	var p models.Player
	err := s.db.WithContext(ctx).Where("match_id = ? AND nickname = ?", matchID, nickname).First(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// MaterializeRounds inserts n rounds for the match unless it already has
// some. The count and the insert run in one transaction under the engine's
// match lock; the (match_id, round_no) unique index turns any remaining race
// into a no-op for the loser. It reports whether this call created the rounds.
func (s *GormStore) MaterializeRounds(ctx context.Context, matchID uint, n int, sample SampleFunc) (bool, error) {
	created := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockMatch(tx, matchID); err != nil {
			return notFound(err)
		}

		var count int64
		if err := tx.Model(&models.Round{}).Where("match_id = ?", matchID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		places, err := sample(n)
		if err != nil {
			return err
		}
		if len(places) == 0 {
			return nil
		}

		now := time.Now()
		rounds := make([]models.Round, len(places))
		for i, p := range places {
			rounds[i] = models.Round{
				MatchID:     matchID,
				RoundNo:     i + 1,
				PlaceID:     p.ID,
				Clue:        p.Clue(),
				DisplayName: p.Label(),
				Address:     p.Address(),
				Lat:         p.Lat,
				Lon:         p.Lon,
				StartedAt:   now,
			}
		}
		if err := tx.Create(&rounds).Error; err != nil {
			return err
		}

		created = true
		return nil
	})

	if isUniqueViolation(err) {
		return false, nil
	}
	return created, err
}

func (s *GormStore) RoundByNo(ctx context.Context, matchID uint, roundNo int) (*models.Round, error) {
	var r models.Round
	err := s.db.WithContext(ctx).Where("match_id = ? AND round_no = ?", matchID, roundNo).First(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// RoundCount returns how many rounds have been materialized for the match.
func (s *GormStore) RoundCount(ctx context.Context, matchID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Round{}).Where("match_id = ?", matchID).Count(&count).Error
	return count, err
}

// UpsertGuess writes the guess, replacing any earlier one by the same player
// for the same round in a single statement.
func (s *GormStore) UpsertGuess(ctx context.Context, g *models.Guess) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "round_id"}, {Name: "player_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"guess_lat", "guess_lon", "distance_m", "timed_out", "created_at",
		}),
	}).Create(g).Error
}

func (s *GormStore) RoundLeaderboard(ctx context.Context, roundID uint) ([]RoundEntry, error) {
	entries := []RoundEntry{}
	err := s.db.WithContext(ctx).
		Table("guesses AS g").
		Select("p.nickname AS nickname, g.distance_m AS distance_m, g.timed_out AS timed_out").
		Joins("JOIN players AS p ON p.id = g.player_id").
		Where("g.round_id = ?", roundID).
		Order("g.distance_m ASC, g.id ASC").
		Scan(&entries).Error
	return entries, err
}

// FinalLeaderboard sums each player's distances over the match. Players who
// never guessed stay in the standings with a zero total.
func (s *GormStore) FinalLeaderboard(ctx context.Context, matchID uint) ([]FinalEntry, error) {
	entries := []FinalEntry{}
	err := s.db.WithContext(ctx).
		Table("players AS p").
		Select("p.nickname AS nickname, COALESCE(SUM(g.distance_m), 0) AS total_m, COUNT(g.id) AS guess_count").
		Joins("LEFT JOIN guesses AS g ON g.player_id = p.id AND g.match_id = p.match_id").
		Where("p.match_id = ?", matchID).
		Group("p.id, p.nickname").
		Order("total_m ASC, p.id ASC").
		Scan(&entries).Error
	return entries, err
}

func (s *GormStore) SaveFeedback(ctx context.Context, f *models.Feedback) error {
	return s.db.WithContext(ctx).Create(f).Error
}

func (s *GormStore) ListFeedback(ctx context.Context) ([]models.Feedback, error) {
	items := []models.Feedback{}
	err := s.db.WithContext(ctx).Order("id DESC").Find(&items).Error
	return items, err
}

func (s *GormStore) SaveScore(ctx context.Context, sc *models.Score) error {
	return s.db.WithContext(ctx).Create(sc).Error
}

func (s *GormStore) TopScores(ctx context.Context, q ScoreQuery) ([]models.Score, error) {
	db := s.db.WithContext(ctx).Model(&models.Score{})
	if q.City != "" {
		db = db.Where("city = ?", q.City)
	}
	if q.Latest {
		db = db.Order("created_at DESC, id DESC")
	} else {
		db = db.Order("score ASC, id ASC")
	}

	items := []models.Score{}
	err := db.Limit(q.Limit).Find(&items).Error
	return items, err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
