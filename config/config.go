package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"geoguess/catalog"
	"geoguess/logger"
	"geoguess/services"
	"geoguess/store"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	gormlogger "gorm.io/gorm/logger"
)

type Config struct {
	Port        int
	BindAddress string
	PublicURL   string

	DatabaseURL string
	SQLitePath  string

	RedisHost     string
	RedisPort     int
	RedisPassword string

	DataDir   string
	StaticDir string
	LogLevel  string

	CodeDigits      int
	MinRounds       int
	MaxRounds       int
	DefaultRounds   int
	TimeoutPenaltyM int

	SoloRoundTTL  time.Duration
	MatchMaxAge   time.Duration
	SweepInterval time.Duration

	AllowedOrigins []string
}

// BindFlags registers every setting on fs. Each flag can also be set through
// the environment variable of the same name in upper snake case
// (--redis-host is REDIS_HOST); flags given on the command line win.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: PORT)")
	fs.StringVarP(&cfg.BindAddress, "bind-address", "b", "0.0.0.0", "address to bind to (env: BIND_ADDRESS)")
	fs.StringVar(&cfg.PublicURL, "public-url", "", "base URL encoded in join QR codes, defaults to the request host (env: PUBLIC_URL)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres DSN, sqlite is used when empty (env: DATABASE_URL)")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", "app.db", "path of the sqlite database (env: SQLITE_PATH)")
	fs.StringVar(&cfg.RedisHost, "redis-host", "localhost", "redis host (env: REDIS_HOST)")
	fs.IntVar(&cfg.RedisPort, "redis-port", 6379, "redis port (env: REDIS_PORT)")
	fs.StringVar(&cfg.RedisPassword, "redis-password", "", "redis password (env: REDIS_PASSWORD)")
	fs.StringVar(&cfg.DataDir, "data-dir", "data", "directory holding places_<city>.csv (env: DATA_DIR)")
	fs.StringVar(&cfg.StaticDir, "static-dir", "static", "directory served under /static (env: STATIC_DIR)")
	fs.StringVar(&cfg.LogLevel, "log-level", "INFO", "DEBUG, INFO, WARN or ERROR (env: LOG_LEVEL)")
	fs.IntVar(&cfg.CodeDigits, "code-digits", 3, "digits in a match code (env: CODE_DIGITS)")
	fs.IntVar(&cfg.MinRounds, "min-rounds", 1, "fewest rounds a match may have (env: MIN_ROUNDS)")
	fs.IntVar(&cfg.MaxRounds, "max-rounds", 20, "most rounds a match may have (env: MAX_ROUNDS)")
	fs.IntVar(&cfg.DefaultRounds, "default-rounds", 5, "rounds when the host does not choose (env: DEFAULT_ROUNDS)")
	fs.IntVar(&cfg.TimeoutPenaltyM, "timeout-penalty-m", 50000, "meters added to a timed-out guess (env: TIMEOUT_PENALTY_M)")
	fs.DurationVar(&cfg.SoloRoundTTL, "solo-round-ttl", 30*time.Minute, "how long a solo round can be answered (env: SOLO_ROUND_TTL)")
	fs.DurationVar(&cfg.MatchMaxAge, "match-max-age", 6*time.Hour, "age after which unfinished matches are finished, 0 disables (env: MATCH_MAX_AGE)")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", 10*time.Minute, "how often stale matches are swept (env: SWEEP_INTERVAL)")
	fs.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", []string{"*"}, "CORS origins (env: ALLOWED_ORIGINS)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.CodeDigits < 1 || c.CodeDigits > 9 {
		return fmt.Errorf("invalid code digits (must be between 1-9 inclusive): %d", c.CodeDigits)
	}
	if c.MinRounds < 1 {
		return fmt.Errorf("min rounds must be at least 1: %d", c.MinRounds)
	}
	if c.MinRounds > c.MaxRounds {
		return fmt.Errorf("min rounds %d is greater than max rounds %d", c.MinRounds, c.MaxRounds)
	}
	if c.DefaultRounds < c.MinRounds || c.DefaultRounds > c.MaxRounds {
		return fmt.Errorf("default rounds %d is outside %d-%d", c.DefaultRounds, c.MinRounds, c.MaxRounds)
	}
	if c.TimeoutPenaltyM < 0 {
		return fmt.Errorf("timeout penalty cannot be negative: %d", c.TimeoutPenaltyM)
	}
	if c.SoloRoundTTL <= 0 {
		return errors.New("solo round ttl must be positive")
	}
	if c.MatchMaxAge < 0 {
		return errors.New("match max age cannot be negative")
	}
	if c.MatchMaxAge > 0 && c.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive when match max age is set")
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.Port)
}

func (c *Config) MatchOptions() services.MatchOptions {
	return services.MatchOptions{
		MinRounds:       c.MinRounds,
		MaxRounds:       c.MaxRounds,
		DefaultRounds:   c.DefaultRounds,
		TimeoutPenaltyM: c.TimeoutPenaltyM,
	}
}

// InitStore opens postgres when a database URL is configured and the sqlite
// file otherwise.
func InitStore(cfg *Config) (*store.GormStore, error) {
	opts := store.Options{CodeDigits: cfg.CodeDigits}
	if logger.ParseLevel(cfg.LogLevel) == logger.DebugLevel {
		opts.LogLevel = gormlogger.Info
	}

	if cfg.DatabaseURL != "" {
		return store.NewPostgres(cfg.DatabaseURL, opts)
	}
	return store.NewSQLite(cfg.SQLitePath, opts)
}

func InitRedis(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})
}

func InitCatalog(cfg *Config) (*catalog.Catalog, error) {
	return catalog.Load(cfg.DataDir, catalog.DefaultFiles)
}
