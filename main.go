package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geoguess/config"
	"geoguess/handlers"
	"geoguess/logger"
	"geoguess/routes"
	"geoguess/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const releaseVersion = "1.0.0"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &config.Config{}
	if err := newCmd(cfg).ExecuteContext(ctx); err != nil {
		logger.Error("%v", err)
		stop()
		os.Exit(1)
	}
}

func newCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "geoguess",
		Short:   "Backend for the city geo-guessing game, solo and multiplayer.",
		Args:    cobra.NoArgs,
		Version: releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}

	config.BindFlags(cmd.PersistentFlags(), cfg)

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), cfg)
		},
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("geoguess v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func migrate(ctx context.Context, cfg *config.Config) error {
	st, err := config.InitStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info("Database schema is up to date (%s)", st.Engine())
	return nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	if logger.CurrentLevel() != logger.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	st, err := config.InitStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// Auto-migrate database models
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Load place catalog
	cat, err := config.InitCatalog(cfg)
	if err != nil {
		return fmt.Errorf("failed to load places: %w", err)
	}
	for _, city := range cat.Cities() {
		logger.Info("Loaded %d places for %s", cat.Len(city.Key), city.Name)
	}

	// Initialize Redis
	redisClient := config.InitRedis(cfg)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis is not reachable at %s:%d, solo rounds will fail: %v", cfg.RedisHost, cfg.RedisPort, err)
	}

	// Initialize services
	matchService := services.NewMatchService(st, cat, cfg.MatchOptions())
	soloService := services.NewSoloService(cat, services.NewRedisRoundCache(redisClient, cfg.SoloRoundTTL))
	feedbackService := services.NewFeedbackService(st)
	scoreService := services.NewScoreService(st, cat)

	// Start stale match sweeper
	if cfg.MatchMaxAge > 0 {
		sweeper := services.NewSweeper(st, cfg.MatchMaxAge, cfg.SweepInterval)
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("failed to start sweeper: %w", err)
		}
		defer sweeper.Stop()
	}

	// Setup Gin router and routes
	router := gin.New()
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, routes.Handlers{
		Match:    handlers.NewMatchHandler(matchService, cfg.PublicURL),
		Solo:     handlers.NewSoloHandler(soloService),
		Feedback: handlers.NewFeedbackHandler(feedbackService, scoreService),
		Health: handlers.NewHealthHandler(st.Engine(), map[string]handlers.Check{
			"database": st.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		}),
	}, cfg.AllowedOrigins, cfg.StaticDir)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting on %s (%s)", cfg.Addr(), st.Engine())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
