package routes

import (
	"net/http"
	"os"
	"path/filepath"

	"geoguess/handlers"
	"geoguess/middleware"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Match    *handlers.MatchHandler
	Solo     *handlers.SoloHandler
	Feedback *handlers.FeedbackHandler
	Health   *handlers.HealthHandler
}

func SetupRoutes(router *gin.Engine, h Handlers, allowedOrigins []string, staticDir string) {
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(allowedOrigins))

	api := router.Group("/api")
	{
		match := api.Group("/match")
		{
			match.POST("/create", h.Match.CreateMatch)
			match.POST("/join", h.Match.JoinMatch)
			match.GET("/lobby", h.Match.GetLobby)
			match.POST("/start", h.Match.StartMatch)
			match.GET("/round", h.Match.GetRound)
			match.POST("/guess", h.Match.SubmitGuess)
			match.GET("/round_result", h.Match.GetRoundResult)
			match.GET("/final", h.Match.GetFinal)
			match.GET("/qr", h.Match.GetQRCode)
		}

		api.GET("/cities", h.Solo.GetCities)
		api.GET("/round", h.Solo.NewRound)
		api.POST("/guess/map", h.Solo.SubmitGuess)

		api.POST("/feedback", h.Feedback.SubmitFeedback)
		api.GET("/feedbacks", h.Feedback.ListFeedback)
		api.POST("/leaderboard", h.Feedback.SubmitScore)
		api.GET("/leaderboard", h.Feedback.GetLeaderboard)
	}

	router.GET("/ping", h.Health.Ping)
	router.GET("/health", h.Health.Health)

	if staticDir == "" {
		return
	}
	if info, err := os.Stat(staticDir); err != nil || !info.IsDir() {
		return
	}
	router.Static("/static", staticDir)

	index := filepath.Join(staticDir, "index.html")
	router.GET("/", func(c *gin.Context) {
		if _, err := os.Stat(index); err != nil {
			c.String(http.StatusNotFound, "index.html is missing from %s", staticDir)
			return
		}
		c.File(index)
	})
}
