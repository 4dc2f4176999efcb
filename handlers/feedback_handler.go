package handlers

import (
	"net/http"
	"strconv"

	"geoguess/services"

	"github.com/gin-gonic/gin"
)

const defaultLeaderboardLimit = 50

type FeedbackHandler struct {
	feedbackService *services.FeedbackService
	scoreService    *services.ScoreService
}

func NewFeedbackHandler(feedbackService *services.FeedbackService, scoreService *services.ScoreService) *FeedbackHandler {
	return &FeedbackHandler{
		feedbackService: feedbackService,
		scoreService:    scoreService,
	}
}

func (h *FeedbackHandler) SubmitFeedback(c *gin.Context) {
	var req services.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if _, err := h.feedbackService.Submit(c.Request.Context(), &req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *FeedbackHandler) ListFeedback(c *gin.Context) {
	items, err := h.feedbackService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"feedbacks": items})
}

func (h *FeedbackHandler) SubmitScore(c *gin.Context) {
	var req services.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if _, err := h.scoreService.Submit(c.Request.Context(), &req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *FeedbackHandler) GetLeaderboard(c *gin.Context) {
	limit := defaultLeaderboardLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number", "kind": "validation"})
			return
		}
		limit = n
	}

	items, err := h.scoreService.Top(c.Request.Context(), limit, c.DefaultQuery("order", "best"), c.Query("city"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}
