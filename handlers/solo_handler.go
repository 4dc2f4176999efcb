package handlers

import (
	"net/http"

	"geoguess/services"

	"github.com/gin-gonic/gin"
)

type SoloHandler struct {
	soloService *services.SoloService
}

func NewSoloHandler(soloService *services.SoloService) *SoloHandler {
	return &SoloHandler{soloService: soloService}
}

func (h *SoloHandler) GetCities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cities": h.soloService.Cities()})
}

func (h *SoloHandler) NewRound(c *gin.Context) {
	place, err := h.soloService.NewRound(c.Request.Context(), c.Query("city"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"place": place})
}

func (h *SoloHandler) SubmitGuess(c *gin.Context) {
	var req services.SoloGuessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.soloService.Guess(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
