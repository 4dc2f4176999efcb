package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"geoguess/services"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

type MatchHandler struct {
	matchService *services.MatchService
	publicURL    string
}

// NewMatchHandler creates the match endpoints. publicURL is the base of the
// join link in QR codes; the request host is used when it is empty.
func NewMatchHandler(matchService *services.MatchService, publicURL string) *MatchHandler {
	return &MatchHandler{
		matchService: matchService,
		publicURL:    strings.TrimSuffix(publicURL, "/"),
	}
}

func (h *MatchHandler) CreateMatch(c *gin.Context) {
	var req services.CreateMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	match, err := h.matchService.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"code": match.Code, "match": match})
}

func (h *MatchHandler) JoinMatch(c *gin.Context) {
	var req services.JoinMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	player, err := h.matchService.Join(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "player": player})
}

func (h *MatchHandler) GetLobby(c *gin.Context) {
	lobby, err := h.matchService.Lobby(c.Request.Context(), c.Query("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, lobby)
}

func (h *MatchHandler) StartMatch(c *gin.Context) {
	var req services.StartMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.matchService.Start(c.Request.Context(), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "status": res.Status, "rounds": res.Rounds})
}

func (h *MatchHandler) GetRound(c *gin.Context) {
	round, err := h.matchService.Round(c.Request.Context(), c.Query("code"), queryRoundNo(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"round": round})
}

// SubmitGuess takes the round number from the query string, falling back to
// the body.
func (h *MatchHandler) SubmitGuess(c *gin.Context) {
	var req services.GuessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if c.Query("round_no") != "" {
		req.RoundNo = queryRoundNo(c)
	}

	res, err := h.matchService.Guess(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *MatchHandler) GetRoundResult(c *gin.Context) {
	res, err := h.matchService.RoundResult(c.Request.Context(), c.Query("code"), queryRoundNo(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *MatchHandler) GetFinal(c *gin.Context) {
	res, err := h.matchService.Final(c.Request.Context(), c.Query("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// GetQRCode renders a PNG QR code linking to the join page of a match.
func (h *MatchHandler) GetQRCode(c *gin.Context) {
	lobby, err := h.matchService.Lobby(c.Request.Context(), c.Query("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	png, err := qrcode.Encode(h.joinURL(c, lobby.Code), qrcode.Medium, qrSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr generation failed", "kind": "internal"})
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

func (h *MatchHandler) joinURL(c *gin.Context, code string) string {
	base := h.publicURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + "/?code=" + url.QueryEscape(code)
}

// queryRoundNo reads round_no from the query string. A missing or malformed
// value names no round, so it comes back as 0 and the lookup reports not found.
func queryRoundNo(c *gin.Context) int {
	roundNo, err := strconv.Atoi(c.Query("round_no"))
	if err != nil {
		return 0
	}
	return roundNo
}
