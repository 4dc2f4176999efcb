package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"geoguess/catalog"
	"geoguess/services"
	"geoguess/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	st, err := store.NewSQLite(":memory:", store.Options{})
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cat := catalog.New(map[string][]catalog.Place{
		"stockholm": {
			{ID: "1", DisplayName: "Stadshuset", Street: "Hantverkargatan 1", Town: "Stockholm", Lat: 59.3275, Lon: 18.0543},
			{ID: "2", DisplayName: "Globen", Lat: 59.2936, Lon: 18.0831},
		},
	})

	match := NewMatchHandler(services.NewMatchService(st, cat, services.DefaultMatchOptions()), "https://play.example")
	solo := NewSoloHandler(services.NewSoloService(cat, services.NewRedisRoundCache(client, time.Minute)))
	feedback := NewFeedbackHandler(services.NewFeedbackService(st), services.NewScoreService(st, cat))
	health := NewHealthHandler(st.Engine(), map[string]Check{
		"database": st.Ping,
		"broken":   func(context.Context) error { return errors.New("down") },
	})

	r := gin.New()
	r.POST("/api/match/create", match.CreateMatch)
	r.POST("/api/match/join", match.JoinMatch)
	r.GET("/api/match/lobby", match.GetLobby)
	r.POST("/api/match/start", match.StartMatch)
	r.GET("/api/match/round", match.GetRound)
	r.POST("/api/match/guess", match.SubmitGuess)
	r.GET("/api/match/round_result", match.GetRoundResult)
	r.GET("/api/match/final", match.GetFinal)
	r.GET("/api/match/qr", match.GetQRCode)
	r.GET("/api/cities", solo.GetCities)
	r.GET("/api/round", solo.NewRound)
	r.POST("/api/guess/map", solo.SubmitGuess)
	r.POST("/api/feedback", feedback.SubmitFeedback)
	r.GET("/api/feedbacks", feedback.ListFeedback)
	r.POST("/api/leaderboard", feedback.SubmitScore)
	r.GET("/api/leaderboard", feedback.GetLeaderboard)
	r.GET("/ping", health.Ping)
	r.GET("/health", health.Health)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()

	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func createMatch(t *testing.T, r *gin.Engine, rounds int) string {
	t.Helper()

	w := do(t, r, http.MethodPost, "/api/match/create", gin.H{"host_name": "Alice", "city": "Stockholm", "rounds": rounds})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var res struct {
		Code string `json:"code"`
	}
	decode(t, w, &res)
	return res.Code
}

func TestMatchEndpoints(t *testing.T) {
	r := newTestRouter(t)
	code := createMatch(t, r, 2)

	if w := do(t, r, http.MethodPost, "/api/match/join", gin.H{"code": code, "nickname": "Bob"}); w.Code != http.StatusOK {
		t.Fatalf("join: %d %s", w.Code, w.Body.String())
	}

	w := do(t, r, http.MethodGet, "/api/match/lobby?code="+code, nil)
	var lobby struct {
		Status  string   `json:"status"`
		Players []string `json:"players"`
	}
	decode(t, w, &lobby)
	if lobby.Status != "lobby" || len(lobby.Players) != 2 {
		t.Errorf("lobby = %+v", lobby)
	}

	if w := do(t, r, http.MethodPost, "/api/match/start", gin.H{"code": code}); w.Code != http.StatusOK {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodGet, "/api/match/round?code="+code+"&round_no=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("round: %d %s", w.Code, w.Body.String())
	}
	var round struct {
		Round struct {
			Clue string  `json:"clue"`
			Lat  float64 `json:"lat"`
			Lon  float64 `json:"lon"`
		} `json:"round"`
	}
	decode(t, w, &round)

	w = do(t, r, http.MethodPost, "/api/match/guess?round_no=1", gin.H{
		"code": code, "nickname": "Bob", "lat": round.Round.Lat, "lon": round.Round.Lon, "penalty_m": 1,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("guess: %d %s", w.Code, w.Body.String())
	}
	var guess struct {
		DistanceM int `json:"distance_m"`
	}
	decode(t, w, &guess)
	if guess.DistanceM != 0 {
		t.Errorf("distance = %d, want 0", guess.DistanceM)
	}

	w = do(t, r, http.MethodGet, "/api/match/round_result?code="+code+"&round_no=1", nil)
	var result struct {
		Solution    struct{ Lat, Lon float64 } `json:"solution"`
		Leaderboard []struct {
			Nickname  string `json:"nickname"`
			DistanceM int    `json:"distance_m"`
		} `json:"leaderboard"`
	}
	decode(t, w, &result)
	if len(result.Leaderboard) != 1 || result.Leaderboard[0].Nickname != "Bob" {
		t.Errorf("round result = %+v", result)
	}

	w = do(t, r, http.MethodGet, "/api/match/final?code="+code, nil)
	var final struct {
		Status string `json:"status"`
		Final  []struct {
			Nickname string `json:"nickname"`
			TotalM   int    `json:"total_m"`
		} `json:"final"`
	}
	decode(t, w, &final)
	if final.Status != "finished" || len(final.Final) != 2 {
		t.Errorf("final = %+v", final)
	}
}

func TestMatchErrorStatus(t *testing.T) {
	r := newTestRouter(t)
	code := createMatch(t, r, 1)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   string
	}{
		{"unknown city", http.MethodPost, "/api/match/create", gin.H{"host_name": "A", "city": "Oslo"}, http.StatusBadRequest, "validation"},
		{"rounds out of range", http.MethodPost, "/api/match/create", gin.H{"host_name": "A", "city": "stockholm", "rounds": 99}, http.StatusBadRequest, "validation"},
		{"missing host", http.MethodPost, "/api/match/create", gin.H{"city": "stockholm"}, http.StatusBadRequest, "validation"},
		{"unknown match", http.MethodGet, "/api/match/lobby?code=999999", nil, http.StatusNotFound, "not_found"},
		{"round before start", http.MethodGet, "/api/match/round?code=" + code + "&round_no=1", nil, http.StatusNotFound, "not_found"},
		{"bad round number", http.MethodGet, "/api/match/round?code=" + code + "&round_no=abc", nil, http.StatusNotFound, "not_found"},
		{"missing round_no", http.MethodGet, "/api/match/round?code=" + code, nil, http.StatusNotFound, "not_found"},
		{"missing round_no for result", http.MethodGet, "/api/match/round_result?code=" + code, nil, http.StatusNotFound, "not_found"},
		{"guess in lobby", http.MethodPost, "/api/match/guess?round_no=1", gin.H{"code": code, "nickname": "Alice", "lat": 59.3, "lon": 18.0}, http.StatusConflict, "invalid_state"},
		{"final in lobby", http.MethodGet, "/api/match/final?code=" + code, nil, http.StatusConflict, "invalid_state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			var body struct {
				Error string `json:"error"`
				Kind  string `json:"kind"`
			}
			decode(t, w, &body)
			if body.Kind != tt.kind || body.Error == "" {
				t.Errorf("body = %+v, want kind %s", body, tt.kind)
			}
		})
	}
}

func TestRoundNumberNotFoundWhenStarted(t *testing.T) {
	r := newTestRouter(t)
	code := createMatch(t, r, 1)
	if w := do(t, r, http.MethodPost, "/api/match/start", gin.H{"code": code}); w.Code != http.StatusOK {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}

	paths := []string{
		"/api/match/round?code=" + code,
		"/api/match/round?code=" + code + "&round_no=",
		"/api/match/round?code=" + code + "&round_no=abc",
		"/api/match/round?code=" + code + "&round_no=0",
		"/api/match/round?code=" + code + "&round_no=2",
		"/api/match/round_result?code=" + code,
		"/api/match/round_result?code=" + code + "&round_no=x1",
	}
	for _, path := range paths {
		w := do(t, r, http.MethodGet, path, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404 (%s)", path, w.Code, w.Body.String())
			continue
		}
		var body struct {
			Kind string `json:"kind"`
		}
		decode(t, w, &body)
		if body.Kind != "not_found" {
			t.Errorf("%s: kind = %q, want not_found", path, body.Kind)
		}
	}

	if w := do(t, r, http.MethodGet, "/api/match/round?code="+code+"&round_no=1", nil); w.Code != http.StatusOK {
		t.Fatalf("round 1: %d %s", w.Code, w.Body.String())
	}

	w := do(t, r, http.MethodPost, "/api/match/guess?round_no=abc", gin.H{"code": code, "nickname": "Alice", "lat": 59.3, "lon": 18.0})
	if w.Code != http.StatusNotFound {
		t.Errorf("guess with bad round_no: status = %d, want 404 (%s)", w.Code, w.Body.String())
	}
}

func TestQRCode(t *testing.T) {
	r := newTestRouter(t)
	code := createMatch(t, r, 1)

	w := do(t, r, http.MethodGet, "/api/match/qr?code="+code, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("qr: %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}

	if w := do(t, r, http.MethodGet, "/api/match/qr?code=000000", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown match: status = %d", w.Code)
	}
}

func TestSoloEndpoints(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/api/cities", nil)
	var cities struct {
		Cities []catalog.City `json:"cities"`
	}
	decode(t, w, &cities)
	if len(cities.Cities) != 1 || cities.Cities[0].Key != "stockholm" {
		t.Errorf("cities = %+v", cities)
	}

	w = do(t, r, http.MethodGet, "/api/round?city=stockholm", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("round: %d %s", w.Code, w.Body.String())
	}
	var round struct {
		Place struct {
			ID  string  `json:"id"`
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"place"`
	}
	decode(t, w, &round)

	w = do(t, r, http.MethodPost, "/api/guess/map", gin.H{"place_id": round.Place.ID, "lat": round.Place.Lat, "lon": round.Place.Lon})
	if w.Code != http.StatusOK {
		t.Fatalf("guess: %d %s", w.Code, w.Body.String())
	}
	var guess struct {
		Score int `json:"score"`
	}
	decode(t, w, &guess)
	if guess.Score != 0 {
		t.Errorf("score = %d, want 0", guess.Score)
	}

	if w := do(t, r, http.MethodPost, "/api/guess/map", gin.H{"place_id": round.Place.ID, "lat": 59.0, "lon": 18.0}); w.Code != http.StatusNotFound {
		t.Errorf("reused token: status = %d, want 404", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/api/round?city=lund", nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown city: status = %d, want 400", w.Code)
	}
}

func TestFeedbackAndLeaderboard(t *testing.T) {
	r := newTestRouter(t)

	if w := do(t, r, http.MethodPost, "/api/feedback", gin.H{"message": ""}); w.Code != http.StatusBadRequest {
		t.Errorf("empty feedback: status = %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/api/feedback", gin.H{"name": "Ada", "message": "Fun"}); w.Code != http.StatusOK {
		t.Errorf("feedback: %d %s", w.Code, w.Body.String())
	}

	w := do(t, r, http.MethodGet, "/api/feedbacks", nil)
	var fb struct {
		Feedbacks []struct {
			Message  string `json:"message"`
			Category string `json:"category"`
		} `json:"feedbacks"`
	}
	decode(t, w, &fb)
	if len(fb.Feedbacks) != 1 || fb.Feedbacks[0].Category != "Feedback" {
		t.Errorf("feedbacks = %+v", fb)
	}

	if w := do(t, r, http.MethodPost, "/api/leaderboard", gin.H{"score": 1500, "rounds": 5, "city": "stockholm"}); w.Code != http.StatusOK {
		t.Errorf("score: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodPost, "/api/leaderboard", gin.H{"score": -5, "rounds": 5}); w.Code != http.StatusBadRequest {
		t.Errorf("negative score: status = %d", w.Code)
	}

	w = do(t, r, http.MethodGet, "/api/leaderboard?city=Stockholm", nil)
	var lb struct {
		Items []struct {
			Name string `json:"name"`
			City string `json:"city"`
		} `json:"items"`
	}
	decode(t, w, &lb)
	if len(lb.Items) != 1 || lb.Items[0].Name != "Anon" || lb.Items[0].City != "Stockholm" {
		t.Errorf("leaderboard = %+v", lb)
	}

	if w := do(t, r, http.MethodGet, "/api/leaderboard?city=paris", nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown city: status = %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/api/leaderboard?limit=x", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)

	if w := do(t, r, http.MethodGet, "/ping", nil); w.Code != http.StatusOK {
		t.Errorf("ping: %d", w.Code)
	}

	w := do(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health: status = %d, want 503", w.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decode(t, w, &body)
	if body.Status != "degraded" || body.Checks["database"] != "ok" || body.Checks["broken"] != "down" {
		t.Errorf("health = %+v", body)
	}
}
