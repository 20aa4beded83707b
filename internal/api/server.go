// Package api exposes the REST surface: score submission, leaderboard
// queries, player queries and health. No business logic lives here, only
// HTTP handling and JSON serialization.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/interfaces"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/types"
)

// ScoreService applies a score mutation and broadcasts the resulting events.
type ScoreService interface {
	SubmitDelta(ctx context.Context, leaderboardID, playerID string, delta int64) (*types.DeltaResult, error)
}

// Registry is the slice of the connection registry the stats endpoint uses.
type Registry interface {
	Stats() map[string]int
}

// Pinger reports backing-store connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server routes REST requests to the scoring service and the score store.
type Server struct {
	scores   ScoreService
	store    interfaces.ScoreStore
	registry Registry
	pinger   Pinger
	router   *http.ServeMux
	logger   *zap.SugaredLogger
}

// NewServer wires the REST surface. All dependencies are interfaces so
// handlers can be tested against fakes.
func NewServer(scores ScoreService, store interfaces.ScoreStore, reg Registry, pinger Pinger, logger *zap.SugaredLogger) *Server {
	s := &Server{
		scores:   scores,
		store:    store,
		registry: reg,
		pinger:   pinger,
		router:   http.NewServeMux(),
		logger:   logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.route("POST /api/leaderboards/{leaderboard}/players/{player}/score", s.submitScore)
	s.route("GET /api/leaderboards/{leaderboard}/players/{player}", s.getPlayer)
	s.route("DELETE /api/leaderboards/{leaderboard}/players/{player}", s.removePlayer)
	s.route("GET /api/leaderboards/{leaderboard}/top", s.getTop)
	s.route("GET /api/leaderboards/{leaderboard}/range", s.getScoreRange)
	s.route("GET /api/leaderboards/{leaderboard}/stats", s.getStats)
	s.route("GET /health", s.healthCheck)
	s.route("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func (s *Server) route(pattern string, h http.HandlerFunc) {
	s.router.Handle(pattern, s.corsMiddleware(s.jsonMiddleware(h)))
}

// ServeHTTP implements http.Handler for integration with the standard HTTP
// server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Request/Response types for JSON serialization
type SubmitScoreRequest struct {
	Amount int64 `json:"amount"`
}

type SubmitScoreResponse struct {
	LeaderboardID string `json:"leaderboard_id"`
	PlayerID      string `json:"player_id"`
	OldScore      int64  `json:"old_score"`
	NewScore      int64  `json:"new_score"`
	Rank          int64  `json:"rank"`
	Events        int    `json:"events"`
}

type PlayerResponse struct {
	PlayerID    string `json:"player_id"`
	Score       int64  `json:"score"`
	Rank        *int64 `json:"rank"`
	GamesPlayed int64  `json:"games_played"`
}

type TopResponse struct {
	LeaderboardID string              `json:"leaderboard_id"`
	Entries       []types.RankedEntry `json:"entries"`
}

type StatsResponse struct {
	LeaderboardID string         `json:"leaderboard_id"`
	Players       int64          `json:"players"`
	Connections   map[string]int `json:"connections"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Store     string    `json:"store"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// pathIDs validates the {leaderboard} and {player} path segments. Responds
// with 400 and returns ok=false on invalid input.
func (s *Server) pathIDs(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	leaderboardID := r.PathValue("leaderboard")
	if !types.IsValidLeaderboardID(leaderboardID) {
		s.sendError(w, "Invalid leaderboard ID", http.StatusBadRequest)
		return "", "", false
	}
	playerID := r.PathValue("player")
	if !types.IsValidPlayerID(playerID) {
		s.sendError(w, "Invalid player ID", http.StatusBadRequest)
		return "", "", false
	}
	return leaderboardID, playerID, true
}

// submitScore handles POST /api/leaderboards/{leaderboard}/players/{player}/score.
// It runs the same pipeline as a websocket score_delta: mutate, detect,
// broadcast.
func (s *Server) submitScore(w http.ResponseWriter, r *http.Request) {
	leaderboardID, playerID, ok := s.pathIDs(w, r)
	if !ok {
		return
	}

	var req SubmitScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Amount == 0 {
		s.sendError(w, "Amount must be non-zero", http.StatusBadRequest)
		return
	}

	result, err := s.scores.SubmitDelta(r.Context(), leaderboardID, playerID, req.Amount)
	if err != nil {
		s.logger.Errorw("Score submit failed",
			"leaderboard", leaderboardID, "player", playerID, "error", err)
		s.sendError(w, "Failed to apply score", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(SubmitScoreResponse{
		LeaderboardID: result.LeaderboardID,
		PlayerID:      result.PlayerID,
		OldScore:      result.OldScore,
		NewScore:      result.NewScore,
		Rank:          result.NewRank,
		Events:        len(result.Events),
	})
}

// getPlayer handles GET /api/leaderboards/{leaderboard}/players/{player}.
func (s *Server) getPlayer(w http.ResponseWriter, r *http.Request) {
	leaderboardID, playerID, ok := s.pathIDs(w, r)
	if !ok {
		return
	}

	score, present, err := s.store.Score(r.Context(), leaderboardID, playerID)
	if err != nil {
		s.sendError(w, "Failed to read player", http.StatusInternalServerError)
		return
	}
	if !present {
		s.sendError(w, "Player not found", http.StatusNotFound)
		return
	}

	resp := PlayerResponse{PlayerID: playerID, Score: score}
	if rank, ranked, err := s.store.Rank(r.Context(), leaderboardID, playerID); err == nil && ranked {
		resp.Rank = &rank
	}
	if games, err := s.store.GamesPlayed(r.Context(), leaderboardID, playerID); err == nil {
		resp.GamesPlayed = games
	}

	json.NewEncoder(w).Encode(resp)
}

// removePlayer handles DELETE /api/leaderboards/{leaderboard}/players/{player}.
func (s *Server) removePlayer(w http.ResponseWriter, r *http.Request) {
	leaderboardID, playerID, ok := s.pathIDs(w, r)
	if !ok {
		return
	}

	removed, err := s.store.RemovePlayer(r.Context(), leaderboardID, playerID)
	if err != nil {
		s.sendError(w, "Failed to remove player", http.StatusInternalServerError)
		return
	}
	if !removed {
		s.sendError(w, "Player not found", http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Player removed"})
}

// getTop handles GET /api/leaderboards/{leaderboard}/top?limit=N.
func (s *Server) getTop(w http.ResponseWriter, r *http.Request) {
	leaderboardID := r.PathValue("leaderboard")
	if !types.IsValidLeaderboardID(leaderboardID) {
		s.sendError(w, "Invalid leaderboard ID", http.StatusBadRequest)
		return
	}

	limit := int64(10)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 || parsed > 100 {
			s.sendError(w, "Limit must be between 1 and 100", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	entries, err := s.store.TopN(r.Context(), leaderboardID, limit)
	if err != nil {
		s.sendError(w, "Failed to read leaderboard", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(TopResponse{LeaderboardID: leaderboardID, Entries: entries})
}

// getScoreRange handles GET /api/leaderboards/{leaderboard}/range?min=&max=.
func (s *Server) getScoreRange(w http.ResponseWriter, r *http.Request) {
	leaderboardID := r.PathValue("leaderboard")
	if !types.IsValidLeaderboardID(leaderboardID) {
		s.sendError(w, "Invalid leaderboard ID", http.StatusBadRequest)
		return
	}

	min, errMin := strconv.ParseInt(r.URL.Query().Get("min"), 10, 64)
	max, errMax := strconv.ParseInt(r.URL.Query().Get("max"), 10, 64)
	if err := errors.Join(errMin, errMax); err != nil || min > max {
		s.sendError(w, "min and max must be integers with min <= max", http.StatusBadRequest)
		return
	}

	entries, err := s.store.ScoreRange(r.Context(), leaderboardID, min, max)
	if err != nil {
		s.sendError(w, "Failed to read leaderboard", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(TopResponse{LeaderboardID: leaderboardID, Entries: entries})
}

// getStats handles GET /api/leaderboards/{leaderboard}/stats.
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	leaderboardID := r.PathValue("leaderboard")
	if !types.IsValidLeaderboardID(leaderboardID) {
		s.sendError(w, "Invalid leaderboard ID", http.StatusBadRequest)
		return
	}

	players, err := s.store.Size(r.Context(), leaderboardID)
	if err != nil {
		s.sendError(w, "Failed to read leaderboard", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(StatsResponse{
		LeaderboardID: leaderboardID,
		Players:       players,
		Connections:   s.registry.Stats(),
	})
}

// healthCheck handles GET /health. Returns 503 when the backing store is
// unreachable.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, storeStatus := "healthy", "healthy"
	if err := s.pinger.Ping(ctx); err != nil {
		status = "unhealthy"
		storeStatus = err.Error()
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Store:     storeStatus,
	})
}

// sendError writes the consistent error envelope.
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
