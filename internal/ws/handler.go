package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/interfaces"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/types"
)

// SessionManager is the slice of the session lifecycle manager the handler
// depends on. Declared here so the handler can be tested with a mock.
type SessionManager interface {
	Connect(ctx context.Context, leaderboardID, playerID string, conn interfaces.Connection) error
	HandleDisconnect(conn interfaces.Connection)
	Keepalive(conn interfaces.Connection) error
}

// ScoreService applies a score mutation and broadcasts the resulting events.
type ScoreService interface {
	SubmitDelta(ctx context.Context, leaderboardID, playerID string, delta int64) (*types.DeltaResult, error)
}

// Options tunes per-connection transport behavior.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	SendBuffer   int
	RateLimit    int // score_delta messages per minute per connection
}

// DefaultOptions returns the transport defaults: 30s pings against a 60s
// read deadline, 100-frame send buffer, 120 deltas per minute.
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		SendBuffer:   100,
		RateLimit:    120,
	}
}

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		// Connections are unauthenticated; origin checking belongs to
		// whatever fronts this service.
		return true
	},
}

// Handler upgrades subscriber connections and runs their receive loops.
type Handler struct {
	sessions SessionManager
	scores   ScoreService
	limiter  *RateLimiter
	opts     Options
	logger   *zap.SugaredLogger
}

// NewHandler creates a WebSocket handler. Zero option fields fall back to
// their defaults individually, so callers can override just the fields they
// care about.
func NewHandler(sessions SessionManager, scores ScoreService, opts Options, logger *zap.SugaredLogger) *Handler {
	defaults := DefaultOptions()
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaults.PingInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaults.ReadTimeout
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaults.SendBuffer
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaults.RateLimit
	}
	return &Handler{
		sessions: sessions,
		scores:   scores,
		limiter:  NewRateLimiter(opts.RateLimit),
		opts:     opts,
		logger:   logger,
	}
}

// HandleWebSocket serves GET /ws/{leaderboard}/{player}: validate, upgrade,
// hand the connection to the session lifecycle manager, then run the
// receive loop until the transport closes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	leaderboardID := r.PathValue("leaderboard")
	playerID := r.PathValue("player")

	if !types.IsValidLeaderboardID(leaderboardID) {
		http.Error(w, "Invalid leaderboard ID", http.StatusBadRequest)
		return
	}
	if !types.IsValidPlayerID(playerID) {
		http.Error(w, "Invalid player ID", http.StatusBadRequest)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("WebSocket upgrade failed", "error", err)
		return
	}

	conn := NewConnection(wsConn, h.opts.SendBuffer)

	// Subscribe + snapshot + PlayerOnline happen before the receive loop so
	// the client's first frames arrive in a deterministic order.
	if err := h.sessions.Connect(r.Context(), leaderboardID, playerID, conn); err != nil {
		h.logger.Errorw("Connection setup failed",
			"leaderboard", leaderboardID, "player", playerID, "error", err)
		_ = conn.Close()
		return
	}

	go h.readLoop(conn, leaderboardID, playerID)
}

// readLoop processes inbound frames for one connection until the transport
// closes, then runs idempotent disconnect handling.
func (h *Handler) readLoop(conn *Connection, leaderboardID, playerID string) {
	defer func() {
		h.limiter.Forget(conn.ID())
		h.sessions.HandleDisconnect(conn)
	}()

	// Protocol-level heartbeat: ping every PingInterval, and require some
	// traffic (pong or a frame) within ReadTimeout.
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warnw("WebSocket read error",
					"leaderboard", leaderboardID, "player", playerID, "error", err)
			}
			return
		}
		if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		h.handleMessage(conn, leaderboardID, playerID, data)
	}
}

// handleMessage dispatches one inbound frame. Failures are connection-local:
// the client gets an error frame and the loop keeps running.
func (h *Handler) handleMessage(conn *Connection, leaderboardID, playerID string, data []byte) {
	var msg types.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.sendError(conn, "malformed message")
		return
	}

	switch msg.Type {
	case types.MessageTypeKeepalive:
		if err := h.sessions.Keepalive(conn); err != nil {
			h.logger.Warnw("Keepalive ack failed", "player", playerID, "error", err)
		}

	case types.MessageTypeScoreDelta:
		if !h.limiter.Allow(conn.ID()) {
			h.sendError(conn, "rate limit exceeded")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := h.scores.SubmitDelta(ctx, leaderboardID, playerID, msg.Amount); err != nil {
			h.logger.Errorw("Score delta failed",
				"leaderboard", leaderboardID, "player", playerID, "delta", msg.Amount, "error", err)
			h.sendError(conn, "score update not applied")
		}

	default:
		h.sendError(conn, "unknown message type")
	}
}

func (h *Handler) sendError(conn *Connection, message string) {
	frame := types.ErrorMessage{
		Type:      types.MessageTypeError,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err := conn.WriteJSON(frame); err != nil {
		h.logger.Warnw("Failed to send error frame", "conn", conn.ID(), "error", err)
	}
}
