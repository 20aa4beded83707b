package types

import (
	"time"

	"github.com/google/uuid"
)

// Event type constants as delivered on the wire in the "type" field.
// Every state transition detected by the engine maps to exactly one of these.
const (
	EventScoreUpdate         = "score_update"
	EventRankChange          = "rank_change"
	EventNewPlayer           = "new_player"
	EventAchievement         = "achievement"
	EventLeaderboardSnapshot = "leaderboard_snapshot"
	EventPlayerOnline        = "player_online"
	EventPlayerOffline       = "player_offline"
)

// Inbound client message types and the non-event outbound frame types.
const (
	MessageTypeScoreDelta   = "score_delta"
	MessageTypeKeepalive    = "keepalive"
	MessageTypeKeepaliveAck = "keepalive_ack"
	MessageTypeSnapshot     = "snapshot"
	MessageTypeError        = "error"
)

// Close code sent to a connection that is replaced by a newer connection
// for the same (leaderboard, player). 4000-4999 is the application range.
const (
	CloseCodeSuperseded   = 4001
	CloseReasonSuperseded = "superseded by newer connection"
)

// GameEvent is a single state transition on a leaderboard channel.
// Immutable once constructed; produced by exactly one detector component
// and consumed by the broadcast engine.
type GameEvent struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	LeaderboardID string                 `json:"leaderboard_id"`
	PlayerID      string                 `json:"player_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
}

// NewGameEvent builds an event with a server-generated ID and timestamp.
// Server controls event IDs so downstream consumers can deduplicate.
func NewGameEvent(eventType, leaderboardID, playerID string, payload map[string]interface{}) *GameEvent {
	return &GameEvent{
		ID:            uuid.New().String(),
		Type:          eventType,
		LeaderboardID: leaderboardID,
		PlayerID:      playerID,
		Payload:       payload,
		Timestamp:     time.Now(),
	}
}

// RankedEntry is one row of a leaderboard reading: a player, their score,
// and their 1-indexed rank (rank 1 = highest score).
type RankedEntry struct {
	PlayerID string `json:"player_id"`
	Score    int64  `json:"score"`
	Rank     int64  `json:"rank"`
}

// DeltaResult captures the before/after state of one score mutation along
// with every event the mutation produced, in emission order.
type DeltaResult struct {
	LeaderboardID string       `json:"leaderboard_id"`
	PlayerID      string       `json:"player_id"`
	Delta         int64        `json:"delta"`
	OldScore      int64        `json:"old_score"`
	NewScore      int64        `json:"new_score"`
	OldRank       int64        `json:"old_rank,omitempty"`
	NewRank       int64        `json:"new_rank"`
	WasRanked     bool         `json:"was_ranked"`
	Events        []*GameEvent `json:"-"`
}

// DeliveryReport summarizes one broadcast fanout pass.
type DeliveryReport struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// ClientMessage is the envelope for inbound WebSocket messages.
type ClientMessage struct {
	Type   string `json:"type"`
	Amount int64  `json:"amount,omitempty"`
}

// KeepaliveAck answers a client keepalive probe. Not an event.
type KeepaliveAck struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotMessage is sent once to a newly subscribed connection: the current
// top of the board, the joining player's own position, and a window of
// neighboring ranks. SelfRank is nil when the player has no score yet.
type SnapshotMessage struct {
	Type      string        `json:"type"`
	Top       []RankedEntry `json:"top"`
	SelfRank  *int64        `json:"self_rank"`
	SelfScore int64         `json:"self_score"`
	Neighbors []RankedEntry `json:"neighbors"`
	Timestamp time.Time     `json:"timestamp"`
}

// ErrorMessage reports a connection-local failure (bad frame, rate limit)
// back to the offending client without disconnecting it.
type ErrorMessage struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
