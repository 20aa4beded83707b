// Package session implements the connection lifecycle: subscribe + initial
// snapshot + presence events on connect, keepalive acknowledgment, and
// idempotent disconnect handling.
package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/registry"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/interfaces"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/types"
)

// Manager handles connection open, keepalive and close for subscriber
// connections.
type Manager struct {
	registry       *registry.Registry
	store          interfaces.ScoreStore
	publisher      interfaces.EventPublisher
	snapshotSize   int64
	neighborWindow int64
	logger         *zap.SugaredLogger
}

// NewManager creates a session lifecycle manager. snapshotSize is the top-N
// window of the initial snapshot; neighborWindow is how many ranks on each
// side of the joining player it includes.
func NewManager(reg *registry.Registry, store interfaces.ScoreStore, publisher interfaces.EventPublisher, snapshotSize, neighborWindow int64, logger *zap.SugaredLogger) *Manager {
	if snapshotSize <= 0 {
		snapshotSize = 20
	}
	if neighborWindow <= 0 {
		neighborWindow = 2
	}
	return &Manager{
		registry:       reg,
		store:          store,
		publisher:      publisher,
		snapshotSize:   snapshotSize,
		neighborWindow: neighborWindow,
		logger:         logger,
	}
}

// Connect runs the open sequence for a new connection: register it (closing
// any superseded connection for the same player), send the initial snapshot
// to this connection only, then broadcast PlayerOnline to the channel.
func (m *Manager) Connect(ctx context.Context, leaderboardID, playerID string, conn interfaces.Connection) error {
	if err := m.registry.Subscribe(leaderboardID, playerID, conn); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	if err := m.sendSnapshot(ctx, leaderboardID, playerID, conn); err != nil {
		// A snapshot failure is connection-local: the subscription stands
		// and live events still flow.
		m.logger.Warnw("Initial snapshot failed",
			"leaderboard", leaderboardID, "player", playerID, "error", err)
	}

	event := types.NewGameEvent(types.EventPlayerOnline, leaderboardID, playerID,
		map[string]interface{}{"message": fmt.Sprintf("%s joined the game!", playerID)})
	if _, err := m.publisher.Publish(event); err != nil {
		m.logger.Warnw("PlayerOnline publish failed",
			"leaderboard", leaderboardID, "player", playerID, "error", err)
	}

	m.logger.Infow("Player connected", "leaderboard", leaderboardID, "player", playerID, "conn", conn.ID())
	return nil
}

// sendSnapshot sends the current top-N, the joining player's own rank and
// score, and a window of neighboring ranks, directly to the new connection.
func (m *Manager) sendSnapshot(ctx context.Context, leaderboardID, playerID string, conn interfaces.Connection) error {
	top, err := m.store.TopN(ctx, leaderboardID, m.snapshotSize)
	if err != nil {
		return err
	}

	snapshot := types.SnapshotMessage{
		Type:      types.MessageTypeSnapshot,
		Top:       top,
		Timestamp: time.Now(),
	}

	score, hasScore, err := m.store.Score(ctx, leaderboardID, playerID)
	if err != nil {
		return err
	}
	if hasScore {
		snapshot.SelfScore = score
		rank, ranked, err := m.store.Rank(ctx, leaderboardID, playerID)
		if err != nil {
			return err
		}
		if ranked {
			snapshot.SelfRank = &rank
		}
		neighbors, err := m.store.Neighbors(ctx, leaderboardID, playerID, m.neighborWindow)
		if err != nil {
			return err
		}
		snapshot.Neighbors = neighbors
	}

	return conn.WriteJSON(snapshot)
}

// Keepalive answers a client keepalive probe. Acknowledgments are not
// events and are never broadcast.
func (m *Manager) Keepalive(conn interfaces.Connection) error {
	return conn.WriteJSON(types.KeepaliveAck{
		Type:      types.MessageTypeKeepaliveAck,
		Timestamp: time.Now(),
	})
}

// HandleDisconnect runs the close sequence for a connection, whether the
// trigger was a transport close or a broadcast-detected send failure.
// Idempotent: the registry removal is the single decision point, so a
// connection already removed (superseded, or disconnected through the other
// trigger) produces no duplicate PlayerOffline.
func (m *Manager) HandleDisconnect(conn interfaces.Connection) {
	entry, removed := m.registry.Unsubscribe(conn)
	if !removed {
		_ = conn.Close()
		return
	}
	_ = conn.Close()

	event := types.NewGameEvent(types.EventPlayerOffline, entry.LeaderboardID, entry.PlayerID,
		map[string]interface{}{"message": fmt.Sprintf("%s left the game", entry.PlayerID)})
	if _, err := m.publisher.Publish(event); err != nil {
		m.logger.Warnw("PlayerOffline publish failed",
			"leaderboard", entry.LeaderboardID, "player", entry.PlayerID, "error", err)
	}

	m.logger.Infow("Player disconnected",
		"leaderboard", entry.LeaderboardID, "player", entry.PlayerID, "conn", conn.ID())
}
