// Package registry tracks which subscriber connections are interested in
// which leaderboard channel and which player each connection represents.
// It is the only in-process mutable shared structure in the engine; all
// mutation goes through its single critical section.
package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/metrics"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/interfaces"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/types"
)

// Entry is the registry's record of one subscribed connection. Owned
// exclusively by the registry from subscribe until unsubscribe.
type Entry struct {
	Conn          interfaces.Connection
	LeaderboardID string
	PlayerID      string
	OpenedAt      time.Time
}

// Registry maintains two indexes over the same entries: by leaderboard
// channel (for fanout) and by connection handle (for idempotent
// unsubscribe). Both are updated together under one mutex so no observer
// ever sees one updated and not the other.
type Registry struct {
	mu        sync.Mutex
	byChannel map[string]map[string]*Entry // leaderboardID -> playerID -> entry
	byConn    map[string]*Entry            // connection ID -> entry
	logger    *zap.SugaredLogger
}

// NewRegistry creates an empty registry. All maps are initialized up front
// to prevent nil map access during concurrent operations.
func NewRegistry(logger *zap.SugaredLogger) *Registry {
	return &Registry{
		byChannel: make(map[string]map[string]*Entry),
		byConn:    make(map[string]*Entry),
		logger:    logger,
	}
}

// Subscribe registers a connection for a leaderboard channel. A player has
// at most one active connection per leaderboard: an existing connection for
// the same (leaderboard, player) is removed first and closed with a
// dedicated close-reason frame, not a generic drop.
func (r *Registry) Subscribe(leaderboardID, playerID string, conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A connection holds at most one registration. Subscribing it again,
	// to the same channel or a different one, moves the registration so
	// both indexes always describe the same set of entries.
	if prev, ok := r.byConn[conn.ID()]; ok {
		r.removeLocked(prev)
	}

	if players, ok := r.byChannel[leaderboardID]; ok {
		if old, ok := players[playerID]; ok {
			r.removeLocked(old)

			// Close asynchronously so a blocked client cannot stall the
			// registry's critical section.
			go func(superseded interfaces.Connection) {
				if err := superseded.CloseWithReason(types.CloseCodeSuperseded, types.CloseReasonSuperseded); err != nil {
					r.logger.Warnw("Failed to close superseded connection",
						"leaderboard", leaderboardID, "player", playerID, "error", err)
				}
			}(old.Conn)

			r.logger.Infow("Connection superseded",
				"leaderboard", leaderboardID, "player", playerID, "old_conn", old.Conn.ID(), "new_conn", conn.ID())
		}
	}

	entry := &Entry{
		Conn:          conn,
		LeaderboardID: leaderboardID,
		PlayerID:      playerID,
		OpenedAt:      time.Now(),
	}

	if r.byChannel[leaderboardID] == nil {
		r.byChannel[leaderboardID] = make(map[string]*Entry)
	}
	r.byChannel[leaderboardID][playerID] = entry
	r.byConn[conn.ID()] = entry
	metrics.OpenConnections.Inc()

	return nil
}

// Unsubscribe removes a connection from both indexes. Idempotent: removing
// an unknown or already-removed connection reports ok=false and changes
// nothing. Only the exact connection instance is removed, so a stale
// connection can never unregister its successor.
func (r *Registry) Unsubscribe(conn interfaces.Connection) (*Entry, bool) {
	if conn == nil {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byConn[conn.ID()]
	if !ok {
		return nil, false
	}
	r.removeLocked(entry)

	return entry, true
}

// removeLocked deletes an entry from both indexes and decrements the open
// connection gauge. Caller must hold r.mu.
func (r *Registry) removeLocked(entry *Entry) {
	delete(r.byConn, entry.Conn.ID())
	if players, ok := r.byChannel[entry.LeaderboardID]; ok {
		delete(players, entry.PlayerID)
		// Clean up empty channel maps to prevent unbounded growth.
		if len(players) == 0 {
			delete(r.byChannel, entry.LeaderboardID)
		}
	}
	metrics.OpenConnections.Dec()
}

// ConnectionsFor returns a point-in-time copy of the connections subscribed
// to a leaderboard channel, so broadcast iteration is never mutated
// concurrently.
func (r *Registry) ConnectionsFor(leaderboardID string) []interfaces.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	players := r.byChannel[leaderboardID]
	if len(players) == 0 {
		return nil
	}

	conns := make([]interfaces.Connection, 0, len(players))
	for _, entry := range players {
		conns = append(conns, entry.Conn)
	}
	return conns
}

// EntryFor returns the active entry for a (leaderboard, player) pair.
func (r *Registry) EntryFor(leaderboardID, playerID string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	players, ok := r.byChannel[leaderboardID]
	if !ok {
		return nil, false
	}
	entry, ok := players[playerID]
	return entry, ok
}

// Stats returns registry counters for the stats endpoint and tests.
func (r *Registry) Stats() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return map[string]int{
		"total_connections": len(r.byConn),
		"active_channels":   len(r.byChannel),
	}
}
