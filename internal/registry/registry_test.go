package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/metrics"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/interfaces"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/types"
)

// fakeConn records close calls so tests can assert on the supersede frame.
type fakeConn struct {
	id string

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (f *fakeConn) ID() string                    { return f.id }
func (f *fakeConn) Send(data []byte) error        { return nil }
func (f *fakeConn) WriteJSON(v interface{}) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) CloseWithReason(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCode = code
	f.closeReason = reason
	return nil
}

func (f *fakeConn) closedWith() (bool, int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.closeCode, f.closeReason
}

var _ interfaces.Connection = (*fakeConn)(nil)

func newTestRegistry() *Registry {
	return NewRegistry(zap.NewNop().Sugar())
}

func TestRegistry_SubscribeAndLookup(t *testing.T) {
	r := newTestRegistry()
	conn := newFakeConn("c1")

	if err := r.Subscribe("global", "alice", conn); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	entry, ok := r.EntryFor("global", "alice")
	if !ok {
		t.Fatal("Expected entry for subscribed player")
	}
	if entry.Conn.ID() != "c1" {
		t.Errorf("Expected connection c1, got %s", entry.Conn.ID())
	}
	if entry.OpenedAt.IsZero() {
		t.Error("Entry should record its open time")
	}

	conns := r.ConnectionsFor("global")
	if len(conns) != 1 {
		t.Fatalf("Expected 1 connection, got %d", len(conns))
	}
}

func TestRegistry_SubscribeNilConnection(t *testing.T) {
	r := newTestRegistry()
	if err := r.Subscribe("global", "alice", nil); err != ErrNilConnection {
		t.Errorf("Expected ErrNilConnection, got %v", err)
	}
}

func TestRegistry_SupersedeClosesOldConnection(t *testing.T) {
	r := newTestRegistry()
	old := newFakeConn("c1")
	newer := newFakeConn("c2")

	if err := r.Subscribe("global", "alice", old); err != nil {
		t.Fatalf("First subscribe failed: %v", err)
	}
	if err := r.Subscribe("global", "alice", newer); err != nil {
		t.Fatalf("Second subscribe failed: %v", err)
	}

	entry, ok := r.EntryFor("global", "alice")
	if !ok || entry.Conn.ID() != "c2" {
		t.Fatal("Newer connection should hold the registration")
	}

	// The old connection closes asynchronously.
	deadline := time.Now().Add(time.Second)
	for {
		closed, code, reason := old.closedWith()
		if closed {
			if code != types.CloseCodeSuperseded {
				t.Errorf("Expected close code %d, got %d", types.CloseCodeSuperseded, code)
			}
			if reason != types.CloseReasonSuperseded {
				t.Errorf("Expected close reason %q, got %q", types.CloseReasonSuperseded, reason)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Old connection was never closed")
		}
		time.Sleep(time.Millisecond)
	}

	if stats := r.Stats(); stats["total_connections"] != 1 {
		t.Errorf("Expected 1 connection after supersede, got %d", stats["total_connections"])
	}
}

func TestRegistry_StaleConnectionCannotUnregisterSuccessor(t *testing.T) {
	r := newTestRegistry()
	old := newFakeConn("c1")
	newer := newFakeConn("c2")

	r.Subscribe("global", "alice", old)
	r.Subscribe("global", "alice", newer)

	// Disconnect handling for the stale connection must be a no-op.
	if _, ok := r.Unsubscribe(old); ok {
		t.Error("Superseded connection should already be removed")
	}

	if _, ok := r.EntryFor("global", "alice"); !ok {
		t.Error("Successor registration should survive the stale unsubscribe")
	}
}

func TestRegistry_UnsubscribeIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	conn := newFakeConn("c1")
	r.Subscribe("global", "alice", conn)

	entry, ok := r.Unsubscribe(conn)
	if !ok {
		t.Fatal("First unsubscribe should succeed")
	}
	if entry.LeaderboardID != "global" || entry.PlayerID != "alice" {
		t.Errorf("Unexpected entry: %+v", entry)
	}

	if _, ok := r.Unsubscribe(conn); ok {
		t.Error("Second unsubscribe should report ok=false")
	}
	if _, ok := r.Unsubscribe(nil); ok {
		t.Error("Nil unsubscribe should report ok=false")
	}
}

func TestRegistry_EmptyChannelsAreRemoved(t *testing.T) {
	r := newTestRegistry()
	conn := newFakeConn("c1")
	r.Subscribe("global", "alice", conn)
	r.Unsubscribe(conn)

	if stats := r.Stats(); stats["active_channels"] != 0 {
		t.Errorf("Expected 0 active channels, got %d", stats["active_channels"])
	}
}

func TestRegistry_ConnectionsForIsSnapshot(t *testing.T) {
	r := newTestRegistry()
	r.Subscribe("global", "alice", newFakeConn("c1"))
	r.Subscribe("global", "bob", newFakeConn("c2"))

	conns := r.ConnectionsFor("global")
	if len(conns) != 2 {
		t.Fatalf("Expected 2 connections, got %d", len(conns))
	}

	// Mutating the registry must not affect the returned slice.
	r.Subscribe("global", "carol", newFakeConn("c3"))
	if len(conns) != 2 {
		t.Error("Snapshot should be detached from registry state")
	}

	if conns := r.ConnectionsFor("empty"); conns != nil {
		t.Errorf("Expected nil for unknown channel, got %v", conns)
	}
}

func TestRegistry_SameConnectionResubscribeIsNotSuperseded(t *testing.T) {
	r := newTestRegistry()
	conn := newFakeConn("c1")
	r.Subscribe("global", "alice", conn)
	r.Subscribe("global", "alice", conn)

	time.Sleep(10 * time.Millisecond)
	if closed, _, _ := conn.closedWith(); closed {
		t.Error("Resubscribing the same connection must not close it")
	}
	if stats := r.Stats(); stats["total_connections"] != 1 {
		t.Errorf("Expected 1 connection, got %d", stats["total_connections"])
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := newTestRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conn := newFakeConn(fmt.Sprintf("c%d", n))
			player := fmt.Sprintf("player%d", n)
			r.Subscribe("global", player, conn)
			r.ConnectionsFor("global")
			r.EntryFor("global", player)
			r.Unsubscribe(conn)
		}(i)
	}
	wg.Wait()

	if stats := r.Stats(); stats["total_connections"] != 0 {
		t.Errorf("Expected empty registry, got %d connections", stats["total_connections"])
	}
}

func TestRegistry_ResubscribeToDifferentChannelMovesRegistration(t *testing.T) {
	r := newTestRegistry()
	conn := newFakeConn("c1")

	r.Subscribe("arena", "alice", conn)
	r.Subscribe("dungeon", "alice", conn)

	if conns := r.ConnectionsFor("arena"); len(conns) != 0 {
		t.Errorf("Old channel must not keep fanning out to a moved connection, got %d", len(conns))
	}
	if _, ok := r.EntryFor("dungeon", "alice"); !ok {
		t.Error("Expected entry under the new channel")
	}

	entry, ok := r.Unsubscribe(conn)
	if !ok {
		t.Fatal("Unsubscribe should find the moved registration")
	}
	if entry.LeaderboardID != "dungeon" {
		t.Errorf("Expected the dungeon registration, got %s", entry.LeaderboardID)
	}

	stats := r.Stats()
	if stats["total_connections"] != 0 || stats["active_channels"] != 0 {
		t.Errorf("Registry should be empty after unsubscribe, got %v", stats)
	}
}

func TestRegistry_OpenConnectionsGaugeStaysBalanced(t *testing.T) {
	r := newTestRegistry()
	before := testutil.ToFloat64(metrics.OpenConnections)

	conn := newFakeConn("c1")
	r.Subscribe("global", "alice", conn)
	r.Subscribe("global", "alice", conn)
	r.Subscribe("weekly", "alice", conn)
	r.Unsubscribe(conn)

	if after := testutil.ToFloat64(metrics.OpenConnections); after != before {
		t.Errorf("Gauge drifted by %v across a balanced subscribe/unsubscribe sequence", after-before)
	}
}
