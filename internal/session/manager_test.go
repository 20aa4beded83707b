package session

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/registry"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/interfaces"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/types"
)

// stubStore serves canned leaderboard readings.
type stubStore struct {
	top       []types.RankedEntry
	scores    map[string]int64
	ranks     map[string]int64
	neighbors []types.RankedEntry
}

func (s *stubStore) Increment(context.Context, string, string, int64) (int64, error) { return 0, nil }
func (s *stubStore) SetScore(context.Context, string, string, int64) error           { return nil }

func (s *stubStore) Score(_ context.Context, _, playerID string) (int64, bool, error) {
	score, ok := s.scores[playerID]
	return score, ok, nil
}

func (s *stubStore) Rank(_ context.Context, _, playerID string) (int64, bool, error) {
	rank, ok := s.ranks[playerID]
	return rank, ok, nil
}

func (s *stubStore) TopN(context.Context, string, int64) ([]types.RankedEntry, error) {
	return s.top, nil
}

func (s *stubStore) Neighbors(context.Context, string, string, int64) ([]types.RankedEntry, error) {
	return s.neighbors, nil
}

func (s *stubStore) Size(context.Context, string) (int64, error)                  { return 0, nil }
func (s *stubStore) RemovePlayer(context.Context, string, string) (bool, error)   { return false, nil }
func (s *stubStore) ScoreRange(context.Context, string, int64, int64) ([]types.RankedEntry, error) {
	return nil, nil
}
func (s *stubStore) RecordGamePlayed(context.Context, string, string) (int64, error) { return 0, nil }
func (s *stubStore) GamesPlayed(context.Context, string, string) (int64, error)      { return 0, nil }

// stubPublisher records published events.
type stubPublisher struct {
	mu     sync.Mutex
	events []*types.GameEvent
}

func (p *stubPublisher) Publish(event *types.GameEvent) (types.DeliveryReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return types.DeliveryReport{Delivered: 1}, nil
}

func (p *stubPublisher) byType(eventType string) []*types.GameEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*types.GameEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// jsonConn records WriteJSON payloads.
type jsonConn struct {
	id string

	mu       sync.Mutex
	payloads []interface{}
	closed   bool
}

func newJSONConn(id string) *jsonConn { return &jsonConn{id: id} }

func (c *jsonConn) ID() string        { return c.id }
func (c *jsonConn) Send([]byte) error { return nil }

func (c *jsonConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *jsonConn) CloseWithReason(int, string) error { return c.Close() }

func (c *jsonConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, v)
	return nil
}

func (c *jsonConn) written() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]interface{}(nil), c.payloads...)
}

var _ interfaces.Connection = (*jsonConn)(nil)

func newTestManager(store *stubStore, pub *stubPublisher) (*Manager, *registry.Registry) {
	reg := registry.NewRegistry(zap.NewNop().Sugar())
	return NewManager(reg, store, pub, 10, 2, zap.NewNop().Sugar()), reg
}

func TestManager_ConnectSendsSnapshotToNewConnectionOnly(t *testing.T) {
	store := &stubStore{
		top:    []types.RankedEntry{{PlayerID: "bob", Score: 200, Rank: 1}},
		scores: map[string]int64{"alice": 150},
		ranks:  map[string]int64{"alice": 2},
		neighbors: []types.RankedEntry{
			{PlayerID: "bob", Score: 200, Rank: 1},
			{PlayerID: "alice", Score: 150, Rank: 2},
		},
	}
	pub := &stubPublisher{}
	m, _ := newTestManager(store, pub)

	existing := newJSONConn("c0")
	m.Connect(context.Background(), "global", "bob", existing)
	writtenBefore := len(existing.written())

	conn := newJSONConn("c1")
	if err := m.Connect(context.Background(), "global", "alice", conn); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	written := conn.written()
	if len(written) != 1 {
		t.Fatalf("Expected exactly one snapshot frame, got %d", len(written))
	}
	snapshot, ok := written[0].(types.SnapshotMessage)
	if !ok {
		t.Fatalf("Expected SnapshotMessage, got %T", written[0])
	}
	if snapshot.Type != types.MessageTypeSnapshot {
		t.Errorf("Expected type %s, got %s", types.MessageTypeSnapshot, snapshot.Type)
	}
	if snapshot.SelfRank == nil || *snapshot.SelfRank != 2 {
		t.Errorf("Expected self rank 2, got %v", snapshot.SelfRank)
	}
	if snapshot.SelfScore != 150 {
		t.Errorf("Expected self score 150, got %d", snapshot.SelfScore)
	}
	if len(snapshot.Top) != 1 || len(snapshot.Neighbors) != 2 {
		t.Errorf("Snapshot windows wrong: %+v", snapshot)
	}

	if len(existing.written()) != writtenBefore {
		t.Error("Snapshot must go to the new connection only")
	}
}

func TestManager_ConnectPublishesPlayerOnline(t *testing.T) {
	store := &stubStore{scores: map[string]int64{}, ranks: map[string]int64{}}
	pub := &stubPublisher{}
	m, _ := newTestManager(store, pub)

	if err := m.Connect(context.Background(), "global", "alice", newJSONConn("c1")); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	online := pub.byType(types.EventPlayerOnline)
	if len(online) != 1 {
		t.Fatalf("Expected one PlayerOnline event, got %d", len(online))
	}
	if online[0].PlayerID != "alice" || online[0].LeaderboardID != "global" {
		t.Errorf("Unexpected event identity: %+v", online[0])
	}
}

func TestManager_UnseenPlayerSnapshotOmitsSelf(t *testing.T) {
	store := &stubStore{scores: map[string]int64{}, ranks: map[string]int64{}}
	pub := &stubPublisher{}
	m, _ := newTestManager(store, pub)

	conn := newJSONConn("c1")
	if err := m.Connect(context.Background(), "global", "ghost", conn); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	written := conn.written()
	if len(written) != 1 {
		t.Fatalf("Expected a snapshot frame, got %d", len(written))
	}
	snapshot := written[0].(types.SnapshotMessage)
	if snapshot.SelfRank != nil {
		t.Error("Unseen player should have no self rank")
	}
	if len(snapshot.Neighbors) != 0 {
		t.Error("Unseen player should have no neighbor window")
	}
}

func TestManager_DisconnectPublishesPlayerOfflineOnce(t *testing.T) {
	store := &stubStore{scores: map[string]int64{}, ranks: map[string]int64{}}
	pub := &stubPublisher{}
	m, reg := newTestManager(store, pub)

	conn := newJSONConn("c1")
	m.Connect(context.Background(), "global", "alice", conn)

	m.HandleDisconnect(conn)
	m.HandleDisconnect(conn)

	offline := pub.byType(types.EventPlayerOffline)
	if len(offline) != 1 {
		t.Fatalf("Expected exactly one PlayerOffline event, got %d", len(offline))
	}
	if offline[0].PlayerID != "alice" {
		t.Errorf("Unexpected player: %s", offline[0].PlayerID)
	}
	if !conn.closed {
		t.Error("Connection should be closed")
	}
	if stats := reg.Stats(); stats["total_connections"] != 0 {
		t.Errorf("Registry should be empty, got %d", stats["total_connections"])
	}
}

func TestManager_SupersededDisconnectIsSilent(t *testing.T) {
	store := &stubStore{scores: map[string]int64{}, ranks: map[string]int64{}}
	pub := &stubPublisher{}
	m, _ := newTestManager(store, pub)
	ctx := context.Background()

	old := newJSONConn("c1")
	m.Connect(ctx, "global", "alice", old)
	newer := newJSONConn("c2")
	m.Connect(ctx, "global", "alice", newer)

	// The old connection's read loop will observe the close and run the
	// disconnect path; the registration now belongs to the newer connection.
	m.HandleDisconnect(old)

	if got := len(pub.byType(types.EventPlayerOffline)); got != 0 {
		t.Errorf("Superseded disconnect must not publish PlayerOffline, got %d", got)
	}
	if got := len(pub.byType(types.EventPlayerOnline)); got != 2 {
		t.Errorf("Expected 2 PlayerOnline events, got %d", got)
	}
}

func TestManager_KeepaliveAcknowledges(t *testing.T) {
	store := &stubStore{scores: map[string]int64{}, ranks: map[string]int64{}}
	m, _ := newTestManager(store, &stubPublisher{})

	conn := newJSONConn("c1")
	if err := m.Keepalive(conn); err != nil {
		t.Fatalf("Keepalive failed: %v", err)
	}

	written := conn.written()
	if len(written) != 1 {
		t.Fatalf("Expected one ack frame, got %d", len(written))
	}
	ack, ok := written[0].(types.KeepaliveAck)
	if !ok || ack.Type != types.MessageTypeKeepaliveAck {
		t.Errorf("Expected keepalive ack, got %#v", written[0])
	}
	if ack.Timestamp.IsZero() {
		t.Error("Ack should carry a timestamp")
	}
}
