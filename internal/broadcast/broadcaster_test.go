package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/registry"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/interfaces"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/types"
)

// recordingConn captures delivered frames in arrival order.
type recordingConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	closed bool
	fail   bool
}

func newRecordingConn(id string) *recordingConn { return &recordingConn{id: id} }

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("send failed")
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *recordingConn) WriteJSON(v interface{}) error { return nil }

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) CloseWithReason(int, string) error { return c.Close() }

func (c *recordingConn) received() []*types.GameEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]*types.GameEvent, 0, len(c.frames))
	for _, frame := range c.frames {
		var event types.GameEvent
		if err := json.Unmarshal(frame, &event); err != nil {
			panic(err)
		}
		events = append(events, &event)
	}
	return events
}

func (c *recordingConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

var _ interfaces.Connection = (*recordingConn)(nil)

func newTestBroadcaster(t *testing.T) (*Broadcaster, *registry.Registry) {
	t.Helper()
	reg := registry.NewRegistry(zap.NewNop().Sugar())
	b := NewBroadcaster(reg, 16, zap.NewNop().Sugar())
	t.Cleanup(b.Stop)
	return b, reg
}

func TestBroadcaster_DeliversToChannelSubscribers(t *testing.T) {
	b, reg := newTestBroadcaster(t)

	alice := newRecordingConn("c1")
	bob := newRecordingConn("c2")
	other := newRecordingConn("c3")
	reg.Subscribe("global", "alice", alice)
	reg.Subscribe("global", "bob", bob)
	reg.Subscribe("weekly", "carol", other)

	event := types.NewGameEvent(types.EventScoreUpdate, "global", "alice", nil)
	report, err := b.Publish(event)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if report.Delivered != 2 || report.Failed != 0 {
		t.Errorf("Expected 2 deliveries, got %+v", report)
	}

	if got := alice.received(); len(got) != 1 || got[0].ID != event.ID {
		t.Errorf("alice should receive the event, got %v", got)
	}
	if got := other.received(); len(got) != 0 {
		t.Error("Other channels must not receive the event")
	}
}

func TestBroadcaster_OrderIsPreservedPerSubscriber(t *testing.T) {
	b, reg := newTestBroadcaster(t)

	conn := newRecordingConn("c1")
	reg.Subscribe("global", "alice", conn)

	var published []string
	for i := 0; i < 20; i++ {
		event := types.NewGameEvent(types.EventScoreUpdate, "global", "alice",
			map[string]interface{}{"seq": i})
		if _, err := b.Publish(event); err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
		published = append(published, event.ID)
	}

	got := conn.received()
	if len(got) != len(published) {
		t.Fatalf("Expected %d events, got %d", len(published), len(got))
	}
	for i, event := range got {
		if event.ID != published[i] {
			t.Fatalf("Event %d out of order: expected %s, got %s", i, published[i], event.ID)
		}
	}
}

func TestBroadcaster_EmptyChannelReportsZero(t *testing.T) {
	b, _ := newTestBroadcaster(t)

	report, err := b.Publish(types.NewGameEvent(types.EventScoreUpdate, "empty", "alice", nil))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if report.Delivered != 0 || report.Failed != 0 {
		t.Errorf("Expected zero report, got %+v", report)
	}
}

func TestBroadcaster_DeadConnectionIsEvicted(t *testing.T) {
	b, reg := newTestBroadcaster(t)

	healthy := newRecordingConn("c1")
	dead := newRecordingConn("c2")
	dead.fail = true
	reg.Subscribe("global", "alice", healthy)
	reg.Subscribe("global", "bob", dead)

	report, err := b.Publish(types.NewGameEvent(types.EventScoreUpdate, "global", "alice", nil))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if report.Delivered != 1 || report.Failed != 1 {
		t.Errorf("Expected 1 delivery and 1 failure, got %+v", report)
	}

	// Without an evict handler the broadcaster removes and closes directly.
	if _, ok := reg.EntryFor("global", "bob"); ok {
		t.Error("Dead connection should be removed from the registry")
	}
	if !dead.isClosed() {
		t.Error("Dead connection should be closed")
	}
	if _, ok := reg.EntryFor("global", "alice"); !ok {
		t.Error("Healthy connection must survive")
	}
}

func TestBroadcaster_EvictHandlerIsInvoked(t *testing.T) {
	b, reg := newTestBroadcaster(t)

	evicted := make(chan string, 1)
	b.OnEvict(func(conn interfaces.Connection) {
		evicted <- conn.ID()
	})

	dead := newRecordingConn("c1")
	dead.fail = true
	reg.Subscribe("global", "alice", dead)

	if _, err := b.Publish(types.NewGameEvent(types.EventScoreUpdate, "global", "alice", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case id := <-evicted:
		if id != "c1" {
			t.Errorf("Expected eviction of c1, got %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("Evict handler was never invoked")
	}

	// Registry removal is the handler's job; the broadcaster must not
	// double-handle the connection.
	if _, ok := reg.EntryFor("global", "alice"); !ok {
		t.Error("Registry entry should be left for the handler to remove")
	}
}

func TestBroadcaster_PublishAfterStop(t *testing.T) {
	reg := registry.NewRegistry(zap.NewNop().Sugar())
	b := NewBroadcaster(reg, 16, zap.NewNop().Sugar())
	b.Stop()

	if _, err := b.Publish(types.NewGameEvent(types.EventScoreUpdate, "global", "alice", nil)); !errors.Is(err, ErrBroadcasterClosed) {
		t.Errorf("Expected ErrBroadcasterClosed, got %v", err)
	}

	// Stop is idempotent.
	b.Stop()
}

func TestBroadcaster_ConcurrentPublishersOneChannel(t *testing.T) {
	b, reg := newTestBroadcaster(t)

	conn := newRecordingConn("c1")
	reg.Subscribe("global", "alice", conn)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				event := types.NewGameEvent(types.EventScoreUpdate, "global",
					fmt.Sprintf("player%d", n), nil)
				if _, err := b.Publish(event); err != nil {
					t.Errorf("Publish failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	if got := len(conn.received()); got != 100 {
		t.Errorf("Expected 100 delivered events, got %d", got)
	}
}
