// Package broadcast implements the fanout engine: one sequencer worker per
// leaderboard channel serializes publishes so every still-connected
// subscriber observes events in publish order, while connections that fail
// a send are evicted from the registry.
package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/metrics"
	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/registry"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/interfaces"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/types"
)

// EvictHandler is called (in its own goroutine) for every connection whose
// send failed during fanout, after the connection has been removed from the
// fanout path. The session lifecycle manager installs itself here so
// broadcast-detected failures get the same disconnect handling as transport
// closes.
type EvictHandler func(conn interfaces.Connection)

// Broadcaster delivers events to every registered connection on the event's
// leaderboard channel.
type Broadcaster struct {
	registry  *registry.Registry
	queueSize int
	logger    *zap.SugaredLogger

	mu         sync.Mutex
	sequencers map[string]*sequencer
	evict      EvictHandler
	closed     bool

	wg sync.WaitGroup
}

// sequencer is the per-leaderboard publish sequence point: a single worker
// draining a job queue, so two Publish calls for the same leaderboard can
// never interleave their fanout passes.
type sequencer struct {
	jobs chan publishJob
}

type publishJob struct {
	event *types.GameEvent
	data  []byte
	done  chan types.DeliveryReport
}

// NewBroadcaster creates a broadcast engine over the given registry.
// queueSize bounds how many publishes may queue per leaderboard.
func NewBroadcaster(reg *registry.Registry, queueSize int, logger *zap.SugaredLogger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Broadcaster{
		registry:   reg,
		queueSize:  queueSize,
		logger:     logger,
		sequencers: make(map[string]*sequencer),
	}
}

// OnEvict installs the handler invoked for connections that fail delivery.
// Must be called before the first Publish.
func (b *Broadcaster) OnEvict(handler EvictHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evict = handler
}

// Publish delivers an event to every connection on the event's leaderboard
// channel and reports how the fanout went. It blocks until the fanout pass
// for this event completes, which is what gives a single producer its
// ordering guarantee.
func (b *Broadcaster) Publish(event *types.GameEvent) (report types.DeliveryReport, err error) {
	// A Publish racing Stop can hit a drained queue; treat it as closed
	// rather than panicking the producer.
	defer func() {
		if r := recover(); r != nil {
			report, err = types.DeliveryReport{}, ErrBroadcasterClosed
		}
	}()

	data, err := json.Marshal(event)
	if err != nil {
		return types.DeliveryReport{}, fmt.Errorf("serialize event %s: %w", event.ID, err)
	}

	seq, err := b.sequencerFor(event.LeaderboardID)
	if err != nil {
		return types.DeliveryReport{}, err
	}

	job := publishJob{event: event, data: data, done: make(chan types.DeliveryReport, 1)}
	seq.jobs <- job
	report = <-job.done

	metrics.EventsPublished.WithLabelValues(event.Type).Inc()
	return report, nil
}

// sequencerFor returns the channel's sequencer, starting its worker on
// first use.
func (b *Broadcaster) sequencerFor(leaderboardID string) (*sequencer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBroadcasterClosed
	}
	if seq, ok := b.sequencers[leaderboardID]; ok {
		return seq, nil
	}

	seq := &sequencer{jobs: make(chan publishJob, b.queueSize)}
	b.sequencers[leaderboardID] = seq
	b.wg.Add(1)
	go b.run(leaderboardID, seq)
	return seq, nil
}

// run drains one leaderboard's publish queue.
func (b *Broadcaster) run(leaderboardID string, seq *sequencer) {
	defer b.wg.Done()
	for job := range seq.jobs {
		job.done <- b.fanout(leaderboardID, job.event, job.data)
	}
}

// fanout sends one serialized event to a snapshot of the channel's
// connections. Delivery is best-effort: a failed send marks that connection
// dead, and dead connections are handed to the evict handler after the pass.
func (b *Broadcaster) fanout(leaderboardID string, event *types.GameEvent, data []byte) types.DeliveryReport {
	conns := b.registry.ConnectionsFor(leaderboardID)

	var report types.DeliveryReport
	var dead []interfaces.Connection
	for _, conn := range conns {
		if err := conn.Send(data); err != nil {
			report.Failed++
			dead = append(dead, conn)
			metrics.BroadcastFailures.Inc()
			continue
		}
		report.Delivered++
		metrics.BroadcastDeliveries.Inc()
	}

	for _, conn := range dead {
		b.logger.Warnw("Evicting connection after failed delivery",
			"leaderboard", leaderboardID, "event", event.Type, "conn", conn.ID())
		b.evictConn(conn)
	}

	return report
}

// evictConn routes a dead connection to the installed handler, or falls
// back to bare registry removal. The handler runs in its own goroutine so a
// handler that publishes (PlayerOffline goes through this same sequencer)
// cannot deadlock the worker.
func (b *Broadcaster) evictConn(conn interfaces.Connection) {
	b.mu.Lock()
	handler := b.evict
	b.mu.Unlock()

	if handler != nil {
		go handler(conn)
		return
	}
	b.registry.Unsubscribe(conn)
	_ = conn.Close()
}

// Stop drains every sequencer and waits for in-flight fanouts to finish.
// Publish calls after Stop fail with ErrBroadcasterClosed.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, seq := range b.sequencers {
		close(seq.jobs)
	}
	b.mu.Unlock()

	b.wg.Wait()
}
