package scoring

import (
	"context"

	"go.uber.org/zap"

	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/interfaces"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/types"
)

// Service ties the detector to the broadcast engine: it applies a mutation,
// hands the resulting events off in order, then follows up with a refreshed
// leaderboard snapshot on the same channel.
type Service struct {
	detector     *Detector
	store        interfaces.ScoreStore
	publisher    interfaces.EventPublisher
	snapshotSize int64
	logger       *zap.SugaredLogger
}

// NewService creates the score mutation service. snapshotSize is the top-N
// window carried by the trailing LeaderboardSnapshot event.
func NewService(detector *Detector, store interfaces.ScoreStore, publisher interfaces.EventPublisher, snapshotSize int64, logger *zap.SugaredLogger) *Service {
	if snapshotSize <= 0 {
		snapshotSize = 20
	}
	return &Service{
		detector:     detector,
		store:        store,
		publisher:    publisher,
		snapshotSize: snapshotSize,
		logger:       logger,
	}
}

// SubmitDelta applies one score mutation and broadcasts everything it
// produced. Publish calls for one leaderboard are serialized by the
// broadcast engine, so subscribers observe the triple in emission order
// followed by the snapshot.
func (s *Service) SubmitDelta(ctx context.Context, leaderboardID, playerID string, delta int64) (*types.DeltaResult, error) {
	result, err := s.detector.ApplyScoreDelta(ctx, leaderboardID, playerID, delta)
	if err != nil {
		return nil, err
	}

	for _, event := range result.Events {
		if _, err := s.publisher.Publish(event); err != nil {
			// Delivery is best-effort; the mutation already applied.
			s.logger.Warnw("Event publish failed",
				"type", event.Type, "leaderboard", leaderboardID, "error", err)
		}
	}

	s.broadcastSnapshot(ctx, leaderboardID, playerID)

	return result, nil
}

// broadcastSnapshot publishes a LeaderboardSnapshot event carrying the
// current top of the board.
func (s *Service) broadcastSnapshot(ctx context.Context, leaderboardID, playerID string) {
	top, err := s.store.TopN(ctx, leaderboardID, s.snapshotSize)
	if err != nil {
		s.logger.Warnw("Snapshot read failed", "leaderboard", leaderboardID, "error", err)
		return
	}

	event := types.NewGameEvent(types.EventLeaderboardSnapshot, leaderboardID, playerID,
		map[string]interface{}{"top": top})
	if _, err := s.publisher.Publish(event); err != nil {
		s.logger.Warnw("Snapshot publish failed", "leaderboard", leaderboardID, "error", err)
	}
}
