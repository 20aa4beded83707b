// Package scoring implements the rank-change detector and the service that
// hands its events to the broadcast engine.
package scoring

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/achievements"
	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/metrics"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/interfaces"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/types"
)

// Detector wraps a score mutation, capturing before/after score and rank,
// and turns the deltas into events.
//
// The before/after capture is two sequential store calls around the
// increment, not one atomic operation: under concurrent mutations to the
// same leaderboard, old_rank may already be stale by the time new_rank is
// read. This affects only the magnitude/presence of a RankChange event,
// never the underlying score, and is an accepted approximation.
type Detector struct {
	store     interfaces.ScoreStore
	evaluator *achievements.Evaluator
	logger    *zap.SugaredLogger
}

// NewDetector creates a rank-change detector.
func NewDetector(store interfaces.ScoreStore, evaluator *achievements.Evaluator, logger *zap.SugaredLogger) *Detector {
	return &Detector{store: store, evaluator: evaluator, logger: logger}
}

// ApplyScoreDelta applies one score mutation and returns the before/after
// state plus every event it produced, in emission order:
//
//	ScoreUpdate (always) · NewPlayer | RankChange · Achievement...
//
// If the increment itself fails, no events are produced and the caller is
// informed the mutation did not apply. The increment is not retried: it is
// not idempotent, the caller must resubmit explicitly.
func (d *Detector) ApplyScoreDelta(ctx context.Context, leaderboardID, playerID string, delta int64) (*types.DeltaResult, error) {
	oldScore, _, err := d.store.Score(ctx, leaderboardID, playerID)
	if err != nil {
		return nil, fmt.Errorf("read old score: %w", err)
	}
	oldRank, wasRanked, err := d.store.Rank(ctx, leaderboardID, playerID)
	if err != nil {
		return nil, fmt.Errorf("read old rank: %w", err)
	}

	newScore, err := d.store.Increment(ctx, leaderboardID, playerID, delta)
	if err != nil {
		return nil, fmt.Errorf("increment: %w", err)
	}
	metrics.ScoreDeltas.Inc()

	newRank, _, err := d.store.Rank(ctx, leaderboardID, playerID)
	if err != nil {
		return nil, fmt.Errorf("read new rank: %w", err)
	}

	gamesPlayed, err := d.store.RecordGamePlayed(ctx, leaderboardID, playerID)
	if err != nil {
		// The counter is a collaborator-maintained statistic, not part of
		// the mutation's correctness contract. Log and keep going.
		d.logger.Warnw("Failed to record game played",
			"leaderboard", leaderboardID, "player", playerID, "error", err)
	}

	result := &types.DeltaResult{
		LeaderboardID: leaderboardID,
		PlayerID:      playerID,
		Delta:         delta,
		OldScore:      oldScore,
		NewScore:      newScore,
		OldRank:       oldRank,
		NewRank:       newRank,
		WasRanked:     wasRanked,
	}

	result.Events = append(result.Events, types.NewGameEvent(
		types.EventScoreUpdate, leaderboardID, playerID,
		map[string]interface{}{
			"old_score": oldScore,
			"new_score": newScore,
			"delta":     delta,
		},
	))

	if !wasRanked {
		result.Events = append(result.Events, types.NewGameEvent(
			types.EventNewPlayer, leaderboardID, playerID,
			map[string]interface{}{
				"score": newScore,
				"rank":  newRank,
			},
		))
	} else if newRank != oldRank {
		// Positive delta = moved toward rank 1.
		result.Events = append(result.Events, types.NewGameEvent(
			types.EventRankChange, leaderboardID, playerID,
			map[string]interface{}{
				"old_rank":   oldRank,
				"new_rank":   newRank,
				"rank_delta": oldRank - newRank,
			},
		))
	}

	unlocked, err := d.evaluator.Evaluate(ctx, leaderboardID, playerID, newScore, newRank, true, gamesPlayed)
	if err != nil {
		// Achievements already returned are durable in the store; emit them
		// and surface the evaluation failure as a log, not a mutation error.
		d.logger.Errorw("Achievement evaluation incomplete",
			"leaderboard", leaderboardID, "player", playerID, "error", err)
	}
	for _, def := range unlocked {
		result.Events = append(result.Events, types.NewGameEvent(
			types.EventAchievement, leaderboardID, playerID,
			map[string]interface{}{
				"achievement": def,
				"message":     fmt.Sprintf("%s earned: %s!", playerID, def.Name),
			},
		))
	}

	return result, nil
}
