package achievements

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/metrics"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/interfaces"
)

// Evaluator checks unlock conditions against observed score/rank/counters.
// Unlock state lives in the backing store, not in process memory, because
// multiple process instances may share one store; the store's atomic
// check-and-set is the only serialization point.
type Evaluator struct {
	defs    []Definition
	unlocks interfaces.UnlockStore
	logger  *zap.SugaredLogger
}

// NewEvaluator creates an evaluator over a static definition table.
func NewEvaluator(defs []Definition, unlocks interfaces.UnlockStore, logger *zap.SugaredLogger) *Evaluator {
	return &Evaluator{defs: defs, unlocks: unlocks, logger: logger}
}

// Definitions returns the static table in evaluation order.
func (e *Evaluator) Definitions() []Definition {
	return e.defs
}

// Evaluate tests every not-yet-unlocked definition against the observed
// values and returns the achievements newly unlocked by this call, in
// definition-table order. rank is only meaningful when ranked is true.
//
// A definition is returned only when the store's check-and-set reports it
// as newly added, so two concurrent evaluations for the same player can
// never both return the same achievement.
func (e *Evaluator) Evaluate(ctx context.Context, leaderboardID, playerID string, score int64, rank int64, ranked bool, gamesPlayed int64) ([]Definition, error) {
	already, err := e.unlocks.Unlocked(ctx, leaderboardID, playerID)
	if err != nil {
		return nil, fmt.Errorf("load unlocked set: %w", err)
	}
	unlockedSet := make(map[string]bool, len(already))
	for _, id := range already {
		unlockedSet[id] = true
	}

	var newlyUnlocked []Definition
	for _, def := range e.defs {
		if unlockedSet[def.ID] {
			continue
		}
		if !def.satisfied(score, rank, ranked, gamesPlayed) {
			continue
		}

		added, err := e.unlocks.TryUnlock(ctx, leaderboardID, playerID, def.ID)
		if err != nil {
			// Partial results are safe: everything returned so far is
			// durably recorded in the store.
			return newlyUnlocked, fmt.Errorf("unlock %s: %w", def.ID, err)
		}
		if !added {
			// Lost the race to a concurrent evaluation. Normal, silent no-op.
			continue
		}

		metrics.AchievementsUnlocked.Inc()
		e.logger.Infow("Achievement unlocked",
			"leaderboard", leaderboardID, "player", playerID, "achievement", def.ID)
		newlyUnlocked = append(newlyUnlocked, def)
	}

	return newlyUnlocked, nil
}

// satisfied tests one condition against the observed values. Thresholds are
// inclusive: score equal to a ScoreThreshold unlocks it.
func (d Definition) satisfied(score, rank int64, ranked bool, gamesPlayed int64) bool {
	switch d.Condition {
	case ConditionScoreThreshold:
		return score >= d.Threshold
	case ConditionRankThreshold:
		return ranked && rank <= d.Threshold
	case ConditionGamesPlayedThreshold:
		return gamesPlayed >= d.Threshold
	default:
		return false
	}
}
