package interfaces

import (
	"context"

	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/types"
)

// ScoreStore is the contract the event engine consumes from the external
// ranked store. Every call is atomic and linearizable individually, but
// there is no combined increment-and-read-both-ranks primitive; the
// rank-change detector's before/after capture is two sequential calls and
// the staleness that introduces is an accepted approximation.
//
// Absent players surface as ok=false, never as errors.
type ScoreStore interface {
	// Increment adjusts a player's score by delta (may be negative) and
	// returns the new score. Creates the player when unseen.
	Increment(ctx context.Context, leaderboardID, playerID string, delta int64) (int64, error)

	// SetScore sets a player's score to an absolute value.
	SetScore(ctx context.Context, leaderboardID, playerID string, score int64) error

	// Score returns a player's current score, ok=false when absent.
	Score(ctx context.Context, leaderboardID, playerID string) (int64, bool, error)

	// Rank returns a player's 1-indexed rank (rank 1 = highest score),
	// ok=false when absent. Ties are broken by the store's native ordering.
	Rank(ctx context.Context, leaderboardID, playerID string) (int64, bool, error)

	// TopN returns the highest-scored n players, highest first.
	TopN(ctx context.Context, leaderboardID string, n int64) ([]types.RankedEntry, error)

	// Neighbors returns the players ranked around playerID, window ranks on
	// each side, in descending score order. Empty when the player is absent.
	Neighbors(ctx context.Context, leaderboardID, playerID string, window int64) ([]types.RankedEntry, error)

	// Size returns the number of ranked players.
	Size(ctx context.Context, leaderboardID string) (int64, error)

	// RemovePlayer removes a player from the board and clears their metadata.
	RemovePlayer(ctx context.Context, leaderboardID, playerID string) (bool, error)

	// ScoreRange returns every player whose score lies in [min, max],
	// ascending.
	ScoreRange(ctx context.Context, leaderboardID string, min, max int64) ([]types.RankedEntry, error)

	// RecordGamePlayed bumps the player's games-played counter and returns
	// the new total.
	RecordGamePlayed(ctx context.Context, leaderboardID, playerID string) (int64, error)

	// GamesPlayed returns the player's games-played counter (0 when unseen).
	GamesPlayed(ctx context.Context, leaderboardID, playerID string) (int64, error)
}

// UnlockStore holds per-(leaderboard, player) achievement unlock sets.
// The set grows monotonically; TryUnlock is the single serialization point
// preventing duplicate unlocks, delegated to the backing store's atomicity
// because multiple process instances may share one store.
type UnlockStore interface {
	// TryUnlock atomically adds achievementID to the player's unlocked set
	// and reports whether it was newly added. Never a read-then-write.
	TryUnlock(ctx context.Context, leaderboardID, playerID, achievementID string) (bool, error)

	// Unlocked returns the player's currently unlocked achievement IDs.
	Unlocked(ctx context.Context, leaderboardID, playerID string) ([]string, error)
}

// EventPublisher delivers an event to every registered connection on the
// event's leaderboard channel. Publish calls for the same leaderboard are
// serialized, so the relative order of events observed by any one subscriber
// matches the order Publish returned.
type EventPublisher interface {
	Publish(event *types.GameEvent) (types.DeliveryReport, error)
}
