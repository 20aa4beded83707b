// Package store implements the score store client: a typed façade over the
// external Redis ranked store. A leaderboard is a sorted set keyed by its
// ID; rank queries are ZREVRANK (1-indexed by the caller) and the achievement
// unlock set uses SADD as an atomic check-and-set.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/metrics"
	"github.com/JosephJonathanFernandes/redis-leaderboard/pkg/types"
)

// Config holds Redis connection settings.
type Config struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// Client wraps a Redis client with the leaderboard key scheme.
// All operations are individually atomic on the Redis side; the client adds
// no locking of its own.
type Client struct {
	rdb    *redis.Client
	logger *zap.SugaredLogger
}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(cfg Config, logger *zap.SugaredLogger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	logger.Infow("Connected to Redis", "addr", cfg.Addr, "db", cfg.DB)
	return &Client{rdb: rdb, logger: logger}, nil
}

// NewClientFromRedis wraps an existing Redis client. Used by tests.
func NewClientFromRedis(rdb *redis.Client, logger *zap.SugaredLogger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies the store is reachable. Used by the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Key scheme, kept compatible with the original deployment: the sorted set is
// keyed by the leaderboard ID itself, everything else is namespaced.
func achievementsKey(leaderboardID, playerID string) string {
	return fmt.Sprintf("achievements:%s:%s", leaderboardID, playerID)
}

func profileKey(leaderboardID, playerID string) string {
	return fmt.Sprintf("profile:%s:%s", leaderboardID, playerID)
}

func metadataKey(playerID string) string {
	return fmt.Sprintf("player:%s", playerID)
}

// Increment adjusts a player's score by delta and returns the new score.
// The metadata hash is refreshed in the same pipeline as the score write.
func (c *Client) Increment(ctx context.Context, leaderboardID, playerID string, delta int64) (int64, error) {
	defer observe("zincrby")()

	pipe := c.rdb.TxPipeline()
	incr := pipe.ZIncrBy(ctx, leaderboardID, float64(delta), playerID)
	pipe.HSet(ctx, metadataKey(playerID),
		"last_updated", time.Now().Format(time.RFC3339),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment %s/%s: %w", leaderboardID, playerID, err)
	}

	newScore := int64(incr.Val())
	// current_score depends on the ZINCRBY reply, so it trails the pipeline.
	// The score itself is already committed; a failed metadata refresh only
	// leaves the hash stale until the next write.
	if err := c.rdb.HSet(ctx, metadataKey(playerID), "current_score", newScore).Err(); err != nil {
		c.logger.Warnw("Failed to refresh score metadata",
			"leaderboard", leaderboardID, "player", playerID, "error", err)
	}
	return newScore, nil
}

// SetScore sets a player's score to an absolute value.
func (c *Client) SetScore(ctx context.Context, leaderboardID, playerID string, score int64) error {
	defer observe("zadd")()

	pipe := c.rdb.TxPipeline()
	pipe.ZAdd(ctx, leaderboardID, redis.Z{Score: float64(score), Member: playerID})
	pipe.HSet(ctx, metadataKey(playerID),
		"last_updated", time.Now().Format(time.RFC3339),
		"current_score", score,
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set score %s/%s: %w", leaderboardID, playerID, err)
	}
	return nil
}

// Score returns a player's current score, ok=false when absent.
func (c *Client) Score(ctx context.Context, leaderboardID, playerID string) (int64, bool, error) {
	defer observe("zscore")()

	score, err := c.rdb.ZScore(ctx, leaderboardID, playerID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("score %s/%s: %w", leaderboardID, playerID, err)
	}
	return int64(score), true, nil
}

// Rank returns a player's 1-indexed rank, ok=false when absent.
// ZREVRANK is 0-indexed with the highest score first.
func (c *Client) Rank(ctx context.Context, leaderboardID, playerID string) (int64, bool, error) {
	defer observe("zrevrank")()

	rank, err := c.rdb.ZRevRank(ctx, leaderboardID, playerID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("rank %s/%s: %w", leaderboardID, playerID, err)
	}
	return rank + 1, true, nil
}

// TopN returns the highest-scored n players, highest first.
func (c *Client) TopN(ctx context.Context, leaderboardID string, n int64) ([]types.RankedEntry, error) {
	defer observe("zrevrange")()

	if n <= 0 {
		return nil, nil
	}
	zs, err := c.rdb.ZRevRangeWithScores(ctx, leaderboardID, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("top %d of %s: %w", n, leaderboardID, err)
	}
	return rankedEntries(zs, 1), nil
}

// Neighbors returns the players ranked within window positions of playerID,
// in descending score order. Empty when the player is absent.
func (c *Client) Neighbors(ctx context.Context, leaderboardID, playerID string, window int64) ([]types.RankedEntry, error) {
	rank, ok, err := c.Rank(ctx, leaderboardID, playerID)
	if err != nil || !ok {
		return nil, err
	}

	defer observe("zrevrange")()

	start := rank - 1 - window
	if start < 0 {
		start = 0
	}
	stop := rank - 1 + window
	zs, err := c.rdb.ZRevRangeWithScores(ctx, leaderboardID, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("neighbors of %s/%s: %w", leaderboardID, playerID, err)
	}
	return rankedEntries(zs, start+1), nil
}

// Size returns the number of ranked players on the board.
func (c *Client) Size(ctx context.Context, leaderboardID string) (int64, error) {
	defer observe("zcard")()

	n, err := c.rdb.ZCard(ctx, leaderboardID).Result()
	if err != nil {
		return 0, fmt.Errorf("size of %s: %w", leaderboardID, err)
	}
	return n, nil
}

// RemovePlayer removes a player from the board and clears their metadata.
// Returns false when the player was not on the board.
func (c *Client) RemovePlayer(ctx context.Context, leaderboardID, playerID string) (bool, error) {
	defer observe("zrem")()

	pipe := c.rdb.TxPipeline()
	rem := pipe.ZRem(ctx, leaderboardID, playerID)
	pipe.Del(ctx, metadataKey(playerID))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("remove %s/%s: %w", leaderboardID, playerID, err)
	}
	return rem.Val() > 0, nil
}

// ScoreRange returns every player whose score lies in [min, max], ascending.
func (c *Client) ScoreRange(ctx context.Context, leaderboardID string, min, max int64) ([]types.RankedEntry, error) {
	defer observe("zrangebyscore")()

	zs, err := c.rdb.ZRangeByScoreWithScores(ctx, leaderboardID, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", min),
		Max: fmt.Sprintf("%d", max),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("score range [%d,%d] of %s: %w", min, max, leaderboardID, err)
	}

	entries := make([]types.RankedEntry, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		// Rank is omitted for range queries; callers that need it look it up.
		entries = append(entries, types.RankedEntry{PlayerID: member, Score: int64(z.Score)})
	}
	return entries, nil
}

// RecordGamePlayed bumps the per-(leaderboard, player) games counter.
func (c *Client) RecordGamePlayed(ctx context.Context, leaderboardID, playerID string) (int64, error) {
	defer observe("hincrby")()

	n, err := c.rdb.HIncrBy(ctx, profileKey(leaderboardID, playerID), "games_played", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("record game %s/%s: %w", leaderboardID, playerID, err)
	}
	return n, nil
}

// GamesPlayed returns the games-played counter, 0 when unseen.
func (c *Client) GamesPlayed(ctx context.Context, leaderboardID, playerID string) (int64, error) {
	defer observe("hget")()

	n, err := c.rdb.HGet(ctx, profileKey(leaderboardID, playerID), "games_played").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("games played %s/%s: %w", leaderboardID, playerID, err)
	}
	return n, nil
}

// TryUnlock atomically adds achievementID to the player's unlocked set.
// SADD reports how many members were newly added, which makes the reply the
// check-and-set: 1 means this caller won, 0 means someone unlocked it first.
func (c *Client) TryUnlock(ctx context.Context, leaderboardID, playerID, achievementID string) (bool, error) {
	defer observe("sadd")()

	added, err := c.rdb.SAdd(ctx, achievementsKey(leaderboardID, playerID), achievementID).Result()
	if err != nil {
		return false, fmt.Errorf("unlock %s for %s/%s: %w", achievementID, leaderboardID, playerID, err)
	}
	return added == 1, nil
}

// Unlocked returns the player's unlocked achievement IDs.
func (c *Client) Unlocked(ctx context.Context, leaderboardID, playerID string) ([]string, error) {
	defer observe("smembers")()

	ids, err := c.rdb.SMembers(ctx, achievementsKey(leaderboardID, playerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("unlocked set %s/%s: %w", leaderboardID, playerID, err)
	}
	return ids, nil
}

// rankedEntries converts a ZREVRANGE reply into 1-indexed entries starting
// at firstRank.
func rankedEntries(zs []redis.Z, firstRank int64) []types.RankedEntry {
	entries := make([]types.RankedEntry, 0, len(zs))
	for i, z := range zs {
		member, _ := z.Member.(string)
		entries = append(entries, types.RankedEntry{
			PlayerID: member,
			Score:    int64(z.Score),
			Rank:     firstRank + int64(i),
		})
	}
	return entries
}

// observe times one store round trip for the latency histogram.
func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.StoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
