package types

import "errors"

// Validation error types shared across components.
var (
	ErrInvalidPlayerID      = errors.New("player ID must be 1-50 characters of [a-zA-Z0-9_-]")
	ErrInvalidLeaderboardID = errors.New("leaderboard ID must be 1-100 characters of [a-zA-Z0-9_-]")
	ErrInvalidEventType     = errors.New("invalid event type")
)
