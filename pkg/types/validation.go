package types

import "regexp"

// Regex compiled once at package initialization; validation runs on every
// connection attempt and every inbound command.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidPlayerID checks if a player ID meets format requirements.
// The 50 character cap keeps Redis keys and wire frames bounded.
func IsValidPlayerID(playerID string) bool {
	if len(playerID) < 1 || len(playerID) > 50 {
		return false
	}
	return identifierRegex.MatchString(playerID)
}

// IsValidLeaderboardID checks if a leaderboard ID meets format requirements.
// Leaderboard IDs become Redis sorted-set keys verbatim.
func IsValidLeaderboardID(leaderboardID string) bool {
	if len(leaderboardID) < 1 || len(leaderboardID) > 100 {
		return false
	}
	return identifierRegex.MatchString(leaderboardID)
}

// IsValidEventType checks if the event type is one of the defined types.
func IsValidEventType(eventType string) bool {
	switch eventType {
	case EventScoreUpdate,
		EventRankChange,
		EventNewPlayer,
		EventAchievement,
		EventLeaderboardSnapshot,
		EventPlayerOnline,
		EventPlayerOffline:
		return true
	default:
		return false
	}
}

// Validate ensures an event is well formed before it enters the broadcast
// engine. Detector components construct events via NewGameEvent, so this is
// mostly a guard against hand-built events from the command surface.
func (e *GameEvent) Validate() error {
	if !IsValidEventType(e.Type) {
		return ErrInvalidEventType
	}
	if !IsValidLeaderboardID(e.LeaderboardID) {
		return ErrInvalidLeaderboardID
	}
	if !IsValidPlayerID(e.PlayerID) {
		return ErrInvalidPlayerID
	}
	return nil
}
