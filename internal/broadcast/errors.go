package broadcast

import "errors"

// Broadcast engine error types.
var (
	ErrBroadcasterClosed = errors.New("broadcaster is stopped")
)
