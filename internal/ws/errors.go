package ws

import "errors"

// Connection error types. These are all connection-local: they trigger
// disconnect handling for the one connection and are never fatal to the
// process.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)
