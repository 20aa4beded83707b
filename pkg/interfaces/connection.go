package interfaces

// Connection represents a subscriber connection handle.
// Pure abstraction without transport details so the registry, broadcast
// engine and session lifecycle can be tested with mock implementations.
type Connection interface {
	// ID returns the unique handle for this connection instance.
	// Two connections for the same player have distinct IDs, which is what
	// makes supersede-then-unsubscribe race-free.
	ID() string

	// Send writes a pre-serialized frame to the client (thread-safe).
	// Implementations must serialize writes through a single writer.
	Send(data []byte) error

	// WriteJSON marshals v and sends it as one frame (thread-safe).
	WriteJSON(v interface{}) error

	// CloseWithReason sends a close frame carrying an application close code
	// and reason before tearing the connection down. Used for the
	// superseding-connection policy so the old client knows why it was cut.
	CloseWithReason(code int, reason string) error

	// Close closes the connection and releases its resources. Idempotent.
	Close() error
}
