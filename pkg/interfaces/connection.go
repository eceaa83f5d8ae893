package interfaces

// Conn is a live client connection as seen by the broadcaster and registry
// ARCHITECTURAL DISCOVERY: Pure abstraction without transport details keeps
// room bookkeeping testable with in-memory fakes
type Conn interface {
	// ID returns the opaque connection identifier assigned on accept
	ID() string

	// Send queues an already encoded frame for delivery (thread-safe)
	// FUNCTIONAL DISCOVERY: Implementations must not block; a full queue is
	// reported as an error so one slow client cannot stall a broadcast
	Send(data []byte) error

	// Close terminates the connection; safe to call more than once
	Close() error
}
