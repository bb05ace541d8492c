package interfaces

// Peer is a connected signaling client as seen by the room registry.
// ARCHITECTURAL DISCOVERY: Pure abstraction keeps the registry free of
// websocket details and lets tests substitute recording fakes
type Peer interface {
	// ID returns the server-assigned connection id
	ID() string

	// Send queues v for delivery without blocking. It returns an error
	// when the peer is closed or its outbound buffer is full.
	Send(v interface{}) error

	Close() error
}
