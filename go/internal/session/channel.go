package session

import "context"

// Channel is the single bidirectional connection a session owns.
type Channel interface {
	// ID identifies the connection in logs.
	ID() string
	// Send queues a raw guess for delivery. It does not block on the network.
	Send(word string) error
	// Close tears the connection down. It is idempotent.
	Close() error
}

// Handler receives channel events. Implementations of Dialer must call
// OnMessage sequentially in arrival order, and OnClose at most once after
// the last OnMessage.
type Handler struct {
	OnMessage func(data []byte)
	OnClose   func(err error)
}

// Dialer opens session channels.
type Dialer interface {
	Dial(ctx context.Context, url string, h Handler) (Channel, error)
}
