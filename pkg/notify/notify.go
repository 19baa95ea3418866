package notify

import "context"

// Message is a rendered notification ready for delivery on one channel.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a message over a single channel. Implementations must
// be safe for concurrent use; the reminder queue calls them from
// multiple workers.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Channel() string
}
