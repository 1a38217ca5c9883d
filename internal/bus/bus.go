// Package bus declares the message-bus interfaces the Aggregator
// Actor consumes, mirroring spec.md's three-inbox model (Control,
// Stream, Mailbox). Concrete implementations live in
// internal/transport/pgbus; the actor never imports that package
// directly so it can be driven by a fake in tests.
package bus

import (
	"context"
	"time"
)

// StreamMessage is one frame received off a subscribed stream
// (ASSETS or ALERTS).
type StreamMessage struct {
	Stream string
	Subject string
	Body    []byte
}

// MailboxMessage is one inbound request or reply delivered to this
// service's mailbox address.
type MailboxMessage struct {
	From      string
	Subject   string
	Frames    [][]byte
	CorrelationID string
}

// StreamConsumer subscribes to a named stream and receives every
// frame published to it matching pattern (an empty pattern matches
// everything).
type StreamConsumer interface {
	Subscribe(ctx context.Context, stream, pattern string) (<-chan StreamMessage, error)
}

// Mailbox sends requests to, and receives requests/replies from,
// other bus peers.
type Mailbox interface {
	// SendRequest delivers frames to the peer named by to under
	// subject, and returns once the send completes (not once a reply
	// arrives — replies surface on Replies()).
	SendRequest(ctx context.Context, to, subject string, frames [][]byte) error

	// Reply answers the request identified by correlationID.
	Reply(ctx context.Context, to, subject, correlationID string, frames [][]byte) error

	// Replies delivers every inbound mailbox message: both requests
	// other peers send this service, and replies to requests this
	// service sent.
	Replies() <-chan MailboxMessage
}

// RequestTimeout is a default SendRequest-to-reply window. Nothing in
// this module reads it: SendRequest takes no timeout, and a lost
// resync reply is handled by the ResyncController watchdog.
const RequestTimeout = 30 * time.Second
