// Package queue wraps the message transport behind small interfaces so
// the worker loop can be driven by any at-least-once pull queue. The
// production implementation rides NATS JetStream; tests use in-memory
// fakes.
package queue

import (
	"context"
	"time"
)

// Message is one delivery of a queue message. It carries the payload,
// the transport-supplied delivery-attempt counter, and the ack/nack
// handle. Messages are ephemeral and never persisted.
type Message interface {
	// Data returns the raw message payload.
	Data() []byte

	// Deliveries returns how many times the transport has delivered
	// this message, starting at 1 for the first delivery.
	Deliveries() int

	// Ack acknowledges the message, removing it from the queue.
	Ack() error

	// Nak negatively acknowledges the message, requesting redelivery.
	// The transport dead-letters the message once its configured
	// maximum delivery count is exhausted.
	Nak() error
}

// Consumer pulls batches of messages from the queue.
type Consumer interface {
	// Pull fetches up to max messages, waiting at most maxWait for the
	// first to arrive. An empty slice with a nil error means the queue
	// had nothing to deliver within the window.
	Pull(ctx context.Context, max int, maxWait time.Duration) ([]Message, error)
}

// Publisher sends messages to a subject. Used by the producer tool and
// by the notifier.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}
