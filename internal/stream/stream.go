// Package stream is the durable, ordered, at-least-once log transport.
package stream

import (
	"context"
	"time"
)

// Message is one delivered transport record.
type Message struct {
	ID      string
	Payload []byte
}

// Publisher appends payloads to a topic. Delivery is at-least-once; callers
// treat Publish as fire-and-forget beyond the transport's own guarantee.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Consumer reads batches from a topic within a consumer group and commits
// offsets by acknowledging message ids after the batch is persisted.
type Consumer interface {
	Fetch(ctx context.Context, max int, block time.Duration) ([]Message, error)
	Ack(ctx context.Context, ids ...string) error
	Close() error
}
