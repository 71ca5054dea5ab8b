package logs

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/cenkalti/backoff/v4"

	"github.com/DhruvWebDev/Deploify/internal/domain"
	"github.com/DhruvWebDev/Deploify/internal/repository"
	"github.com/DhruvWebDev/Deploify/internal/stream"
)

// Consumer drains the transport in batches and persists events into the
// analytical store. Offsets are committed only after a successful batch
// insert, so a crash mid-batch re-delivers that batch (at-least-once).
type Consumer struct {
	source    stream.Consumer
	store     repository.LogEventRepository
	logger    *slog.Logger
	batchSize int
	block     time.Duration
}

// NewConsumer constructs a log consumer.
func NewConsumer(source stream.Consumer, store repository.LogEventRepository, logger *slog.Logger, batchSize int, block time.Duration) *Consumer {
	if batchSize <= 0 {
		batchSize = 100
	}
	if block <= 0 {
		block = 5 * time.Second
	}
	return &Consumer{source: source, store: store, logger: logger, batchSize: batchSize, block: block}
}

// Run consumes until ctx is cancelled. Transport and store errors are retried
// with exponential backoff rather than crashing the process.
func (c *Consumer) Run(ctx context.Context) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.consumeOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			wait := policy.NextBackOff()
			c.logger.Warn("log consumer iteration failed", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		policy.Reset()
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	messages, err := c.source.Fetch(ctx, c.batchSize, c.block)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	events := make([]domain.LogEvent, 0, len(messages))
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		event, err := decodeEvent(msg)
		if err != nil {
			// A malformed payload can never become insertable; drop it.
			c.logger.Warn("dropping undecodable log message", "id", msg.ID, "error", err)
			ids = append(ids, msg.ID)
			continue
		}
		events = append(events, event)
		ids = append(ids, msg.ID)
	}

	if err := c.store.InsertLogEvents(ctx, events); err != nil {
		return err
	}
	if err := c.source.Ack(ctx, ids...); err != nil {
		return err
	}
	c.logger.Debug("log batch persisted", "count", len(events))
	return nil
}
