package stream

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const payloadField = "payload"

// RedisPublisher appends messages to a Redis stream topic.
type RedisPublisher struct {
	client *redis.Client
	topic  string
}

// NewRedisPublisher validates connectivity and returns a publisher for topic.
func NewRedisPublisher(client *redis.Client, topic string) (*RedisPublisher, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect log transport: %w", err)
	}
	return &RedisPublisher{client: client, topic: topic}, nil
}

var _ Publisher = (*RedisPublisher)(nil)

// Publish appends the payload to the stream.
func (p *RedisPublisher) Publish(ctx context.Context, payload []byte) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.topic,
		Values: map[string]any{payloadField: payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// RedisConsumer reads a stream through a consumer group. The group is created
// at offset 0 so a fresh consumer sees the earliest retained messages, and a
// restarted consumer first drains its own unacknowledged backlog.
type RedisConsumer struct {
	client   *redis.Client
	topic    string
	group    string
	consumer string
	caughtUp bool
}

// NewRedisConsumer ensures the consumer group exists and returns a consumer.
func NewRedisConsumer(client *redis.Client, topic, group, consumer string) (*RedisConsumer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := client.XGroupCreateMkStream(ctx, topic, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return &RedisConsumer{client: client, topic: topic, group: group, consumer: consumer}, nil
}

var _ Consumer = (*RedisConsumer)(nil)

// Fetch returns up to max messages, blocking up to the given duration when the
// stream is empty. Unacknowledged messages from a previous run of the same
// consumer are delivered before any new ones.
func (c *RedisConsumer) Fetch(ctx context.Context, max int, block time.Duration) ([]Message, error) {
	cursor := ">"
	if !c.caughtUp {
		cursor = "0"
	}
	res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.topic, cursor},
		Count:    int64(max),
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", c.topic, err)
	}

	var messages []Message
	for _, stream := range res {
		for _, entry := range stream.Messages {
			payload, _ := entry.Values[payloadField].(string)
			messages = append(messages, Message{ID: entry.ID, Payload: []byte(payload)})
		}
	}
	if !c.caughtUp && len(messages) == 0 {
		c.caughtUp = true
	}
	return messages, nil
}

// Ack commits the given message ids.
func (c *RedisConsumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, c.topic, c.group, ids...).Err(); err != nil {
		return fmt.Errorf("ack on %s: %w", c.topic, err)
	}
	return nil
}

// Close is a no-op; the shared Redis client is owned by the caller.
func (c *RedisConsumer) Close() error { return nil }
