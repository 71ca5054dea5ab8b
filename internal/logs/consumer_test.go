package logs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DhruvWebDev/Deploify/internal/stream"
)

type fakeSource struct {
	mu      sync.Mutex
	batches [][]stream.Message
	acked   []string
}

func (f *fakeSource) Fetch(_ context.Context, _ int, _ time.Duration) ([]stream.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeSource) Ack(_ context.Context, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return nil
}

func (f *fakeSource) Close() error { return nil }

func payloadFor(t *testing.T, deployID, msg string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"deploy_id": deployID,
		"level":     Classify(msg),
		"log":       msg,
		"timestamp": time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestConsumerPersistsBatchThenAcks(t *testing.T) {
	source := &fakeSource{batches: [][]stream.Message{{
		{ID: "1-0", Payload: payloadFor(t, "dep-1", "cloning repository")},
		{ID: "1-1", Payload: payloadFor(t, "dep-1", "build success")},
	}}}
	store := &fakeLogStore{}
	c := NewConsumer(source, store, discardLogger(), 10, time.Millisecond)

	if err := c.consumeOnce(context.Background()); err != nil {
		t.Fatalf("consumeOnce failed: %v", err)
	}

	if len(store.events) != 2 {
		t.Fatalf("expected 2 persisted events, got %d", len(store.events))
	}
	if store.events[0].EventID == store.events[1].EventID {
		t.Fatal("event ids must be unique per persisted event")
	}
	if len(source.acked) != 2 {
		t.Fatalf("expected 2 acks, got %d", len(source.acked))
	}
}

func TestConsumerDoesNotAckOnInsertFailure(t *testing.T) {
	source := &fakeSource{batches: [][]stream.Message{{
		{ID: "1-0", Payload: payloadFor(t, "dep-1", "hello")},
	}}}
	store := &fakeLogStore{insertErr: errors.New("store unavailable")}
	c := NewConsumer(source, store, discardLogger(), 10, time.Millisecond)

	if err := c.consumeOnce(context.Background()); err == nil {
		t.Fatal("expected error from failed insert")
	}
	if len(source.acked) != 0 {
		t.Fatalf("batch must not be acked on insert failure, acked %d", len(source.acked))
	}
}

func TestConsumerDropsUndecodableMessages(t *testing.T) {
	source := &fakeSource{batches: [][]stream.Message{{
		{ID: "1-0", Payload: []byte("not json")},
		{ID: "1-1", Payload: payloadFor(t, "dep-1", "ok")},
	}}}
	store := &fakeLogStore{}
	c := NewConsumer(source, store, discardLogger(), 10, time.Millisecond)

	if err := c.consumeOnce(context.Background()); err != nil {
		t.Fatalf("consumeOnce failed: %v", err)
	}
	if len(store.events) != 1 {
		t.Fatalf("expected 1 persisted event, got %d", len(store.events))
	}
	// The bad message is still acked so it is not redelivered forever.
	if len(source.acked) != 2 {
		t.Fatalf("expected 2 acks, got %d", len(source.acked))
	}
}
