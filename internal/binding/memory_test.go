package binding

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/DhruvWebDev/Deploify/internal/domain"
)

func TestPutIsInsertIfAbsent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := domain.SubdomainBinding{
		Subdomain:    "golden-harbor-4c1a",
		BackingKind:  domain.BackingLiveProcess,
		Endpoint:     "127.0.0.1:49155",
		ContainerRef: "c1",
	}
	if err := store.Put(ctx, first); err != nil {
		t.Fatalf("first put failed: %v", err)
	}

	second := first
	second.ContainerRef = "c2"
	if err := store.Put(ctx, second); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, err := store.Get(ctx, first.Subdomain)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ContainerRef != "c1" {
		t.Fatalf("existing binding was overwritten: %+v", got)
	}
}

func TestGetUnknownSubdomain(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveIsCompareAndRemove(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	b := domain.SubdomainBinding{Subdomain: "quiet-ridge-0001", BackingKind: domain.BackingLiveProcess, ContainerRef: "c1"}
	if err := store.Put(ctx, b); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	// Stale remove from a previous container must not delete the fresh binding.
	if err := store.Remove(ctx, b.Subdomain, "c0"); err != nil {
		t.Fatalf("stale remove errored: %v", err)
	}
	if _, err := store.Get(ctx, b.Subdomain); err != nil {
		t.Fatalf("binding removed by stale container ref: %v", err)
	}

	if err := store.Remove(ctx, b.Subdomain, "c1"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := store.Get(ctx, b.Subdomain); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
}

func TestRemoveMissingIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Remove(context.Background(), "never-bound", "c1"); err != nil {
		t.Fatalf("remove of missing binding errored: %v", err)
	}
}

func TestConcurrentPutAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		sub := string(rune('a'+i)) + "-subdomain-0000"
		go func(sub string) {
			defer wg.Done()
			_ = store.Put(ctx, domain.SubdomainBinding{Subdomain: sub, BackingKind: domain.BackingLiveProcess})
		}(sub)
		go func(sub string) {
			defer wg.Done()
			_, _ = store.Get(ctx, sub)
		}(sub)
	}
	wg.Wait()
}
