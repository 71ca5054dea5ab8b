package binding

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/DhruvWebDev/Deploify/internal/domain"
)

// compareAndRemove deletes the binding key only if the stored container ref
// still matches, so a racing re-provision keeps its fresh entry.
var compareAndRemove = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
	return 0
end
local stored = cjson.decode(raw)
if ARGV[1] == "" or stored["container_ref"] == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore persists subdomain bindings in Redis so the router and the
// coordinator can run as separate processes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and validates connectivity.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect binding store: %w", err)
	}
	return &RedisStore{client: client, prefix: "deploify:binding:"}, nil
}

var _ Store = (*RedisStore)(nil)

type redisBinding struct {
	BackingKind  string `json:"backing_kind"`
	Endpoint     string `json:"endpoint"`
	ContainerRef string `json:"container_ref"`
}

// Put inserts the binding with SET NX semantics.
func (s *RedisStore) Put(ctx context.Context, b domain.SubdomainBinding) error {
	payload, err := json.Marshal(redisBinding{
		BackingKind:  b.BackingKind,
		Endpoint:     b.Endpoint,
		ContainerRef: b.ContainerRef,
	})
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.prefix+b.Subdomain, payload, 0).Result()
	if err != nil {
		return fmt.Errorf("put binding: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

// Get returns the binding for a subdomain.
func (s *RedisStore) Get(ctx context.Context, subdomain string) (domain.SubdomainBinding, error) {
	raw, err := s.client.Get(ctx, s.prefix+subdomain).Bytes()
	if err == redis.Nil {
		return domain.SubdomainBinding{}, ErrNotFound
	}
	if err != nil {
		return domain.SubdomainBinding{}, fmt.Errorf("get binding: %w", err)
	}
	var stored redisBinding
	if err := json.Unmarshal(raw, &stored); err != nil {
		return domain.SubdomainBinding{}, fmt.Errorf("decode binding: %w", err)
	}
	return domain.SubdomainBinding{
		Subdomain:    subdomain,
		BackingKind:  stored.BackingKind,
		Endpoint:     stored.Endpoint,
		ContainerRef: stored.ContainerRef,
	}, nil
}

// Remove deletes the binding only while it still references containerRef.
func (s *RedisStore) Remove(ctx context.Context, subdomain, containerRef string) error {
	if err := compareAndRemove.Run(ctx, s.client, []string{s.prefix + subdomain}, containerRef).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("remove binding: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
