package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Johnr24/neso-octowatch/pkg/log"
	"github.com/Johnr24/neso-octowatch/pkg/types"
	"github.com/levenlabs/go-lflag"
	"github.com/redis/go-redis/v9"
)

// RedisSink stores the state mapping as a JSON blob under a fixed key, for
// consumers that poll a shared cache instead of the local filesystem.
type RedisSink struct {
	url    string
	key    string
	ttl    time.Duration
	client *redis.Client
}

func configuredRedisSink() *RedisSink {
	r := &RedisSink{}
	url := lflag.String("redis-url", "redis://localhost:6379", "Redis URL for the redis publish sink")
	key := lflag.String("redis-key", "neso_octowatch:states", "Redis key holding the published states")
	ttl := lflag.Duration("redis-ttl", 0, "Expiry for the published states key (0 means no expiry)")

	lflag.Do(func() {
		r.url = *url
		r.key = *key
		r.ttl = *ttl
	})

	return r
}

// Init connects and verifies the Redis server is reachable.
func (r *RedisSink) Init(ctx context.Context) error {
	opt, err := redis.ParseURL(r.url)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	r.client = client
	return nil
}

// Publish SETs the mapping, replacing the previous blob atomically.
func (r *RedisSink) Publish(ctx context.Context, states types.States) error {
	data, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("failed to marshal states: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"published states to redis",
		slog.String("key", r.key),
		slog.Int("bytes", len(data)),
	)
	return nil
}

func (r *RedisSink) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
