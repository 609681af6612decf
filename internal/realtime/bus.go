// Package realtime fans scene change events out to preview listeners:
// simulator windows subscribed to live edits. A memory bus serves a
// single process; the Redis bus broadcasts across nodes.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skysketch/editor-backend/internal/platform/logger"
)

// Event announces that a scene's canvas changed. Listeners refetch the
// document rather than receive it inline.
type Event struct {
	SceneID    string `json:"sceneId"`
	ActionType string `json:"actionType"`
	Timestamp  int64  `json:"timestamp"`
}

type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, onEvent func(ev Event)) error
	Close() error
}

// memoryBus is the in-process default.
type memoryBus struct {
	mu   sync.Mutex
	subs []func(ev Event)
}

func NewMemoryBus() Bus {
	return &memoryBus{}
}

func (b *memoryBus) Publish(ctx context.Context, ev Event) error {
	b.mu.Lock()
	subs := make([]func(ev Event), len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
	return nil
}

func (b *memoryBus) Subscribe(ctx context.Context, onEvent func(ev Event)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, onEvent)
	return nil
}

func (b *memoryBus) Close() error { return nil }

type redisBus struct {
	log     *logger.Logger
	rdb     *redis.Client
	channel string
}

// NewRedisBus connects the cross-node preview bus. Requires
// REDIS_ADDR; the channel defaults to "canvas_preview".
func NewRedisBus(log *logger.Logger) (Bus, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_CHANNEL"))
	if ch == "" {
		ch = "canvas_preview"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisBus{
		log:     log.With("service", "RedisPreviewBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *redisBus) Subscribe(ctx context.Context, onEvent func(ev Event)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad preview payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()

	return nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

// FromEnv picks the Redis bus when REDIS_ADDR is set, otherwise the
// memory bus.
func FromEnv(log *logger.Logger) Bus {
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) == "" {
		return NewMemoryBus()
	}
	bus, err := NewRedisBus(log)
	if err != nil {
		log.Warn("redis preview bus unavailable, falling back to memory bus", "error", err)
		return NewMemoryBus()
	}
	return bus
}
