package realtime

import (
	"context"
	"testing"

	"github.com/skysketch/editor-backend/internal/platform/logger"
)

func TestMemoryBusDelivers(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var got []Event
	if err := bus.Subscribe(ctx, func(ev Event) { got = append(got, ev) }); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := bus.Publish(ctx, Event{SceneID: "s1", ActionType: "dotsPlaced", Timestamp: 5}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(got) != 1 || got[0].SceneID != "s1" || got[0].ActionType != "dotsPlaced" {
		t.Fatalf("event not delivered: %+v", got)
	}
}

func TestMemoryBusFansOut(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var a, b int
	bus.Subscribe(ctx, func(ev Event) { a++ })
	bus.Subscribe(ctx, func(ev Event) { b++ })
	bus.Publish(ctx, Event{SceneID: "s1"})
	bus.Publish(ctx, Event{SceneID: "s2"})
	if a != 2 || b != 2 {
		t.Fatalf("both subscribers should see every event, got %d and %d", a, b)
	}
}

func TestMemoryBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	if err := bus.Publish(context.Background(), Event{SceneID: "s1"}); err != nil {
		t.Fatalf("publish without subscribers should succeed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestFromEnvDefaultsToMemory(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	bus := FromEnv(logger.NewNop())
	if _, ok := bus.(*memoryBus); !ok {
		t.Fatalf("empty REDIS_ADDR should select the memory bus, got %T", bus)
	}
}
