package goGate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goGate/session"
)

type captureSink struct {
	events chan SecurityEvent
}

func newCaptureSink(buffer int) *captureSink {
	return &captureSink{events: make(chan SecurityEvent, buffer)}
}

func (s *captureSink) Emit(ctx context.Context, event SecurityEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// waitForEvent drains the sink until an event of the wanted type arrives
// or the deadline passes.
func waitForEvent(t *testing.T, sink *captureSink, eventType string) SecurityEvent {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.events:
			if ev.EventType == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected %s event", eventType)
		}
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Events.BufferSize = 64
	cfg.Events.DropIfFull = false
	cfg.Metrics.Enabled = true
	cfg.Janitor.Enabled = false
	return cfg
}

type testHarness struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

func newTestEngine(t *testing.T, cfg Config, sink EventSink) (*testHarness, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithEventSink(sink).
		WithPlanSource(StaticPlanSource{}).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("engine build failed: %v", err)
	}

	h := &testHarness{engine: engine, mr: mr, rdb: rdb}
	return h, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

// expireSession rewrites a session row's expiry to the past, simulating
// elapsed wall-clock time.
func (h *testHarness) expireSession(t *testing.T, sessionID string) {
	t.Helper()

	key := h.engine.config.RedisPrefix + ":ses:" + sessionID
	past := time.Now().Add(-time.Minute).UnixMilli()
	if err := h.rdb.HSet(context.Background(), key, "expires_at", past).Err(); err != nil {
		t.Fatalf("force expire: %v", err)
	}
}

// activePolicy returns the effective policy the engine would apply to a
// user, for assertions.
func (h *testHarness) activePolicy(userID string) session.LimitPolicy {
	return h.engine.policyFor(context.Background(), userID)
}
