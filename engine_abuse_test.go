package goGate

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// seedIPTraffic populates the limiter's window and index keys as if n
// requests from ip hit endpoint within the current scoring window.
func seedIPTraffic(t *testing.T, h *testHarness, ip, endpoint string, n int) {
	t.Helper()

	ctx := context.Background()
	now := float64(time.Now().UnixMilli())
	prefix := h.engine.config.RedisPrefix

	members := make([]redis.Z, 0, n)
	for i := 0; i < n; i++ {
		members = append(members, redis.Z{Score: now, Member: endpoint + "-" + strconv.Itoa(i)})
	}
	if err := h.rdb.ZAdd(ctx, prefix+":rlw:ip:"+ip+":"+endpoint, members...).Err(); err != nil {
		t.Fatalf("seed window failed: %v", err)
	}
	if err := h.rdb.ZAdd(ctx, prefix+":rle:ip:"+ip, redis.Z{Score: now, Member: endpoint}).Err(); err != nil {
		t.Fatalf("seed index failed: %v", err)
	}
}

func TestScoreAbuseRiskFloodBlocksAndEmits(t *testing.T) {
	ctx := context.Background()
	sink := newCaptureSink(64)
	h, cleanup := newTestEngine(t, testConfig(), sink)
	defer cleanup()

	seedIPTraffic(t, h, "203.0.113.10", "/api/data", 1001)

	risk, err := h.engine.ScoreAbuseRisk(ctx, "203.0.113.10")
	if err != nil {
		t.Fatalf("ScoreAbuseRisk failed: %v", err)
	}
	if !risk.Blocked {
		t.Fatal("expected block for a single-endpoint flood")
	}
	if risk.Score != 120 {
		t.Fatalf("expected score 120, got %d", risk.Score)
	}
	if risk.RetryAfter != 60*time.Second {
		t.Fatalf("expected 60s retry, got %v", risk.RetryAfter)
	}

	ev := waitForEvent(t, sink, EventDDoSAttempt)
	if ev.Severity != Severity(120) {
		t.Fatalf("expected severity to carry the raw score, got %d", ev.Severity)
	}
	if ev.IPAddress != "203.0.113.10" {
		t.Fatalf("expected the scored IP on the event, got %q", ev.IPAddress)
	}
	if ev.Metadata["score"] != "120" {
		t.Fatalf("unexpected event metadata %v", ev.Metadata)
	}
}

func TestScoreAbuseRiskSpreadTrafficPasses(t *testing.T) {
	ctx := context.Background()
	h, cleanup := newTestEngine(t, testConfig(), nil)
	defer cleanup()

	for i := 0; i < 10; i++ {
		seedIPTraffic(t, h, "203.0.113.10", "/api/page-"+strconv.Itoa(i), 5)
	}

	risk, err := h.engine.ScoreAbuseRisk(ctx, "203.0.113.10")
	if err != nil {
		t.Fatalf("ScoreAbuseRisk failed: %v", err)
	}
	if risk.Blocked || risk.Score != 0 {
		t.Fatalf("expected benign browsing to pass, got %+v", risk)
	}
	if risk.TotalRequests != 50 || risk.DistinctEndpoints != 10 {
		t.Fatalf("unexpected aggregates %+v", risk)
	}
}

func TestScoreAbuseRiskEmptyIP(t *testing.T) {
	h, cleanup := newTestEngine(t, testConfig(), nil)
	defer cleanup()

	risk, err := h.engine.ScoreAbuseRisk(context.Background(), "  ")
	if err != nil {
		t.Fatalf("ScoreAbuseRisk failed: %v", err)
	}
	if risk.Blocked || risk.Score != 0 {
		t.Fatalf("blank IP must score zero, got %+v", risk)
	}
}

func TestScoreAbuseRiskFailsOpen(t *testing.T) {
	ctx := context.Background()
	h, cleanup := newTestEngine(t, testConfig(), nil)
	defer cleanup()

	h.mr.Close()

	risk, err := h.engine.ScoreAbuseRisk(ctx, "203.0.113.10")
	if err != nil {
		t.Fatalf("fail-open must not surface an error, got %v", err)
	}
	if risk.Blocked {
		t.Fatal("backend outage must not block")
	}

	snapshot := h.engine.MetricsSnapshot()
	if snapshot.Counters[MetricAbuseFailOpen] != 1 {
		t.Fatalf("expected fail-open counted once, got %d", snapshot.Counters[MetricAbuseFailOpen])
	}
}

func TestRateLimitTrafficFeedsAbuseScoring(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.RateLimit.Rules = nil
	cfg.RateLimit.Default = RateLimitRule{Window: time.Minute, MaxRequests: 1000}
	h, cleanup := newTestEngine(t, cfg, nil)
	defer cleanup()

	// Real traffic through the limiter, not seeded keys: the scorer reads
	// whatever the limiter recorded.
	for i := 0; i < 30; i++ {
		if _, err := h.engine.CheckRateLimit(ctx, "ip:203.0.113.10", "/api/auth/login"); err != nil {
			t.Fatalf("CheckRateLimit failed: %v", err)
		}
	}

	risk, err := h.engine.ScoreAbuseRisk(ctx, "203.0.113.10")
	if err != nil {
		t.Fatalf("ScoreAbuseRisk failed: %v", err)
	}
	if risk.TotalRequests != 30 {
		t.Fatalf("expected the limiter's 30 requests visible, got %d", risk.TotalRequests)
	}
	if risk.Score != 60 {
		t.Fatalf("expected the auth hammering bonus alone, got score %d", risk.Score)
	}
	if risk.Blocked {
		t.Fatal("score 60 must stay under the default threshold")
	}
}
