package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "gg", 24*time.Hour)

	return store, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func makeTestSession(id, userID, deviceID string) *Session {
	now := time.Now()
	return &Session{
		ID:                  id,
		UserID:              userID,
		Token:               "tok-" + id,
		DeviceFingerprintID: deviceID,
		IPAddress:           "203.0.113.10",
		UserAgent:           "Chrome/120.0",
		CreatedAt:           now,
		ExpiresAt:           now.Add(time.Hour),
	}
}

func testPolicy(maxConcurrent, maxPerDevice int) LimitPolicy {
	return LimitPolicy{
		MaxConcurrent:   maxConcurrent,
		MaxPerDevice:    maxPerDevice,
		SessionDuration: time.Hour,
	}
}

// mustCreate inserts a session and spaces LRU scores so eviction order is
// deterministic across fast successive calls.
func mustCreate(t *testing.T, store *Store, sess *Session, policy LimitPolicy) ([]string, []string) {
	t.Helper()

	evictedUser, evictedDevice, err := store.Create(context.Background(), sess, policy)
	if err != nil {
		t.Fatalf("Create %s failed: %v", sess.ID, err)
	}
	time.Sleep(2 * time.Millisecond)
	return evictedUser, evictedDevice
}

func TestCreateEvictsLeastRecentlyAccessed(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	policy := testPolicy(3, 0)
	for i := 1; i <= 3; i++ {
		sess := makeTestSession(fmt.Sprintf("s%d", i), "u1", "")
		if evicted, _ := mustCreate(t, store, sess, policy); len(evicted) != 0 {
			t.Fatalf("no eviction expected under the limit, got %v", evicted)
		}
	}

	// s1 is the LRU victim until it gets touched.
	if err := store.Touch(ctx, "s1"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	evicted, _ := mustCreate(t, store, makeTestSession("s4", "u1", ""), policy)
	if len(evicted) != 1 || evicted[0] != "s2" {
		t.Fatalf("expected s2 evicted after s1 was touched, got %v", evicted)
	}

	count, err := store.ActiveCount(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveCount failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 active sessions, got %d", count)
	}

	// The evicted row stays readable for inspection and reads inactive.
	victim, err := store.Get(ctx, "s2")
	if err != nil {
		t.Fatalf("Get evicted session failed: %v", err)
	}
	if victim.Active {
		t.Fatal("evicted session must be inactive")
	}
	if _, err := store.GetByToken(ctx, "tok-s2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("evicted session token must not resolve, got %v", err)
	}
}

func TestCreateEnforcesPerDeviceLimit(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	policy := testPolicy(10, 1)
	mustCreate(t, store, makeTestSession("s1", "u1", "dev-a"), policy)
	mustCreate(t, store, makeTestSession("s2", "u1", "dev-b"), policy)

	_, evictedDevice := mustCreate(t, store, makeTestSession("s3", "u1", "dev-a"), policy)
	if len(evictedDevice) != 1 || evictedDevice[0] != "s1" {
		t.Fatalf("expected s1 evicted for the device limit, got %v", evictedDevice)
	}

	count, err := store.ActiveCount(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveCount failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 active sessions, got %d", count)
	}
}

func TestCreateRetiresExpiredBeforeEvicting(t *testing.T) {
	ctx := context.Background()
	store, rdb, cleanup := newTestStore(t)
	defer cleanup()

	policy := testPolicy(2, 0)
	mustCreate(t, store, makeTestSession("s1", "u1", ""), policy)
	mustCreate(t, store, makeTestSession("s2", "u1", ""), policy)

	// Force s1 past its expiry; the next create must drop it instead of
	// evicting the still-live s2.
	past := time.Now().Add(-time.Minute).UnixMilli()
	if err := rdb.HSet(ctx, "gg:ses:s1", "expires_at", past).Err(); err != nil {
		t.Fatalf("force expire failed: %v", err)
	}

	evicted, _ := mustCreate(t, store, makeTestSession("s3", "u1", ""), policy)
	if len(evicted) != 0 {
		t.Fatalf("expected no LRU eviction when an expired session frees a slot, got %v", evicted)
	}

	ids, err := store.ActiveIDs(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveIDs failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 tracked sessions, got %v", ids)
	}
	for _, id := range ids {
		if id == "s1" {
			t.Fatal("expired s1 must no longer be tracked")
		}
	}
}

func TestCreateDropsIndexEntriesForMissingRows(t *testing.T) {
	ctx := context.Background()
	store, rdb, cleanup := newTestStore(t)
	defer cleanup()

	policy := testPolicy(3, 0)
	mustCreate(t, store, makeTestSession("s1", "u1", ""), policy)

	// A row that already fell out of Redis while its index entry survived,
	// as happens when the janitor lags past the retention window.
	if err := rdb.Del(ctx, "gg:ses:s1").Err(); err != nil {
		t.Fatalf("delete row failed: %v", err)
	}

	mustCreate(t, store, makeTestSession("s2", "u1", ""), policy)

	exists, err := rdb.Exists(ctx, "gg:ses:s1").Result()
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists != 0 {
		t.Fatal("retiring a missing row must not recreate its key")
	}

	ids, err := store.ActiveIDs(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "s2" {
		t.Fatalf("expected only s2 tracked, got %v", ids)
	}
}

func TestDeactivateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	mustCreate(t, store, makeTestSession("s1", "u1", "dev-a"), testPolicy(3, 2))

	wasActive, err := store.Deactivate(ctx, "s1")
	if err != nil {
		t.Fatalf("first Deactivate failed: %v", err)
	}
	if !wasActive {
		t.Fatal("expected first Deactivate to report the active->inactive flip")
	}

	wasActive, err = store.Deactivate(ctx, "s1")
	if err != nil {
		t.Fatalf("second Deactivate failed: %v", err)
	}
	if wasActive {
		t.Fatal("second Deactivate must be a no-op")
	}

	// Missing sessions are a successful no-op too.
	wasActive, err = store.Deactivate(ctx, "missing")
	if err != nil {
		t.Fatalf("Deactivate of missing session failed: %v", err)
	}
	if wasActive {
		t.Fatal("missing session cannot have been active")
	}

	sess, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if sess.Active {
		t.Fatal("session must stay inactive")
	}
}

func TestDeactivateAllForUser(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	policy := testPolicy(5, 0)
	for i := 1; i <= 3; i++ {
		mustCreate(t, store, makeTestSession(fmt.Sprintf("s%d", i), "u1", ""), policy)
	}
	mustCreate(t, store, makeTestSession("other", "u2", ""), policy)

	count, err := store.DeactivateAllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("DeactivateAllForUser failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 sessions deactivated, got %d", count)
	}

	active, err := store.ActiveCount(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveCount failed: %v", err)
	}
	if active != 0 {
		t.Fatalf("expected 0 active sessions, got %d", active)
	}

	// Repeat call sees nothing left to do.
	count, err = store.DeactivateAllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("repeat DeactivateAllForUser failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 on repeat, got %d", count)
	}

	otherActive, err := store.ActiveCount(ctx, "u2")
	if err != nil {
		t.Fatalf("ActiveCount u2 failed: %v", err)
	}
	if otherActive != 1 {
		t.Fatalf("other user's session must survive, got %d active", otherActive)
	}
}

func TestTouchBumpsBookkeeping(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	mustCreate(t, store, makeTestSession("s1", "u1", ""), testPolicy(3, 0))

	before, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if err := store.Touch(ctx, "s1"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	if err := store.Touch(ctx, "s1"); err != nil {
		t.Fatalf("second Touch failed: %v", err)
	}

	after, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if after.AccessCount != before.AccessCount+2 {
		t.Fatalf("expected access count %d, got %d", before.AccessCount+2, after.AccessCount)
	}
	if after.LastAccessed.Before(before.LastAccessed) {
		t.Fatal("last accessed must not move backwards")
	}
}

func TestGetByToken(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	mustCreate(t, store, makeTestSession("s1", "u1", ""), testPolicy(3, 0))

	sess, err := store.GetByToken(ctx, "tok-s1")
	if err != nil {
		t.Fatalf("GetByToken failed: %v", err)
	}
	if sess.ID != "s1" || sess.UserID != "u1" {
		t.Fatalf("unexpected session %+v", sess)
	}

	if _, err := store.GetByToken(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	store, rdb, cleanup := newTestStore(t)
	defer cleanup()

	policy := testPolicy(5, 0)
	mustCreate(t, store, makeTestSession("s1", "u1", ""), policy)
	mustCreate(t, store, makeTestSession("s2", "u1", ""), policy)
	mustCreate(t, store, makeTestSession("s3", "u2", ""), policy)

	past := time.Now().Add(-time.Minute).UnixMilli()
	for _, id := range []string{"s1", "s3"} {
		if err := rdb.HSet(ctx, "gg:ses:"+id, "expires_at", past).Err(); err != nil {
			t.Fatalf("force expire %s failed: %v", id, err)
		}
	}

	removed := 0
	cursor := uint64(0)
	for {
		next, n, err := store.SweepExpired(ctx, cursor, 100)
		if err != nil {
			t.Fatalf("SweepExpired failed: %v", err)
		}
		removed += n
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if removed != 2 {
		t.Fatalf("expected 2 sessions swept, got %d", removed)
	}

	for user, want := range map[string]int{"u1": 1, "u2": 0} {
		count, err := store.ActiveCount(ctx, user)
		if err != nil {
			t.Fatalf("ActiveCount %s failed: %v", user, err)
		}
		if count != want {
			t.Fatalf("expected %d active for %s, got %d", want, user, count)
		}
	}

	swept, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get swept session failed: %v", err)
	}
	if swept.Active {
		t.Fatal("swept session must read inactive")
	}
}

func TestShouldEmitAnomalyDedups(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	emit, err := store.ShouldEmitAnomaly(ctx, "s1", "ip_address_changed", time.Minute)
	if err != nil {
		t.Fatalf("ShouldEmitAnomaly failed: %v", err)
	}
	if !emit {
		t.Fatal("first anomaly of a kind must emit")
	}

	emit, err = store.ShouldEmitAnomaly(ctx, "s1", "ip_address_changed", time.Minute)
	if err != nil {
		t.Fatalf("ShouldEmitAnomaly failed: %v", err)
	}
	if emit {
		t.Fatal("repeat anomaly within the window must be suppressed")
	}

	// A different kind has its own window.
	emit, err = store.ShouldEmitAnomaly(ctx, "s1", "user_agent_changed", time.Minute)
	if err != nil {
		t.Fatalf("ShouldEmitAnomaly failed: %v", err)
	}
	if !emit {
		t.Fatal("different anomaly kinds must not share a window")
	}
}

func TestStoreUnavailableBackend(t *testing.T) {
	ctx := context.Background()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "gg", time.Hour)
	mr.Close()
	defer rdb.Close()

	if _, _, err := store.Create(ctx, makeTestSession("s1", "u1", ""), testPolicy(3, 0)); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from Create, got %v", err)
	}
	if _, err := store.GetByToken(ctx, "tok"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from GetByToken, got %v", err)
	}
}
