package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable indicates the fingerprint backend is unreachable.
var ErrRedisUnavailable = errors.New("fingerprint backend unavailable")

// ErrNotFound is returned when no fingerprint exists for the given id.
var ErrNotFound = errors.New("fingerprint not found")

// upsertScript is the atomic insert-on-conflict-update for a sighting.
// Concurrent first sights of the same (user, hash) race on the index key
// inside a single script, so exactly one row is ever created.
const upsertScript = `
local existing = redis.call("GET", KEYS[1])
if existing then
  local key = ARGV[1] .. existing
  redis.call("HINCRBY", key, "access_count", 1)
  redis.call("HSET", key, "last_seen", ARGV[3])
  return {0, existing}
end

local key = ARGV[1] .. ARGV[2]
redis.call("SET", KEYS[1], ARGV[2])
redis.call("SADD", KEYS[2], ARGV[2])
redis.call("HSET", key,
  "id", ARGV[2],
  "user_id", ARGV[4],
  "hash", ARGV[5],
  "user_agent", ARGV[6],
  "ip_address", ARGV[7],
  "screen_resolution", ARGV[8],
  "timezone", ARGV[9],
  "language", ARGV[10],
  "platform", ARGV[11],
  "is_mobile", ARGV[12],
  "is_tablet", ARGV[13],
  "trusted", "0",
  "first_seen", ARGV[3],
  "last_seen", ARGV[3],
  "access_count", "1")
return {1, ARGV[2]}
`

var upsertLua = redis.NewScript(upsertScript)

const setTrustScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "trusted", ARGV[1])
return 1
`

var setTrustLua = redis.NewScript(setTrustScript)

// Registry is a Redis-backed device fingerprint registry. Rows live at
// <prefix>:dfp:<id>, with a (user, hash) index at <prefix>:dfi:<user>:<hash>
// and a per-user id set at <prefix>:dfu:<user>.
type Registry struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRegistry creates a fingerprint [Registry] backed by the given Redis
// client. prefix sets the Redis key namespace.
func NewRegistry(redisClient redis.UniversalClient, prefix string) *Registry {
	return &Registry{redis: redisClient, prefix: prefix}
}

func (r *Registry) rowKey(id string) string {
	return r.prefix + ":dfp:" + id
}

func (r *Registry) rowPrefix() string {
	return r.prefix + ":dfp:"
}

func (r *Registry) indexKey(userID, hash string) string {
	return r.prefix + ":dfi:" + userID + ":" + hash
}

func (r *Registry) userKey(userID string) string {
	return r.prefix + ":dfu:" + userID
}

// GetOrCreate records a sighting of the device described by sig for userID.
// A repeat sighting updates last_seen and increments access_count on the
// existing row; a first sighting inserts a new untrusted row under
// candidateID. Returns the stored fingerprint and whether it was created.
//
//	Performance: 1 Lua EVALSHA + 1 HGETALL.
func (r *Registry) GetOrCreate(ctx context.Context, userID, candidateID string, sig Signals) (*DeviceFingerprint, bool, error) {
	hash := ComputeHash(sig)
	now := time.Now().UnixMilli()

	result, err := upsertLua.Run(ctx, r.redis,
		[]string{r.indexKey(userID, hash), r.userKey(userID)},
		r.rowPrefix(),
		candidateID,
		now,
		userID,
		hash,
		sig.UserAgent,
		sig.IPAddress,
		sig.ScreenResolution,
		sig.Timezone,
		sig.Language,
		sig.Platform,
		boolField(isMobile(sig.UserAgent)),
		boolField(isTablet(sig.UserAgent)),
	).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	created, id, err := parseUpsertReply(result)
	if err != nil {
		return nil, false, err
	}

	fp, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return fp, created, nil
}

// Get loads a fingerprint row by id.
//
//	Performance: 1 HGETALL.
func (r *Registry) Get(ctx context.Context, id string) (*DeviceFingerprint, error) {
	fields, err := r.redis.HGetAll(ctx, r.rowKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return parseFingerprint(fields)
}

// Trust marks a fingerprint as operator-trusted. Persistence only, no
// other side effects.
func (r *Registry) Trust(ctx context.Context, id string) error {
	return r.setTrusted(ctx, id, true)
}

// Untrust revokes operator trust from a fingerprint.
func (r *Registry) Untrust(ctx context.Context, id string) error {
	return r.setTrusted(ctx, id, false)
}

func (r *Registry) setTrusted(ctx context.Context, id string, trusted bool) error {
	result, err := setTrustLua.Run(ctx, r.redis, []string{r.rowKey(id)}, boolField(trusted)).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if result == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForUser returns all fingerprints sighted for a user, in unspecified
// order. Admin surface; not a request hot path.
func (r *Registry) ListForUser(ctx context.Context, userID string) ([]*DeviceFingerprint, error) {
	ids, err := r.redis.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*DeviceFingerprint{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]*DeviceFingerprint, 0, len(ids))
	for _, id := range ids {
		fp, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, fp)
	}
	return out, nil
}

func parseUpsertReply(result interface{}) (bool, string, error) {
	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return false, "", fmt.Errorf("%w: invalid upsert script response", ErrRedisUnavailable)
	}

	created, ok := parts[0].(int64)
	if !ok {
		return false, "", fmt.Errorf("%w: invalid upsert script status", ErrRedisUnavailable)
	}

	id, ok := parts[1].(string)
	if !ok {
		return false, "", fmt.Errorf("%w: invalid upsert script id", ErrRedisUnavailable)
	}

	return created == 1, id, nil
}

func parseFingerprint(fields map[string]string) (*DeviceFingerprint, error) {
	accessCount, err := strconv.ParseInt(fields["access_count"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt fingerprint row: access_count: %v", err)
	}

	firstSeen, err := parseMilli(fields["first_seen"])
	if err != nil {
		return nil, fmt.Errorf("corrupt fingerprint row: first_seen: %v", err)
	}
	lastSeen, err := parseMilli(fields["last_seen"])
	if err != nil {
		return nil, fmt.Errorf("corrupt fingerprint row: last_seen: %v", err)
	}

	return &DeviceFingerprint{
		ID:               fields["id"],
		UserID:           fields["user_id"],
		Hash:             fields["hash"],
		UserAgent:        fields["user_agent"],
		IPAddress:        fields["ip_address"],
		ScreenResolution: fields["screen_resolution"],
		Timezone:         fields["timezone"],
		Language:         fields["language"],
		Platform:         fields["platform"],
		IsMobile:         fields["is_mobile"] == "1",
		IsTablet:         fields["is_tablet"] == "1",
		Trusted:          fields["trusted"] == "1",
		FirstSeen:        firstSeen,
		LastSeen:         lastSeen,
		AccessCount:      accessCount,
	}, nil
}

func parseMilli(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
