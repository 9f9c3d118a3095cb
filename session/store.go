package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable indicates the session backend is unreachable.
var ErrRedisUnavailable = errors.New("session backend unavailable")

// ErrNotFound is returned when no session exists for the given id or token.
var ErrNotFound = errors.New("session not found")

// createScript evicts and inserts as one unit of work. It first retires
// index entries whose session already expired, then evicts LRU victims
// while the user (and device) active counts are at the policy limit, then
// writes the new session. Returned shape:
//
//	{ nUserEvicted, userIds..., nDeviceEvicted, deviceIds... }
const createScript = `
local user_zset = KEYS[1]
local device_zset = KEYS[2]

local sess_prefix = ARGV[1]
local token_prefix = ARGV[2]
local dev_prefix = ARGV[3]
local max_concurrent = tonumber(ARGV[4])
local max_per_device = tonumber(ARGV[5])
local now = tonumber(ARGV[6])
local retention = tonumber(ARGV[7])

local function retire(sid)
  local skey = sess_prefix .. sid
  local token = redis.call("HGET", skey, "token")
  local user = redis.call("HGET", skey, "user_id")
  local device = redis.call("HGET", skey, "device_id")
  if redis.call("EXISTS", skey) == 1 then
    redis.call("HSET", skey, "active", "0", "last_accessed", ARGV[6])
  end
  if token then
    redis.call("DEL", token_prefix .. token)
  end
  redis.call("ZREM", user_zset, sid)
  if user and device and device ~= "" then
    redis.call("ZREM", dev_prefix .. user .. ":" .. device, sid)
  end
end

local tracked = redis.call("ZRANGE", user_zset, 0, -1)
for _, sid in ipairs(tracked) do
  local expires = redis.call("HGET", sess_prefix .. sid, "expires_at")
  if not expires or tonumber(expires) <= now then
    retire(sid)
  end
end

local evicted_user = {}
while max_concurrent > 0 and redis.call("ZCARD", user_zset) >= max_concurrent do
  local oldest = redis.call("ZRANGE", user_zset, 0, 0)
  if #oldest == 0 then
    break
  end
  retire(oldest[1])
  table.insert(evicted_user, oldest[1])
end

local evicted_device = {}
while max_per_device > 0 and redis.call("ZCARD", device_zset) >= max_per_device do
  local oldest = redis.call("ZRANGE", device_zset, 0, 0)
  if #oldest == 0 then
    break
  end
  retire(oldest[1])
  table.insert(evicted_device, oldest[1])
end

local new_id = ARGV[8]
local skey = sess_prefix .. new_id
redis.call("HSET", skey,
  "id", new_id,
  "user_id", ARGV[9],
  "token", ARGV[10],
  "device_id", ARGV[11],
  "ip_address", ARGV[12],
  "user_agent", ARGV[13],
  "location", ARGV[14],
  "active", "1",
  "access_count", "0",
  "created_at", ARGV[15],
  "expires_at", ARGV[16],
  "last_accessed", ARGV[6])
redis.call("PEXPIRE", skey, retention)
redis.call("SET", token_prefix .. ARGV[10], new_id, "PX", retention)
redis.call("ZADD", user_zset, now, new_id)
if max_per_device > 0 and ARGV[11] ~= "" then
  redis.call("ZADD", device_zset, now, new_id)
end

local reply = {#evicted_user}
for _, sid in ipairs(evicted_user) do
  table.insert(reply, sid)
end
table.insert(reply, #evicted_device)
for _, sid in ipairs(evicted_device) do
  table.insert(reply, sid)
end
return reply
`

var createLua = redis.NewScript(createScript)

const deactivateScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end

local active = redis.call("HGET", KEYS[1], "active")
local token = redis.call("HGET", KEYS[1], "token")
local user = redis.call("HGET", KEYS[1], "user_id")
local device = redis.call("HGET", KEYS[1], "device_id")
local sid = redis.call("HGET", KEYS[1], "id")

if token then
  redis.call("DEL", ARGV[1] .. token)
end
if user and sid then
  redis.call("ZREM", ARGV[2] .. user, sid)
  if device and device ~= "" then
    redis.call("ZREM", ARGV[3] .. user .. ":" .. device, sid)
  end
end

if active ~= "1" then
  return 0
end
redis.call("HSET", KEYS[1], "active", "0", "last_accessed", ARGV[4])
return 1
`

var deactivateLua = redis.NewScript(deactivateScript)

const deactivateAllScript = `
local sess_prefix = ARGV[1]
local token_prefix = ARGV[2]
local dev_prefix = ARGV[3]
local now = ARGV[4]

local count = 0
local tracked = redis.call("ZRANGE", KEYS[1], 0, -1)
for _, sid in ipairs(tracked) do
  local skey = sess_prefix .. sid
  local token = redis.call("HGET", skey, "token")
  local user = redis.call("HGET", skey, "user_id")
  local device = redis.call("HGET", skey, "device_id")
  if redis.call("HGET", skey, "active") == "1" then
    redis.call("HSET", skey, "active", "0", "last_accessed", now)
    count = count + 1
  end
  if token then
    redis.call("DEL", token_prefix .. token)
  end
  if user and device and device ~= "" then
    redis.call("ZREM", dev_prefix .. user .. ":" .. device, sid)
  end
end
redis.call("DEL", KEYS[1])
return count
`

var deactivateAllLua = redis.NewScript(deactivateAllScript)

const touchScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HINCRBY", KEYS[1], "access_count", 1)
redis.call("HSET", KEYS[1], "last_accessed", ARGV[1])

local user = redis.call("HGET", KEYS[1], "user_id")
local sid = redis.call("HGET", KEYS[1], "id")
local device = redis.call("HGET", KEYS[1], "device_id")
if user and sid then
  redis.call("ZADD", ARGV[2] .. user, "XX", ARGV[1], sid)
  if device and device ~= "" then
    redis.call("ZADD", ARGV[3] .. user .. ":" .. device, "XX", ARGV[1], sid)
  end
end
return 1
`

var touchLua = redis.NewScript(touchScript)

const sweepScript = `
local sess_prefix = ARGV[1]
local token_prefix = ARGV[2]
local dev_prefix = ARGV[3]
local now = tonumber(ARGV[4])

local removed = 0
local tracked = redis.call("ZRANGE", KEYS[1], 0, -1)
for _, sid in ipairs(tracked) do
  local skey = sess_prefix .. sid
  local expires = redis.call("HGET", skey, "expires_at")
  if not expires or tonumber(expires) <= now then
    local token = redis.call("HGET", skey, "token")
    local user = redis.call("HGET", skey, "user_id")
    local device = redis.call("HGET", skey, "device_id")
    if redis.call("HGET", skey, "active") == "1" then
      redis.call("HSET", skey, "active", "0", "last_accessed", ARGV[4])
    end
    if token then
      redis.call("DEL", token_prefix .. token)
    end
    redis.call("ZREM", KEYS[1], sid)
    if user and device and device ~= "" then
      redis.call("ZREM", dev_prefix .. user .. ":" .. device, sid)
    end
    removed = removed + 1
  end
end
return removed
`

var sweepLua = redis.NewScript(sweepScript)

// Store is a Redis-backed session store with policy-driven LRU eviction.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace; retention controls how long a
// session row outlives its expiry for inspection.
func NewStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *Store {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Store{redis: redisClient, prefix: prefix, retention: retention}
}

func (s *Store) rowKey(id string) string {
	return s.prefix + ":ses:" + id
}

func (s *Store) rowPrefix() string {
	return s.prefix + ":ses:"
}

func (s *Store) tokenKey(token string) string {
	return s.prefix + ":set:" + token
}

func (s *Store) tokenPrefix() string {
	return s.prefix + ":set:"
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":seu:" + userID
}

func (s *Store) userPrefix() string {
	return s.prefix + ":seu:"
}

func (s *Store) deviceKey(userID, deviceID string) string {
	return s.prefix + ":sed:" + userID + ":" + deviceID
}

func (s *Store) devicePrefix() string {
	return s.prefix + ":sed:"
}

func (s *Store) anomalyKey(sessionID, kind string) string {
	return s.prefix + ":sad:" + sessionID + ":" + kind
}

// Create persists sess, evicting LRU sessions as required by policy.
// Returns the ids evicted for the per-user limit and for the per-device
// limit, in eviction order. Eviction and insertion are atomic.
//
//	Performance: 1 Lua EVALSHA; O(active sessions for the user).
func (s *Store) Create(ctx context.Context, sess *Session, policy LimitPolicy) (evictedUser, evictedDevice []string, err error) {
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.LastAccessed = now
	sess.Active = true

	deviceZset := s.userKey(sess.UserID) // placeholder, unused when no device limit applies
	maxPerDevice := 0
	if policy.MaxPerDevice > 0 && sess.DeviceFingerprintID != "" {
		deviceZset = s.deviceKey(sess.UserID, sess.DeviceFingerprintID)
		maxPerDevice = policy.MaxPerDevice
	}

	retention := sess.ExpiresAt.Sub(now) + s.retention

	result, err := createLua.Run(ctx, s.redis,
		[]string{s.userKey(sess.UserID), deviceZset},
		s.rowPrefix(),
		s.tokenPrefix(),
		s.devicePrefix(),
		policy.MaxConcurrent,
		maxPerDevice,
		now.UnixMilli(),
		retention.Milliseconds(),
		sess.ID,
		sess.UserID,
		sess.Token,
		sess.DeviceFingerprintID,
		sess.IPAddress,
		sess.UserAgent,
		sess.Location,
		sess.CreatedAt.UnixMilli(),
		sess.ExpiresAt.UnixMilli(),
	).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return parseCreateReply(result)
}

// Deactivate retires a session: active=0, last_accessed=now, removed from
// the token and LRU indexes. Idempotent; reports whether the session was
// active before the call. A missing session is a successful no-op.
func (s *Store) Deactivate(ctx context.Context, id string) (bool, error) {
	result, err := deactivateLua.Run(ctx, s.redis,
		[]string{s.rowKey(id)},
		s.tokenPrefix(),
		s.userPrefix(),
		s.devicePrefix(),
		time.Now().UnixMilli(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return result == 1, nil
}

// DeactivateAllForUser retires every tracked session for a user. Idempotent.
// Returns the number of sessions flipped from active to inactive.
func (s *Store) DeactivateAllForUser(ctx context.Context, userID string) (int, error) {
	result, err := deactivateAllLua.Run(ctx, s.redis,
		[]string{s.userKey(userID)},
		s.rowPrefix(),
		s.tokenPrefix(),
		s.devicePrefix(),
		time.Now().UnixMilli(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(result), nil
}

// Touch bumps last_accessed and access_count and refreshes the LRU scores.
// Used on the validation hot path; callers treat failures as best-effort.
func (s *Store) Touch(ctx context.Context, id string) error {
	err := touchLua.Run(ctx, s.redis,
		[]string{s.rowKey(id)},
		time.Now().UnixMilli(),
		s.userPrefix(),
		s.devicePrefix(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads a session row by id, active or not.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.rowKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return parseSession(fields)
}

// GetByToken resolves the opaque session token to the stored session.
// Deactivated sessions drop their token mapping, so only live (possibly
// expired but not yet retired) sessions resolve.
func (s *Store) GetByToken(ctx context.Context, token string) (*Session, error) {
	id, err := s.redis.Get(ctx, s.tokenKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.Get(ctx, id)
}

// ActiveCount returns the tracked active-session count for a user.
func (s *Store) ActiveCount(ctx context.Context, userID string) (int, error) {
	count, err := s.redis.ZCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// ActiveIDs returns the tracked active session ids for a user in LRU order
// (least recently accessed first).
func (s *Store) ActiveIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.ZRange(ctx, s.userKey(userID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// ShouldEmitAnomaly returns true only for the first anomaly of this kind
// in the window for a session. Keeps repeated validations of a drifted
// session from flooding the event sink.
func (s *Store) ShouldEmitAnomaly(ctx context.Context, sessionID, kind string, window time.Duration) (bool, error) {
	if window <= 0 {
		window = time.Minute
	}
	key := s.anomalyKey(sessionID, kind)

	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return true, nil
	}
	return false, nil
}

// SweepExpired retires expired sessions still present in per-user LRU
// indexes. One call processes at most batch index keys starting from
// cursor; callers loop with the returned cursor (0 = wrapped around).
// Best-effort background work, never required for correctness: Create and
// ValidateSession retire expired rows on their own paths too.
func (s *Store) SweepExpired(ctx context.Context, cursor uint64, batch int64) (uint64, int, error) {
	if batch <= 0 {
		batch = 100
	}

	keys, next, err := s.redis.Scan(ctx, cursor, s.userPrefix()+"*", batch).Result()
	if err != nil {
		return cursor, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := time.Now().UnixMilli()
	removed := 0
	for _, key := range keys {
		n, err := sweepLua.Run(ctx, s.redis,
			[]string{key},
			s.rowPrefix(),
			s.tokenPrefix(),
			s.devicePrefix(),
			now,
		).Int64()
		if err != nil {
			return next, removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		removed += int(n)
	}

	return next, removed, nil
}

func parseCreateReply(result interface{}) ([]string, []string, error) {
	parts, ok := result.([]interface{})
	if !ok || len(parts) < 2 {
		return nil, nil, fmt.Errorf("%w: invalid create script response", ErrRedisUnavailable)
	}

	userCount, ok := parts[0].(int64)
	if !ok || len(parts) < int(userCount)+2 {
		return nil, nil, fmt.Errorf("%w: invalid create script response", ErrRedisUnavailable)
	}

	evictedUser := make([]string, 0, userCount)
	idx := 1
	for i := int64(0); i < userCount; i++ {
		id, ok := parts[idx].(string)
		if !ok {
			return nil, nil, fmt.Errorf("%w: invalid create script response", ErrRedisUnavailable)
		}
		evictedUser = append(evictedUser, id)
		idx++
	}

	deviceCount, ok := parts[idx].(int64)
	if !ok || len(parts) < idx+1+int(deviceCount) {
		return nil, nil, fmt.Errorf("%w: invalid create script response", ErrRedisUnavailable)
	}
	idx++

	evictedDevice := make([]string, 0, deviceCount)
	for i := int64(0); i < deviceCount; i++ {
		id, ok := parts[idx].(string)
		if !ok {
			return nil, nil, fmt.Errorf("%w: invalid create script response", ErrRedisUnavailable)
		}
		evictedDevice = append(evictedDevice, id)
		idx++
	}

	return evictedUser, evictedDevice, nil
}

func parseSession(fields map[string]string) (*Session, error) {
	accessCount, err := strconv.ParseInt(fields["access_count"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt session row: access_count: %v", err)
	}

	createdAt, err := parseMilli(fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt session row: created_at: %v", err)
	}
	expiresAt, err := parseMilli(fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt session row: expires_at: %v", err)
	}
	lastAccessed, err := parseMilli(fields["last_accessed"])
	if err != nil {
		return nil, fmt.Errorf("corrupt session row: last_accessed: %v", err)
	}

	return &Session{
		ID:                  fields["id"],
		UserID:              fields["user_id"],
		Token:               fields["token"],
		DeviceFingerprintID: fields["device_id"],
		IPAddress:           fields["ip_address"],
		UserAgent:           fields["user_agent"],
		Location:            fields["location"],
		Active:              fields["active"] == "1",
		CreatedAt:           createdAt,
		ExpiresAt:           expiresAt,
		LastAccessed:        lastAccessed,
		AccessCount:         accessCount,
	}, nil
}

func parseMilli(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
