package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable indicates the counting backend is unreachable.
var ErrRedisUnavailable = errors.New("rate limit backend unavailable")

// Rule binds a path prefix to a window budget.
type Rule struct {
	PathPrefix  string
	Window      time.Duration
	MaxRequests int
}

// Config is an explicit ordered rule table: the first rule whose
// PathPrefix matches the endpoint wins, so more specific prefixes must be
// listed before shorter ones that shadow them. Endpoints matching no rule
// fall back to Default.
type Config struct {
	Rules   []Rule
	Default Rule

	// EndpointIndexTTL bounds how long an identifier's endpoint index is
	// retained for abuse scoring. Defaults to one minute.
	EndpointIndexTTL time.Duration
}

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Count     int64
	ResetAt   time.Time
}

// checkScript trims the expired window tail, records the request, and
// maintains the endpoint index the abuse scorer reads. One script so the
// trim-count-record sequence cannot interleave with a concurrent request.
const checkScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", "(" .. (now - window))
redis.call("ZADD", KEYS[1], now, ARGV[3])
local count = redis.call("ZCARD", KEYS[1])
redis.call("PEXPIRE", KEYS[1], window)

redis.call("ZADD", KEYS[2], now, ARGV[4])
redis.call("PEXPIRE", KEYS[2], tonumber(ARGV[5]))

return count
`

var checkLua = redis.NewScript(checkScript)

// Limiter enforces per-(identifier, endpoint) sliding-window limits.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
	seq    atomic.Uint64
}

// New creates a sliding-window [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string, cfg Config) *Limiter {
	if cfg.EndpointIndexTTL <= 0 {
		cfg.EndpointIndexTTL = time.Minute
	}
	return &Limiter{redis: redisClient, prefix: prefix, config: cfg}
}

func (l *Limiter) windowKey(identifier, endpoint string) string {
	return l.prefix + ":rlw:" + identifier + ":" + endpoint
}

func (l *Limiter) indexKey(identifier string) string {
	return l.prefix + ":rle:" + identifier
}

// Resolve returns the rule governing endpoint: first prefix match in
// declaration order, falling back to the default rule.
func (l *Limiter) Resolve(endpoint string) Rule {
	for _, rule := range l.config.Rules {
		if strings.HasPrefix(endpoint, rule.PathPrefix) {
			return rule
		}
	}
	return l.config.Default
}

// Check records one request for (identifier, endpoint) and reports whether
// it fits the window budget. On backend failure the request is admitted
// (fail-open) and ErrRedisUnavailable is returned alongside the permissive
// result so the caller can log the outage.
//
//	Performance: 1 Lua EVALSHA.
func (l *Limiter) Check(ctx context.Context, identifier, endpoint string) (Result, error) {
	rule := l.Resolve(endpoint)
	now := time.Now()

	member := strconv.FormatInt(now.UnixNano(), 36) + "-" + strconv.FormatUint(l.seq.Add(1), 36)

	count, err := checkLua.Run(ctx, l.redis,
		[]string{l.windowKey(identifier, endpoint), l.indexKey(identifier)},
		now.UnixMilli(),
		rule.Window.Milliseconds(),
		member,
		endpoint,
		l.config.EndpointIndexTTL.Milliseconds(),
	).Int64()
	if err != nil {
		return Result{
			Allowed:   true,
			Limit:     rule.MaxRequests,
			Remaining: rule.MaxRequests - 1,
			Count:     1,
			ResetAt:   now.Add(rule.Window),
		}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	remaining := rule.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(rule.MaxRequests),
		Limit:     rule.MaxRequests,
		Remaining: remaining,
		Count:     count,
		ResetAt:   now.Add(rule.Window),
	}, nil
}
