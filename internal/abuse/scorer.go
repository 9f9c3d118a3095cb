package abuse

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable indicates the counting backend is unreachable.
var ErrRedisUnavailable = errors.New("abuse scoring backend unavailable")

// Volume tiers are mutually exclusive: only the highest matching tier
// contributes to the score. The shape bonuses below stack on top.
const (
	tierHighRequests   = 1000
	tierHighScore      = 80
	tierMediumRequests = 500
	tierMediumScore    = 50
	tierLowRequests    = 200
	tierLowScore       = 20

	singleEndpointMinRequests = 100
	singleEndpointScore       = 40

	authAttemptsMax = 20
	authAbuseScore  = 60
)

// Config tunes the scorer. Zero values take documented defaults.
type Config struct {
	// Window is the lookback interval. Defaults to 60 seconds.
	Window time.Duration
	// BlockThreshold is the score at or above which the IP is blocked.
	// Defaults to 80.
	BlockThreshold int
	// AuthPathPrefixes mark authentication endpoints for the repeated-auth
	// bonus. Defaults to "/api/auth" and "/login".
	AuthPathPrefixes []string
	// RetryAfter is the fixed backoff advertised on block. Defaults to the
	// window length.
	RetryAfter time.Duration
}

// Risk is the outcome of scoring one IP.
type Risk struct {
	Score             int
	Blocked           bool
	TotalRequests     int64
	DistinctEndpoints int
	RetryAfter        time.Duration
}

// Scorer reads the rate limiter's per-IP windows and computes a heuristic
// risk score. It owns no state of its own.
type Scorer struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// New creates a [Scorer] over the same key namespace as the rate limiter.
func New(redisClient redis.UniversalClient, prefix string, cfg Config) *Scorer {
	if cfg.Window <= 0 {
		cfg.Window = 60 * time.Second
	}
	if cfg.BlockThreshold <= 0 {
		cfg.BlockThreshold = 80
	}
	if len(cfg.AuthPathPrefixes) == 0 {
		cfg.AuthPathPrefixes = []string{"/api/auth", "/login"}
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = cfg.Window
	}
	return &Scorer{redis: redisClient, prefix: prefix, config: cfg}
}

func (s *Scorer) windowKey(identifier, endpoint string) string {
	return s.prefix + ":rlw:" + identifier + ":" + endpoint
}

func (s *Scorer) indexKey(identifier string) string {
	return s.prefix + ":rle:" + identifier
}

// Score inspects every endpoint window the identifier "ip:<ip>" touched
// within the lookback window and computes the risk.
//
//	Performance: 1 ZRANGEBYSCORE + 1 pipelined ZCOUNT per endpoint.
func (s *Scorer) Score(ctx context.Context, ip string) (Risk, error) {
	identifier := "ip:" + ip
	now := time.Now()
	floor := strconv.FormatInt(now.Add(-s.config.Window).UnixMilli(), 10)

	endpoints, err := s.redis.ZRangeByScore(ctx, s.indexKey(identifier), &redis.ZRangeBy{
		Min: floor,
		Max: "+inf",
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Risk{RetryAfter: s.config.RetryAfter}, nil
		}
		return Risk{RetryAfter: s.config.RetryAfter}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(endpoints) == 0 {
		return Risk{RetryAfter: s.config.RetryAfter}, nil
	}

	pipe := s.redis.Pipeline()
	counts := make([]*redis.IntCmd, len(endpoints))
	for i, endpoint := range endpoints {
		counts[i] = pipe.ZCount(ctx, s.windowKey(identifier, endpoint), floor, "+inf")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Risk{RetryAfter: s.config.RetryAfter}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var total, authTotal int64
	distinct := 0
	for i, cmd := range counts {
		n, cmdErr := cmd.Result()
		if cmdErr != nil && !errors.Is(cmdErr, redis.Nil) {
			return Risk{RetryAfter: s.config.RetryAfter}, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}
		if n == 0 {
			continue
		}
		total += n
		distinct++
		if s.isAuthEndpoint(endpoints[i]) {
			authTotal += n
		}
	}

	score := 0
	switch {
	case total > tierHighRequests:
		score += tierHighScore
	case total > tierMediumRequests:
		score += tierMediumScore
	case total > tierLowRequests:
		score += tierLowScore
	}

	if distinct == 1 && total > singleEndpointMinRequests {
		score += singleEndpointScore
	}
	if authTotal > authAttemptsMax {
		score += authAbuseScore
	}

	return Risk{
		Score:             score,
		Blocked:           score >= s.config.BlockThreshold,
		TotalRequests:     total,
		DistinctEndpoints: distinct,
		RetryAfter:        s.config.RetryAfter,
	}, nil
}

func (s *Scorer) isAuthEndpoint(endpoint string) bool {
	for _, prefix := range s.config.AuthPathPrefixes {
		if strings.HasPrefix(endpoint, prefix) {
			return true
		}
	}
	return false
}
