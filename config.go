package goGate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goGate/session"
)

// Config defines a public type used by goGate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// RedisPrefix namespaces every key the engine writes.
	RedisPrefix string

	Session   SessionConfig
	Plans     PlanConfig
	RateLimit RateLimitConfig
	Abuse     AbuseConfig
	Events    EventsConfig
	Metrics   MetricsConfig
	Janitor   JanitorConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by goGate APIs.
type SessionConfig struct {
	// Retention keeps deactivated session rows readable past expiry.
	Retention time.Duration
	// AnomalyWindow dedups drift events per (session, kind).
	AnomalyWindow time.Duration
}

/*
====================================
PLAN CONFIG
====================================
*/

// PlanConfig maps subscription tiers to session limit policies. Users on
// an unknown tier, or whose tier cannot be resolved, get Default.
type PlanConfig struct {
	Policies map[string]session.LimitPolicy
	Default  session.LimitPolicy
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitRule binds a path prefix to a sliding-window budget.
type RateLimitRule struct {
	PathPrefix  string
	Window      time.Duration
	MaxRequests int
}

// RateLimitConfig is an explicit ordered rule table. The first rule whose
// PathPrefix matches the endpoint wins; list longer prefixes before
// shorter ones that would shadow them (Validate rejects shadowed rules).
// Endpoints matching no rule use Default.
type RateLimitConfig struct {
	Rules   []RateLimitRule
	Default RateLimitRule
}

/*
====================================
ABUSE CONFIG
====================================
*/

// AbuseConfig defines a public type used by goGate APIs.
type AbuseConfig struct {
	// Window is the scoring lookback. Default 60s.
	Window time.Duration
	// BlockThreshold is the score at or above which an IP is blocked.
	// Default 80.
	BlockThreshold int
	// AuthPathPrefixes mark authentication endpoints for the
	// excessive-auth bonus.
	AuthPathPrefixes []string
	// RetryAfter is the fixed backoff advertised on block. Default 60s.
	RetryAfter time.Duration
}

/*
====================================
EVENTS CONFIG
====================================
*/

// EventsConfig defines a public type used by goGate APIs.
type EventsConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by goGate APIs.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
JANITOR CONFIG
====================================
*/

// JanitorConfig controls the background expired-session sweeper. The
// sweeper is best-effort and decoupled from request paths; its failures
// are logged, never escalated.
type JanitorConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int64
}

// DefaultConfig returns the baseline configuration: free/pro/enterprise
// plan presets, conservative rate budgets with a tight auth window, events
// and janitor enabled.
func DefaultConfig() Config {
	return Config{
		RedisPrefix: "gg",
		Session: SessionConfig{
			Retention:     24 * time.Hour,
			AnomalyWindow: time.Minute,
		},
		Plans: PlanConfig{
			Policies: map[string]session.LimitPolicy{
				"free": {
					MaxConcurrent:          3,
					MaxPerDevice:           1,
					TrustedDeviceLimit:     2,
					SessionDuration:        24 * time.Hour,
					RequireMFAForNewDevice: false,
					AutoLogoutInactive:     2 * time.Hour,
				},
				"pro": {
					MaxConcurrent:          10,
					MaxPerDevice:           3,
					TrustedDeviceLimit:     5,
					SessionDuration:        72 * time.Hour,
					RequireMFAForNewDevice: true,
					AutoLogoutInactive:     8 * time.Hour,
				},
				"enterprise": {
					MaxConcurrent:          50,
					MaxPerDevice:           5,
					TrustedDeviceLimit:     20,
					SessionDuration:        168 * time.Hour,
					RequireMFAForNewDevice: true,
					AutoLogoutInactive:     24 * time.Hour,
				},
			},
			Default: session.LimitPolicy{
				MaxConcurrent:      3,
				MaxPerDevice:       1,
				TrustedDeviceLimit: 2,
				SessionDuration:    24 * time.Hour,
				AutoLogoutInactive: 2 * time.Hour,
			},
		},
		RateLimit: RateLimitConfig{
			Rules: []RateLimitRule{
				{PathPrefix: "/api/auth/login", Window: 15 * time.Minute, MaxRequests: 10},
				{PathPrefix: "/api/auth", Window: 15 * time.Minute, MaxRequests: 30},
				{PathPrefix: "/api/export", Window: time.Hour, MaxRequests: 5},
				{PathPrefix: "/api", Window: time.Minute, MaxRequests: 120},
			},
			Default: RateLimitRule{PathPrefix: "", Window: time.Minute, MaxRequests: 60},
		},
		Abuse: AbuseConfig{
			Window:           60 * time.Second,
			BlockThreshold:   80,
			AuthPathPrefixes: []string{"/api/auth", "/login"},
			RetryAfter:       60 * time.Second,
		},
		Events: EventsConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Janitor: JanitorConfig{
			Enabled:   true,
			Interval:  time.Minute,
			BatchSize: 100,
		},
	}
}

// Validate reports the first configuration problem found. Builder.Build
// calls it; applications composing Config by hand should too.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RedisPrefix) == "" {
		return errors.New("config: RedisPrefix must not be empty")
	}
	if c.Session.Retention < 0 {
		return errors.New("config: Session.Retention must not be negative")
	}

	if c.Plans.Default.SessionDuration <= 0 {
		return errors.New("config: Plans.Default.SessionDuration must be positive")
	}
	for tier, policy := range c.Plans.Policies {
		if policy.SessionDuration <= 0 {
			return fmt.Errorf("config: plan %q: SessionDuration must be positive", tier)
		}
		if policy.MaxConcurrent < 0 || policy.MaxPerDevice < 0 {
			return fmt.Errorf("config: plan %q: limits must not be negative", tier)
		}
	}

	if err := c.RateLimit.validate(); err != nil {
		return err
	}

	if c.Abuse.Window < 0 {
		return errors.New("config: Abuse.Window must not be negative")
	}
	if c.Events.Enabled && c.Events.BufferSize < 0 {
		return errors.New("config: Events.BufferSize must not be negative")
	}
	if c.Janitor.Enabled && c.Janitor.Interval <= 0 {
		return errors.New("config: Janitor.Interval must be positive when enabled")
	}

	return nil
}

func (rl RateLimitConfig) validate() error {
	if rl.Default.Window <= 0 || rl.Default.MaxRequests <= 0 {
		return errors.New("config: RateLimit.Default must have a positive window and request budget")
	}

	for i, rule := range rl.Rules {
		if rule.PathPrefix == "" {
			return fmt.Errorf("config: RateLimit.Rules[%d]: PathPrefix must not be empty", i)
		}
		if rule.Window <= 0 || rule.MaxRequests <= 0 {
			return fmt.Errorf("config: RateLimit.Rules[%d] (%s): window and request budget must be positive", i, rule.PathPrefix)
		}
		// First match wins, so an earlier shorter prefix makes any later
		// longer rule unreachable.
		for j := 0; j < i; j++ {
			if strings.HasPrefix(rule.PathPrefix, rl.Rules[j].PathPrefix) {
				return fmt.Errorf("config: RateLimit.Rules[%d] (%s) is shadowed by earlier rule %q; order longest prefix first",
					i, rule.PathPrefix, rl.Rules[j].PathPrefix)
			}
		}
	}

	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg

	if cfg.Plans.Policies != nil {
		out.Plans.Policies = make(map[string]session.LimitPolicy, len(cfg.Plans.Policies))
		for tier, policy := range cfg.Plans.Policies {
			out.Plans.Policies[tier] = policy
		}
	}
	if cfg.RateLimit.Rules != nil {
		out.RateLimit.Rules = append([]RateLimitRule(nil), cfg.RateLimit.Rules...)
	}
	if cfg.Abuse.AuthPathPrefixes != nil {
		out.Abuse.AuthPathPrefixes = append([]string(nil), cfg.Abuse.AuthPathPrefixes...)
	}

	return out
}
