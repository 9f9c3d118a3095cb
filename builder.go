package goGate

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/goGate/fingerprint"
	"github.com/MrEthical07/goGate/internal/abuse"
	"github.com/MrEthical07/goGate/internal/rate"
	"github.com/MrEthical07/goGate/session"
)

// Builder defines a public type used by goGate APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	planSource PlanSource
	eventSink  EventSink
	logger     *zap.Logger

	built bool
}

// New describes the new operation and its observable behavior.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPlanSource describes the withplansource operation and its observable behavior.
func (b *Builder) WithPlanSource(ps PlanSource) *Builder {
	b.planSource = ps
	return b
}

// WithEventSink describes the witheventsink operation and its observable behavior.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration and assembles the [Engine]. A Builder
// builds at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	b.built = true

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := b.config
	engine := &Engine{
		config:       cfg,
		fingerprints: fingerprint.NewRegistry(b.redis, cfg.RedisPrefix),
		sessions:     session.NewStore(b.redis, cfg.RedisPrefix, cfg.Session.Retention),
		limiter: rate.New(b.redis, cfg.RedisPrefix, rate.Config{
			Rules:            toRateRules(cfg.RateLimit.Rules),
			Default:          toRateRule(cfg.RateLimit.Default),
			EndpointIndexTTL: cfg.Abuse.Window,
		}),
		scorer: abuse.New(b.redis, cfg.RedisPrefix, abuse.Config{
			Window:           cfg.Abuse.Window,
			BlockThreshold:   cfg.Abuse.BlockThreshold,
			AuthPathPrefixes: cfg.Abuse.AuthPathPrefixes,
			RetryAfter:       cfg.Abuse.RetryAfter,
		}),
		events:  newEventDispatcher(cfg.Events, b.eventSink),
		metrics: NewMetrics(cfg.Metrics),
		plans:   b.planSource,
		logger:  logger,
	}

	if cfg.Janitor.Enabled {
		engine.janitor = newJanitor(engine.sessions, cfg.Janitor, logger, engine.metrics)
	}

	return engine, nil
}

func toRateRules(rules []RateLimitRule) []rate.Rule {
	out := make([]rate.Rule, len(rules))
	for i, rule := range rules {
		out[i] = toRateRule(rule)
	}
	return out
}

func toRateRule(rule RateLimitRule) rate.Rule {
	return rate.Rule{
		PathPrefix:  rule.PathPrefix,
		Window:      rule.Window,
		MaxRequests: rule.MaxRequests,
	}
}
