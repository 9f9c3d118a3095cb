package goGate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/goGate/fingerprint"
	"github.com/MrEthical07/goGate/internal/abuse"
	"github.com/MrEthical07/goGate/internal/rate"
	"github.com/MrEthical07/goGate/session"
)

// PlanSource resolves a user's subscription tier. It is a collaborator
// owned by the embedding application; the engine only consumes the tier
// name. Resolution failures are tolerated: the user falls back to the
// default plan policy.
type PlanSource interface {
	Plan(ctx context.Context, userID string) (string, error)
}

// StaticPlanSource resolves plans from a fixed map. Useful in tests and
// in applications that load tier assignments at startup.
type StaticPlanSource map[string]string

// Plan describes the plan operation and its observable behavior.
func (s StaticPlanSource) Plan(_ context.Context, userID string) (string, error) {
	return s[userID], nil
}

// Engine defines a public type used by goGate APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	fingerprints *fingerprint.Registry
	sessions     *session.Store
	limiter      *rate.Limiter
	scorer       *abuse.Scorer
	events       *eventDispatcher
	metrics      *Metrics
	plans        PlanSource
	logger       *zap.Logger
	janitor      *janitor
}

// Close stops the janitor and drains the event dispatcher. Safe to call
// more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.janitor != nil {
		e.janitor.Stop()
	}
	if e.events != nil {
		e.events.Close()
	}
}

// EventsDropped reports how many security events were discarded because
// the dispatcher buffer was full.
func (e *Engine) EventsDropped() uint64 {
	if e == nil || e.events == nil {
		return 0
	}
	return e.events.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitEvent(ctx context.Context, eventType string, severity Severity, userID, message, ip, userAgent string, metadata map[string]string) {
	if e == nil || e.events == nil {
		return
	}

	e.events.Emit(ctx, SecurityEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventType: eventType,
		Severity:  severity,
		Message:   message,
		Metadata:  metadata,
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: time.Now(),
	})
}

// policyFor resolves the session limit policy for a user. Unknown tiers
// and resolution failures fall back to the default policy; a plan lookup
// outage must not block logins.
func (e *Engine) policyFor(ctx context.Context, userID string) session.LimitPolicy {
	if e.plans == nil {
		return e.config.Plans.Default
	}

	tier, err := e.plans.Plan(ctx, userID)
	if err != nil {
		e.logger.Warn("plan resolution failed, using default policy",
			zap.String("user_id", userID), zap.Error(err))
		return e.config.Plans.Default
	}

	if policy, ok := e.config.Plans.Policies[tier]; ok {
		return policy
	}
	return e.config.Plans.Default
}
