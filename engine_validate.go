package goGate

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goGate/fingerprint"
	"github.com/MrEthical07/goGate/session"
)

// ValidateSession checks a session token against the stored session and
// its device fingerprint. Drift between the observed signals and the
// device's stored signals is reported as flags, never as a denial:
// Valid=true is returned alongside the flags and escalation (forced
// re-auth, step-up MFA) is the caller's decision.
//
// Validation fails closed: if the backend cannot be reached the session is
// treated as invalid, because an identity assertion that cannot be
// verified must not be assumed safe. The lastAccessed/accessCount bump on
// success is best-effort and never fails the request.
//
// ValidateSession may return an error when input validation, dependency calls, or security checks fail.
// ValidateSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateSession(ctx context.Context, token string, observed Observed) (ValidationResult, error) {
	if e == nil {
		return ValidationResult{}, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}
	}()

	if token == "" {
		e.metricInc(MetricValidateInvalid)
		return ValidationResult{}, ErrSessionNotFound
	}

	sess, err := e.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			e.metricInc(MetricValidateInvalid)
			return ValidationResult{}, ErrSessionNotFound
		}
		e.metricInc(MetricValidateInvalid)
		return ValidationResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !sess.Active {
		e.metricInc(MetricValidateInvalid)
		return ValidationResult{}, ErrSessionNotFound
	}

	if sess.Expired(time.Now()) {
		// Retire eagerly so the row reads inactive from now on. Repeat
		// validations of the same expired token stay idempotent.
		if _, derr := e.sessions.Deactivate(ctx, sess.ID); derr != nil {
			e.logger.Warn("expired session deactivation failed",
				zap.String("session_id", sess.ID), zap.Error(derr))
		}
		e.metricInc(MetricValidateExpired)
		return ValidationResult{}, ErrSessionExpired
	}

	flags, err := e.detectDrift(ctx, sess, observed)
	if err != nil {
		e.metricInc(MetricValidateInvalid)
		return ValidationResult{}, err
	}

	if err := e.sessions.Touch(ctx, sess.ID); err != nil {
		// Best-effort by contract: a failed bookkeeping update must never
		// fail the request.
		e.logger.Warn("session touch failed",
			zap.String("session_id", sess.ID), zap.Error(err))
	}

	e.metricInc(MetricValidateSuccess)
	return ValidationResult{Valid: true, Session: sess, Flags: flags}, nil
}

// detectDrift compares observed request signals against the session's
// device fingerprint rather than the session's own stored signals, so
// drift is judged against the device identity established at login.
func (e *Engine) detectDrift(ctx context.Context, sess *session.Session, observed Observed) ([]AnomalyFlag, error) {
	if sess.DeviceFingerprintID == "" {
		return nil, nil
	}

	device, err := e.fingerprints.Get(ctx, sess.DeviceFingerprintID)
	if err != nil {
		if errors.Is(err, fingerprint.ErrNotFound) {
			// Fingerprint rows can outlive retention independently of
			// sessions; a vanished row leaves nothing to compare against.
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var flags []AnomalyFlag

	if observed.IPAddress != "" && observed.IPAddress != device.IPAddress {
		flags = append(flags, FlagIPAddressChanged)
		e.metricInc(MetricDriftIPChanged)
		e.emitAnomaly(ctx, sess, EventIPAddressChanged, observed,
			map[string]string{
				"previous_ip": device.IPAddress,
				"observed_ip": observed.IPAddress,
			})

		if significantLocationChange(device.IPAddress, observed.IPAddress) {
			flags = append(flags, FlagLocationChange)
			e.metricInc(MetricDriftLocationChanged)
			e.emitAnomaly(ctx, sess, EventLocationChange, observed,
				map[string]string{
					"previous_ip": device.IPAddress,
					"observed_ip": observed.IPAddress,
				})
		}
	}

	if observed.UserAgent != "" && observed.UserAgent != device.UserAgent {
		flags = append(flags, FlagUserAgentChanged)
		e.metricInc(MetricDriftUAChanged)
		e.emitAnomaly(ctx, sess, EventUserAgentChanged, observed,
			map[string]string{
				"previous_user_agent": device.UserAgent,
				"observed_user_agent": observed.UserAgent,
			})
	}

	return flags, nil
}

// emitAnomaly emits a drift event at most once per (session, kind) within
// the anomaly window. The dedup check is best-effort: if it cannot be
// answered the event is emitted rather than lost.
func (e *Engine) emitAnomaly(ctx context.Context, sess *session.Session, kind string, observed Observed, metadata map[string]string) {
	emit, err := e.sessions.ShouldEmitAnomaly(ctx, sess.ID, kind, e.config.Session.AnomalyWindow)
	if err != nil {
		e.logger.Warn("anomaly dedup check failed",
			zap.String("session_id", sess.ID), zap.String("kind", kind), zap.Error(err))
		emit = true
	}
	if !emit {
		return
	}

	e.emitEvent(ctx, kind, SeverityMedium, sess.UserID,
		"session drift detected", observed.IPAddress, observed.UserAgent, metadata)
}

// significantLocationChange applies the coarse IPv4 heuristic: the first
// two dotted-decimal octets differing counts as a location change. IPv6 is
// out of scope and never flags until a proper geo/ASN-based check exists.
func significantLocationChange(previous, current string) bool {
	prevAddr, err := netip.ParseAddr(previous)
	if err != nil || !prevAddr.Is4() {
		return false
	}
	currAddr, err := netip.ParseAddr(current)
	if err != nil || !currAddr.Is4() {
		return false
	}

	prev4 := prevAddr.As4()
	curr4 := currAddr.As4()
	return prev4[0] != curr4[0] || prev4[1] != curr4[1]
}
