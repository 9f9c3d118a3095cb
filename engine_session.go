package goGate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goGate/internal"
	"github.com/MrEthical07/goGate/session"
)

// CreateSession opens a session for userID on the given device, enforcing
// the user's plan limits. When the user (or user+device) is at its
// concurrency limit, the least recently accessed active session is evicted
// first; eviction and creation are a single atomic unit, so concurrent
// logins never transiently exceed the limit. Evictions are reported as
// session_limit_exceeded / concurrent_login security events.
//
// CreateSession may return an error when input validation, dependency calls, or security checks fail.
// CreateSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CreateSession(ctx context.Context, userID, deviceFingerprintID string, meta SessionMeta) (*session.Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id must not be empty", ErrInvalidInput)
	}

	policy := e.policyFor(ctx, userID)

	token, err := internal.NewSessionToken()
	if err != nil {
		return nil, fmt.Errorf("session token generation: %w", err)
	}

	now := time.Now()
	sess := &session.Session{
		ID:                  uuid.NewString(),
		UserID:              userID,
		Token:               token,
		DeviceFingerprintID: deviceFingerprintID,
		IPAddress:           meta.IPAddress,
		UserAgent:           meta.UserAgent,
		Location:            meta.Location,
		CreatedAt:           now,
		ExpiresAt:           now.Add(policy.SessionDuration),
	}

	evictedUser, evictedDevice, err := e.sessions.Create(ctx, sess, policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricSessionCreated)
	for _, evicted := range evictedUser {
		e.metricInc(MetricSessionEvictedUserLimit)
		e.emitEvent(ctx, EventSessionLimitExceeded, SeverityMedium, userID,
			"concurrent session limit reached, oldest session evicted",
			meta.IPAddress, meta.UserAgent,
			map[string]string{
				"evicted_session_id": evicted,
				"max_concurrent":     fmt.Sprintf("%d", policy.MaxConcurrent),
			})
	}
	for _, evicted := range evictedDevice {
		e.metricInc(MetricSessionEvictedDeviceLimit)
		e.emitEvent(ctx, EventConcurrentLogin, SeverityMedium, userID,
			"per-device session limit reached, oldest session evicted",
			meta.IPAddress, meta.UserAgent,
			map[string]string{
				"evicted_session_id": evicted,
				"fingerprint_id":     deviceFingerprintID,
				"max_per_device":     fmt.Sprintf("%d", policy.MaxPerDevice),
			})
	}

	return sess, nil
}

// DeactivateSession retires one session. Idempotent: deactivating a
// missing or already-inactive session is a successful no-op.
//
// DeactivateSession may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) DeactivateSession(ctx context.Context, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: session id must not be empty", ErrInvalidInput)
	}

	wasActive, err := e.sessions.Deactivate(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if wasActive {
		e.metricInc(MetricSessionDeactivated)
	}
	return nil
}

// DeactivateAllSessions retires every active session for a user.
// Idempotent.
//
// DeactivateAllSessions may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) DeactivateAllSessions(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id must not be empty", ErrInvalidInput)
	}

	count, err := e.sessions.DeactivateAllForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for i := 0; i < count; i++ {
		e.metricInc(MetricSessionDeactivated)
	}
	return nil
}

// GetSession loads a session row by id, active or not. Admin surface.
//
// GetSession may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*session.Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return sess, nil
}

// ActiveSessionCount reports the tracked active-session count for a user.
func (e *Engine) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	count, err := e.sessions.ActiveCount(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}
