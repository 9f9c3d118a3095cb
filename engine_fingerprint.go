package goGate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/MrEthical07/goGate/fingerprint"
)

// GetOrCreateFingerprint records a device sighting for userID. A repeat
// sighting of a known (user, hash) pair updates last-seen bookkeeping on
// the existing row; a first sighting creates an untrusted row and emits a
// new_device security event. Safe under concurrent first-sight races.
//
// GetOrCreateFingerprint may return an error when input validation, dependency calls, or security checks fail.
// GetOrCreateFingerprint does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) GetOrCreateFingerprint(ctx context.Context, userID string, sig fingerprint.Signals) (*fingerprint.DeviceFingerprint, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id must not be empty", ErrInvalidInput)
	}

	fp, created, err := e.fingerprints.GetOrCreate(ctx, userID, uuid.NewString(), sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if created {
		e.metricInc(MetricNewDevice)
		e.emitEvent(ctx, EventNewDevice, SeverityMedium, userID,
			"first sighting of device", sig.IPAddress, sig.UserAgent,
			map[string]string{
				"fingerprint_id":   fp.ID,
				"fingerprint_hash": fp.Hash,
				"platform":         sig.Platform,
			})
	}

	return fp, nil
}

// TrustDevice marks a fingerprint as operator-trusted. Trust never flips
// automatically; this is the only way in.
//
// TrustDevice may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) TrustDevice(ctx context.Context, fingerprintID string) error {
	return e.setDeviceTrust(ctx, fingerprintID, true)
}

// UntrustDevice revokes operator trust from a fingerprint.
//
// UntrustDevice may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) UntrustDevice(ctx context.Context, fingerprintID string) error {
	return e.setDeviceTrust(ctx, fingerprintID, false)
}

func (e *Engine) setDeviceTrust(ctx context.Context, fingerprintID string, trusted bool) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if strings.TrimSpace(fingerprintID) == "" {
		return fmt.Errorf("%w: fingerprint id must not be empty", ErrInvalidInput)
	}

	var err error
	if trusted {
		err = e.fingerprints.Trust(ctx, fingerprintID)
	} else {
		err = e.fingerprints.Untrust(ctx, fingerprintID)
	}
	if err != nil {
		if errors.Is(err, fingerprint.ErrNotFound) {
			return ErrFingerprintNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ListDevices returns every fingerprint sighted for a user. Admin surface
// backing operator trust decisions.
//
// ListDevices may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) ListDevices(ctx context.Context, userID string) ([]*fingerprint.DeviceFingerprint, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	devices, err := e.fingerprints.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return devices, nil
}
