package goGate

import "errors"

var (
	// ErrEngineNotReady is an exported constant or variable used by the admission engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrStoreUnavailable is an exported constant or variable used by the admission engine.
	ErrStoreUnavailable = errors.New("admission backend unavailable")
	// ErrSessionNotFound is an exported constant or variable used by the admission engine.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is an exported constant or variable used by the admission engine.
	ErrSessionExpired = errors.New("session expired")
	// ErrFingerprintNotFound is an exported constant or variable used by the admission engine.
	ErrFingerprintNotFound = errors.New("device fingerprint not found")
	// ErrInvalidInput is an exported constant or variable used by the admission engine.
	ErrInvalidInput = errors.New("invalid input")
)
