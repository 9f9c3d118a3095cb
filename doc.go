// Package goGate provides the admission-control and session-integrity core
// for multi-tenant services: per-plan concurrent session limits with strict
// LRU eviction, device fingerprinting with operator-managed trust, session
// drift detection, sliding-window rate limiting, and heuristic abuse
// scoring. All state lives in Redis, safe under concurrent access from
// many service instances.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// goGate is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (ValidationResult, RateLimitResult, AbuseRisk,
// SecurityEvent). Coordination primitives (window counting, abuse math,
// token generation) live under internal/ and are never exported. The
// fingerprint and session packages are public leaves the engine composes.
//
// # What this package must NOT do
//
//   - Verify credentials, exchange OAuth tokens, enroll MFA, or deliver
//     notifications. Those are collaborators of the embedding service;
//     goGate only emits generic [SecurityEvent]s through a sink it does
//     not own.
//   - Rely on in-process locks for correctness. Every shared counter and
//     session transition is atomic in Redis, so multiple service instances
//     can share one backend.
//
// # Availability contract
//
// Rate limiting and abuse scoring fail open: a Redis outage admits traffic
// and logs the failure. Session validation fails closed: an identity
// assertion that cannot be verified is treated as invalid.
package goGate
