// Package rate provides the Redis-backed sliding-window request limiter
// behind Engine.CheckRateLimit.
//
// # Window semantics
//
// True sliding windows: each request is a member of a sorted set scored by
// its unix-milli arrival time; one Lua script trims the expired tail
// (ZREMRANGEBYSCORE), records the request, and returns the in-window count.
// Garbage collection is per-key on the request path plus a TTL backstop,
// never a global sweep. Key prefixes:
//   - rlw: per (identifier, endpoint) request window
//   - rle: per-identifier endpoint index, consumed by the abuse scorer
//
// # Fail-open contract
//
// When Redis is unreachable, Check reports the request as allowed with one
// slot consumed and surfaces ErrRedisUnavailable for logging only. Admission
// is never blocked by counting-infrastructure failure; this deliberately
// favors availability over strictness.
//
// # What this package must NOT do
//
//   - Score or block abusive traffic (that is internal/abuse).
//   - Emit security events (the engine owns emission).
//   - Be imported outside the goGate module.
package rate
