// Package abuse aggregates the rate limiter's per-IP request windows into a
// weighted block/allow decision. It is the cheap global filter that runs
// before per-endpoint rate limiting: IP-only, read-only, one pipeline.
//
// The score is a heuristic weighted sum, not a probabilistic classifier:
// a mutually exclusive volume tier plus additive shape bonuses (single
// endpoint hammering, excessive authentication attempts). Scoring failures
// fail open with a zero score: availability over strictness, the same
// contract as internal/rate.
package abuse
