// Package middleware adapts the admission engine to net/http: the abuse
// scorer and rate limiter as a request filter, and session validation as
// an auth guard. Handlers receive rate-limit headers (X-RateLimit-Limit,
// X-RateLimit-Remaining, X-RateLimit-Reset) and blocked requests get a
// 429 with Retry-After.
//
// The admission order is fixed: abuse score first (cheap, IP-only,
// global), then the per-endpoint rate limit, then session validation
// behind SessionGuard. Invalid sessions answer 401; what to do about drift
// flags on a valid session is the application's call, so they ride along
// in the request context instead of being enforced here.
package middleware
