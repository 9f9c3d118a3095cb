package goGate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CheckRateLimit records one request for (identifier, endpoint) and
// reports whether it fits the sliding-window budget for that endpoint.
// Identifiers follow the request layer's derivation: "user:<credential>",
// "ip:<address>", or "unknown".
//
// Fail-open contract: if the counting backend is unreachable the request
// is admitted with one slot consumed and the outage is logged. Admission
// is never blocked by counting-infrastructure failure.
//
// CheckRateLimit may return an error when input validation, dependency calls, or security checks fail.
// CheckRateLimit does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CheckRateLimit(ctx context.Context, identifier, endpoint string) (RateLimitResult, error) {
	if e == nil {
		return RateLimitResult{}, ErrEngineNotReady
	}
	if strings.TrimSpace(identifier) == "" {
		identifier = "unknown"
	}

	res, err := e.limiter.Check(ctx, identifier, endpoint)
	if err != nil {
		e.metricInc(MetricRateLimitFailOpen)
		e.logger.Warn("rate limit backend unreachable, admitting request",
			zap.String("identifier", identifier), zap.String("endpoint", endpoint), zap.Error(err))
		return RateLimitResult{
			Allowed:    true,
			Limit:      res.Limit,
			Remaining:  res.Remaining,
			ResetAt:    res.ResetAt,
			RetryAfter: 0,
		}, nil
	}

	out := RateLimitResult{
		Allowed:   res.Allowed,
		Limit:     res.Limit,
		Remaining: res.Remaining,
		ResetAt:   res.ResetAt,
	}

	if res.Allowed {
		e.metricInc(MetricRateLimitAllowed)
		return out, nil
	}

	out.RetryAfter = time.Until(res.ResetAt)
	e.metricInc(MetricRateLimitExceeded)
	e.emitEvent(ctx, EventRateLimitExceeded, SeverityMedium, "",
		fmt.Sprintf("rate limit exceeded for %s on %s", identifier, endpoint),
		ipFromIdentifier(identifier), "",
		map[string]string{
			"identifier": identifier,
			"endpoint":   endpoint,
			"limit":      strconv.Itoa(res.Limit),
			"count":      strconv.FormatInt(res.Count, 10),
		})

	return out, nil
}

func ipFromIdentifier(identifier string) string {
	if ip, ok := strings.CutPrefix(identifier, "ip:"); ok {
		return ip
	}
	return ""
}
