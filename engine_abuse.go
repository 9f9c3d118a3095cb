package goGate

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ScoreAbuseRisk aggregates the last minute of an IP's request windows
// across all endpoints into a weighted block/allow decision. It is the
// cheap global filter that runs before per-endpoint rate limiting.
//
// Scoring fails open: a backend outage yields a zero score, never a block.
// A blocked IP is reported as a ddos_attempt event whose severity carries
// the raw score.
//
// ScoreAbuseRisk may return an error when input validation, dependency calls, or security checks fail.
// ScoreAbuseRisk does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ScoreAbuseRisk(ctx context.Context, ip string) (AbuseRisk, error) {
	if e == nil {
		return AbuseRisk{}, ErrEngineNotReady
	}
	if strings.TrimSpace(ip) == "" {
		return AbuseRisk{}, nil
	}

	risk, err := e.scorer.Score(ctx, ip)
	if err != nil {
		e.metricInc(MetricAbuseFailOpen)
		e.logger.Warn("abuse scoring backend unreachable, admitting request",
			zap.String("ip", ip), zap.Error(err))
		return AbuseRisk{RetryAfter: risk.RetryAfter}, nil
	}

	out := AbuseRisk{
		Score:             risk.Score,
		Blocked:           risk.Blocked,
		TotalRequests:     risk.TotalRequests,
		DistinctEndpoints: risk.DistinctEndpoints,
		RetryAfter:        risk.RetryAfter,
	}

	if out.Blocked {
		e.metricInc(MetricAbuseBlocked)
		e.emitEvent(ctx, EventDDoSAttempt, Severity(out.Score), "",
			"request volume scored as abusive", ip, "",
			map[string]string{
				"score":              strconv.Itoa(out.Score),
				"total_requests":     strconv.FormatInt(out.TotalRequests, 10),
				"distinct_endpoints": strconv.Itoa(out.DistinctEndpoints),
				"retry_after_s":      strconv.Itoa(int(out.RetryAfter.Seconds())),
			})
	}

	return out, nil
}
