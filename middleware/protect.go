package middleware

import (
	"net/http"
	"strconv"

	goGate "github.com/MrEthical07/goGate"
)

// Protect runs the admission pipeline in front of next: abuse score
// first, then the per-endpoint sliding-window rate limit. Rate-limit
// headers are set on every response; blocked requests answer 429 with
// Retry-After and never reach next.
func Protect(engine *goGate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			risk, err := engine.ScoreAbuseRisk(r.Context(), ClientIP(r))
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			if risk.Blocked {
				w.Header().Set("Retry-After", strconv.Itoa(int(risk.RetryAfter.Seconds())))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			res, err := engine.CheckRateLimit(r.Context(), Identifier(r), r.URL.Path)
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				retryAfter := int(res.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
