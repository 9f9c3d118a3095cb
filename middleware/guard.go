package middleware

import (
	"context"
	"net/http"

	goGate "github.com/MrEthical07/goGate"
)

type validationContextKey struct{}

// ValidationFromContext returns the session validation result stored by
// [SessionGuard], including any drift flags.
func ValidationFromContext(ctx context.Context) (*goGate.ValidationResult, bool) {
	res, ok := ctx.Value(validationContextKey{}).(*goGate.ValidationResult)
	return res, ok
}

// SessionGuard validates the Bearer session token on each request.
// Invalid, expired, or unverifiable sessions answer 401. Valid sessions
// proceed with the validation result, drift flags included, in the
// request context; flags never cause a denial here.
func SessionGuard(engine *goGate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.ValidateSession(r.Context(), token, goGate.Observed{
				IPAddress: ClientIP(r),
				UserAgent: r.UserAgent(),
			})
			if err != nil || !res.Valid {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), validationContextKey{}, &res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
