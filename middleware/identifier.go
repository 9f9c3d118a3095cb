package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identifier derives the rate-limit identifier for a request:
// "user:<subject>" when a Bearer credential is present, else
// "ip:<client address>", else "unknown".
//
// When the credential parses as a JWT its subject claim is used, so all
// tokens of one principal share a budget. The parse is unverified: the
// identifier only buckets accounting and grants nothing, and signature
// verification stays with the resource layer. Non-JWT credentials are
// used verbatim.
func Identifier(r *http.Request) string {
	if credential, ok := bearerToken(r.Header.Get("Authorization")); ok {
		if subject := jwtSubject(credential); subject != "" {
			return "user:" + subject
		}
		return "user:" + credential
	}

	if ip := ClientIP(r); ip != "" {
		return "ip:" + ip
	}
	return "unknown"
}

// ClientIP returns the first X-Forwarded-For entry, falling back to the
// peer address. A spoofable header is acceptable here: the value feeds
// rate limiting and abuse scoring, not authorization.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func jwtSubject(credential string) string {
	token, _, err := jwt.NewParser().ParseUnverified(credential, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return subject
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
