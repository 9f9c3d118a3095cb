package session

import "time"

// Session is one authenticated device session. Active transitions
// true -> false exactly once and is never reactivated.
type Session struct {
	ID                  string
	UserID              string
	Token               string
	DeviceFingerprintID string
	IPAddress           string
	UserAgent           string
	Location            string
	Active              bool
	CreatedAt           time.Time
	ExpiresAt           time.Time
	LastAccessed        time.Time
	AccessCount         int64
}

// Expired reports whether the session's absolute lifetime has passed.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// LimitPolicy is the immutable per-plan session budget. Zero MaxConcurrent
// or MaxPerDevice disables the respective limit.
type LimitPolicy struct {
	MaxConcurrent          int
	MaxPerDevice           int
	TrustedDeviceLimit     int
	SessionDuration        time.Duration
	RequireMFAForNewDevice bool
	AutoLogoutInactive     time.Duration
}
