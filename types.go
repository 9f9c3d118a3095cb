package goGate

import (
	"time"

	"github.com/MrEthical07/goGate/session"
)

// Security event types emitted by the engine. The set is closed: callers
// switch on these values, so additions are append-only.
const (
	// EventNewDevice is an exported constant or variable used by the admission engine.
	EventNewDevice = "new_device"
	// EventSessionLimitExceeded is an exported constant or variable used by the admission engine.
	EventSessionLimitExceeded = "session_limit_exceeded"
	// EventConcurrentLogin is an exported constant or variable used by the admission engine.
	EventConcurrentLogin = "concurrent_login"
	// EventIPAddressChanged is an exported constant or variable used by the admission engine.
	EventIPAddressChanged = "ip_address_changed"
	// EventUserAgentChanged is an exported constant or variable used by the admission engine.
	EventUserAgentChanged = "user_agent_changed"
	// EventLocationChange is an exported constant or variable used by the admission engine.
	EventLocationChange = "location_change"
	// EventRateLimitExceeded is an exported constant or variable used by the admission engine.
	EventRateLimitExceeded = "rate_limit_exceeded"
	// EventDDoSAttempt is an exported constant or variable used by the admission engine.
	EventDDoSAttempt = "ddos_attempt"
)

// Severity is a numeric event weight. The ddos_attempt event reports the
// raw abuse score as its severity, so values above SeverityCritical occur.
type Severity int

const (
	// SeverityLow is an exported constant or variable used by the admission engine.
	SeverityLow Severity = 25
	// SeverityMedium is an exported constant or variable used by the admission engine.
	SeverityMedium Severity = 50
	// SeverityHigh is an exported constant or variable used by the admission engine.
	SeverityHigh Severity = 75
	// SeverityCritical is an exported constant or variable used by the admission engine.
	SeverityCritical Severity = 100
)

// AnomalyFlag marks a detected session drift. Flags are additive and never
// invalidate a session by themselves; escalation is the caller's decision.
type AnomalyFlag string

const (
	// FlagIPAddressChanged is an exported constant or variable used by the admission engine.
	FlagIPAddressChanged AnomalyFlag = "ip_address_changed"
	// FlagUserAgentChanged is an exported constant or variable used by the admission engine.
	FlagUserAgentChanged AnomalyFlag = "user_agent_changed"
	// FlagLocationChange is an exported constant or variable used by the admission engine.
	FlagLocationChange AnomalyFlag = "location_change"
)

// Observed carries the request-time client signals a session is validated
// against.
type Observed struct {
	IPAddress string
	UserAgent string
}

// SessionMeta carries the login-time request attributes stored on a new
// session.
type SessionMeta struct {
	IPAddress string
	UserAgent string
	Location  string
}

// ValidationResult defines a public type used by goGate APIs.
//
// Valid and Flags are independent: a drifted session still validates, the
// flags tell the caller what changed.
type ValidationResult struct {
	Valid   bool
	Session *session.Session
	Flags   []AnomalyFlag
}

// RateLimitResult defines a public type used by goGate APIs.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// AbuseRisk defines a public type used by goGate APIs.
type AbuseRisk struct {
	Score             int
	Blocked           bool
	TotalRequests     int64
	DistinctEndpoints int
	RetryAfter        time.Duration
}
