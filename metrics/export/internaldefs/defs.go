package internaldefs

import (
	goGate "github.com/MrEthical07/goGate"
)

// CounterDef defines a public type used by goGate APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   goGate.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by goGate APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   goGate.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the admission engine.
var CounterDefs = []CounterDef{
	{ID: goGate.MetricSessionCreated, Name: "gogate_session_created_total", Help: "Created sessions."},
	{ID: goGate.MetricSessionEvictedUserLimit, Name: "gogate_session_evicted_user_limit_total", Help: "Sessions evicted by the per-user concurrency limit."},
	{ID: goGate.MetricSessionEvictedDeviceLimit, Name: "gogate_session_evicted_device_limit_total", Help: "Sessions evicted by the per-device concurrency limit."},
	{ID: goGate.MetricSessionDeactivated, Name: "gogate_session_deactivated_total", Help: "Deactivated sessions."},
	{ID: goGate.MetricValidateSuccess, Name: "gogate_validate_success_total", Help: "Successful session validations."},
	{ID: goGate.MetricValidateInvalid, Name: "gogate_validate_invalid_total", Help: "Validations rejected for unknown or inactive sessions."},
	{ID: goGate.MetricValidateExpired, Name: "gogate_validate_expired_total", Help: "Validations rejected for expired sessions."},
	{ID: goGate.MetricDriftIPChanged, Name: "gogate_drift_ip_changed_total", Help: "Detected session IP address changes."},
	{ID: goGate.MetricDriftUAChanged, Name: "gogate_drift_ua_changed_total", Help: "Detected session user-agent changes."},
	{ID: goGate.MetricDriftLocationChanged, Name: "gogate_drift_location_changed_total", Help: "Detected significant session location changes."},
	{ID: goGate.MetricNewDevice, Name: "gogate_new_device_total", Help: "First sightings of a device fingerprint."},
	{ID: goGate.MetricRateLimitAllowed, Name: "gogate_rate_limit_allowed_total", Help: "Rate-limit checks that admitted requests."},
	{ID: goGate.MetricRateLimitExceeded, Name: "gogate_rate_limit_exceeded_total", Help: "Rate-limit checks that denied requests."},
	{ID: goGate.MetricRateLimitFailOpen, Name: "gogate_rate_limit_fail_open_total", Help: "Rate-limit checks admitted during backend outages."},
	{ID: goGate.MetricAbuseBlocked, Name: "gogate_abuse_blocked_total", Help: "Requests blocked by the abuse scorer."},
	{ID: goGate.MetricAbuseFailOpen, Name: "gogate_abuse_fail_open_total", Help: "Abuse checks admitted during backend outages."},
	{ID: goGate.MetricJanitorSweptSessions, Name: "gogate_janitor_swept_sessions_total", Help: "Expired sessions retired by the janitor."},
}

// HistogramDefs is an exported constant or variable used by the admission engine.
var HistogramDefs = []HistogramDef{
	{ID: goGate.MetricValidateLatency, Name: "gogate_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the admission engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the admission engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
