// Package fingerprint computes stable device identity hashes from client and
// network signals and tracks per-user device trust in Redis.
//
// # Hash quality
//
// The fingerprint hash is a SHA-256 digest over normalized request signals
// plus a coarse browser-entropy string derived from the user agent. It is
// intentionally weak: signals are fully client-controlled, collisions across
// similar browser/network setups are expected, and it must never be treated
// as a privacy-grade or adversarially robust device identifier. Its job is
// to group sightings well enough for trust decisions and drift detection.
//
// # What this package must NOT do
//
//   - Flip trust automatically. Trusted state changes only through explicit
//     Trust/Untrust calls by an operator-facing caller.
//   - Emit security events. The Registry reports whether a sighting created
//     a new device; the engine owns event emission.
package fingerprint
