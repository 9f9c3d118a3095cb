// Package session persists user sessions in Redis and enforces per-plan
// concurrency limits with strict LRU eviction.
//
// # Layout
//
// One hash per session at <prefix>:ses:<id>, a token index at
// <prefix>:set:<token>, and two sorted sets scored by last-accessed
// unix-milli: <prefix>:seu:<user> (active sessions per user) and
// <prefix>:sed:<user>:<device> (active sessions per user+device). The head
// of either sorted set is the LRU eviction victim.
//
// # Atomicity
//
// Eviction and creation are one unit of work: Create runs a single Lua
// script that prunes expired index entries, evicts LRU victims past the
// policy limits, and inserts the new session. Concurrent logins for one
// user are serialized by Redis script execution, so the active-session
// count never transiently exceeds the policy limit.
//
// Deactivated sessions stay readable: the row flips active=0 and drops out
// of the indexes, but the hash lives on under a retention TTL so callers
// and operators can inspect recently evicted or logged-out sessions.
package session
