// Package msgcache provides a thread-safe, content-addressed cache of
// forward messages with session-scoped reference tracking.
//
// Each cache entry owns one fully-serialized message, keyed by its content
// hash, plus a map from session ID to the generation (per-session run
// counter) at which that session last referenced the entry. The dispatch
// loop consults the cache to decide whether a client needs the full payload
// or just a reference message.
//
// Eviction is per-session and age-based, not size-based: after a session
// completes a script run, RemoveExpiredEntries drops that session's
// references older than a configured number of generations, deleting entries
// no session references anymore. Entries referenced only by sessions that
// never finish a run are never evicted; cache pressure is bounded by run
// cadence, with Clear as a manual backstop.
//
// All operations are safe to call concurrently from any goroutine. A single
// mutex protects the entry map and is held only for the duration of each
// individual operation, never across a delivery call.
package msgcache
