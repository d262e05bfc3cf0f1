package msgcache

import (
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/appkit/core/forwardmsg"
	"github.com/dmitrymomot/appkit/pkg/stats"
)

// statCategoryName labels message cache entries in aggregated stats.
const statCategoryName = "message_cache"

// entry holds one fully-serialized message together with the set of
// sessions that have received it, each mapped to the session generation at
// the time of the last reference. Entries are never mutated except to
// update this map.
type entry struct {
	msg *forwardmsg.Message

	// sessions maps session ID to the generation at which the session last
	// referenced this entry. A session's reference ages as its generation
	// advances without a fresh AddMessage.
	sessions map[uuid.UUID]uint64
}

func (e *entry) hasSessionRef(sessionID uuid.UUID) bool {
	_, ok := e.sessions[sessionID]
	return ok
}

// Cache is a thread-safe, content-addressed store of forward messages.
//
// Caching is session-scoped: each session represents a physically distinct
// client connection, so a message cached on behalf of one session cannot be
// assumed present in another client's cache. The per-entry session map is
// the source of truth for "does this client already hold this payload".
//
// The cache holds sessions only by identifier; it never keeps a session
// alive or prevents its teardown. Stale references are dropped by the
// generation-based eviction in RemoveExpiredEntries.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger configures structured logging for cache operations.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates an empty message cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// AddMessage adds a message to the cache on behalf of a session, hashing it
// first if needed. If an entry for the hash already exists, only the
// session's last-seen generation is refreshed; the stored message is never
// replaced. Either way the entry's lifetime is extended for that session.
func (c *Cache) AddMessage(msg *forwardmsg.Message, sessionID uuid.UUID, generation uint64) error {
	hash, err := forwardmsg.EnsureHash(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[hash]
	if !ok {
		e = &entry{
			msg:      msg,
			sessions: make(map[uuid.UUID]uint64),
		}
		c.entries[hash] = e
		c.logger.Debug("cached message",
			slog.String("hash", hash),
			slog.Int("size", msg.Size()))
	}
	e.sessions[sessionID] = generation

	return nil
}

// GetMessage returns the cached full message for the given hash, or
// ErrNotFound if no entry exists. A miss is an ordinary result the caller
// must branch on, not a failure.
func (c *Cache) GetMessage(hash string) (*forwardmsg.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return e.msg, nil
}

// HasReference reports whether the message's hash is cached and the given
// session is recorded in that entry's reference map. The message is hashed
// if needed; the cache itself is not modified.
func (c *Cache) HasReference(msg *forwardmsg.Message, sessionID uuid.UUID) bool {
	hash, err := forwardmsg.EnsureHash(msg)
	if err != nil {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[hash]
	return ok && e.hasSessionRef(sessionID)
}

// RemoveExpiredEntries drops the given session's reference from every entry
// whose last-seen generation is more than maxAge generations behind
// currentGeneration. Entries left with no referencing sessions are deleted.
//
// This is the cache's only eviction path. It is deliberately per-session and
// quantized by script-run boundaries: other sessions' references to the same
// entry are untouched, and wall-clock time plays no part.
func (c *Cache) RemoveExpiredEntries(sessionID uuid.UUID, currentGeneration, maxAge uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for hash, e := range c.entries {
		lastSeen, ok := e.sessions[sessionID]
		if !ok {
			continue
		}
		if currentGeneration-lastSeen > maxAge {
			delete(e.sessions, sessionID)
			if len(e.sessions) == 0 {
				delete(c.entries, hash)
			}
			removed++
		}
	}

	if removed > 0 {
		c.logger.Debug("removed expired cache references",
			slog.String("session_id", sessionID.String()),
			slog.Uint64("generation", currentGeneration),
			slog.Int("removed", removed))
	}
}

// Clear unconditionally removes all entries from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot describing every cached entry. It implements
// stats.Provider and holds the read lock only while copying the entry list.
func (c *Cache) Stats() []stats.CacheStat {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]stats.CacheStat, 0, len(c.entries))
	for hash, e := range c.entries {
		out = append(out, stats.CacheStat{
			CategoryName: statCategoryName,
			CacheName:    e.msg.Name,
			EntryName:    hash,
			ByteLength:   e.msg.Size(),
		})
	}
	return out
}
