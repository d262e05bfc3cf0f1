package msgcache_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/appkit/core/forwardmsg"
	"github.com/dmitrymomot/appkit/core/msgcache"
)

func newDelta(payload string) *forwardmsg.Message {
	return &forwardmsg.Message{
		Kind:    forwardmsg.KindDelta,
		Name:    "element",
		Payload: []byte(payload),
	}
}

func TestAddAndGetMessage(t *testing.T) {
	t.Parallel()

	t.Run("returns cached message by hash", func(t *testing.T) {
		t.Parallel()

		cache := msgcache.New()
		sessionID := uuid.New()
		msg := newDelta("payload")

		require.NoError(t, cache.AddMessage(msg, sessionID, 0))
		require.NotEmpty(t, msg.Hash)

		got, err := cache.GetMessage(msg.Hash)
		require.NoError(t, err)
		assert.Same(t, msg, got)
	})

	t.Run("unknown hash is a plain not-found", func(t *testing.T) {
		t.Parallel()

		cache := msgcache.New()

		_, err := cache.GetMessage("no-such-hash")
		assert.ErrorIs(t, err, msgcache.ErrNotFound)
	})

	t.Run("re-adding the same content keeps the first message", func(t *testing.T) {
		t.Parallel()

		cache := msgcache.New()
		sessionID := uuid.New()
		first := newDelta("payload")
		second := newDelta("payload")

		require.NoError(t, cache.AddMessage(first, sessionID, 0))
		require.NoError(t, cache.AddMessage(second, sessionID, 1))

		got, err := cache.GetMessage(first.Hash)
		require.NoError(t, err)
		assert.Same(t, first, got)
		assert.Equal(t, 1, cache.Len())
	})
}

func TestHasReference(t *testing.T) {
	t.Parallel()

	t.Run("dedup correctness", func(t *testing.T) {
		t.Parallel()

		cache := msgcache.New()
		sessionA := uuid.New()
		sessionB := uuid.New()

		added := newDelta("identical content")
		require.NoError(t, cache.AddMessage(added, sessionA, 0))

		// A content-equal message is recognized for the adding session only.
		equal := newDelta("identical content")
		assert.True(t, cache.HasReference(equal, sessionA))
		assert.False(t, cache.HasReference(equal, sessionB))

		other := newDelta("different content")
		assert.False(t, cache.HasReference(other, sessionA))
	})
}

func TestRemoveExpiredEntries(t *testing.T) {
	t.Parallel()

	t.Run("age eviction", func(t *testing.T) {
		t.Parallel()

		cache := msgcache.New()
		sessionID := uuid.New()
		msg := newDelta("payload")

		require.NoError(t, cache.AddMessage(msg, sessionID, 0))

		// Within max age: reference survives.
		cache.RemoveExpiredEntries(sessionID, 2, 2)
		assert.True(t, cache.HasReference(msg, sessionID))

		// Past max age: reference dropped and the entry, now unreferenced,
		// is deleted.
		cache.RemoveExpiredEntries(sessionID, 3, 2)
		assert.False(t, cache.HasReference(msg, sessionID))
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("reference-count isolation", func(t *testing.T) {
		t.Parallel()

		cache := msgcache.New()
		sessionA := uuid.New()
		sessionB := uuid.New()
		msg := newDelta("shared payload")

		require.NoError(t, cache.AddMessage(msg, sessionA, 0))
		require.NoError(t, cache.AddMessage(msg, sessionB, 0))

		cache.RemoveExpiredEntries(sessionA, 5, 0)

		assert.False(t, cache.HasReference(msg, sessionA))
		assert.True(t, cache.HasReference(msg, sessionB))
		assert.Equal(t, 1, cache.Len())
	})

	t.Run("fresh add resets the age", func(t *testing.T) {
		t.Parallel()

		cache := msgcache.New()
		sessionID := uuid.New()
		msg := newDelta("payload")

		require.NoError(t, cache.AddMessage(msg, sessionID, 0))
		require.NoError(t, cache.AddMessage(msg, sessionID, 4))

		cache.RemoveExpiredEntries(sessionID, 5, 2)
		assert.True(t, cache.HasReference(msg, sessionID))
	})
}

// TestTwoSessionScenario walks the canonical dedup flow: two sessions receive
// identical content, one keeps referencing it across runs, the other goes
// stale and is swept without disturbing the first.
func TestTwoSessionScenario(t *testing.T) {
	t.Parallel()

	cache := msgcache.New()
	sessionA := uuid.New()
	sessionB := uuid.New()

	payload := string(make([]byte, 10*1024))
	msg := newDelta(payload)

	// First delivery to A at generation 0: nothing referenced yet.
	assert.False(t, cache.HasReference(msg, sessionA))
	require.NoError(t, cache.AddMessage(msg, sessionA, 0))

	// First delivery to B: the entry exists but B has no reference yet.
	assert.False(t, cache.HasReference(msg, sessionB))
	require.NoError(t, cache.AddMessage(msg, sessionB, 0))

	// Second delivery of the same content to A at generation 1: reference.
	assert.True(t, cache.HasReference(msg, sessionA))
	require.NoError(t, cache.AddMessage(msg, sessionA, 1))

	// A advances to generation 5; sweeping B with max age 0 drops only B.
	cache.RemoveExpiredEntries(sessionB, 5, 0)
	assert.False(t, cache.HasReference(msg, sessionB))
	assert.True(t, cache.HasReference(msg, sessionA))
	assert.Equal(t, 1, cache.Len())
}

func TestClear(t *testing.T) {
	t.Parallel()

	cache := msgcache.New()
	sessionID := uuid.New()

	require.NoError(t, cache.AddMessage(newDelta("one"), sessionID, 0))
	require.NoError(t, cache.AddMessage(newDelta("two"), sessionID, 0))
	require.Equal(t, 2, cache.Len())

	cache.Clear()

	assert.Equal(t, 0, cache.Len())
	assert.False(t, cache.HasReference(newDelta("one"), sessionID))
}

func TestStats(t *testing.T) {
	t.Parallel()

	cache := msgcache.New()
	sessionID := uuid.New()
	msg := newDelta("payload bytes")

	require.NoError(t, cache.AddMessage(msg, sessionID, 0))

	entries := cache.Stats()
	require.Len(t, entries, 1)
	assert.Equal(t, "message_cache", entries[0].CategoryName)
	assert.Equal(t, "element", entries[0].CacheName)
	assert.Equal(t, msg.Hash, entries[0].EntryName)
	assert.Equal(t, msg.Size(), entries[0].ByteLength)
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	cache := msgcache.New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			sessionID := uuid.New()
			for gen := uint64(0); gen < 50; gen++ {
				msg := newDelta(fmt.Sprintf("worker %d payload %d", n, gen%5))
				assert.NoError(t, cache.AddMessage(msg, sessionID, gen))
				cache.HasReference(msg, sessionID)
				cache.RemoveExpiredEntries(sessionID, gen, 2)
				cache.Stats()
			}
		}(i)
	}
	wg.Wait()
}
