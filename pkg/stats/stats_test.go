package stats_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/appkit/pkg/stats"
)

type staticProvider struct {
	entries []stats.CacheStat
}

func (p *staticProvider) Stats() []stats.CacheStat {
	return p.entries
}

func TestManagerStats(t *testing.T) {
	t.Parallel()

	t.Run("empty manager yields no stats", func(t *testing.T) {
		t.Parallel()

		m := stats.NewManager()
		assert.Empty(t, m.Stats())
	})

	t.Run("aggregates providers in registration order", func(t *testing.T) {
		t.Parallel()

		m := stats.NewManager()
		m.RegisterProvider(&staticProvider{entries: []stats.CacheStat{
			{CategoryName: "message_cache", EntryName: "a", ByteLength: 100},
			{CategoryName: "message_cache", EntryName: "b", ByteLength: 200},
		}})
		m.RegisterProvider(&staticProvider{entries: []stats.CacheStat{
			{CategoryName: "session_store", EntryName: "c", ByteLength: 300},
		}})

		all := m.Stats()
		require.Len(t, all, 3)
		assert.Equal(t, "a", all[0].EntryName)
		assert.Equal(t, "b", all[1].EntryName)
		assert.Equal(t, "session_store", all[2].CategoryName)
	})

	t.Run("nil provider is ignored", func(t *testing.T) {
		t.Parallel()

		m := stats.NewManager()
		m.RegisterProvider(nil)
		assert.Empty(t, m.Stats())
	})
}

func TestManagerConcurrentRegistration(t *testing.T) {
	t.Parallel()

	m := stats.NewManager()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				m.RegisterProvider(&staticProvider{entries: []stats.CacheStat{{EntryName: "x"}}})
				m.Stats()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, m.Stats(), 8*20)
}
