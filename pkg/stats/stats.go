package stats

import "sync"

// CacheStat describes a single cache entry for observability aggregation.
type CacheStat struct {
	// CategoryName is a human-readable name for the cache "category" the
	// entry belongs to, e.g. "message_cache".
	CategoryName string `json:"category_name"`

	// CacheName is a human-readable name for the cache instance that holds
	// the entry. Empty when the category has a single instance.
	CacheName string `json:"cache_name"`

	// EntryName identifies the entry within its cache. Human-readable when
	// possible; a content hash otherwise.
	EntryName string `json:"entry_name"`

	// ByteLength is the entry's approximate memory footprint in bytes.
	ByteLength int `json:"byte_length"`
}

// Provider is implemented by caches that expose per-entry statistics.
// Implementations must return a snapshot copy and must not hold internal
// locks longer than the time needed to copy the entry list.
type Provider interface {
	Stats() []CacheStat
}

// Manager aggregates cache statistics from registered providers.
type Manager struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewManager creates an empty stats manager.
func NewManager() *Manager {
	return &Manager{}
}

// RegisterProvider adds a provider to the manager. Safe to call from any
// goroutine, though providers are typically registered once at startup.
func (m *Manager) RegisterProvider(provider Provider) {
	if provider == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = append(m.providers, provider)
}

// Stats returns all stats from every registered provider, in registration
// order.
func (m *Manager) Stats() []CacheStat {
	m.mu.RLock()
	providers := make([]Provider, len(m.providers))
	copy(providers, m.providers)
	m.mu.RUnlock()

	var all []CacheStat
	for _, p := range providers {
		all = append(all, p.Stats()...)
	}
	return all
}
