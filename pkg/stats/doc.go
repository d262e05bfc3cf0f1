// Package stats provides lightweight aggregation of cache entry statistics.
//
// Caches implement the Provider interface by returning a snapshot of their
// entries as CacheStat values. A Manager collects snapshots from all
// registered providers so an external stats collector (an HTTP endpoint,
// a metrics exporter) can observe memory usage without coupling to any
// particular cache implementation.
//
// Usage:
//
//	manager := stats.NewManager()
//	manager.RegisterProvider(messageCache)
//
//	for _, stat := range manager.Stats() {
//		fmt.Printf("%s/%s: %d bytes\n", stat.CategoryName, stat.EntryName, stat.ByteLength)
//	}
//
// Providers must never block message delivery for longer than the time
// needed to copy their entry list; the Manager itself holds no locks while
// calling providers.
package stats
