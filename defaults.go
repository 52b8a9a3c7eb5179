package vermaster

import "time"

const (
	defaultMaxDocuments  = 10_000
	defaultMaxSearches   = 1_000
	defaultSharedTTL     = 10 * time.Minute
	defaultGenRetention  = 30 * 24 * time.Hour
	defaultSweep         = time.Hour
	defaultPrefetchQueue = 256

	// maxPrefetchWorkers bounds concurrent prefetch tasks per cache.
	maxPrefetchWorkers = 8

	// prefetchGranularity and prefetchSpread widen a requested page to whole
	// blocks, plus prefetchSpread blocks on each side.
	prefetchGranularity = 200
	prefetchSpread      = 2
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
