package vermaster

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A backing failure for an exact unique id was captured and will be
	// replayed to later readers until the object is invalidated.
	FaultCached(uid string, err error)

	// More than one cached document matched a bitemporal lookup.
	AmbiguousMatch(oid string, matches int)

	// A shared-tier entry was deleted by the cache on read.
	// reason ∈ {"corrupt", "gen_mismatch", "uid_mismatch", "value_decode"}
	SharedSelfHeal(storageKey, reason string)

	// A shared-tier write was refused: the provider returned ok=false on Set
	// (backpressure/eviction) or the unique id does not fit an envelope.
	SharedSetRejected(storageKey string)

	// GenStore errors (snapshot or bump).
	GenSnapshotError(storageKey string, err error)
	GenBumpError(storageKey string, err error)

	// Both gen bump and shared delete failed during Invalidate (likely backend outage).
	InvalidateOutage(key string, bumpErr, delErr error)

	// Search entries were dropped after a change. scope ∈ {"all", "scoped", "close"}
	SearchCleared(entries int, scope string)

	// A prefetch task was dropped because the prefetch queue was full.
	PrefetchDropped(searchKey string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) FaultCached(string, error)             {}
func (NopHooks) AmbiguousMatch(string, int)            {}
func (NopHooks) SharedSelfHeal(string, string)         {}
func (NopHooks) SharedSetRejected(string)              {}
func (NopHooks) GenSnapshotError(string, error)        {}
func (NopHooks) GenBumpError(string, error)            {}
func (NopHooks) InvalidateOutage(string, error, error) {}
func (NopHooks) SearchCleared(int, string)             {}
func (NopHooks) PrefetchDropped(string)                {}
