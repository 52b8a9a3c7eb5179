package vermaster

import (
	"time"

	c "github.com/unkn0wn-root/vermaster/codec"
	gen "github.com/unkn0wn-root/vermaster/genstore"
	"github.com/unkn0wn-root/vermaster/master"
	pr "github.com/unkn0wn-root/vermaster/provider"
)

// SearchInvalidation selects how cached searches react to a change.
type SearchInvalidation uint8

const (
	// SearchInvalidateAll drops every cached search on any change (default).
	SearchInvalidateAll SearchInvalidation = iota
	// SearchInvalidateScoped only drops searches that could include the
	// changed object: unrestricted searches and those naming its object id.
	// Experimental: a change can move an object into a search it did not
	// match before, so this is only safe when object id filters are the
	// sole restriction callers rely on.
	SearchInvalidateScoped
)

func (s SearchInvalidation) String() string {
	if s == SearchInvalidateScoped {
		return "scoped"
	}
	return "all"
}

// Cloner lets a document value deep-copy itself.
type Cloner[T any] interface {
	Clone() T
}

// CloneFunc deep-copies a value. It is also the place to reset resolved
// cross-references before a value enters or leaves the cache.
type CloneFunc[T any] func(T) T

// Options tune a CachingMaster. Only Namespace is required; others have
// sensible defaults.
type Options[T any] struct {
	// Required
	Namespace string // logical namespace; prefixes search keys and shared-tier keys

	Logger Logger           // if nil, NopLogger is used
	Hooks  Hooks            // if nil, NopHooks is used
	Clock  func() time.Time // fixes "latest" for lookups; nil => time.Now

	MaxDocuments int // cached document versions; 0 => 10k
	MaxSearches  int // cached search entries; 0 => 1k

	// Clone copies values on the way in and out. nil => T's Clone method if T
	// implements Cloner[T], else a Codec round trip if Codec is set, else none.
	Clone CloneFunc[T]
	Codec c.Codec[T] // required with SharedTier

	SharedTier      pr.Provider   // optional shared (L2) document tier
	SharedTTL       time.Duration // 0 => 10m
	GenStore        gen.GenStore  // nil => LocalGenStore when SharedTier is set
	CleanupInterval time.Duration // local generation sweep; 0 => 1h
	GenRetention    time.Duration // 0 => 30d

	PrefetchWorkers   int  // 0 => 8; capped at 8
	PrefetchQueue     int  // 0 => 256
	DisablePrefetch   bool // default false => prefetch enabled
	NonBlockingSearch bool // default false => searches fill gaps under the entry lock

	SearchInvalidation SearchInvalidation
}

// Stats is a point-in-time snapshot of cache occupancy.
type Stats struct {
	Documents       int
	Searches        int
	PrefetchPending int
}

// New wraps backing with a caching layer. The returned master subscribes to
// backing's change manager immediately; call Close to detach it.
func New[T any](backing master.Master[T], opts Options[T]) (*CachingMaster[T], error) {
	return newCachingMaster(backing, opts)
}

var _ master.Master[struct{}] = (*CachingMaster[struct{}])(nil)
