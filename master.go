package vermaster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gen "github.com/unkn0wn-root/vermaster/genstore"
	"github.com/unkn0wn-root/vermaster/master"
	"github.com/unkn0wn-root/vermaster/vc"
)

// CachingMaster is a drop-in master.Master[T] that caches documents and
// search pages of a backing master. Safe for concurrent use.
type CachingMaster[T any] struct {
	backing master.Master[T]
	log     Logger
	clock   func() time.Time

	docs     *docCache[T]
	searches *searchCache[T]
	prefetch *prefetcher    // nil when prefetch is disabled
	shared   *sharedTier[T] // nil without a shared tier

	changes     *master.BasicChangeManager
	unsubscribe func()

	searchInvalidation SearchInvalidation
	nonBlocking        bool

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newCachingMaster[T any](backing master.Master[T], opts Options[T]) (*CachingMaster[T], error) {
	if backing == nil {
		return nil, ErrNilBacking
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("vermaster: namespace is required")
	}
	if opts.MaxDocuments < 0 || opts.MaxSearches < 0 || opts.PrefetchWorkers < 0 || opts.PrefetchQueue < 0 {
		return nil, fmt.Errorf("vermaster: cache and pool sizes must not be negative")
	}
	if opts.SharedTTL < 0 {
		return nil, fmt.Errorf("vermaster: shared TTL must not be negative")
	}
	if opts.SharedTier != nil && opts.Codec == nil {
		return nil, fmt.Errorf("vermaster: codec is required with a shared tier")
	}
	if opts.SearchInvalidation > SearchInvalidateScoped {
		return nil, fmt.Errorf("vermaster: unknown search invalidation mode %d", opts.SearchInvalidation)
	}

	log := coalesce[Logger](opts.Logger, NopLogger{})
	hooks := coalesce[Hooks](opts.Hooks, NopHooks{})
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	m := &CachingMaster[T]{
		backing:            backing,
		log:                log,
		clock:              clock,
		changes:            master.NewBasicChangeManager(),
		searchInvalidation: opts.SearchInvalidation,
		nonBlocking:        opts.NonBlockingSearch,
	}

	if opts.SharedTier != nil {
		gens := opts.GenStore
		if gens == nil {
			gens = gen.NewLocalGenStore(
				coalesce(opts.CleanupInterval, defaultSweep),
				coalesce(opts.GenRetention, defaultGenRetention),
			)
		}
		m.shared = &sharedTier[T]{
			ns:       opts.Namespace,
			provider: opts.SharedTier,
			codec:    opts.Codec,
			gens:     gens,
			ttl:      coalesce(opts.SharedTTL, defaultSharedTTL),
			log:      log,
			hooks:    hooks,
		}
	}

	docs, err := newDocCache(backing, coalesce(opts.MaxDocuments, defaultMaxDocuments),
		log, hooks, clock, resolveClone(opts, log), m.shared)
	if err != nil {
		return nil, fmt.Errorf("vermaster: document cache: %w", err)
	}
	m.docs = docs

	if !opts.DisablePrefetch {
		m.prefetch = newPrefetcher(opts.PrefetchWorkers, opts.PrefetchQueue, log, hooks)
	}
	searches, err := newSearchCache(opts.Namespace, backing, docs,
		coalesce(opts.MaxSearches, defaultMaxSearches), log, hooks, m.prefetch)
	if err != nil {
		if m.prefetch != nil {
			_ = m.prefetch.close(context.Background())
		}
		return nil, fmt.Errorf("vermaster: search cache: %w", err)
	}
	m.searches = searches

	if cm := backing.ChangeManager(); cm != nil {
		m.unsubscribe = cm.Subscribe(m.entityChanged)
	} else {
		log.Warn("backing master has no change manager; only write-through changes invalidate", Fields{"ns": opts.Namespace})
	}
	return m, nil
}

func (m *CachingMaster[T]) Get(ctx context.Context, uid master.UniqueID) (master.Document[T], error) {
	if m.closed.Load() {
		return master.Document[T]{}, ErrClosed
	}
	return m.docs.get(ctx, uid)
}

// GetAt fixes any latest axis of v to the configured clock before matching
// cached versions.
func (m *CachingMaster[T]) GetAt(ctx context.Context, oid master.ObjectID, v vc.VersionCorrection) (master.Document[T], error) {
	if m.closed.Load() {
		return master.Document[T]{}, ErrClosed
	}
	return m.docs.getAt(ctx, oid, v)
}

func (m *CachingMaster[T]) GetMany(ctx context.Context, uids []master.UniqueID) (map[master.UniqueID]master.Document[T], error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	return m.docs.getMany(ctx, uids)
}

func (m *CachingMaster[T]) Add(ctx context.Context, doc master.Document[T]) (master.Document[T], error) {
	if m.closed.Load() {
		return master.Document[T]{}, ErrClosed
	}
	added, err := m.backing.Add(ctx, doc)
	if err != nil {
		return added, err
	}
	m.docs.put(added)
	m.invalidateSearches(added.ObjectID())
	return added, nil
}

// Update evicts the object's current versions before writing through, then
// caches the new version.
func (m *CachingMaster[T]) Update(ctx context.Context, doc master.Document[T]) (master.Document[T], error) {
	if m.closed.Load() {
		return master.Document[T]{}, ErrClosed
	}
	oid := doc.ObjectID()
	m.logEvict(oid, m.docs.evictCurrent(ctx, oid, m.clock()))
	updated, err := m.backing.Update(ctx, doc)
	if err != nil {
		return updated, err
	}
	m.docs.put(updated)
	m.invalidateSearches(oid)
	return updated, nil
}

func (m *CachingMaster[T]) Correct(ctx context.Context, doc master.Document[T]) (master.Document[T], error) {
	if m.closed.Load() {
		return master.Document[T]{}, ErrClosed
	}
	m.logEvict(doc.ObjectID(), m.docs.evictUID(ctx, doc.UniqueID))
	corrected, err := m.backing.Correct(ctx, doc)
	if err != nil {
		return corrected, err
	}
	m.docs.put(corrected)
	m.invalidateSearches(corrected.ObjectID())
	return corrected, nil
}

func (m *CachingMaster[T]) Remove(ctx context.Context, oid master.ObjectID) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if err := m.backing.Remove(ctx, oid); err != nil {
		return err
	}
	m.logEvict(oid, m.docs.evictCurrent(ctx, oid, m.clock()))
	m.invalidateSearches(oid)
	return nil
}

// ReplaceVersion evicts uid and writes through. Replacement documents are
// not cached; they are loaded on first read.
func (m *CachingMaster[T]) ReplaceVersion(ctx context.Context, uid master.UniqueID, replacements []master.Document[T]) ([]master.UniqueID, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	m.logEvict(uid.ObjectID(), m.docs.evictUID(ctx, uid))
	ids, err := m.backing.ReplaceVersion(ctx, uid, replacements)
	if err != nil {
		return ids, err
	}
	m.invalidateSearches(uid.ObjectID())
	return ids, nil
}

func (m *CachingMaster[T]) ReplaceAllVersions(ctx context.Context, oid master.ObjectID, replacements []master.Document[T]) ([]master.UniqueID, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	m.logEvict(oid, m.docs.evictObject(ctx, oid))
	ids, err := m.backing.ReplaceAllVersions(ctx, oid, replacements)
	if err != nil {
		return ids, err
	}
	m.invalidateSearches(oid)
	return ids, nil
}

func (m *CachingMaster[T]) ReplaceVersions(ctx context.Context, oid master.ObjectID, replacements []master.Document[T]) ([]master.UniqueID, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	m.logEvict(oid, m.docs.evictObject(ctx, oid))
	ids, err := m.backing.ReplaceVersions(ctx, oid, replacements)
	if err != nil {
		return ids, err
	}
	m.invalidateSearches(oid)
	return ids, nil
}

// Search serves the page from the search cache and resolves identities
// through the document cache. If an identity can no longer be resolved the
// page is read straight from the backing master.
func (m *CachingMaster[T]) Search(ctx context.Context, req master.SearchRequest, paging master.Paging) (master.SearchResult[T], error) {
	if m.closed.Load() {
		return master.SearchResult[T]{}, ErrClosed
	}
	m.searches.warm(req, paging)
	ids, total, err := m.searches.search(ctx, req, paging, !m.nonBlocking)
	if err != nil {
		return master.SearchResult[T]{}, err
	}
	found, err := m.docs.getMany(ctx, ids)
	if err != nil {
		return master.SearchResult[T]{}, err
	}
	docs := make([]master.Document[T], 0, len(ids))
	for _, id := range ids {
		d, ok := found[id]
		if !ok {
			m.log.Debug("search identity vanished; reading page from backing", Fields{"uid": id.String()})
			return m.backing.Search(ctx, req, paging)
		}
		docs = append(docs, d)
	}
	first, last := paging.Clamp(total)
	return master.SearchResult[T]{Paging: master.OfRange(first, last), Total: total, Documents: docs}, nil
}

// Prefetch warms the search cache around paging in the background. It never
// blocks and is a no-op when prefetch is disabled.
func (m *CachingMaster[T]) Prefetch(req master.SearchRequest, paging master.Paging) {
	if m.closed.Load() {
		return
	}
	m.searches.warm(req, paging)
}

// Invalidate evicts every cached version of oid and the searches it may
// appear in. A non-nil error is an *InvalidateError from the shared tier;
// the in-process caches are evicted regardless.
func (m *CachingMaster[T]) Invalidate(ctx context.Context, oid master.ObjectID) error {
	if m.closed.Load() {
		return ErrClosed
	}
	err := m.docs.evictObject(ctx, oid)
	m.invalidateSearches(oid)
	return err
}

// ChangeManager relays the backing master's events after the affected
// entries have been evicted.
func (m *CachingMaster[T]) ChangeManager() master.ChangeManager { return m.changes }

func (m *CachingMaster[T]) Stats() Stats {
	s := Stats{Documents: m.docs.size(), Searches: m.searches.size()}
	if m.prefetch != nil {
		s.PrefetchPending = m.prefetch.queued()
	}
	return s
}

// Close detaches from the backing master, stops the prefetcher, purges both
// caches and closes the shared tier and its generation store. Subsequent
// calls return the first call's result.
func (m *CachingMaster[T]) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		var errs []error
		if m.prefetch != nil {
			errs = append(errs, m.prefetch.close(ctx))
		}
		m.searches.clear("close")
		m.docs.purge()
		if m.shared != nil {
			errs = append(errs, m.shared.close(ctx))
		}
		m.closeErr = errors.Join(errs...)
	})
	return m.closeErr
}

func (m *CachingMaster[T]) logEvict(oid master.ObjectID, err error) {
	if err != nil {
		m.log.Warn("shared tier invalidation failed", Fields{"oid": oid.String(), "err": err})
	}
}
