package vermaster

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	arc "github.com/hashicorp/golang-lru/arc/v2"

	"github.com/unkn0wn-root/vermaster/internal/rangemap"
	"github.com/unkn0wn-root/vermaster/internal/util"
	"github.com/unkn0wn-root/vermaster/master"
)

// searchEntry caches one canonical request: the unpaged total and sparse
// runs of result identities keyed by offset. mu serializes run mutation.
type searchEntry struct {
	key string
	req master.SearchRequest

	mu     sync.Mutex
	seeded bool
	total  int
	runs   *rangemap.Map[master.UniqueID]

	// totalHint mirrors total for lock-free readers; -1 until seeded.
	totalHint atomic.Int64
}

func newSearchEntry(key string, req master.SearchRequest) *searchEntry {
	e := &searchEntry{key: key, req: req, runs: rangemap.New[master.UniqueID]()}
	e.totalHint.Store(-1)
	return e
}

func (e *searchEntry) reset(total int) {
	e.runs.Clear()
	e.total = total
	e.seeded = true
	e.totalHint.Store(int64(total))
}

type searchCache[T any] struct {
	ns       string
	backing  master.Master[T]
	docs     *docCache[T]
	log      Logger
	hooks    Hooks
	prefetch *prefetcher

	mu      sync.Mutex
	entries *arc.ARCCache[string, *searchEntry]

	// cleared moves on every clear; results fetched across a clear are
	// returned but never merged.
	cleared atomic.Uint64
}

type fillOutcome uint8

const (
	fillDone fillOutcome = iota
	fillReset
	fillStale
)

func newSearchCache[T any](ns string, backing master.Master[T], docs *docCache[T], size int,
	log Logger, hooks Hooks, pf *prefetcher) (*searchCache[T], error) {
	entries, err := arc.NewARC[string, *searchEntry](size)
	if err != nil {
		return nil, err
	}
	return &searchCache[T]{
		ns:       ns,
		backing:  backing,
		docs:     docs,
		log:      log,
		hooks:    hooks,
		prefetch: pf,
		entries:  entries,
	}, nil
}

func (c *searchCache[T]) entry(req master.SearchRequest) (*searchEntry, error) {
	canon := req.Canonical()
	key, err := util.SearchKey(c.ns, canon)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Get(key)
	if !ok {
		e = newSearchEntry(key, canon)
		c.entries.Add(key, e)
	}
	return e, nil
}

// search returns the identities in the paging window and the unpaged total.
// A cold entry is seeded with the caller's page either way. After that, with
// block set, missing sub-windows are fetched and merged into the entry's
// runs; without it an uncovered window is fetched straight from the backing
// master and the entry is left untouched.
func (c *searchCache[T]) search(ctx context.Context, req master.SearchRequest, paging master.Paging, block bool) ([]master.UniqueID, int, error) {
	if err := paging.Validate(); err != nil {
		return nil, 0, err
	}
	gen := c.cleared.Load()
	e, err := c.entry(req)
	if err != nil {
		return nil, 0, err
	}
	if !block {
		return c.searchNonBlocking(ctx, e, gen, paging)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.seeded {
		return c.seed(ctx, e, gen, paging)
	}

	for attempt := 0; attempt < 2; attempt++ {
		first, last := paging.Clamp(e.total)
		if ids, ok := e.runs.Slice(first, last); ok {
			return ids, e.total, nil
		}
		outcome, err := c.fill(ctx, e, gen, first, last)
		if err != nil {
			return nil, 0, err
		}
		if outcome == fillStale {
			break
		}
		if outcome == fillDone {
			if ids, ok := e.runs.Slice(first, last); ok {
				return ids, e.total, nil
			}
			break
		}
	}
	first, last := paging.Clamp(e.total)
	return c.passThrough(ctx, e.req, master.OfRange(first, last))
}

// searchNonBlocking seeds a cold entry like a blocking search. Once seeded,
// an uncovered window is fetched straight from the backing master without
// holding the entry lock.
func (c *searchCache[T]) searchNonBlocking(ctx context.Context, e *searchEntry, gen uint64, paging master.Paging) ([]master.UniqueID, int, error) {
	e.mu.Lock()
	if !e.seeded {
		defer e.mu.Unlock()
		return c.seed(ctx, e, gen, paging)
	}
	first, last := paging.Clamp(e.total)
	if ids, ok := e.runs.Slice(first, last); ok {
		total := e.total
		e.mu.Unlock()
		return ids, total, nil
	}
	e.mu.Unlock()
	return c.passThrough(ctx, e.req, master.OfRange(first, last))
}

// seed fetches exactly the caller's page into a cold entry. e.mu must be held.
func (c *searchCache[T]) seed(ctx context.Context, e *searchEntry, gen uint64, paging master.Paging) ([]master.UniqueID, int, error) {
	res, err := c.fetch(ctx, e.req, paging)
	if err != nil {
		return nil, 0, err
	}
	ids := master.UniqueIDs(res.Documents)
	if c.cleared.Load() != gen {
		return ids, res.Total, nil
	}
	e.reset(res.Total)
	e.runs.Put(paging.First, ids)
	c.log.Debug("search entry seeded", Fields{"key": e.key, "total": res.Total, "paging": paging.String()})
	return ids, res.Total, nil
}

// fill fetches each gap of [first, last) with one backing call and merges it.
// If the backing master reports a different total, or returns a page that
// does not match the gap, the entry is reset to the new result (fillReset).
// A clear since gen stops merging (fillStale). Runs merged before a failing
// call stay cached.
func (c *searchCache[T]) fill(ctx context.Context, e *searchEntry, gen uint64, first, last int) (fillOutcome, error) {
	for _, gap := range e.runs.Gaps(first, last) {
		res, err := c.fetch(ctx, e.req, master.OfRange(gap.First, gap.Last))
		if err != nil {
			c.log.Debug("search fill failed", Fields{"key": e.key, "first": gap.First, "last": gap.Last, "err": err})
			return fillDone, err
		}
		if c.cleared.Load() != gen {
			return fillStale, nil
		}
		ids := master.UniqueIDs(res.Documents)
		if res.Total != e.total || len(ids) != gap.Len() {
			c.log.Warn("search result changed during fill; resetting entry", Fields{
				"key": e.key, "total": e.total, "newTotal": res.Total,
				"want": gap.Len(), "got": len(ids),
			})
			e.reset(res.Total)
			e.runs.Put(gap.First, ids)
			return fillReset, nil
		}
		e.runs.Put(gap.First, ids)
	}
	return fillDone, nil
}

func (c *searchCache[T]) passThrough(ctx context.Context, req master.SearchRequest, paging master.Paging) ([]master.UniqueID, int, error) {
	res, err := c.fetch(ctx, req, paging)
	if err != nil {
		return nil, 0, err
	}
	return master.UniqueIDs(res.Documents), res.Total, nil
}

// fetch runs a backing search and seeds the returned documents into the
// document cache unless an eviction raced with it.
func (c *searchCache[T]) fetch(ctx context.Context, req master.SearchRequest, paging master.Paging) (master.SearchResult[T], error) {
	seq := c.docs.evictSeq.Load()
	res, err := c.backing.Search(ctx, req, paging)
	if err != nil {
		return res, err
	}
	c.docs.seed(res.Documents, seq)
	return res, nil
}

// warm submits a background fill of the window around paging. It never blocks.
func (c *searchCache[T]) warm(req master.SearchRequest, paging master.Paging) {
	if c.prefetch == nil || paging.Validate() != nil {
		return
	}
	e, err := c.entry(req)
	if err != nil {
		c.log.Debug("prefetch skipped", Fields{"err": err})
		return
	}
	first, last, ok := prefetchWindow(paging.First, paging.Last(), int(e.totalHint.Load()))
	if !ok {
		return
	}
	window := master.OfRange(first, last)
	c.prefetch.submit(e.key, func(ctx context.Context) {
		if _, _, err := c.search(ctx, e.req, window, true); err != nil {
			c.log.Debug("prefetch failed", Fields{"key": e.key, "paging": window.String(), "err": err})
		}
	})
}

// prefetchWindow widens [first, last) to whole granularity blocks plus
// prefetchSpread blocks on each side, clamped to [0, total) when total is
// known (>= 0) and to math.MaxInt.
func prefetchWindow(first, last, total int) (int, int, bool) {
	const unit = prefetchGranularity
	lo := first/unit - prefetchSpread
	if lo < 0 {
		lo = 0
	}
	hi := last / unit
	if last%unit != 0 {
		hi++
	}
	start, end := lo*unit, math.MaxInt
	if hi <= math.MaxInt/unit-prefetchSpread {
		end = (hi + prefetchSpread) * unit
	}
	if total >= 0 && end > total {
		end = total
	}
	return start, end, start < end
}

// clear drops every cached search.
func (c *searchCache[T]) clear(scope string) {
	c.mu.Lock()
	n := c.entries.Len()
	c.entries.Purge()
	c.cleared.Add(1)
	c.mu.Unlock()
	if n > 0 {
		c.hooks.SearchCleared(n, scope)
		c.log.Debug("search cache cleared", Fields{"entries": n, "scope": scope})
	}
}

// clearScoped drops the searches that could include oid.
func (c *searchCache[T]) clearScoped(oid master.ObjectID) {
	c.mu.Lock()
	n := 0
	for _, k := range c.entries.Keys() {
		e, ok := c.entries.Peek(k)
		if !ok {
			continue
		}
		if _, includes := e.req.Restricts(oid); includes {
			c.entries.Remove(k)
			n++
		}
	}
	c.cleared.Add(1)
	c.mu.Unlock()
	if n > 0 {
		c.hooks.SearchCleared(n, "scoped")
		c.log.Debug("search cache cleared", Fields{"entries": n, "scope": "scoped", "oid": oid.String()})
	}
}

func (c *searchCache[T]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
