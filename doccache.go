package vermaster

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/unkn0wn-root/vermaster/master"
	"github.com/unkn0wn-root/vermaster/vc"
)

// resolvedCh is shared by every entry inserted already resolved.
var resolvedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// docEntry is a future for one exact unique id. doc and err are written once,
// under docCache.mu, before done is closed.
type docEntry[T any] struct {
	uid  master.UniqueID
	done chan struct{}
	doc  master.Document[T]
	err  error
}

func (e *docEntry[T]) resolved() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// inflight counts backing fetches of one object. Any eviction or write-through
// insert of the object bumps epoch; a fetch that observes a different epoch on
// completion must not be cached.
type inflight struct {
	fetches int
	epoch   uint64
}

type docCache[T any] struct {
	backing master.Master[T]
	log     Logger
	hooks   Hooks
	clock   func() time.Time
	clone   CloneFunc[T]
	shared  *sharedTier[T] // nil when disabled

	mu       sync.Mutex
	entries  *lru.Cache[master.UniqueID, *docEntry[T]]
	byOID    map[master.ObjectID]map[master.UniqueID]*docEntry[T]
	inflight map[master.ObjectID]*inflight

	// evictSeq moves on every eviction; callers seeding documents they read
	// outside the cache compare it across the read.
	evictSeq atomic.Uint64
}

func newDocCache[T any](backing master.Master[T], size int, log Logger, hooks Hooks,
	clock func() time.Time, clone CloneFunc[T], shared *sharedTier[T]) (*docCache[T], error) {
	c := &docCache[T]{
		backing:  backing,
		log:      log,
		hooks:    hooks,
		clock:    clock,
		clone:    clone,
		shared:   shared,
		byOID:    make(map[master.ObjectID]map[master.UniqueID]*docEntry[T]),
		inflight: make(map[master.ObjectID]*inflight),
	}
	entries, err := lru.NewWithEvict(size, c.unindexLocked)
	if err != nil {
		return nil, err
	}
	c.entries = entries
	return c, nil
}

// get returns the document for uid, loading it at most once concurrently.
// Backing failures are cached and replayed until the object is evicted;
// context errors are not.
func (c *docCache[T]) get(ctx context.Context, uid master.UniqueID) (master.Document[T], error) {
	for {
		c.mu.Lock()
		e, ok := c.entries.Get(uid)
		if !ok {
			e = &docEntry[T]{uid: uid, done: make(chan struct{})}
			c.insertLocked(e)
			epoch := c.beginFetchLocked(uid.ObjectID())
			c.mu.Unlock()
			c.load(ctx, e, epoch)
		} else {
			c.mu.Unlock()
		}

		select {
		case <-e.done:
		case <-ctx.Done():
			return master.Document[T]{}, ctx.Err()
		}
		if e.err != nil {
			// the loader's context ended, not ours: try again
			if isContextErr(e.err) && ctx.Err() == nil {
				continue
			}
			return master.Document[T]{}, e.err
		}
		return cloneDoc(c.clone, e.doc), nil
	}
}

func (c *docCache[T]) load(ctx context.Context, e *docEntry[T], epoch uint64) {
	oid := e.uid.ObjectID()
	doc, err := c.fetch(ctx, e.uid)

	c.mu.Lock()
	defer c.mu.Unlock()
	fresh := c.endFetchLocked(oid, epoch)
	if err == nil {
		e.doc = cloneDoc(c.clone, doc)
	}
	e.err = err
	close(e.done)

	if !c.currentLocked(e) {
		return
	}
	switch {
	case err != nil && isContextErr(err), !fresh:
		c.entries.Remove(e.uid)
	case err != nil:
		c.hooks.FaultCached(e.uid.String(), err)
		c.log.Debug("fault cached", Fields{"uid": e.uid.String(), "err": err})
	}
}

func (c *docCache[T]) fetch(ctx context.Context, uid master.UniqueID) (master.Document[T], error) {
	if c.shared == nil {
		return c.backing.Get(ctx, uid)
	}
	if doc, ok := c.shared.get(ctx, uid); ok {
		return doc, nil
	}
	observed, ok := c.shared.snapshot(ctx, uid.ObjectID())
	doc, err := c.backing.Get(ctx, uid)
	if err == nil && ok {
		c.shared.set(ctx, doc, observed)
	}
	return doc, err
}

// getAt serves the single cached version of oid valid at v. Misses go to
// the backing master without single-flight.
func (c *docCache[T]) getAt(ctx context.Context, oid master.ObjectID, v vc.VersionCorrection) (master.Document[T], error) {
	fixed := v.WithLatestFixed(c.clock())

	c.mu.Lock()
	var matches []*docEntry[T]
	for _, e := range c.byOID[oid] {
		if e.resolved() && e.err == nil && e.doc.Contains(fixed) {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 1:
		e, _ := c.entries.Get(matches[0].uid) // touch
		doc := e.doc
		c.mu.Unlock()
		return cloneDoc(c.clone, doc), nil
	case 0:
	default:
		c.mu.Unlock()
		return master.Document[T]{}, c.ambiguous(oid, fixed, matches)
	}
	epoch := c.beginFetchLocked(oid)
	c.mu.Unlock()

	doc, err := c.backing.GetAt(ctx, oid, v)

	c.mu.Lock()
	fresh := c.endFetchLocked(oid, epoch)
	if err == nil && fresh {
		c.putLocked(doc)
	}
	c.mu.Unlock()
	if err != nil {
		return master.Document[T]{}, err
	}
	return cloneDoc(c.clone, doc), nil
}

func (c *docCache[T]) ambiguous(oid master.ObjectID, v vc.VersionCorrection, matches []*docEntry[T]) error {
	uids := make([]master.UniqueID, len(matches))
	for i, e := range matches {
		uids[i] = e.uid
	}
	slices.SortFunc(uids, func(a, b master.UniqueID) int { return strings.Compare(a.String(), b.String()) })
	err := &AmbiguousError{ObjectID: oid, VersionCorrection: v, Matches: uids}
	c.hooks.AmbiguousMatch(oid.String(), len(uids))
	c.log.Error("ambiguous cached versions", Fields{"oid": oid.String(), "vc": v.String(), "matches": len(uids)})
	return err
}

// getMany serves hits from the cache and fetches every miss in one backing
// call. Absent ids are omitted.
func (c *docCache[T]) getMany(ctx context.Context, uids []master.UniqueID) (map[master.UniqueID]master.Document[T], error) {
	out := make(map[master.UniqueID]master.Document[T], len(uids))
	var misses []master.UniqueID
	epochs := make(map[master.ObjectID]uint64)

	c.mu.Lock()
	for _, uid := range uids {
		if _, dup := out[uid]; dup {
			continue
		}
		if e, ok := c.entries.Get(uid); ok && e.resolved() {
			if e.err == nil {
				out[uid] = e.doc
				continue
			}
			if master.IsNotFound(e.err) {
				continue
			}
		}
		if slices.Contains(misses, uid) {
			continue
		}
		misses = append(misses, uid)
		if _, ok := epochs[uid.ObjectID()]; !ok {
			epochs[uid.ObjectID()] = c.beginFetchLocked(uid.ObjectID())
		}
	}
	c.mu.Unlock()

	if len(misses) > 0 {
		fetched, err := c.backing.GetMany(ctx, misses)

		c.mu.Lock()
		fresh := make(map[master.ObjectID]bool, len(epochs))
		for oid, epoch := range epochs {
			fresh[oid] = c.endFetchLocked(oid, epoch)
		}
		if err == nil {
			for uid, doc := range fetched {
				if fresh[uid.ObjectID()] {
					c.putLocked(doc)
				}
				out[uid] = doc
			}
		}
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	for uid, doc := range out {
		out[uid] = cloneDoc(c.clone, doc)
	}
	return out, nil
}

// put inserts doc as resolved, replacing any entry for its unique id.
func (c *docCache[T]) put(doc master.Document[T]) {
	c.mu.Lock()
	c.putLocked(doc)
	c.mu.Unlock()
}

// seed inserts docs read outside the cache unless anything was evicted
// since seq was sampled.
func (c *docCache[T]) seed(docs []master.Document[T], seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.evictSeq.Load() != seq {
		return
	}
	for _, d := range docs {
		if e, ok := c.entries.Peek(d.UniqueID); ok && e.resolved() && e.err == nil {
			continue
		}
		c.insertLocked(&docEntry[T]{uid: d.UniqueID, done: resolvedCh, doc: cloneDoc(c.clone, d)})
	}
}

func (c *docCache[T]) putLocked(doc master.Document[T]) {
	c.insertLocked(&docEntry[T]{uid: doc.UniqueID, done: resolvedCh, doc: cloneDoc(c.clone, doc)})
	if f := c.inflight[doc.ObjectID()]; f != nil {
		f.epoch++
	}
}

func (c *docCache[T]) insertLocked(e *docEntry[T]) {
	c.entries.Add(e.uid, e)
	oid := e.uid.ObjectID()
	m := c.byOID[oid]
	if m == nil {
		m = make(map[master.UniqueID]*docEntry[T])
		c.byOID[oid] = m
	}
	m[e.uid] = e
}

// unindexLocked is the LRU eviction callback. It runs synchronously inside
// entries.Add/Remove/Purge, all of which are called with mu held.
func (c *docCache[T]) unindexLocked(uid master.UniqueID, e *docEntry[T]) {
	oid := uid.ObjectID()
	m := c.byOID[oid]
	if m == nil || m[uid] != e {
		return
	}
	delete(m, uid)
	if len(m) == 0 {
		delete(c.byOID, oid)
	}
}

func (c *docCache[T]) currentLocked(e *docEntry[T]) bool {
	cur, ok := c.entries.Peek(e.uid)
	return ok && cur == e
}

func (c *docCache[T]) beginFetchLocked(oid master.ObjectID) uint64 {
	f := c.inflight[oid]
	if f == nil {
		f = &inflight{}
		c.inflight[oid] = f
	}
	f.fetches++
	return f.epoch
}

// endFetchLocked reports whether no eviction of oid happened since the
// matching beginFetchLocked.
func (c *docCache[T]) endFetchLocked(oid master.ObjectID, epoch uint64) bool {
	f := c.inflight[oid]
	if f == nil {
		return false
	}
	fresh := f.epoch == epoch
	f.fetches--
	if f.fetches <= 0 {
		delete(c.inflight, oid)
	}
	return fresh
}

// evictCurrent drops the versions of oid that may still be current at now,
// plus pending and faulted entries of the object.
func (c *docCache[T]) evictCurrent(ctx context.Context, oid master.ObjectID, now time.Time) error {
	return c.evictWhere(ctx, oid, func(d master.Document[T]) bool { return d.ValidAt(now) })
}

// evictRange drops the versions of oid overlapping [from, to), plus pending
// and faulted entries of the object.
func (c *docCache[T]) evictRange(ctx context.Context, oid master.ObjectID, from, to time.Time) error {
	return c.evictWhere(ctx, oid, func(d master.Document[T]) bool { return d.OverlapsVersion(from, to) })
}

// evictObject drops every entry of oid.
func (c *docCache[T]) evictObject(ctx context.Context, oid master.ObjectID) error {
	return c.evictWhere(ctx, oid, func(master.Document[T]) bool { return true })
}

// evictUID drops the single entry for uid.
func (c *docCache[T]) evictUID(ctx context.Context, uid master.UniqueID) error {
	oid := uid.ObjectID()
	c.mu.Lock()
	c.entries.Remove(uid)
	c.bumpLocked(oid)
	c.mu.Unlock()
	c.log.Debug("evicted version", Fields{"uid": uid.String()})
	return c.invalidateShared(ctx, oid, []master.UniqueID{uid})
}

func (c *docCache[T]) evictWhere(ctx context.Context, oid master.ObjectID, match func(master.Document[T]) bool) error {
	c.mu.Lock()
	var victims []master.UniqueID
	for uid, e := range c.byOID[oid] {
		if !e.resolved() || e.err != nil || match(e.doc) {
			victims = append(victims, uid)
		}
	}
	for _, uid := range victims {
		c.entries.Remove(uid)
	}
	c.bumpLocked(oid)
	c.mu.Unlock()

	if len(victims) > 0 {
		c.log.Debug("evicted versions", Fields{"oid": oid.String(), "count": len(victims)})
	}
	return c.invalidateShared(ctx, oid, victims)
}

func (c *docCache[T]) bumpLocked(oid master.ObjectID) {
	if f := c.inflight[oid]; f != nil {
		f.epoch++
	}
	c.evictSeq.Add(1)
}

func (c *docCache[T]) invalidateShared(ctx context.Context, oid master.ObjectID, uids []master.UniqueID) error {
	if c.shared == nil {
		return nil
	}
	return c.shared.invalidate(ctx, oid, uids)
}

func (c *docCache[T]) size() int { return c.entries.Len() }

func (c *docCache[T]) purge() {
	c.mu.Lock()
	c.entries.Purge()
	for _, f := range c.inflight {
		f.epoch++
	}
	c.evictSeq.Add(1)
	c.mu.Unlock()
}
