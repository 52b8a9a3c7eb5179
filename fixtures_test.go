package vermaster

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/vermaster/master"
	"github.com/unkn0wn-root/vermaster/master/memmaster"
	pr "github.com/unkn0wn-root/vermaster/provider"
	"github.com/unkn0wn-root/vermaster/vc"
)

// ==============================
// Fakes
// ==============================

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type memProvider struct {
	mu sync.Mutex
	m  map[string]memEntry
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	p.mu.Lock()
	p.m[key] = memEntry{v: value, exp: exp}
	p.mu.Unlock()
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(h int) time.Time { return base.Add(time.Duration(h) * time.Hour) }

// countingMaster wraps the in-memory master, counting reads and letting
// tests block or fail them.
type countingMaster struct {
	*memmaster.Master[string]

	gets, getAts, getManys, searches atomic.Int64

	getGate    chan struct{} // when set, Get waits for it to close
	searchGate chan struct{} // when set, Search waits for it to close
	failSearch func(master.Paging) error
	quiet      bool // hide change events from the cache

	mu       sync.Mutex
	searched []master.Paging
}

func (m *countingMaster) Get(ctx context.Context, uid master.UniqueID) (master.Document[string], error) {
	m.gets.Add(1)
	if m.getGate != nil {
		select {
		case <-m.getGate:
		case <-ctx.Done():
			return master.Document[string]{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return master.Document[string]{}, err
	}
	return m.Master.Get(ctx, uid)
}

func (m *countingMaster) GetAt(ctx context.Context, oid master.ObjectID, v vc.VersionCorrection) (master.Document[string], error) {
	m.getAts.Add(1)
	return m.Master.GetAt(ctx, oid, v)
}

func (m *countingMaster) GetMany(ctx context.Context, uids []master.UniqueID) (map[master.UniqueID]master.Document[string], error) {
	m.getManys.Add(1)
	return m.Master.GetMany(ctx, uids)
}

func (m *countingMaster) Search(ctx context.Context, req master.SearchRequest, p master.Paging) (master.SearchResult[string], error) {
	m.searches.Add(1)
	m.mu.Lock()
	m.searched = append(m.searched, p)
	m.mu.Unlock()
	if m.searchGate != nil {
		select {
		case <-m.searchGate:
		case <-ctx.Done():
			return master.SearchResult[string]{}, ctx.Err()
		}
	}
	if m.failSearch != nil {
		if err := m.failSearch(p); err != nil {
			return master.SearchResult[string]{}, err
		}
	}
	return m.Master.Search(ctx, req, p)
}

func (m *countingMaster) ChangeManager() master.ChangeManager {
	if m.quiet {
		return master.NewBasicChangeManager()
	}
	return m.Master.ChangeManager()
}

func (m *countingMaster) lastSearched() master.Paging {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searched[len(m.searched)-1]
}

func (m *countingMaster) reset() {
	m.gets.Store(0)
	m.getAts.Store(0)
	m.getManys.Store(0)
	m.searches.Store(0)
	m.mu.Lock()
	m.searched = nil
	m.mu.Unlock()
}

type recHooks struct {
	NopHooks
	mu        sync.Mutex
	faults    int
	ambiguous int
	dropped   int
	rejected  int
	heals     []string
	cleared   []string
}

func (h *recHooks) FaultCached(string, error) { h.mu.Lock(); h.faults++; h.mu.Unlock() }
func (h *recHooks) AmbiguousMatch(string, int) {
	h.mu.Lock()
	h.ambiguous++
	h.mu.Unlock()
}
func (h *recHooks) PrefetchDropped(string) { h.mu.Lock(); h.dropped++; h.mu.Unlock() }
func (h *recHooks) SharedSetRejected(string) {
	h.mu.Lock()
	h.rejected++
	h.mu.Unlock()
}
func (h *recHooks) SharedSelfHeal(_, reason string) {
	h.mu.Lock()
	h.heals = append(h.heals, reason)
	h.mu.Unlock()
}
func (h *recHooks) SearchCleared(_ int, scope string) {
	h.mu.Lock()
	h.cleared = append(h.cleared, scope)
	h.mu.Unlock()
}

type hookCounts struct {
	faults, ambiguous, dropped, rejected int
	heals, cleared             []string
}

func (h *recHooks) snapshot() hookCounts {
	h.mu.Lock()
	defer h.mu.Unlock()
	return hookCounts{
		faults: h.faults, ambiguous: h.ambiguous, dropped: h.dropped, rejected: h.rejected,
		heals: append([]string(nil), h.heals...), cleared: append([]string(nil), h.cleared...),
	}
}

// ==============================
// Fixture
// ==============================

type fixture struct {
	cm      *CachingMaster[string]
	backing *countingMaster
	clk     *testClock
	hooks   *recHooks
}

// newFixture seeds n documents into the backing master at at(0), moves the
// clock to at(1) and wraps the master with a cache.
func newFixture(t *testing.T, n int, setup func(*countingMaster), optsOpt func(*Options[string])) *fixture {
	t.Helper()
	ctx := context.Background()
	clk := &testClock{now: at(0)}
	backing := &countingMaster{Master: memmaster.New(memmaster.Options[string]{Clock: clk.Now})}
	for i := 0; i < n; i++ {
		if _, err := backing.Add(ctx, master.Document[string]{Value: fmt.Sprintf("doc-%03d", i)}); err != nil {
			t.Fatalf("seed Add: %v", err)
		}
	}
	clk.Set(at(1))
	if setup != nil {
		setup(backing)
	}

	hooks := &recHooks{}
	opts := Options[string]{
		Namespace: "test",
		Clock:     clk.Now,
		Hooks:     hooks,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cm, err := New[string](backing, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = cm.Close(context.Background()) })
	return &fixture{cm: cm, backing: backing, clk: clk, hooks: hooks}
}

func noPrefetch(o *Options[string]) { o.DisablePrefetch = true }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func allUIDs(t *testing.T, m master.Master[string], req master.SearchRequest, p master.Paging) []master.UniqueID {
	t.Helper()
	res, err := m.Search(context.Background(), req, p)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	return master.UniqueIDs(res.Documents)
}
