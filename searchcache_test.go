package vermaster

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/unkn0wn-root/vermaster/internal/rangemap"
	"github.com/unkn0wn-root/vermaster/master"
)

func search(t *testing.T, f *fixture, req master.SearchRequest, p master.Paging) master.SearchResult[string] {
	t.Helper()
	res, err := f.cm.Search(context.Background(), req, p)
	if err != nil {
		t.Fatalf("Search %s: %v", p, err)
	}
	return res
}

func searchEntryOf(t *testing.T, f *fixture, req master.SearchRequest) *searchEntry {
	t.Helper()
	e, err := f.cm.searches.entry(req)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	return e
}

func spans(e *searchEntry) []rangemap.Span {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs.Spans()
}

// ==============================
// Range idempotence, gap filling, clamping
// ==============================

func TestSearchRepeatIsServedFromCache(t *testing.T) {
	f := newFixture(t, 120, nil, noPrefetch)
	req := master.SearchRequest{}

	first := search(t, f, req, master.OfIndex(0, 50))
	second := search(t, f, req, master.OfIndex(0, 50))

	if first.Total != 120 || second.Total != 120 {
		t.Fatalf("totals = %d, %d; want 120", first.Total, second.Total)
	}
	if !reflect.DeepEqual(master.UniqueIDs(first.Documents), master.UniqueIDs(second.Documents)) {
		t.Fatalf("repeated search returned different identities")
	}
	if n := f.backing.searches.Load(); n != 1 {
		t.Fatalf("backing Search calls = %d, want 1", n)
	}
	if n := f.backing.getManys.Load(); n != 0 {
		t.Fatalf("documents should be seeded by the search; GetMany calls = %d", n)
	}
}

func TestSearchFillsOnlyTheGap(t *testing.T) {
	f := newFixture(t, 200, nil, noPrefetch)
	req := master.SearchRequest{}
	want := allUIDs(t, f.backing.Master, req, master.OfRange(40, 120))

	search(t, f, req, master.OfRange(0, 50))
	search(t, f, req, master.OfRange(100, 150))
	e := searchEntryOf(t, f, req)
	if got := spans(e); !reflect.DeepEqual(got, []rangemap.Span{{First: 0, Last: 50}, {First: 100, Last: 150}}) {
		t.Fatalf("runs before fill = %v", got)
	}

	f.backing.reset()
	res := search(t, f, req, master.OfRange(40, 120))

	if n := f.backing.searches.Load(); n != 1 {
		t.Fatalf("gap fill should take one backing call, got %d", n)
	}
	if p := f.backing.lastSearched(); p != master.OfRange(50, 100) {
		t.Fatalf("gap fill fetched %s, want [50,100)", p)
	}
	if got := master.UniqueIDs(res.Documents); !reflect.DeepEqual(got, want) {
		t.Fatalf("merged slice differs from backing order")
	}
	if got := spans(e); !reflect.DeepEqual(got, []rangemap.Span{{First: 0, Last: 150}}) {
		t.Fatalf("runs after fill = %v, want one super-range [0,150)", got)
	}
}

func TestSearchClampsToTotal(t *testing.T) {
	f := newFixture(t, 200, nil, noPrefetch)
	req := master.SearchRequest{}

	res := search(t, f, req, master.OfRange(190, 250))
	if len(res.Documents) != 10 || res.Total != 200 {
		t.Fatalf("[190,250): got %d docs total %d, want 10 of 200", len(res.Documents), res.Total)
	}
	res = search(t, f, req, master.OfRange(250, 300))
	if len(res.Documents) != 0 || res.Total != 200 {
		t.Fatalf("[250,300): got %d docs total %d, want 0 of 200", len(res.Documents), res.Total)
	}
}

func TestSearchPagingMatchesBackingMaster(t *testing.T) {
	f := newFixture(t, 200, nil, noPrefetch)
	req := master.SearchRequest{}
	p := master.OfRange(190, 250)

	direct, err := f.backing.Master.Search(context.Background(), req, p)
	if err != nil {
		t.Fatalf("backing Search: %v", err)
	}
	for i, label := range []string{"cold", "cached"} {
		res := search(t, f, req, p)
		if res.Paging != direct.Paging || res.Total != direct.Total {
			t.Fatalf("%s search #%d: paging=%v total=%d, backing paging=%v total=%d",
				label, i, res.Paging, res.Total, direct.Paging, direct.Total)
		}
		if !reflect.DeepEqual(master.UniqueIDs(res.Documents), master.UniqueIDs(direct.Documents)) {
			t.Fatalf("%s search returned different documents", label)
		}
	}
}

func TestSearchRejectsNegativePaging(t *testing.T) {
	f := newFixture(t, 1, nil, noPrefetch)
	_, err := f.cm.Search(context.Background(), master.SearchRequest{}, master.Paging{First: -1, Size: 5})
	if !errors.Is(err, master.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}

func TestSearchKeyIgnoresObjectIDOrder(t *testing.T) {
	f := newFixture(t, 3, nil, noPrefetch)
	ids := allUIDs(t, f.backing.Master, master.SearchRequest{}, master.PagingAll)
	a, b := ids[0].ObjectID(), ids[1].ObjectID()

	search(t, f, master.SearchRequest{ObjectIDs: []master.ObjectID{a, b}}, master.OfIndex(0, 10))
	res := search(t, f, master.SearchRequest{ObjectIDs: []master.ObjectID{b, a, b}}, master.OfIndex(0, 10))
	if res.Total != 2 {
		t.Fatalf("total = %d, want 2", res.Total)
	}
	if n := f.backing.searches.Load(); n != 1 {
		t.Fatalf("equivalent requests should share an entry; backing calls = %d", n)
	}
}

// ==============================
// Consistency under change
// ==============================

func TestSearchResetsWhenTotalMovesDuringFill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 200, func(b *countingMaster) { b.quiet = true }, noPrefetch)
	req := master.SearchRequest{}

	search(t, f, req, master.OfRange(0, 50))
	if _, err := f.backing.Master.Add(ctx, master.Document[string]{Value: "late"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	res := search(t, f, req, master.OfRange(100, 150))
	if res.Total != 201 || len(res.Documents) != 50 {
		t.Fatalf("after reset: total=%d docs=%d, want 201/50", res.Total, len(res.Documents))
	}
	e := searchEntryOf(t, f, req)
	if got := spans(e); !reflect.DeepEqual(got, []rangemap.Span{{First: 100, Last: 150}}) {
		t.Fatalf("reset entry runs = %v", got)
	}
}

func TestSearchClearedOnChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, nil, noPrefetch)
	req := master.SearchRequest{}

	search(t, f, req, master.OfIndex(0, 5))
	if s := f.cm.Stats().Searches; s != 1 {
		t.Fatalf("Searches = %d, want 1", s)
	}
	if _, err := f.cm.Add(ctx, master.Document[string]{Value: "new"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if s := f.cm.Stats().Searches; s != 0 {
		t.Fatalf("change should clear searches, %d left", s)
	}
	if res := search(t, f, req, master.OfIndex(0, 5)); res.Total != 11 {
		t.Fatalf("total after add = %d, want 11", res.Total)
	}
}

func TestSearchScopedInvalidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, nil, func(o *Options[string]) {
		o.DisablePrefetch = true
		o.SearchInvalidation = SearchInvalidateScoped
	})
	ids := allUIDs(t, f.backing.Master, master.SearchRequest{}, master.PagingAll)
	o1, o2 := ids[0].ObjectID(), ids[1].ObjectID()

	onlyO1 := master.SearchRequest{ObjectIDs: []master.ObjectID{o1}}
	onlyO2 := master.SearchRequest{ObjectIDs: []master.ObjectID{o2}}
	everything := master.SearchRequest{}
	for _, r := range []master.SearchRequest{onlyO1, onlyO2, everything} {
		search(t, f, r, master.OfIndex(0, 10))
	}

	f.clk.Set(at(2))
	if _, err := f.cm.Update(ctx, master.Document[string]{UniqueID: o1.AtVersion(""), Value: "changed"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if s := f.cm.Stats().Searches; s != 1 {
		t.Fatalf("Searches = %d, want only the o2 entry", s)
	}
	key := searchEntryOf(t, f, onlyO2).key
	f.backing.reset()
	search(t, f, onlyO2, master.OfIndex(0, 10))
	if n := f.backing.searches.Load(); n != 0 {
		t.Fatalf("unrelated entry %s should survive; backing calls = %d", key, n)
	}
	h := f.hooks.snapshot()
	if len(h.cleared) == 0 || h.cleared[len(h.cleared)-1] != "scoped" {
		t.Fatalf("SearchCleared scopes = %v", h.cleared)
	}
}

func TestSearchPartialFailureKeepsMergedRuns(t *testing.T) {
	boom := errors.New("backing down")
	f := newFixture(t, 200, func(b *countingMaster) {
		b.failSearch = func(p master.Paging) error {
			if p.First == 150 {
				return boom
			}
			return nil
		}
	}, noPrefetch)
	req := master.SearchRequest{}

	search(t, f, req, master.OfRange(0, 50))
	search(t, f, req, master.OfRange(100, 150))
	if _, err := f.cm.Search(context.Background(), req, master.OfRange(0, 200)); !errors.Is(err, boom) {
		t.Fatalf("want backing error, got %v", err)
	}
	e := searchEntryOf(t, f, req)
	if got := spans(e); !reflect.DeepEqual(got, []rangemap.Span{{First: 0, Last: 150}}) {
		t.Fatalf("runs after partial failure = %v, want [0,150)", got)
	}
}

func TestNonBlockingSearchSeedsColdEntry(t *testing.T) {
	f := newFixture(t, 20, nil, func(o *Options[string]) {
		o.DisablePrefetch = true
		o.NonBlockingSearch = true
	})
	req := master.SearchRequest{}

	for i := 0; i < 2; i++ {
		if res := search(t, f, req, master.OfIndex(0, 5)); len(res.Documents) != 5 || res.Total != 20 {
			t.Fatalf("search #%d: docs=%d total=%d", i, len(res.Documents), res.Total)
		}
	}
	if n := f.backing.searches.Load(); n != 1 {
		t.Fatalf("repeat of the seeded page must be served from cache; backing calls = %d", n)
	}
	e := searchEntryOf(t, f, req)
	if got := spans(e); !reflect.DeepEqual(got, []rangemap.Span{{First: 0, Last: 5}}) {
		t.Fatalf("runs after seed = %v, want [0,5)", got)
	}
}

func TestNonBlockingSearchPassesThroughUncoveredWindow(t *testing.T) {
	f := newFixture(t, 20, nil, func(o *Options[string]) {
		o.DisablePrefetch = true
		o.NonBlockingSearch = true
	})
	req := master.SearchRequest{}
	search(t, f, req, master.OfIndex(0, 5))
	f.backing.reset()

	for i := 0; i < 2; i++ {
		if res := search(t, f, req, master.OfIndex(10, 5)); len(res.Documents) != 5 || res.Total != 20 {
			t.Fatalf("pass-through: docs=%d total=%d", len(res.Documents), res.Total)
		}
	}
	if n := f.backing.searches.Load(); n != 2 {
		t.Fatalf("uncovered windows are not filled in non-blocking mode; backing calls = %d", n)
	}
	if got := f.backing.lastSearched(); got != master.OfRange(10, 15) {
		t.Fatalf("pass-through window = %v, want [10,15)", got)
	}
	if got := spans(searchEntryOf(t, f, req)); !reflect.DeepEqual(got, []rangemap.Span{{First: 0, Last: 5}}) {
		t.Fatalf("entry was mutated: %v", got)
	}
}

// ==============================
// Prefetch
// ==============================

func TestPrefetchWindow(t *testing.T) {
	cases := []struct {
		name               string
		first, last, total int
		wantFirst, wantEnd int
		wantOK             bool
	}{
		{"cold first page", 0, 10, -1, 0, 600, true},
		{"known total", 0, 10, 300, 0, 300, true},
		{"middle", 1000, 1050, -1, 600, 1600, true},
		{"block aligned", 400, 600, -1, 0, 1000, true},
		{"past total", 500, 600, 100, 0, 100, true},
		{"empty result", 0, 10, 0, 0, 0, false},
		{"near max int", math.MaxInt - 5, math.MaxInt, -1, (math.MaxInt/200 - 2) * 200, math.MaxInt, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first, end, ok := prefetchWindow(tc.first, tc.last, tc.total)
			if first != tc.wantFirst || end != tc.wantEnd || ok != tc.wantOK {
				t.Fatalf("prefetchWindow(%d,%d,%d) = (%d,%d,%v), want (%d,%d,%v)",
					tc.first, tc.last, tc.total, first, end, ok, tc.wantFirst, tc.wantEnd, tc.wantOK)
			}
		})
	}
}

func TestPrefetchDoesNotBlockAndWarmsCache(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, 300, func(b *countingMaster) { b.searchGate = gate }, nil)
	req := master.SearchRequest{}

	returned := make(chan struct{})
	go func() {
		f.cm.Prefetch(req, master.OfIndex(0, 10))
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatalf("Prefetch blocked on a slow backing master")
	}
	waitFor(t, "prefetch to reach the backing master", func() bool { return f.backing.searches.Load() == 1 })
	close(gate)
	waitFor(t, "prefetch to finish", func() bool { return f.cm.Stats().PrefetchPending == 0 })

	if p := f.backing.lastSearched(); p != master.OfRange(0, 600) {
		t.Fatalf("prefetch fetched %s, want [0,600)", p)
	}
	f.backing.reset()
	res := search(t, f, req, master.OfIndex(250, 40))
	if len(res.Documents) != 40 || res.Total != 300 {
		t.Fatalf("docs=%d total=%d", len(res.Documents), res.Total)
	}
	if n := f.backing.searches.Load(); n != 0 {
		t.Fatalf("prefetched window should be warm; backing Search calls = %d", n)
	}
	if n := f.backing.getManys.Load(); n != 0 {
		t.Fatalf("prefetched documents should be warm; GetMany calls = %d", n)
	}
}
