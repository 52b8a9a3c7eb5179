// Package memmaster is an in-memory bitemporal master. It keeps every
// version and correction ever written and emits change events synchronously
// after each mutation. It is meant for tests and for embedding where a
// process-local authoritative store is enough.
package memmaster

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/vermaster/master"
	"github.com/unkn0wn-root/vermaster/vc"
)

// MatchFunc decides whether doc satisfies the criteria of req beyond the
// object id filter, which the master applies itself.
type MatchFunc[T any] func(req master.SearchRequest, doc master.Document[T]) bool

type Options[T any] struct {
	Scheme string           // default "Mem"
	Clock  func() time.Time // default time.Now
	Match  MatchFunc[T]     // default matches everything
	// Compare orders search results; default is by object id string.
	Compare func(a, b master.Document[T]) int
}

type row[T any] struct {
	doc master.Document[T]
}

func (r *row[T]) active() bool { return r.doc.CorrectionTo.IsZero() }

type Master[T any] struct {
	mu      sync.RWMutex
	scheme  string
	clock   func() time.Time
	match   MatchFunc[T]
	compare func(a, b master.Document[T]) int
	last    time.Time
	seq     uint64
	rows    map[master.ObjectID][]*row[T]
	byUID   map[master.UniqueID]*row[T]
	changes *master.BasicChangeManager
}

var _ master.Master[struct{}] = (*Master[struct{}])(nil)

func New[T any](opts Options[T]) *Master[T] {
	m := &Master[T]{
		scheme:  opts.Scheme,
		clock:   opts.Clock,
		match:   opts.Match,
		compare: opts.Compare,
		rows:    make(map[master.ObjectID][]*row[T]),
		byUID:   make(map[master.UniqueID]*row[T]),
		changes: master.NewBasicChangeManager(),
	}
	if m.scheme == "" {
		m.scheme = "Mem"
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.match == nil {
		m.match = func(master.SearchRequest, master.Document[T]) bool { return true }
	}
	if m.compare == nil {
		m.compare = func(a, b master.Document[T]) int {
			return cmp.Compare(a.ObjectID().String(), b.ObjectID().String())
		}
	}
	return m
}

func (m *Master[T]) ChangeManager() master.ChangeManager { return m.changes }

// Len returns the number of stored rows, including superseded ones.
func (m *Master[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUID)
}

func (m *Master[T]) Get(_ context.Context, uid master.UniqueID) (master.Document[T], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byUID[uid]
	if !ok {
		return master.Document[T]{}, master.NotFound(uid)
	}
	return r.doc, nil
}

func (m *Master[T]) GetAt(_ context.Context, oid master.ObjectID, v vc.VersionCorrection) (master.Document[T], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fixed := v.WithLatestFixed(m.readNow())
	var found []master.Document[T]
	for _, r := range m.rows[oid] {
		if r.doc.Contains(fixed) {
			found = append(found, r.doc)
		}
	}
	switch len(found) {
	case 0:
		return master.Document[T]{}, master.NotFound(oid)
	case 1:
		return found[0], nil
	default:
		return master.Document[T]{}, fmt.Errorf("memmaster: %d documents of %s valid at %s", len(found), oid, fixed)
	}
}

func (m *Master[T]) GetMany(_ context.Context, uids []master.UniqueID) (map[master.UniqueID]master.Document[T], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[master.UniqueID]master.Document[T], len(uids))
	for _, uid := range uids {
		if r, ok := m.byUID[uid]; ok {
			out[uid] = r.doc
		}
	}
	return out, nil
}

func (m *Master[T]) Add(_ context.Context, doc master.Document[T]) (master.Document[T], error) {
	m.mu.Lock()
	now := m.tick()
	oid := master.ObjectID{Scheme: m.scheme, Value: uuid.NewString()}
	added := m.insert(oid, doc.Value, vc.Bounds{VersionFrom: now, CorrectionFrom: now})
	m.mu.Unlock()

	m.changes.EntityChanged(master.ChangeEvent{
		Type: master.Added, ObjectID: oid, VersionFrom: now, VersionInstant: now,
	})
	return added, nil
}

func (m *Master[T]) Update(_ context.Context, doc master.Document[T]) (master.Document[T], error) {
	oid := doc.ObjectID()
	m.mu.Lock()
	cur := m.current(oid)
	if cur == nil {
		m.mu.Unlock()
		return master.Document[T]{}, master.NotFound(oid)
	}
	now := m.tick()
	cur.doc.VersionTo = now
	updated := m.insert(oid, doc.Value, vc.Bounds{VersionFrom: now, CorrectionFrom: now})
	m.mu.Unlock()

	m.changes.EntityChanged(master.ChangeEvent{
		Type: master.Updated, ObjectID: oid, VersionFrom: now, VersionInstant: now,
	})
	return updated, nil
}

func (m *Master[T]) Correct(_ context.Context, doc master.Document[T]) (master.Document[T], error) {
	m.mu.Lock()
	target, ok := m.byUID[doc.UniqueID]
	if !ok || !target.active() {
		m.mu.Unlock()
		return master.Document[T]{}, master.NotFound(doc.UniqueID)
	}
	now := m.tick()
	target.doc.CorrectionTo = now
	b := target.doc.Bounds
	b.CorrectionFrom, b.CorrectionTo = now, time.Time{}
	corrected := m.insert(doc.ObjectID(), doc.Value, b)
	m.mu.Unlock()

	m.changes.EntityChanged(master.ChangeEvent{
		Type: master.Corrected, ObjectID: doc.ObjectID(),
		VersionFrom: b.VersionFrom, VersionTo: b.VersionTo, VersionInstant: now,
	})
	return corrected, nil
}

func (m *Master[T]) Remove(_ context.Context, oid master.ObjectID) error {
	m.mu.Lock()
	cur := m.current(oid)
	if cur == nil {
		m.mu.Unlock()
		return master.NotFound(oid)
	}
	now := m.tick()
	cur.doc.VersionTo = now
	m.mu.Unlock()

	m.changes.EntityChanged(master.ChangeEvent{
		Type: master.Removed, ObjectID: oid, VersionFrom: now, VersionInstant: now,
	})
	return nil
}

func (m *Master[T]) ReplaceVersion(_ context.Context, uid master.UniqueID, reps []master.Document[T]) ([]master.UniqueID, error) {
	oid := uid.ObjectID()
	m.mu.Lock()
	target, ok := m.byUID[uid]
	if !ok || !target.active() {
		m.mu.Unlock()
		return nil, master.NotFound(uid)
	}
	now := m.tick()
	target.doc.CorrectionTo = now
	from, to := target.doc.VersionFrom, target.doc.VersionTo
	ids := m.chain(oid, reps, from, to, now)
	m.mu.Unlock()

	m.changes.EntityChanged(master.ChangeEvent{
		Type: master.Corrected, ObjectID: oid, VersionFrom: from, VersionTo: to, VersionInstant: now,
	})
	return ids, nil
}

func (m *Master[T]) ReplaceAllVersions(_ context.Context, oid master.ObjectID, reps []master.Document[T]) ([]master.UniqueID, error) {
	m.mu.Lock()
	rows := m.activeRows(oid)
	if len(rows) == 0 {
		m.mu.Unlock()
		return nil, master.NotFound(oid)
	}
	now := m.tick()
	from := rows[0].doc.VersionFrom
	for _, r := range rows {
		if r.doc.VersionFrom.Before(from) {
			from = r.doc.VersionFrom
		}
		r.doc.CorrectionTo = now
	}
	ids := m.chain(oid, reps, from, time.Time{}, now)
	m.mu.Unlock()

	m.changes.EntityChanged(master.ChangeEvent{
		Type: master.Corrected, ObjectID: oid, VersionInstant: now,
	})
	return ids, nil
}

func (m *Master[T]) ReplaceVersions(_ context.Context, oid master.ObjectID, reps []master.Document[T]) ([]master.UniqueID, error) {
	if len(reps) == 0 || reps[0].VersionFrom.IsZero() {
		return nil, fmt.Errorf("%w: replacements must start with a version instant", master.ErrInvalidArgument)
	}
	cut := reps[0].VersionFrom

	m.mu.Lock()
	rows := m.activeRows(oid)
	if len(rows) == 0 {
		m.mu.Unlock()
		return nil, master.NotFound(oid)
	}
	now := m.tick()
	for _, r := range rows {
		if !r.doc.OverlapsVersion(cut, time.Time{}) {
			continue
		}
		r.doc.CorrectionTo = now
		if r.doc.VersionFrom.Before(cut) {
			b := r.doc.Bounds
			b.VersionTo, b.CorrectionFrom, b.CorrectionTo = cut, now, time.Time{}
			m.insert(oid, r.doc.Value, b)
		}
	}
	ids := m.chain(oid, reps, cut, time.Time{}, now)
	m.mu.Unlock()

	m.changes.EntityChanged(master.ChangeEvent{
		Type: master.Corrected, ObjectID: oid, VersionFrom: cut, VersionInstant: now,
	})
	return ids, nil
}

func (m *Master[T]) Search(_ context.Context, req master.SearchRequest, paging master.Paging) (master.SearchResult[T], error) {
	if err := paging.Validate(); err != nil {
		return master.SearchResult[T]{}, err
	}
	m.mu.RLock()
	fixed := req.VersionCorrection.WithLatestFixed(m.readNow())
	var matched []master.Document[T]
	for oid, rows := range m.rows {
		if restricted, ok := req.Restricts(oid); restricted && !ok {
			continue
		}
		for _, r := range rows {
			if r.doc.Contains(fixed) && m.match(req, r.doc) {
				matched = append(matched, r.doc)
				break
			}
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(matched, m.compare)
	first, last := paging.Clamp(len(matched))
	return master.SearchResult[T]{
		Paging:    master.OfRange(first, last),
		Total:     len(matched),
		Documents: slices.Clone(matched[first:last]),
	}, nil
}

// tick returns a strictly increasing instant. Caller holds mu.
func (m *Master[T]) tick() time.Time {
	now := m.clock()
	if !now.After(m.last) {
		now = m.last.Add(time.Nanosecond)
	}
	m.last = now
	return now
}

// readNow is the instant "latest" resolves to for reads: never earlier than
// the last write, so a read observes every committed mutation. Caller holds mu.
func (m *Master[T]) readNow() time.Time {
	now := m.clock()
	if m.last.After(now) {
		return m.last
	}
	return now
}

// insert stores a new row and returns its document. Caller holds mu.
func (m *Master[T]) insert(oid master.ObjectID, value T, b vc.Bounds) master.Document[T] {
	m.seq++
	r := &row[T]{doc: master.Document[T]{
		UniqueID: oid.AtVersion(strconv.FormatUint(m.seq, 10)),
		Bounds:   b,
		Value:    value,
	}}
	m.rows[oid] = append(m.rows[oid], r)
	m.byUID[r.doc.UniqueID] = r
	return r.doc
}

// chain inserts reps as consecutive versions covering [from, to). A
// replacement with an explicit VersionFrom keeps it. Caller holds mu.
func (m *Master[T]) chain(oid master.ObjectID, reps []master.Document[T], from, to, now time.Time) []master.UniqueID {
	ids := make([]master.UniqueID, 0, len(reps))
	for i, rep := range reps {
		start := rep.VersionFrom
		if start.IsZero() {
			start = from
		}
		end := to
		if i+1 < len(reps) && !reps[i+1].VersionFrom.IsZero() {
			end = reps[i+1].VersionFrom
		}
		d := m.insert(oid, rep.Value, vc.Bounds{VersionFrom: start, VersionTo: end, CorrectionFrom: now})
		ids = append(ids, d.UniqueID)
		from = end
	}
	return ids
}

// current returns the active, open-ended row of oid. Caller holds mu.
func (m *Master[T]) current(oid master.ObjectID) *row[T] {
	for _, r := range m.rows[oid] {
		if r.active() && r.doc.VersionTo.IsZero() {
			return r
		}
	}
	return nil
}

func (m *Master[T]) activeRows(oid master.ObjectID) []*row[T] {
	var out []*row[T]
	for _, r := range m.rows[oid] {
		if r.active() {
			out = append(out, r)
		}
	}
	return out
}
