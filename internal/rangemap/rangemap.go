// Package rangemap keeps sparse, contiguous runs of an ordered sequence keyed
// by their start offset. Runs never overlap and never touch: inserting a run
// that overlaps or abuts existing runs merges them into one.
package rangemap

import (
	"github.com/google/btree"
)

const degree = 16

type run[E any] struct {
	start int
	items []E
}

func (r *run[E]) end() int { return r.start + len(r.items) }

// Span is the half-open interval [First, Last).
type Span struct {
	First int
	Last  int
}

func (s Span) Len() int { return s.Last - s.First }

// Map is not safe for concurrent use; callers serialize access.
type Map[E any] struct {
	runs *btree.BTreeG[*run[E]]
}

func New[E any]() *Map[E] {
	return &Map[E]{runs: btree.NewG(degree, func(a, b *run[E]) bool { return a.start < b.start })}
}

// Runs returns the number of disjoint runs.
func (m *Map[E]) Runs() int { return m.runs.Len() }

// Len returns the number of cached items across all runs.
func (m *Map[E]) Len() int {
	n := 0
	m.runs.Ascend(func(r *run[E]) bool {
		n += len(r.items)
		return true
	})
	return n
}

// Spans lists the runs in offset order.
func (m *Map[E]) Spans() []Span {
	out := make([]Span, 0, m.runs.Len())
	m.runs.Ascend(func(r *run[E]) bool {
		out = append(out, Span{First: r.start, Last: r.end()})
		return true
	})
	return out
}

func (m *Map[E]) Clear() { m.runs.Clear(false) }

// Put records items at offsets [start, start+len(items)). Items already cached
// in that window are overwritten; runs that overlap or abut are merged.
func (m *Map[E]) Put(start int, items []E) {
	if len(items) == 0 {
		return
	}
	first, last := start, start+len(items)

	var absorbed []*run[E]
	if prev := m.floor(first); prev != nil && prev.end() >= first {
		absorbed = append(absorbed, prev)
		first = prev.start
	}
	m.runs.AscendGreaterOrEqual(&run[E]{start: start}, func(r *run[E]) bool {
		if r.start > last {
			return false
		}
		if len(absorbed) == 0 || absorbed[len(absorbed)-1] != r {
			absorbed = append(absorbed, r)
		}
		return true
	})
	for _, r := range absorbed {
		if r.end() > last {
			last = r.end()
		}
	}

	merged := make([]E, last-first)
	for _, r := range absorbed {
		copy(merged[r.start-first:], r.items)
		m.runs.Delete(r)
	}
	copy(merged[start-first:], items)
	m.runs.ReplaceOrInsert(&run[E]{start: first, items: merged})
}

// Covers reports whether every offset of [first, last) is cached.
func (m *Map[E]) Covers(first, last int) bool {
	if first >= last {
		return true
	}
	r := m.floor(first)
	return r != nil && r.end() >= last
}

// Slice returns a copy of the cached items at [first, last). ok is false
// unless a single run covers the whole window.
func (m *Map[E]) Slice(first, last int) (items []E, ok bool) {
	if first >= last {
		return []E{}, true
	}
	r := m.floor(first)
	if r == nil || r.end() < last {
		return nil, false
	}
	out := make([]E, last-first)
	copy(out, r.items[first-r.start:last-r.start])
	return out, true
}

// Gaps lists the uncached sub-windows of [first, last) in offset order.
func (m *Map[E]) Gaps(first, last int) []Span {
	var gaps []Span
	cur := first
	if r := m.floor(first); r != nil && r.end() > cur {
		cur = r.end()
	}
	if cur >= last {
		return nil
	}
	m.runs.AscendGreaterOrEqual(&run[E]{start: cur}, func(r *run[E]) bool {
		if r.start >= last {
			return false
		}
		if r.start > cur {
			gaps = append(gaps, Span{First: cur, Last: r.start})
		}
		if r.end() > cur {
			cur = r.end()
		}
		return cur < last
	})
	if cur < last {
		gaps = append(gaps, Span{First: cur, Last: last})
	}
	return gaps
}

// floor returns the run with the greatest start <= offset.
func (m *Map[E]) floor(offset int) *run[E] {
	var found *run[E]
	m.runs.DescendLessOrEqual(&run[E]{start: offset}, func(r *run[E]) bool {
		found = r
		return false
	})
	return found
}
