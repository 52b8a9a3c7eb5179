// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/vermaster"
//	"github.com/unkn0wn-root/vermaster/hooks/async"
//	"github.com/unkn0wn-root/vermaster/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SelfHealEvery:     10, // sample logs: ~every 10th self-heal
//	    PrefetchDropEvery: 100,
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	cm, _ := vermaster.New[Trade](backing, vermaster.Options[Trade]{
//	    Namespace: "app:prod:trade",
//	    Hooks:     hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/vermaster"
)

// Hooks forwards events to inner on a small worker pool. Events that do not
// fit the queue are dropped and counted.
type Hooks struct {
	inner   vermaster.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ vermaster.Hooks = (*Hooks)(nil)

func New(inner vermaster.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events raised after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) FaultCached(uid string, err error) { h.try(func() { h.inner.FaultCached(uid, err) }) }
func (h *Hooks) AmbiguousMatch(oid string, n int) {
	h.try(func() { h.inner.AmbiguousMatch(oid, n) })
}
func (h *Hooks) SharedSelfHeal(k, r string)       { h.try(func() { h.inner.SharedSelfHeal(k, r) }) }
func (h *Hooks) SharedSetRejected(k string)       { h.try(func() { h.inner.SharedSetRejected(k) }) }
func (h *Hooks) GenBumpError(k string, err error) { h.try(func() { h.inner.GenBumpError(k, err) }) }
func (h *Hooks) GenSnapshotError(k string, err error) {
	h.try(func() { h.inner.GenSnapshotError(k, err) })
}
func (h *Hooks) InvalidateOutage(k string, be, de error) {
	h.try(func() { h.inner.InvalidateOutage(k, be, de) })
}
func (h *Hooks) SearchCleared(n int, scope string) {
	h.try(func() { h.inner.SearchCleared(n, scope) })
}
func (h *Hooks) PrefetchDropped(k string) { h.try(func() { h.inner.PrefetchDropped(k) }) }
