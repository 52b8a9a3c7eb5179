package asynchook

import (
	"sync"
	"testing"

	"github.com/unkn0wn-root/vermaster"
)

type recorder struct {
	vermaster.NopHooks
	mu     sync.Mutex
	heals  []string
	gate   chan struct{}
	scopes []string
}

func (r *recorder) SharedSelfHeal(_, reason string) {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	r.heals = append(r.heals, reason)
	r.mu.Unlock()
}

func (r *recorder) SearchCleared(_ int, scope string) {
	r.mu.Lock()
	r.scopes = append(r.scopes, scope)
	r.mu.Unlock()
}

func TestCloseDrainsQueuedEvents(t *testing.T) {
	rec := &recorder{}
	h := New(rec, 2, 16)
	h.SharedSelfHeal("doc:ns:a", "corrupt")
	h.SearchCleared(3, "all")
	h.Close()
	h.Close()

	if len(rec.heals) != 1 || rec.heals[0] != "corrupt" || len(rec.scopes) != 1 {
		t.Fatalf("forwarded heals=%v scopes=%v", rec.heals, rec.scopes)
	}
	h.SearchCleared(1, "all")
	if h.Dropped() != 1 {
		t.Fatalf("events after Close should be dropped; dropped=%d", h.Dropped())
	}
}

func TestFullQueueDrops(t *testing.T) {
	rec := &recorder{gate: make(chan struct{})}
	h := New(rec, 1, 1)

	h.SharedSelfHeal("k", "a") // picked up by the worker, blocks on gate
	for h.Dropped() == 0 {
		h.SharedSelfHeal("k", "b")
	}
	close(rec.gate)
	h.Close()
	if h.Dropped() == 0 {
		t.Fatalf("expected drops with a saturated queue")
	}
}
