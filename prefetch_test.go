package vermaster

import (
	"context"
	"testing"
	"time"
)

func TestPrefetcherDropsWhenQueueFull(t *testing.T) {
	hooks := &recHooks{}
	p := newPrefetcher(1, 1, NopLogger{}, hooks)
	defer p.close(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	if !p.submit("busy", func(ctx context.Context) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
	}) {
		t.Fatalf("first submit rejected")
	}
	<-started

	if !p.submit("queued", func(context.Context) {}) {
		t.Fatalf("second submit should fit the queue")
	}
	if p.submit("dropped", func(context.Context) {}) {
		t.Fatalf("third submit should be dropped")
	}
	if h := hooks.snapshot(); h.dropped != 1 {
		t.Fatalf("PrefetchDropped hook calls = %d, want 1", h.dropped)
	}
	if q := p.queued(); q != 2 {
		t.Fatalf("queued = %d, want 2", q)
	}

	close(release)
	waitFor(t, "queue to drain", func() bool { return p.queued() == 0 })
}

func TestPrefetcherCloseCancelsRunningTasks(t *testing.T) {
	p := newPrefetcher(2, 4, NopLogger{}, NopHooks{})

	started := make(chan struct{})
	p.submit("wait", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if p.submit("late", func(context.Context) {}) {
		t.Fatalf("submit after close must be rejected")
	}
	if q := p.queued(); q != 0 {
		t.Fatalf("queued after close = %d", q)
	}
}

func TestPrefetcherCloseHonoursDeadline(t *testing.T) {
	p := newPrefetcher(1, 1, NopLogger{}, NopHooks{})
	stuck := make(chan struct{})
	defer close(stuck)

	started := make(chan struct{})
	p.submit("stuck", func(context.Context) {
		close(started)
		<-stuck // ignores cancellation
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.close(ctx); err != context.DeadlineExceeded {
		t.Fatalf("want DeadlineExceeded, got %v", err)
	}
}

func TestPrefetcherWorkerCap(t *testing.T) {
	p := newPrefetcher(64, 0, NopLogger{}, NopHooks{})
	defer p.close(context.Background())
	if cap(p.q) != defaultPrefetchQueue {
		t.Fatalf("queue capacity = %d, want %d", cap(p.q), defaultPrefetchQueue)
	}

	running := make(chan struct{}, 64)
	release := make(chan struct{})
	for i := 0; i < 16; i++ {
		p.submit("t", func(context.Context) {
			running <- struct{}{}
			<-release
		})
	}
	waitFor(t, "workers to start", func() bool { return len(running) == maxPrefetchWorkers })
	time.Sleep(20 * time.Millisecond)
	if n := len(running); n != maxPrefetchWorkers {
		t.Fatalf("%d tasks running concurrently, want at most %d", n, maxPrefetchWorkers)
	}
	close(release)
	waitFor(t, "queue to drain", func() bool { return p.queued() == 0 })
}
