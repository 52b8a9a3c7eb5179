package vermaster

import (
	"context"
	"sync"
	"sync/atomic"
)

type prefetchTask struct {
	key string
	run func(context.Context)
}

// prefetcher is a fixed pool of workers draining a bounded queue. submit
// never blocks: when the queue is full the task is dropped.
type prefetcher struct {
	q      chan prefetchTask
	ctx    context.Context
	cancel context.CancelFunc
	log    Logger
	hooks  Hooks

	mu      sync.RWMutex // guards closed against sends on a closed q
	closed  bool
	pending atomic.Int64
	wg      sync.WaitGroup
	once    sync.Once
}

func newPrefetcher(workers, qlen int, log Logger, hooks Hooks) *prefetcher {
	if workers <= 0 || workers > maxPrefetchWorkers {
		workers = maxPrefetchWorkers
	}
	if qlen <= 0 {
		qlen = defaultPrefetchQueue
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &prefetcher{
		q:      make(chan prefetchTask, qlen),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
		hooks:  hooks,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *prefetcher) worker() {
	defer p.wg.Done()
	for t := range p.q {
		if p.ctx.Err() == nil {
			t.run(p.ctx)
		}
		p.pending.Add(-1)
	}
}

// submit enqueues run. It reports false when the pool is closed or full.
func (p *prefetcher) submit(key string, run func(context.Context)) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.pending.Add(1)
	select {
	case p.q <- prefetchTask{key: key, run: run}:
		return true
	default:
		p.pending.Add(-1)
		p.hooks.PrefetchDropped(key)
		p.log.Debug("prefetch dropped (queue full)", Fields{"key": key})
		return false
	}
}

// queued reports tasks submitted but not yet finished.
func (p *prefetcher) queued() int { return int(p.pending.Load()) }

// close stops intake and cancels running tasks. Queued tasks are abandoned.
// It waits for workers to exit until ctx is done.
func (p *prefetcher) close(ctx context.Context) error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.q)
		p.mu.Unlock()
		p.cancel()
	})
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
