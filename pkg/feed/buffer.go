package feed

import (
	"sync"
	"sync/atomic"
	"time"
)

// flushScheduler coalesces high-frequency arrivals into periodic batched
// renders.
//
// It ticks at a fixed interval, skips ticks while nothing new arrived, and
// enforces a minimum gap between consecutive flushes. Stopping the scheduler
// is mandatory on view teardown so a flush can never land in a disposed view.
type flushScheduler struct {
	interval time.Duration
	minGap   time.Duration
	clock    func() time.Time
	flush    func()

	dirty    atomic.Bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newFlushScheduler(interval, minGap time.Duration, clock func() time.Time, flush func()) *flushScheduler {
	return &flushScheduler{
		interval: interval,
		minGap:   minGap,
		clock:    clock,
		flush:    flush,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (f *flushScheduler) start() {
	go f.run()
}

func (f *flushScheduler) run() {
	defer close(f.done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	var lastFlush time.Time
	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			if !f.dirty.Load() {
				continue
			}
			now := f.clock()
			if !lastFlush.IsZero() && now.Sub(lastFlush) < f.minGap {
				continue
			}
			f.dirty.Store(false)
			f.flush()
			lastFlush = now
		}
	}
}

// markDirty requests a flush on the next eligible tick.
func (f *flushScheduler) markDirty() {
	f.dirty.Store(true)
}

// clearDirty drops a pending flush request, used when a full render already
// covered the buffered events.
func (f *flushScheduler) clearDirty() {
	f.dirty.Store(false)
}

// stopAndWait halts the scheduler and blocks until the run loop exited, so
// callers know no further flush can fire.
func (f *flushScheduler) stopAndWait() {
	f.stopOnce.Do(func() {
		close(f.stop)
	})
	<-f.done
}
