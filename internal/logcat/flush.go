package logcat

import (
	"sync"
	"time"
)

// DefaultFlushDelay is how long an open record may wait for a following
// header before it is emitted anyway.
const DefaultFlushDelay = 100 * time.Millisecond

// FlushScheduler emits the open record of a quiet stream. Callbacks run on
// the owning session's queue, so they never interleave with batch processing.
// Scheduling again supersedes the pending callback.
type FlushScheduler struct {
	queue *SerialQueue
	delay time.Duration

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	stopped    bool
}

// NewFlushScheduler returns a scheduler posting onto queue.
func NewFlushScheduler(queue *SerialQueue, delay time.Duration) *FlushScheduler {
	if delay <= 0 {
		delay = DefaultFlushDelay
	}
	return &FlushScheduler{queue: queue, delay: delay}
}

// Schedule arranges for fn to run on the queue after the quiet interval,
// replacing any pending callback.
func (f *FlushScheduler) Schedule(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return
	}
	f.generation++
	gen := f.generation
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.delay, func() {
		f.queue.Post(func() {
			if f.current(gen) {
				fn()
			}
		})
	})
}

// Cancel drops the pending callback, if any. A callback already posted to the
// queue becomes a no-op.
func (f *FlushScheduler) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.generation++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

// Stop cancels the pending callback and refuses further scheduling.
func (f *FlushScheduler) Stop() {
	f.Cancel()

	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *FlushScheduler) current(gen uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.stopped && gen == f.generation
}
