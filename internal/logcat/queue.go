package logcat

import "sync"

// SerialQueue runs tasks one at a time, in submission order, on a dedicated
// goroutine. All mutation of a device session happens on its queue.
type SerialQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
}

// NewSerialQueue starts the worker goroutine.
func NewSerialQueue() *SerialQueue {
	q := &SerialQueue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Post enqueues task. It returns false once the queue is closed, in which
// case task never runs. Post never blocks, so tasks may post follow-ups.
func (q *SerialQueue) Post(task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, task)
	q.cond.Signal()
	return true
}

// Close stops the queue. Tasks not yet started are discarded; a task that is
// already running completes. Close is idempotent and safe to call from a task.
func (q *SerialQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.tasks = nil
	q.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (q *SerialQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Done is closed when the worker goroutine has exited.
func (q *SerialQueue) Done() <-chan struct{} {
	return q.done
}

func (q *SerialQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
	}
}
