package logcat

import (
	"sync"

	"github.com/gosuda/logcatd/internal/domain"
)

// Listener receives the records of one device. Callbacks run synchronously on
// the device's delivery path and must not subscribe or unsubscribe from
// within the callback. Implementations must be comparable (use pointers).
type Listener interface {
	OnRecord(rec domain.Record)
	OnCleared()
}

// connector binds one listener. target becomes nil exactly once, on
// disconnect. backlog only ever shrinks.
type connector struct {
	target  Listener
	backlog []domain.Record
}

func (c *connector) drain() {
	for len(c.backlog) > 0 && c.target != nil {
		rec := c.backlog[0]
		c.backlog = c.backlog[1:]
		c.target.OnRecord(rec)
	}
	c.backlog = nil
}

func (c *connector) deliver(rec domain.Record) {
	c.drain()
	if c.target != nil {
		c.target.OnRecord(rec)
	}
}

func (c *connector) disconnect() {
	c.target = nil
	c.backlog = nil
}

// Broadcaster fans the records of one device out to its listeners and keeps
// the device history. History and connectors share a single lock so that a
// subscriber's backlog snapshot and the live stream neither overlap nor leave
// a gap.
type Broadcaster struct {
	mu         sync.Mutex
	history    *History
	connectors []*connector
}

// NewBroadcaster returns a broadcaster backed by history.
func NewBroadcaster(history *History) *Broadcaster {
	if history == nil {
		history = NewHistory(0)
	}
	return &Broadcaster{history: history}
}

// Subscribe attaches l. With replay set, the current history is queued as a
// backlog that l receives, in order, before any live record.
func (b *Broadcaster) Subscribe(l Listener, replay bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := &connector{target: l}
	if replay {
		c.backlog = b.history.Snapshot()
	}
	b.connectors = append(b.connectors, c)
}

// Unsubscribe detaches l. It reports false when l was not attached.
func (b *Broadcaster) Unsubscribe(l Listener) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, c := range b.connectors {
		if c.target == l {
			c.disconnect()
			b.connectors = append(b.connectors[:i], b.connectors[i+1:]...)
			return true
		}
	}
	return false
}

// Publish appends rec to the history and delivers it to every listener,
// draining each listener's backlog first.
func (b *Broadcaster) Publish(rec domain.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.history.Append(rec)
	for _, c := range b.connectors {
		c.deliver(rec)
	}
}

// Drain delivers every pending backlog without waiting for a live record.
func (b *Broadcaster) Drain() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range b.connectors {
		c.drain()
	}
}

// Clear drops the history and every pending backlog, then notifies each
// listener. Listeners stay attached.
func (b *Broadcaster) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.history.Reset()
	for _, c := range b.connectors {
		c.backlog = nil
		if c.target != nil {
			c.target.OnCleared()
		}
	}
}

// History returns a copy of the buffered records.
func (b *Broadcaster) History() []domain.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.Snapshot()
}

// Buffered returns the number of records in the history.
func (b *Broadcaster) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.Len()
}

// Listeners returns the number of attached listeners.
func (b *Broadcaster) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.connectors)
}
