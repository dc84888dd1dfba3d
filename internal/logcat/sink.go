package logcat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/logcatd/internal/domain"
)

// Sink persists or forwards the records of one device.
type Sink func(ctx context.Context, serial string, rec domain.Record) error

// SinkListener hands records to a Sink on its own goroutine so slow storage
// never stalls device delivery. Records arriving while the buffer is full are
// dropped and counted.
type SinkListener struct {
	name    string
	serial  string
	sink    Sink
	timeout time.Duration
	records chan domain.Record

	mu      sync.Mutex
	dropped int
	closed  bool
	done    chan struct{}
}

// NewSinkListener starts a listener with room for buffer pending records.
func NewSinkListener(name, serial string, sink Sink, buffer int) *SinkListener {
	if buffer <= 0 {
		buffer = 256
	}
	l := &SinkListener{
		name:    name,
		serial:  serial,
		sink:    sink,
		timeout: 5 * time.Second,
		records: make(chan domain.Record, buffer),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// OnRecord implements Listener.
func (l *SinkListener) OnRecord(rec domain.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	select {
	case l.records <- rec:
	default:
		l.dropped++
	}
}

// OnCleared implements Listener. Sinks keep what they already stored.
func (l *SinkListener) OnCleared() {}

// Dropped returns how many records were discarded because the sink lagged.
func (l *SinkListener) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close stops accepting records and waits for the buffered ones to be sunk.
func (l *SinkListener) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.records)
	}
	l.mu.Unlock()

	<-l.done
	return nil
}

func (l *SinkListener) run() {
	defer close(l.done)
	for rec := range l.records {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		if err := l.sink(ctx, l.serial, rec); err != nil {
			log.Error().Err(err).Str("sink", l.name).Str("serial", l.serial).Msg("logcat.SinkListener: failed to sink record")
		}
		cancel()
	}
}
