package logcat

import (
	"sync"

	"github.com/gosuda/logcatd/internal/domain"
)

// RejectBeforeFilter implements soft clear on the display side. It remembers
// the header of the last record it saw; after Checkpoint it rejects every
// record timestamped strictly before that header. A record with the same
// timestamp is accepted.
type RejectBeforeFilter struct {
	mu         sync.Mutex
	last       *domain.Header
	checkpoint *domain.Header
}

// Accept reports whether rec passes the filter and remembers its header.
func (f *RejectBeforeFilter) Accept(rec domain.Record) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	h := rec.Header
	f.last = &h
	if f.checkpoint == nil {
		return true
	}
	return !h.Timestamp.Before(f.checkpoint.Timestamp)
}

// Checkpoint starts rejecting records older than the last one seen. It
// reports false if no record has been seen yet.
func (f *RejectBeforeFilter) Checkpoint() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.last == nil {
		return false
	}
	cp := *f.last
	f.checkpoint = &cp
	return true
}

// SetCheckpoint starts rejecting records older than h.
func (f *RejectBeforeFilter) SetCheckpoint(h domain.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoint = &h
}

// CheckpointHeader returns the active checkpoint.
func (f *RejectBeforeFilter) CheckpointHeader() (domain.Header, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkpoint == nil {
		return domain.Header{}, false
	}
	return *f.checkpoint, true
}

// Reset accepts everything again.
func (f *RejectBeforeFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = nil
	f.checkpoint = nil
}

// Filter returns the records in recs that pass the filter, in order.
func (f *RejectBeforeFilter) Filter(recs []domain.Record) []domain.Record {
	out := make([]domain.Record, 0, len(recs))
	for _, rec := range recs {
		if f.Accept(rec) {
			out = append(out, rec)
		}
	}
	return out
}
