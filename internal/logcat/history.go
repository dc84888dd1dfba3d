package logcat

import "github.com/gosuda/logcatd/internal/domain"

// DefaultHistoryBytes is the default message budget of a device history.
const DefaultHistoryBytes = 256 * 1024

// History is a byte-bounded buffer of the most recent records of a device.
// The cost of a record is the byte length of its message. History is not
// safe for concurrent use; the owning Broadcaster serializes access.
type History struct {
	maxBytes int
	records  []domain.Record
	size     int
}

// NewHistory returns an empty history. maxBytes <= 0 selects
// DefaultHistoryBytes.
func NewHistory(maxBytes int) *History {
	if maxBytes <= 0 {
		maxBytes = DefaultHistoryBytes
	}
	return &History{maxBytes: maxBytes}
}

// Append adds rec and evicts the oldest records until the buffer is back
// within budget. The record just appended is never evicted.
func (h *History) Append(rec domain.Record) {
	h.records = append(h.records, rec)
	h.size += len(rec.Message)

	evict := 0
	for h.size > h.maxBytes && len(h.records)-evict > 1 {
		h.size -= len(h.records[evict].Message)
		evict++
	}
	if evict > 0 {
		clear(h.records[:evict])
		h.records = h.records[evict:]
	}
}

// Snapshot returns a copy of the buffered records, oldest first.
func (h *History) Snapshot() []domain.Record {
	if len(h.records) == 0 {
		return nil
	}
	return append([]domain.Record(nil), h.records...)
}

// Reset drops every record.
func (h *History) Reset() {
	h.records = nil
	h.size = 0
}

// Len returns the number of buffered records.
func (h *History) Len() int {
	return len(h.records)
}

// Size returns the summed message length of the buffered records.
func (h *History) Size() int {
	return h.size
}
