package logcat

import (
	"regexp"
	"strings"

	"github.com/gosuda/logcatd/internal/domain"
)

// bufferDivider matches the lines logcat prints when it starts or switches
// log buffers, e.g. "--------- beginning of main". Body lines that merely
// start with dashes are kept.
var bufferDivider = regexp.MustCompile(`^--------- (beginning of|switch to) \w+$`) //nolint:gochecknoglobals // compiled once

// Carry is the still-open record held between batches. Header is nil when no
// record is open, in which case Lines holds only orphaned body lines that will
// be dropped once a header arrives.
type Carry struct {
	Header *domain.Header
	Lines  []string
}

// Open reports whether the carry holds a record that can be sealed.
func (c Carry) Open() bool {
	return c.Header != nil && len(c.Lines) > 0
}

// Seal turns the open record into a Record. ok is false when nothing is open.
func (c Carry) Seal() (rec domain.Record, ok bool) {
	if !c.Open() {
		return domain.Record{}, false
	}
	return domain.Record{Header: *c.Header, Message: joinMessage(c.Lines)}, true
}

// Batch is the result of reassembling one chunk of transport lines.
type Batch struct {
	Records []domain.Record
	Carry   Carry
}

// Reassembler rebuilds records from `logcat -v long` output. Record
// boundaries are found by header recognition only; the wire format has no end
// of record marker.
type Reassembler struct {
	parser HeaderParser
	trace  *TraceState
}

// NewReassembler returns a reassembler that expands stack traces through
// trace. A nil trace gets a fresh state.
func NewReassembler(parser HeaderParser, trace *TraceState) *Reassembler {
	if trace == nil {
		trace = &TraceState{}
	}
	return &Reassembler{parser: parser, trace: trace}
}

// Trace returns the stack trace state the reassembler drives.
func (r *Reassembler) Trace() *TraceState {
	return r.trace
}

// Reassemble consumes one batch of raw lines on top of the carry left by the
// previous batch.
func (r *Reassembler) Reassemble(carry Carry, lines []string) Batch {
	if len(lines) == 0 {
		return Batch{Carry: carry}
	}

	header := carry.Header
	body := append([]string(nil), carry.Lines...)
	var records []domain.Record

	for _, raw := range lines {
		line := RepairLine(raw)
		if bufferDivider.MatchString(line) {
			continue
		}

		if h, ok := r.parser.ParseHeader(line); ok {
			r.trace.Reset()
			if header != nil && len(body) > 0 {
				records = append(records, domain.Record{Header: *header, Message: joinMessage(body)})
			}
			body = body[:0]
			header = &h
			continue
		}

		body = append(body, r.trace.Process(line)...)
	}

	return Batch{
		Records: records,
		Carry:   Carry{Header: header, Lines: body},
	}
}

func joinMessage(lines []string) string {
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}
