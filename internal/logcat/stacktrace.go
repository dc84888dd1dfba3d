package logcat

import (
	"regexp"
	"strconv"

	"github.com/rs/zerolog/log"
)

const (
	// FramePrefix indents stack frames in display text.
	FramePrefix = "    "
	// CausePrefix indents "Caused by:" lines in display text.
	CausePrefix = "  "
	// ExpandedFrameMarker is appended to frames re-expanded from an elision
	// marker so that display code can collapse them again.
	ExpandedFrameMarker = "\u200b"
)

var (
	framePattern  = regexp.MustCompile(`^\s*(at .*\(.*\))$`)     //nolint:gochecknoglobals // compiled once
	causePattern  = regexp.MustCompile(`^\s*(Caused by:.*)$`)    //nolint:gochecknoglobals // compiled once
	elidedPattern = regexp.MustCompile(`^\s*\.\.\. (\d+) more$`) //nolint:gochecknoglobals // compiled once
)

// TraceState is the state of the stack trace expander. The zero value is
// ready to use and starts outside of any trace.
//
// Java prints the frames an exception shares with its enclosing exception as
// "... N more". TraceState remembers the frames of the enclosing exception so
// those lines can be expanded back into the frames they stand for.
type TraceState struct {
	inTrace   bool
	current   []string
	previous  []string
	processed []string
}

// Reset returns to the normal state and forgets both stacks. Callers reset at
// record boundaries.
func (s *TraceState) Reset() {
	s.inTrace = false
	s.current = s.current[:0]
	s.previous = s.previous[:0]
	s.processed = s.processed[:0]
}

// InTrace reports whether the last processed line was part of a stack trace.
func (s *TraceState) InTrace() bool {
	return s.inTrace
}

// CurrentStack returns a copy of the frames of the innermost exception.
func (s *TraceState) CurrentStack() []string {
	return append([]string(nil), s.current...)
}

// PreviousStack returns a copy of the frames of the enclosing exception.
func (s *TraceState) PreviousStack() []string {
	return append([]string(nil), s.previous...)
}

// Process classifies one body line and returns the display lines it expands
// to. The returned slice is reused by the next call to Process or Reset.
func (s *TraceState) Process(line string) []string {
	s.processed = s.processed[:0]

	if m := framePattern.FindStringSubmatch(line); m != nil {
		s.inTrace = true
		s.current = append(s.current, m[1])
		s.processed = append(s.processed, FramePrefix+m[1])
		return s.processed
	}

	if !s.inTrace {
		if elidedPattern.MatchString(line) {
			log.Debug().Str("line", line).Msg("logcat.TraceState: elision outside of a stack trace")
		}
		return s.normal(line)
	}

	if m := causePattern.FindStringSubmatch(line); m != nil {
		s.previous, s.current = s.current, s.previous[:0]
		s.processed = append(s.processed, CausePrefix+m[1])
		return s.processed
	}

	if m := elidedPattern.FindStringSubmatch(line); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n > len(s.previous) {
			log.Debug().Str("line", line).Int("outer_frames", len(s.previous)).Msg("logcat.TraceState: not enough frames to expand elision")
			s.processed = append(s.processed, line)
			return s.processed
		}
		for _, frame := range s.previous[len(s.previous)-n:] {
			s.processed = append(s.processed, FramePrefix+frame+ExpandedFrameMarker)
			s.current = append(s.current, frame)
		}
		return s.processed
	}

	return s.normal(line)
}

func (s *TraceState) normal(line string) []string {
	s.inTrace = false
	s.current = s.current[:0]
	s.previous = s.previous[:0]
	s.processed = append(s.processed, line)
	return s.processed
}
