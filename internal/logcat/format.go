package logcat

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gosuda/logcatd/internal/domain"
)

// TagSpace replaces spaces inside tags in display text so the tag stays a
// single whitespace-free token when the text is parsed back.
const TagSpace = '\u00a0'

// FormatOptions chooses which header fields appear in display text.
type FormatOptions struct {
	ShowDate    bool
	ShowTime    bool
	ShowEpoch   bool // replaces date and time with epoch seconds
	ShowPIDTID  bool
	ShowPackage bool
	ShowTag     bool
}

// DefaultFormatOptions shows every field with a date-time timestamp.
func DefaultFormatOptions() FormatOptions {
	return FormatOptions{
		ShowDate:    true,
		ShowTime:    true,
		ShowPIDTID:  true,
		ShowPackage: true,
		ShowTag:     true,
	}
}

const (
	displayDateLayout     = "2006-01-02"
	displayTimeLayout     = "15:04:05.000"
	displayDateTimeLayout = displayDateLayout + " " + displayTimeLayout
)

// Formatter renders records as single display strings and parses them back.
// Parse is the exact inverse of Format for the fields the options include.
type Formatter struct {
	opts    FormatOptions
	loc     *time.Location
	pattern *regexp.Regexp
}

// NewFormatter builds a formatter. A nil loc means time.Local.
func NewFormatter(opts FormatOptions, loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{
		opts:    opts,
		loc:     loc,
		pattern: regexp.MustCompile(displayPattern(opts)),
	}
}

// Options returns the options the formatter was built with.
func (f *Formatter) Options() FormatOptions {
	return f.opts
}

func displayPattern(opts FormatOptions) string {
	var sb strings.Builder
	sb.WriteString(`^`)
	switch {
	case opts.ShowEpoch:
		sb.WriteString(`(?P<epoch>\d+\.\d{3}) `)
	case opts.ShowDate && opts.ShowTime:
		sb.WriteString(`(?P<datetime>\d{4}-\d\d-\d\d \d\d:\d\d:\d\d\.\d{3}) `)
	case opts.ShowDate:
		sb.WriteString(`(?P<date>\d{4}-\d\d-\d\d) `)
	case opts.ShowTime:
		sb.WriteString(`(?P<time>\d\d:\d\d:\d\d\.\d{3}) `)
	}
	switch {
	case opts.ShowPIDTID && opts.ShowPackage:
		sb.WriteString(`(?P<pid>\d+)-(?P<tid>\d+)/(?P<pkg>\S+) `)
	case opts.ShowPIDTID:
		sb.WriteString(`(?P<pid>\d+)-(?P<tid>\d+) `)
	case opts.ShowPackage:
		sb.WriteString(`(?P<pkg>\S+) `)
	}
	sb.WriteString(`(?P<level>[VDIWEA])`)
	if opts.ShowTag {
		sb.WriteString(`/(?P<tag>\S*)`)
	}
	sb.WriteString(`: (?s)(?P<msg>.*)$`)
	return sb.String()
}

// Format renders a record as display text.
func (f *Formatter) Format(rec domain.Record) string {
	h := rec.Header
	var sb strings.Builder

	switch {
	case f.opts.ShowEpoch:
		ms := h.Timestamp.UnixMilli()
		sb.WriteString(strconv.FormatInt(ms/1000, 10))
		sb.WriteByte('.')
		frac := strconv.FormatInt(ms%1000, 10)
		sb.WriteString(strings.Repeat("0", 3-len(frac)))
		sb.WriteString(frac)
		sb.WriteByte(' ')
	case f.opts.ShowDate && f.opts.ShowTime:
		sb.WriteString(h.Timestamp.In(f.loc).Format(displayDateTimeLayout))
		sb.WriteByte(' ')
	case f.opts.ShowDate:
		sb.WriteString(h.Timestamp.In(f.loc).Format(displayDateLayout))
		sb.WriteByte(' ')
	case f.opts.ShowTime:
		sb.WriteString(h.Timestamp.In(f.loc).Format(displayTimeLayout))
		sb.WriteByte(' ')
	}

	if f.opts.ShowPIDTID {
		sb.WriteString(strconv.Itoa(h.PID))
		sb.WriteByte('-')
		sb.WriteString(strconv.Itoa(h.TID))
		if f.opts.ShowPackage {
			sb.WriteByte('/')
		} else {
			sb.WriteByte(' ')
		}
	}
	if f.opts.ShowPackage {
		pkg := h.Package
		if pkg == "" {
			pkg = UnknownPackage
		}
		sb.WriteString(pkg)
		sb.WriteByte(' ')
	}

	sb.WriteByte(h.Level.Letter())
	if f.opts.ShowTag {
		sb.WriteByte('/')
		sb.WriteString(strings.ReplaceAll(h.Tag, " ", string(TagSpace)))
	}
	sb.WriteString(": ")
	sb.WriteString(rec.Message)
	return sb.String()
}

// Parse reverses Format. Fields the options omit are left zero.
func (f *Formatter) Parse(text string) (domain.Record, bool) {
	m := f.pattern.FindStringSubmatch(text)
	if m == nil {
		return domain.Record{}, false
	}
	group := func(name string) string {
		if i := f.pattern.SubexpIndex(name); i >= 0 {
			return m[i]
		}
		return ""
	}

	var h domain.Header
	var err error
	switch {
	case f.opts.ShowEpoch:
		ts, ok := parseEpoch(group("epoch"))
		if !ok {
			return domain.Record{}, false
		}
		h.Timestamp = ts
	case f.opts.ShowDate && f.opts.ShowTime:
		h.Timestamp, err = time.ParseInLocation(displayDateTimeLayout, group("datetime"), f.loc)
	case f.opts.ShowDate:
		h.Timestamp, err = time.ParseInLocation(displayDateLayout, group("date"), f.loc)
	case f.opts.ShowTime:
		h.Timestamp, err = time.ParseInLocation(displayTimeLayout, group("time"), f.loc)
	}
	if err != nil {
		return domain.Record{}, false
	}

	if f.opts.ShowPIDTID {
		if h.PID, err = strconv.Atoi(group("pid")); err != nil {
			return domain.Record{}, false
		}
		if h.TID, err = strconv.Atoi(group("tid")); err != nil {
			return domain.Record{}, false
		}
	}
	if f.opts.ShowPackage {
		h.Package = group("pkg")
	}

	level, ok := domain.LevelFromLetter(group("level")[0])
	if !ok {
		return domain.Record{}, false
	}
	h.Level = level
	if f.opts.ShowTag {
		h.Tag = strings.ReplaceAll(group("tag"), string(TagSpace), " ")
	}

	return domain.Record{Header: h, Message: group("msg")}, true
}
