package logcat

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gosuda/logcatd/internal/domain"
)

// TimestampFormat selects which `logcat -v long` header grammar a device
// produces.
type TimestampFormat int

const (
	// TimestampDateTime is the default "MM-DD hh:mm:ss.mmm" form.
	TimestampDateTime TimestampFormat = iota
	// TimestampEpoch is the "-v epoch" form, seconds since the Unix epoch.
	TimestampEpoch
)

func (f TimestampFormat) String() string {
	if f == TimestampEpoch {
		return "epoch"
	}
	return "datetime"
}

// LogcatArgs returns the logcat invocation that produces this format.
func (f TimestampFormat) LogcatArgs() string {
	if f == TimestampEpoch {
		return "logcat -v long -v epoch"
	}
	return "logcat -v long"
}

// UnknownPackage is reported when a pid cannot be mapped to a package.
const UnknownPackage = "?"

// HeaderParser recognizes header lines. ok is false for body lines.
type HeaderParser interface {
	ParseHeader(line string) (h domain.Header, ok bool)
}

// PackageResolver maps a process id onto the package that owns it.
type PackageResolver interface {
	PackageForPID(pid int) string
}

var (
	// [ 08-18 16:39:11.760  1234: 5678 I/ActivityManager ]
	dateTimeHeaderPattern = regexp.MustCompile(`^\[\s+(\d\d-\d\d \d\d:\d\d:\d\d\.\d+)\s+(\d+):\s*(\d+)\s+([VDIWEAF])/(.*?)\s*\]$`) //nolint:gochecknoglobals // compiled once
	// [ 1534635551.439  1234: 5678 I/ActivityManager ]
	epochHeaderPattern = regexp.MustCompile(`^\[\s+(\d+\.\d+)\s+(\d+):\s*(\d+)\s+([VDIWEAF])/(.*?)\s*\]$`) //nolint:gochecknoglobals // compiled once
)

// TransportParser parses the header lines of `logcat -v long` output as it
// arrives from a device.
type TransportParser struct {
	format   TimestampFormat
	pattern  *regexp.Regexp
	packages PackageResolver
	now      func() time.Time
	loc      *time.Location
}

// NewTransportParser returns a parser for the given grammar. packages may be
// nil, in which case every header reports UnknownPackage.
func NewTransportParser(format TimestampFormat, packages PackageResolver) *TransportParser {
	p := &TransportParser{
		format:   format,
		pattern:  dateTimeHeaderPattern,
		packages: packages,
		now:      time.Now,
		loc:      time.Local,
	}
	if format == TimestampEpoch {
		p.pattern = epochHeaderPattern
	}
	return p
}

// WithClock overrides the clock used to infer the year of date-time headers
// and the location they are interpreted in.
func (p *TransportParser) WithClock(now func() time.Time, loc *time.Location) *TransportParser {
	p.now = now
	p.loc = loc
	return p
}

// Format returns the grammar this parser accepts.
func (p *TransportParser) Format() TimestampFormat {
	return p.format
}

// ParseHeader implements HeaderParser.
func (p *TransportParser) ParseHeader(line string) (domain.Header, bool) {
	m := p.pattern.FindStringSubmatch(line)
	if m == nil {
		return domain.Header{}, false
	}

	var (
		ts time.Time
		ok bool
	)
	if p.format == TimestampEpoch {
		ts, ok = parseEpoch(m[1])
	} else {
		ts, ok = p.parseDateTime(m[1])
	}
	if !ok {
		return domain.Header{}, false
	}

	pid, err := strconv.Atoi(m[2])
	if err != nil {
		return domain.Header{}, false
	}
	tid, err := strconv.Atoi(m[3])
	if err != nil {
		return domain.Header{}, false
	}
	level, ok := domain.LevelFromLetter(m[4][0])
	if !ok {
		return domain.Header{}, false
	}

	pkg := UnknownPackage
	if p.packages != nil {
		pkg = p.packages.PackageForPID(pid)
	}

	return domain.Header{
		Level:     level,
		PID:       pid,
		TID:       tid,
		Package:   pkg,
		Tag:       strings.TrimSpace(m[5]),
		Timestamp: ts,
	}, true
}

// parseDateTime reads "MM-DD hh:mm:ss.mmm". The device omits the year, so the
// current one is assumed, unless that puts the record more than a day in the
// future: a December line read in early January belongs to last year.
func (p *TransportParser) parseDateTime(s string) (time.Time, bool) {
	now := p.now().In(p.loc)
	ts, err := time.ParseInLocation("2006-01-02 15:04:05.999999999", strconv.Itoa(now.Year())+"-"+s, p.loc)
	if err != nil {
		return time.Time{}, false
	}
	if ts.After(now.Add(maxClockSkew)) {
		ts = ts.AddDate(-1, 0, 0)
	}
	return ts, true
}

// maxClockSkew bounds how far ahead of the host clock a device timestamp may be.
const maxClockSkew = 24 * time.Hour

// parseEpoch reads "seconds.fraction".
func parseEpoch(s string) (time.Time, bool) {
	secPart, fracPart, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	if len(fracPart) > 9 {
		fracPart = fracPart[:9]
	}
	fracPart += strings.Repeat("0", 9-len(fracPart))
	nsec, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(sec, nsec), true
}
