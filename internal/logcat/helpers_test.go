package logcat_test

import (
	"fmt"
	"sync"
	"time"

	"github.com/gosuda/logcatd/internal/domain"
	"github.com/gosuda/logcatd/internal/logcat"
)

// fixedNow is the clock used by every test parser: 2024, UTC.
func fixedNow() time.Time {
	return time.Date(2024, time.August, 20, 12, 0, 0, 0, time.UTC)
}

func newTestParser() *logcat.TransportParser {
	return logcat.NewTransportParser(logcat.TimestampDateTime, nil).WithClock(fixedNow, time.UTC)
}

// headerLine renders a `logcat -v long` header at 08-18 16:39:<sec>.
func headerLine(sec, pid, tid int, level byte, tag string) string {
	return fmt.Sprintf("[ 08-18 16:39:%02d.760  %d: %d %c/%s ]", sec, pid, tid, level, tag)
}

func headerAt(sec, pid, tid int, level domain.LogLevel, tag string) domain.Header {
	return domain.Header{
		Level:     level,
		PID:       pid,
		TID:       tid,
		Package:   logcat.UnknownPackage,
		Tag:       tag,
		Timestamp: time.Date(2024, time.August, 18, 16, 39, sec, 760_000_000, time.UTC),
	}
}

func record(msg string, at time.Time) domain.Record {
	return domain.Record{
		Header:  domain.Header{Level: domain.LevelInfo, PID: 1, TID: 1, Package: "com.example", Tag: "T", Timestamp: at},
		Message: msg,
	}
}

// recordingListener is a comparable Listener that keeps what it receives.
type recordingListener struct {
	mu      sync.Mutex
	records []domain.Record
	cleared int
}

func (l *recordingListener) OnRecord(rec domain.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
}

func (l *recordingListener) OnCleared() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleared++
}

func (l *recordingListener) Records() []domain.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Record(nil), l.records...)
}

func (l *recordingListener) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := make([]string, len(l.records))
	for i, r := range l.records {
		msgs[i] = r.Message
	}
	return msgs
}

func (l *recordingListener) Cleared() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cleared
}
