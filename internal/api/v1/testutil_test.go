package v1_test

import (
	"context"
	"time"

	"github.com/gosuda/logcatd/internal/domain"
	"github.com/gosuda/logcatd/internal/logcat"
)

// ---------------------------------------------------------------------------
// Mock Ingestor
// ---------------------------------------------------------------------------

type mockIngestor struct {
	startFunc    func(ctx context.Context, serial string) (logcat.SessionInfo, error)
	stopFunc     func(ctx context.Context, serial string) error
	clearFunc    func(ctx context.Context, serial string) error
	historyFunc  func(serial string) ([]domain.Record, error)
	sessionFunc  func(serial string) (logcat.SessionInfo, bool)
	sessionsFunc func() []logcat.SessionInfo
}

func (m *mockIngestor) Start(ctx context.Context, serial string) (logcat.SessionInfo, error) {
	return m.startFunc(ctx, serial)
}

func (m *mockIngestor) Stop(ctx context.Context, serial string) error {
	return m.stopFunc(ctx, serial)
}

func (m *mockIngestor) Clear(ctx context.Context, serial string) error {
	return m.clearFunc(ctx, serial)
}

func (m *mockIngestor) History(serial string) ([]domain.Record, error) {
	return m.historyFunc(serial)
}

func (m *mockIngestor) Session(serial string) (logcat.SessionInfo, bool) {
	if m.sessionFunc == nil {
		return logcat.SessionInfo{}, false
	}
	return m.sessionFunc(serial)
}

func (m *mockIngestor) Sessions() []logcat.SessionInfo {
	return m.sessionsFunc()
}

// ---------------------------------------------------------------------------
// Mock DeviceLister
// ---------------------------------------------------------------------------

type mockDeviceLister struct {
	devicesFunc func(ctx context.Context) ([]domain.Device, error)
}

func (m *mockDeviceLister) Devices(ctx context.Context) ([]domain.Device, error) {
	return m.devicesFunc(ctx)
}

// ---------------------------------------------------------------------------
// Mock Archive
// ---------------------------------------------------------------------------

type mockArchive struct {
	listFunc func(ctx context.Context, serial string, since time.Time, limit int) ([]domain.Record, error)
}

func (m *mockArchive) ListBySerial(ctx context.Context, serial string, since time.Time, limit int) ([]domain.Record, error) {
	return m.listFunc(ctx, serial, since, limit)
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // test fixture

func record(offset time.Duration, tag, msg string) domain.Record {
	return domain.Record{
		Header: domain.Header{
			Level:     domain.LevelInfo,
			PID:       100,
			TID:       101,
			Package:   "com.example.app",
			Tag:       tag,
			Timestamp: baseTime.Add(offset),
		},
		Message: msg,
	}
}
