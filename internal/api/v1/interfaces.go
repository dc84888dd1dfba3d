package v1

import (
	"context"
	"time"

	"github.com/gosuda/logcatd/internal/domain"
	"github.com/gosuda/logcatd/internal/logcat"
)

// Ingestor abstracts the ingestion sessions for handler testing.
// *logcat.Service satisfies this interface.
type Ingestor interface {
	Start(ctx context.Context, serial string) (logcat.SessionInfo, error)
	Stop(ctx context.Context, serial string) error
	Clear(ctx context.Context, serial string) error
	History(serial string) ([]domain.Record, error)
	Session(serial string) (logcat.SessionInfo, bool)
	Sessions() []logcat.SessionInfo
}

// DeviceLister enumerates attached devices.
// *device.Router satisfies this interface.
type DeviceLister interface {
	Devices(ctx context.Context) ([]domain.Device, error)
}

// Archive reads records persisted beyond the in-memory history.
// *postgres.RecordRepo satisfies this interface.
type Archive interface {
	ListBySerial(ctx context.Context, serial string, since time.Time, limit int) ([]domain.Record, error)
}
