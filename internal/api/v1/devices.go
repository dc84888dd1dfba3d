package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/logcatd/internal/device"
	"github.com/gosuda/logcatd/internal/domain"
	"github.com/gosuda/logcatd/internal/logcat"
)

// DeviceView is an attached device and its ingestion session, if any.
type DeviceView struct {
	Serial  string              `json:"serial" doc:"Device serial"`
	State   domain.DeviceState  `json:"state" doc:"adb device state"`
	Session *logcat.SessionInfo `json:"session,omitempty" doc:"Running ingestion session"`
}

type ListDevicesInput struct{}

type ListDevicesOutput struct {
	Body []DeviceView
}

type ListSessionsInput struct{}

type ListSessionsOutput struct {
	Body []logcat.SessionInfo
}

type DeviceInput struct {
	Serial string `path:"serial" minLength:"1" doc:"Device serial"`
}

type StartDeviceOutput struct {
	Body logcat.SessionInfo
}

func RegisterDeviceRoutes(api huma.API, ingestor Ingestor, devices DeviceLister) {
	huma.Register(api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/devices",
		Summary:     "List attached devices",
		Tags:        []string{"Devices"},
	}, func(ctx context.Context, _ *ListDevicesInput) (*ListDevicesOutput, error) {
		found, err := devices.Devices(ctx)
		if err != nil {
			return nil, huma.Error502BadGateway("failed to list devices", err)
		}

		views := make([]DeviceView, 0, len(found))
		for _, d := range found {
			view := DeviceView{Serial: d.Serial, State: d.State}
			if info, ok := ingestor.Session(d.Serial); ok {
				view.Session = &info
			}
			views = append(views, view)
		}
		return &ListDevicesOutput{Body: views}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List running ingestion sessions",
		Tags:        []string{"Devices"},
	}, func(_ context.Context, _ *ListSessionsInput) (*ListSessionsOutput, error) {
		return &ListSessionsOutput{Body: ingestor.Sessions()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-device",
		Method:      http.MethodPost,
		Path:        "/devices/{serial}/start",
		Summary:     "Start streaming logcat from a device",
		Tags:        []string{"Devices"},
	}, func(ctx context.Context, input *DeviceInput) (*StartDeviceOutput, error) {
		info, err := ingestor.Start(ctx, input.Serial)
		if err != nil {
			return nil, deviceError("failed to start device", err)
		}
		return &StartDeviceOutput{Body: info}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "stop-device",
		Method:        http.MethodPost,
		Path:          "/devices/{serial}/stop",
		Summary:       "Stop streaming logcat from a device",
		Tags:          []string{"Devices"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *DeviceInput) (*struct{}, error) {
		if err := ingestor.Stop(ctx, input.Serial); err != nil {
			return nil, deviceError("failed to stop device", err)
		}
		return nil, nil //nolint:nilnil // huma 204 No Content
	})

	huma.Register(api, huma.Operation{
		OperationID:   "clear-device",
		Method:        http.MethodPost,
		Path:          "/devices/{serial}/clear",
		Summary:       "Clear the device log buffer and restart streaming",
		Tags:          []string{"Devices"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *DeviceInput) (*struct{}, error) {
		if err := ingestor.Clear(ctx, input.Serial); err != nil {
			return nil, deviceError("failed to clear device", err)
		}
		return nil, nil //nolint:nilnil // huma 204 No Content
	})
}

// deviceError maps service errors onto API errors.
func deviceError(msg string, err error) error {
	switch {
	case errors.Is(err, logcat.ErrDeviceNotStarted):
		return huma.Error409Conflict("device is not streaming")
	case errors.Is(err, device.ErrUnknownDevice), errors.Is(err, domain.ErrNotFound):
		return huma.Error404NotFound("device not found")
	case errors.Is(err, logcat.ErrServiceClosed):
		return huma.Error503ServiceUnavailable("shutting down")
	default:
		return huma.Error502BadGateway(msg, err)
	}
}
