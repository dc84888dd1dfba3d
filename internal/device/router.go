package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/logcatd/internal/domain"
)

// Bridge reaches a family of devices.
type Bridge interface {
	Devices(ctx context.Context) ([]domain.Device, error)
	StreamShell(ctx context.Context, serial, command string) (io.ReadCloser, error)
	RunShell(ctx context.Context, serial, command string) (string, error)
}

// Router dispatches device commands by serial: "docker:" serials go to the
// docker bridge, everything else to adb.
type Router struct {
	adb    Bridge
	docker Bridge
}

// NewRouter returns a router. Either bridge may be nil.
func NewRouter(adb, docker Bridge) *Router {
	return &Router{adb: adb, docker: docker}
}

// Devices merges the devices of every bridge. A failing bridge is skipped
// unless all of them fail.
func (r *Router) Devices(ctx context.Context) ([]domain.Device, error) {
	var (
		devices []domain.Device
		errs    []error
		reached bool
	)
	for _, nb := range []struct {
		name   string
		bridge Bridge
	}{{"adb", r.adb}, {"docker", r.docker}} {
		if nb.bridge == nil {
			continue
		}
		found, err := nb.bridge.Devices(ctx)
		if err != nil {
			log.Warn().Err(err).Str("bridge", nb.name).Msg("device.Router: failed to list devices")
			errs = append(errs, err)
			continue
		}
		reached = true
		devices = append(devices, found...)
	}
	if !reached && len(errs) > 0 {
		return nil, fmt.Errorf("device.Router.Devices: %w", errors.Join(errs...))
	}
	return devices, nil
}

// StreamShell implements logcat.Transport.
func (r *Router) StreamShell(ctx context.Context, serial, command string) (io.ReadCloser, error) {
	b, err := r.bridge(serial)
	if err != nil {
		return nil, fmt.Errorf("device.Router.StreamShell: %w", err)
	}
	return b.StreamShell(ctx, serial, command)
}

// RunShell implements logcat.Transport.
func (r *Router) RunShell(ctx context.Context, serial, command string) (string, error) {
	b, err := r.bridge(serial)
	if err != nil {
		return "", fmt.Errorf("device.Router.RunShell: %w", err)
	}
	return b.RunShell(ctx, serial, command)
}

func (r *Router) bridge(serial string) (Bridge, error) {
	b := r.adb
	if strings.HasPrefix(serial, DockerSerialPrefix) {
		b = r.docker
	}
	if b == nil || serial == "" {
		return nil, fmt.Errorf("%q: %w", serial, ErrUnknownDevice)
	}
	return b, nil
}
