// Package device connects the ingestion service to Android devices: over adb
// for USB and network devices, and over docker exec for containerised
// emulators.
package device

import (
	"errors"
	"strings"

	"github.com/gosuda/logcatd/internal/domain"
)

// ErrUnknownDevice is returned for a serial no bridge can reach.
var ErrUnknownDevice = errors.New("device: unknown device") //nolint:gochecknoglobals // sentinel error

// ParseDevices parses the output of `adb devices`.
//
//	List of devices attached
//	emulator-5554	device
//	0123456789ABCDEF	unauthorized
func ParseDevices(out string) []domain.Device {
	var devices []domain.Device
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		devices = append(devices, domain.Device{Serial: fields[0], State: domain.DeviceState(fields[1])})
	}
	return devices
}
