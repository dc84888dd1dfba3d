package domain

import "time"

// Header is the structured metadata logcat prints ahead of every entry.
type Header struct {
	Level     LogLevel  `json:"level"`
	PID       int       `json:"pid"`
	TID       int       `json:"tid"`
	Package   string    `json:"package"`
	Tag       string    `json:"tag"`
	Timestamp time.Time `json:"timestamp"`
}

// Equal reports whether every header field matches exactly.
func (h Header) Equal(other Header) bool {
	return h.Level == other.Level &&
		h.PID == other.PID &&
		h.TID == other.TID &&
		h.Package == other.Package &&
		h.Tag == other.Tag &&
		h.Timestamp.Equal(other.Timestamp)
}

// Record is one reconstructed log entry. Message may span several lines.
// Records are values and are never mutated after construction.
type Record struct {
	Header  Header `json:"header"`
	Message string `json:"message"`
}

// DeviceState mirrors the states reported by `adb devices`.
type DeviceState string

const (
	DeviceOnline       DeviceState = "device"
	DeviceOffline      DeviceState = "offline"
	DeviceUnauthorized DeviceState = "unauthorized"
)

// Device is an attached Android device or emulator.
type Device struct {
	Serial string      `json:"serial"`
	State  DeviceState `json:"state"`
}

// Online reports whether logcat can be streamed from the device.
func (d Device) Online() bool {
	return d.State == DeviceOnline
}
