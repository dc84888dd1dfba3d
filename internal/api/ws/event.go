package ws

import (
	"time"

	"github.com/gosuda/logcatd/internal/domain"
)

// Event types sent to websocket clients.
const (
	EventRecord     = "record"
	EventCleared    = "cleared"
	EventCheckpoint = "checkpoint"
)

// Event is one frame pushed to a device stream client.
type Event struct {
	Type      string         `json:"type"`
	Serial    string         `json:"serial"`
	Record    *domain.Record `json:"record,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Client commands, sent as text frames.
const (
	CommandCheckpoint = "checkpoint"
	CommandReset      = "reset"
)
