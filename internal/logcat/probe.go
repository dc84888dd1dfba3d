package logcat

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// ProbeTimestampFormat asks the device's logcat for its help text and picks
// the epoch grammar when the help mentions it.
func ProbeTimestampFormat(ctx context.Context, transport Transport, serial string) TimestampFormat {
	out, err := transport.RunShell(ctx, serial, "logcat --help")
	if err != nil {
		// logcat exits non-zero after printing help on some releases.
		log.Debug().Err(err).Str("serial", serial).Msg("logcat.ProbeTimestampFormat: help command failed")
	}
	if strings.Contains(out, "epoch") {
		return TimestampEpoch
	}
	return TimestampDateTime
}
