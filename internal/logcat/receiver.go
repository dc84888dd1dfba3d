package logcat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

const receiveChunkSize = 16 * 1024

// ReadBatches reads line-buffered shell output from r and hands each chunk of
// complete lines to onBatch, mirroring how the transport delivers output. A
// trailing partial line is held until its terminator arrives or the stream
// ends. Cancelling ctx closes r so a blocked read returns promptly.
//
// ReadBatches returns nil on end of stream or cancellation and the transport
// error otherwise.
func ReadBatches(ctx context.Context, r io.ReadCloser, onBatch func(lines []string)) error {
	stop := context.AfterFunc(ctx, func() {
		_ = r.Close()
	})
	defer stop()

	buf := make([]byte, receiveChunkSize)
	var pending []byte

	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			if i := bytes.LastIndexByte(pending, '\n'); i >= 0 {
				onBatch(splitLines(pending[:i]))
				pending = append(pending[:0], pending[i+1:]...)
			}
		}
		if err == nil {
			continue
		}

		if ctx.Err() != nil {
			return nil
		}
		if len(pending) > 0 {
			onBatch(splitLines(pending))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("logcat.ReadBatches: %w", err)
	}
}

// splitLines splits newline separated text and drops one trailing "\r" per
// line, as a "\r\n" terminator would.
func splitLines(b []byte) []string {
	parts := bytes.Split(b, []byte{'\n'})
	lines := make([]string, len(parts))
	for i, p := range parts {
		lines[i] = string(bytes.TrimSuffix(p, []byte{'\r'}))
	}
	return lines
}
