package logcat_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/logcatd/internal/logcat"
)

// chunkReader returns one chunk per Read and then err.
type chunkReader struct {
	chunks []string
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, r.err
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

func (r *chunkReader) Close() error { return nil }

func TestReadBatches_HoldsPartialLines(t *testing.T) {
	t.Parallel()

	r := &chunkReader{
		chunks: []string{"one\ntw", "o\r\nthr", "ee\n", "tail"},
		err:    io.EOF,
	}
	var batches [][]string
	err := logcat.ReadBatches(context.Background(), r, func(lines []string) {
		batches = append(batches, lines)
	})

	require.NoError(t, err)
	assert.Equal(t, [][]string{{"one"}, {"two"}, {"three"}, {"tail"}}, batches)
}

func TestReadBatches_TransportError(t *testing.T) {
	t.Parallel()

	boom := errors.New("device disconnected")
	r := &chunkReader{chunks: []string{"a\nb"}, err: boom}
	var lines []string
	err := logcat.ReadBatches(context.Background(), r, func(batch []string) {
		lines = append(lines, batch...)
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, lines)
}

func TestReadBatches_CancelClosesReader(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan []string, 4)
	errCh := make(chan error, 1)
	go func() {
		errCh <- logcat.ReadBatches(ctx, pr, func(lines []string) { got <- lines })
	}()

	_, err := pw.Write([]byte("first\nsecond\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, <-got)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ReadBatches did not return after cancel")
	}
}
