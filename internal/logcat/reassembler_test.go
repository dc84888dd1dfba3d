package logcat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/logcatd/internal/domain"
	"github.com/gosuda/logcatd/internal/logcat"
)

func sampleLines() []string {
	return []string{
		"--------- beginning of main",
		headerLine(1, 100, 101, 'I', "ActivityManager"),
		"Start proc 4242:com.example/u0a1",
		"",
		headerLine(2, 200, 201, 'E', "AndroidRuntime"),
		"FATAL EXCEPTION: main",
		"java.lang.RuntimeException: outer",
		"\tat com.example.A.a(A.java:1)",
		"\tat com.example.A.b(A.java:2)",
		"Caused by: java.lang.IllegalStateException: inner",
		"\tat com.example.B.c(B.java:3)",
		"\t... 2 more",
		"",
		headerLine(3, 300, 301, 'D', "Tag"),
		"tail",
		"",
		headerLine(4, 400, 401, 'W', "Last"),
	}
}

func TestReassembler_SealsOnNextHeader(t *testing.T) {
	t.Parallel()

	r := logcat.NewReassembler(newTestParser(), nil)
	batch := r.Reassemble(logcat.Carry{}, []string{
		headerLine(11, 1234, 5678, 'I', "First"),
		"hello",
		"world",
		"",
		headerLine(12, 1234, 5679, 'W', "Second"),
	})

	require.Len(t, batch.Records, 1)
	assert.Equal(t, headerAt(11, 1234, 5678, domain.LevelInfo, "First"), batch.Records[0].Header)
	assert.Equal(t, "hello\nworld", batch.Records[0].Message)

	require.NotNil(t, batch.Carry.Header)
	assert.Equal(t, headerAt(12, 1234, 5679, domain.LevelWarning, "Second"), *batch.Carry.Header)
	assert.Empty(t, batch.Carry.Lines)
	assert.False(t, batch.Carry.Open())
}

func TestReassembler_ExpandsStackTraces(t *testing.T) {
	t.Parallel()

	r := logcat.NewReassembler(newTestParser(), nil)
	batch := r.Reassemble(logcat.Carry{}, sampleLines())

	require.Len(t, batch.Records, 3)
	assert.Equal(t, "Start proc 4242:com.example/u0a1", batch.Records[0].Message)
	assert.Equal(t, "FATAL EXCEPTION: main\n"+
		"java.lang.RuntimeException: outer\n"+
		logcat.FramePrefix+"at com.example.A.a(A.java:1)\n"+
		logcat.FramePrefix+"at com.example.A.b(A.java:2)\n"+
		logcat.CausePrefix+"Caused by: java.lang.IllegalStateException: inner\n"+
		logcat.FramePrefix+"at com.example.B.c(B.java:3)\n"+
		logcat.FramePrefix+"at com.example.A.a(A.java:1)"+logcat.ExpandedFrameMarker+"\n"+
		logcat.FramePrefix+"at com.example.A.b(A.java:2)"+logcat.ExpandedFrameMarker,
		batch.Records[1].Message)
	assert.Equal(t, "tail", batch.Records[2].Message)
}

func TestReassembler_SplitAtEveryLineBoundary(t *testing.T) {
	t.Parallel()

	lines := sampleLines()
	whole := logcat.NewReassembler(newTestParser(), nil).Reassemble(logcat.Carry{}, lines)

	for split := 0; split <= len(lines); split++ {
		r := logcat.NewReassembler(newTestParser(), nil)
		first := r.Reassemble(logcat.Carry{}, lines[:split])
		second := r.Reassemble(first.Carry, lines[split:])

		got := append(append([]domain.Record(nil), first.Records...), second.Records...)
		assert.Equal(t, whole.Records, got, "split at %d", split)
		require.NotNil(t, second.Carry.Header, "split at %d", split)
		assert.Equal(t, *whole.Carry.Header, *second.Carry.Header, "split at %d", split)
	}
}

func TestReassembler_EmptyBatchKeepsCarry(t *testing.T) {
	t.Parallel()

	h := headerAt(1, 1, 1, domain.LevelInfo, "T")
	carry := logcat.Carry{Header: &h, Lines: []string{"pending"}}

	batch := logcat.NewReassembler(newTestParser(), nil).Reassemble(carry, nil)
	assert.Empty(t, batch.Records)
	assert.Equal(t, carry, batch.Carry)
}

func TestReassembler_DropsOrphanPrefix(t *testing.T) {
	t.Parallel()

	r := logcat.NewReassembler(newTestParser(), nil)
	batch := r.Reassemble(logcat.Carry{}, []string{
		"garbage from a previous session",
		"more garbage",
		headerLine(5, 1, 2, 'V', "T"),
		"body",
	})
	assert.Empty(t, batch.Records)
	assert.True(t, batch.Carry.Open())

	rec, ok := batch.Carry.Seal()
	require.True(t, ok)
	assert.Equal(t, "body", rec.Message)
}

func TestReassembler_DividersOnlyMatchBufferSwitches(t *testing.T) {
	t.Parallel()

	r := logcat.NewReassembler(newTestParser(), nil)
	batch := r.Reassemble(logcat.Carry{}, []string{
		"--------- beginning of main",
		headerLine(5, 1, 2, 'I', "Report"),
		"report:",
		"--------- section 2 ---------",
		"done",
		"",
		"--------- switch to system",
		headerLine(6, 1, 2, 'I', "Report"),
	})
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "report:\n--------- section 2 ---------\ndone", batch.Records[0].Message)
	assert.Empty(t, batch.Carry.Lines)
}

func TestReassembler_RepairsCarriageReturns(t *testing.T) {
	t.Parallel()

	r := logcat.NewReassembler(newTestParser(), nil)
	batch := r.Reassemble(logcat.Carry{}, []string{
		headerLine(5, 1, 2, 'I', "T") + "\r",
		"line\r\r",
		"",
		headerLine(6, 1, 2, 'I', "T"),
	})
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "line", batch.Records[0].Message)
}

func TestCarry_SealWithoutHeader(t *testing.T) {
	t.Parallel()

	_, ok := logcat.Carry{Lines: []string{"orphan"}}.Seal()
	assert.False(t, ok)

	h := headerAt(1, 1, 1, domain.LevelInfo, "T")
	_, ok = logcat.Carry{Header: &h}.Seal()
	assert.False(t, ok)
}
