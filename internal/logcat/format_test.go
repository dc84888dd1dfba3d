package logcat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/logcatd/internal/domain"
	"github.com/gosuda/logcatd/internal/logcat"
)

func sampleRecord() domain.Record {
	return domain.Record{
		Header: domain.Header{
			Level:     domain.LevelWarning,
			PID:       1234,
			TID:       5678,
			Package:   "com.example.app",
			Tag:       "Network Stack",
			Timestamp: time.Date(2024, time.March, 5, 7, 8, 9, 42_000_000, time.UTC),
		},
		Message: "first line\nsecond: line",
	}
}

func TestFormatter_Format(t *testing.T) {
	t.Parallel()

	f := logcat.NewFormatter(logcat.DefaultFormatOptions(), time.UTC)
	got := f.Format(sampleRecord())
	assert.Equal(t, "2024-03-05 07:08:09.042 1234-5678/com.example.app W/Network Stack: first line\nsecond: line", got)
}

func TestFormatter_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts logcat.FormatOptions
	}{
		{name: "all fields", opts: logcat.DefaultFormatOptions()},
		{name: "epoch", opts: logcat.FormatOptions{ShowEpoch: true, ShowPIDTID: true, ShowPackage: true, ShowTag: true}},
		{name: "pid only", opts: logcat.FormatOptions{ShowDate: true, ShowTime: true, ShowPIDTID: true, ShowTag: true}},
		{name: "package only", opts: logcat.FormatOptions{ShowDate: true, ShowTime: true, ShowPackage: true, ShowTag: true}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := logcat.NewFormatter(tc.opts, time.UTC)
			rec := sampleRecord()

			parsed, ok := f.Parse(f.Format(rec))
			require.True(t, ok)
			assert.Equal(t, rec.Message, parsed.Message)
			assert.Equal(t, rec.Header.Level, parsed.Header.Level)
			assert.Equal(t, rec.Header.Tag, parsed.Header.Tag)
			assert.True(t, rec.Header.Timestamp.Equal(parsed.Header.Timestamp))
			if tc.opts.ShowPIDTID {
				assert.Equal(t, rec.Header.PID, parsed.Header.PID)
				assert.Equal(t, rec.Header.TID, parsed.Header.TID)
			}
			if tc.opts.ShowPackage {
				assert.Equal(t, rec.Header.Package, parsed.Header.Package)
			}
		})
	}
}

func TestFormatter_FullRoundTripIsHeaderEqual(t *testing.T) {
	t.Parallel()

	f := logcat.NewFormatter(logcat.DefaultFormatOptions(), time.UTC)
	rec := sampleRecord()

	parsed, ok := f.Parse(f.Format(rec))
	require.True(t, ok)
	assert.True(t, rec.Header.Equal(parsed.Header))
}

func TestFormatter_MinimalOptions(t *testing.T) {
	t.Parallel()

	f := logcat.NewFormatter(logcat.FormatOptions{}, time.UTC)
	rec := sampleRecord()

	text := f.Format(rec)
	assert.Equal(t, "W: first line\nsecond: line", text)

	parsed, ok := f.Parse(text)
	require.True(t, ok)
	assert.Equal(t, domain.LevelWarning, parsed.Header.Level)
	assert.Equal(t, rec.Message, parsed.Message)
	assert.Empty(t, parsed.Header.Tag)
}

func TestFormatter_ParseRejectsForeignText(t *testing.T) {
	t.Parallel()

	f := logcat.NewFormatter(logcat.DefaultFormatOptions(), time.UTC)
	for _, text := range []string{"", "hello", "[ 08-18 16:39:11.760  1234: 5678 I/Tag ]"} {
		_, ok := f.Parse(text)
		assert.False(t, ok, "text %q", text)
	}
}
