package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/logcatd/internal/domain"
	redisstore "github.com/gosuda/logcatd/internal/store/redis"
)

type mockPublisher struct {
	publishFn func(ctx context.Context, channel string, payload []byte) error
}

func (m *mockPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return m.publishFn(ctx, channel, payload)
}

func TestDeviceChannel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "logcat:emulator-5554", redisstore.DeviceChannel("emulator-5554"))
	assert.Equal(t, "logcat:docker:pixel", redisstore.DeviceChannel("docker:pixel"))
	assert.NotEqual(t, redisstore.DeviceChannel("a"), redisstore.DeviceChannel("b"))
}

func TestRecordSink(t *testing.T) {
	t.Parallel()

	rec := domain.Record{
		Header: domain.Header{
			Level:     domain.LevelError,
			PID:       42,
			TID:       43,
			Package:   "com.example",
			Tag:       "Crash",
			Timestamp: time.Date(2024, time.August, 18, 16, 39, 11, 760_000_000, time.UTC),
		},
		Message: "boom\n    at a.b(C.java:1)",
	}

	var gotChannel string
	var gotPayload []byte
	sink := redisstore.RecordSink(&mockPublisher{publishFn: func(_ context.Context, channel string, payload []byte) error {
		gotChannel = channel
		gotPayload = payload
		return nil
	}})

	require.NoError(t, sink(context.Background(), "emulator-5554", rec))
	assert.Equal(t, "logcat:emulator-5554", gotChannel)

	msg, err := redisstore.DecodeRecord(gotPayload)
	require.NoError(t, err)
	assert.Equal(t, "emulator-5554", msg.Serial)
	assert.Equal(t, rec.Message, msg.Record.Message)
	assert.True(t, rec.Header.Equal(msg.Record.Header))
}

func TestRecordSink_PublishError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	sink := redisstore.RecordSink(&mockPublisher{publishFn: func(context.Context, string, []byte) error {
		return boom
	}})

	err := sink(context.Background(), "s", domain.Record{Header: domain.Header{Level: domain.LevelInfo}})
	require.ErrorIs(t, err, boom)
}

func TestDecodeRecord_Invalid(t *testing.T) {
	t.Parallel()

	_, err := redisstore.DecodeRecord([]byte("not json"))
	require.Error(t, err)
}

func TestDecodeRecord_Fields(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"serial":"docker:pixel","record":{"header":{"level":"WARNING","pid":12,"tid":13,` +
		`"package":"com.example","tag":"Net","timestamp":"2024-03-01T12:00:00.25Z"},"message":"slow\nretry"}}`)

	msg, err := redisstore.DecodeRecord(payload)
	require.NoError(t, err)
	assert.Equal(t, "docker:pixel", msg.Serial)
	assert.Equal(t, domain.LevelWarning, msg.Record.Header.Level)
	assert.Equal(t, 12, msg.Record.Header.PID)
	assert.Equal(t, 13, msg.Record.Header.TID)
	assert.Equal(t, "com.example", msg.Record.Header.Package)
	assert.Equal(t, "Net", msg.Record.Header.Tag)
	assert.True(t, time.Date(2024, 3, 1, 12, 0, 0, 250e6, time.UTC).Equal(msg.Record.Header.Timestamp))
	assert.Equal(t, "slow\nretry", msg.Record.Message)
}

func TestDecodeRecord_MissingHeader(t *testing.T) {
	t.Parallel()

	_, err := redisstore.DecodeRecord([]byte(`{"serial":"x","record":{"message":"m"}}`))
	require.Error(t, err)

	_, err = redisstore.DecodeRecord([]byte(`{"serial":"x","record":{"header":{"level":"LOUD"}}}`))
	require.Error(t, err)
}
