package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/logcatd/internal/config"
	"github.com/gosuda/logcatd/internal/domain"
	"github.com/gosuda/logcatd/internal/logcat"
	"github.com/gosuda/logcatd/internal/prefs"
	"github.com/gosuda/logcatd/internal/server"
)

type fakeIngestor struct {
	subscribed chan string
}

func (f *fakeIngestor) Start(_ context.Context, serial string) (logcat.SessionInfo, error) {
	return logcat.SessionInfo{Serial: serial}, nil
}

func (f *fakeIngestor) Stop(_ context.Context, _ string) error  { return nil }
func (f *fakeIngestor) Clear(_ context.Context, _ string) error { return nil }

func (f *fakeIngestor) History(_ string) ([]domain.Record, error) { return nil, nil }

func (f *fakeIngestor) Session(_ string) (logcat.SessionInfo, bool) {
	return logcat.SessionInfo{}, false
}

func (f *fakeIngestor) Sessions() []logcat.SessionInfo {
	return []logcat.SessionInfo{{Serial: "emulator-5554"}}
}

func (f *fakeIngestor) Subscribe(serial string, _ logcat.Listener, _ bool) error {
	f.subscribed <- serial
	return nil
}

func (f *fakeIngestor) Unsubscribe(_ string, _ logcat.Listener) bool { return true }

type fakeDevices struct{}

func (fakeDevices) Devices(_ context.Context) ([]domain.Device, error) {
	return []domain.Device{{Serial: "emulator-5554", State: domain.DeviceOnline}}, nil
}

func newTestServer(t *testing.T, burst int) (*httptest.Server, *fakeIngestor) {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.RateLimit.RPS = 0.001
	cfg.RateLimit.Burst = burst

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ing := &fakeIngestor{subscribed: make(chan string, 1)}
	srv := server.New(ctx, cfg, server.Deps{
		Ingestor: ing,
		Devices:  fakeDevices{},
		Prefs:    prefs.Default(),
		Location: time.UTC,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, ing
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, 10)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.InDelta(t, 1, body["sessions"], 0)
}

func TestAPIRoutesMounted(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, 10)

	resp, err := http.Get(ts.URL + "/api/v1/devices")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body, 1)
	assert.Equal(t, "emulator-5554", body[0]["serial"])
}

func TestAPIRateLimited(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, 1)

	resp, err := http.Get(ts.URL + "/api/v1/sessions")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/v1/sessions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Health checks are not rate limited.
	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebsocketRouteMounted(t *testing.T) {
	t.Parallel()

	ts, ing := newTestServer(t, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/devices/emulator-5554", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	select {
	case serial := <-ing.subscribed:
		assert.Equal(t, "emulator-5554", serial)
	case <-ctx.Done():
		t.Fatal("websocket did not subscribe")
	}
}
