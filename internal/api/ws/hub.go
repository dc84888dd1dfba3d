package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/logcatd/internal/domain"
	"github.com/gosuda/logcatd/internal/logcat"
	redisstore "github.com/gosuda/logcatd/internal/store/redis"
)

// DefaultClientBuffer is the number of events queued per client before the
// client is dropped as too slow.
const DefaultClientBuffer = 4096

// Streamer attaches listeners to device streams.
// *logcat.Service satisfies this interface.
type Streamer interface {
	Subscribe(serial string, l logcat.Listener, replay bool) error
	Unsubscribe(serial string, l logcat.Listener) bool
}

// Mirror subscribes to records published by any daemon instance.
// *redisstore.PubSub satisfies this interface.
type Mirror interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Hub serves websocket streams of device records.
type Hub struct {
	streamer Streamer
	mirror   Mirror
	buffer   int
	origins  []string
	now      func() time.Time
}

// NewHub creates a hub. mirror may be nil, in which case ServeMirror
// answers 404. originPatterns lists the cross-origin hosts allowed to
// connect, in websocket.AcceptOptions syntax.
func NewHub(streamer Streamer, mirror Mirror, originPatterns ...string) *Hub {
	return &Hub{
		streamer: streamer,
		mirror:   mirror,
		buffer:   DefaultClientBuffer,
		origins:  originPatterns,
		now:      time.Now,
	}
}

func (h *Hub) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
}

// ServeDevice streams the records of the device named by the "serial" URL
// parameter. With ?replay=true the device history is sent first. The client
// may send "checkpoint" to hide records older than the last one it received,
// and "reset" to show everything again.
func (h *Hub) ServeDevice(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	if serial == "" {
		http.Error(w, "missing serial", http.StatusBadRequest)
		return
	}
	replay := r.URL.Query().Get("replay") == "true"

	conn, err := h.accept(w, r)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := newClient(h.buffer)
	if err := h.streamer.Subscribe(serial, client, replay); err != nil {
		log.Error().Err(err).Str("serial", serial).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer h.streamer.Unsubscribe(serial, client)

	var filter logcat.RejectBeforeFilter
	commands := make(chan string, 1)
	go readCommands(ctx, cancel, conn, commands)

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case <-client.overflow:
			log.Warn().Str("serial", serial).Msg("websocket client too slow, dropping")
			_ = conn.Close(websocket.StatusTryAgainLater, "client too slow")
			return
		case cmd := <-commands:
			if !h.applyCommand(ctx, conn, serial, &filter, cmd) {
				return
			}
		case item := <-client.events:
			ev := Event{Type: EventCleared, Serial: serial, Timestamp: h.now()}
			if item.cleared {
				filter.Reset()
			} else {
				if !filter.Accept(item.rec) {
					continue
				}
				rec := item.rec
				ev = Event{Type: EventRecord, Serial: serial, Record: &rec, Timestamp: h.now()}
			}
			if writeErr := wsjson.Write(ctx, conn, ev); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}

func (h *Hub) applyCommand(ctx context.Context, conn *websocket.Conn, serial string, filter *logcat.RejectBeforeFilter, cmd string) bool {
	switch cmd {
	case CommandCheckpoint:
		if !filter.Checkpoint() {
			return true
		}
	case CommandReset:
		filter.Reset()
	default:
		log.Debug().Str("command", cmd).Msg("websocket unknown command")
		return true
	}

	ev := Event{Type: EventCheckpoint, Serial: serial, Timestamp: h.now()}
	if cp, ok := filter.CheckpointHeader(); ok {
		ev.Record = &domain.Record{Header: cp}
	}
	if err := wsjson.Write(ctx, conn, ev); err != nil {
		log.Debug().Err(err).Msg("websocket write")
		return false
	}
	return true
}

// ServeMirror streams the records published to Redis for the device named by
// the "serial" URL parameter, whichever instance ingests it.
func (h *Hub) ServeMirror(w http.ResponseWriter, r *http.Request) {
	if h.mirror == nil {
		http.Error(w, "mirror not configured", http.StatusNotFound)
		return
	}
	serial := chi.URLParam(r, "serial")
	if serial == "" {
		http.Error(w, "missing serial", http.StatusBadRequest)
		return
	}

	conn, err := h.accept(w, r)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())

	messages, cleanup, err := h.mirror.Subscribe(ctx, redisstore.DeviceChannel(serial))
	if err != nil {
		log.Error().Err(err).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			decoded, decodeErr := redisstore.DecodeRecord(msg)
			if decodeErr != nil {
				log.Warn().Err(decodeErr).Msg("websocket mirror decode")
				continue
			}
			rec := decoded.Record
			ev := Event{Type: EventRecord, Serial: decoded.Serial, Record: &rec, Timestamp: h.now()}
			if writeErr := wsjson.Write(ctx, conn, ev); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}

func readCommands(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out chan<- string) {
	defer cancel()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) == -1 {
				log.Debug().Err(err).Msg("websocket read")
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		select {
		case out <- string(data):
		case <-ctx.Done():
			return
		}
	}
}

type clientEvent struct {
	rec     domain.Record
	cleared bool
}

// client is the logcat.Listener behind one websocket. Callbacks run on the
// device delivery path and never block: a full queue drops the client.
type client struct {
	events   chan clientEvent
	overflow chan struct{}
	once     sync.Once
}

func newClient(buffer int) *client {
	return &client{
		events:   make(chan clientEvent, buffer),
		overflow: make(chan struct{}),
	}
}

func (c *client) OnRecord(rec domain.Record) {
	c.push(clientEvent{rec: rec})
}

func (c *client) OnCleared() {
	c.push(clientEvent{cleared: true})
}

func (c *client) push(ev clientEvent) {
	select {
	case c.events <- ev:
	default:
		c.once.Do(func() { close(c.overflow) })
	}
}
