package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/valyala/fastjson"

	"github.com/gosuda/logcatd/internal/domain"
	"github.com/gosuda/logcatd/internal/logcat"
)

type PubSub struct {
	client *redis.Client
}

func New(ctx context.Context, addr, password string, db int) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &PubSub{client: client}, nil
}

func (ps *PubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis.PubSub.Close: %w", err)
	}
	return nil
}

func (ps *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ps.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Publish: %w", err)
	}
	return nil
}

// Subscribe streams the payloads published on channel until ctx ends or the
// returned cleanup is called.
func (ps *PubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := ps.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis.PubSub.Subscribe: receive confirmation: %w", err)
	}

	out := make(chan []byte, 64)
	redisCh := sub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	cleanup := func() {
		_ = sub.Close()
	}

	return out, cleanup, nil
}

// DeviceChannel returns the Redis channel name carrying a device's records.
func DeviceChannel(serial string) string {
	return "logcat:" + serial
}

// RecordMessage is the payload published for every sealed record.
type RecordMessage struct {
	Serial string        `json:"serial"`
	Record domain.Record `json:"record"`
}

// Publisher publishes raw payloads.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RecordSink mirrors records onto their device channel.
func RecordSink(p Publisher) logcat.Sink {
	return func(ctx context.Context, serial string, rec domain.Record) error {
		payload, err := json.Marshal(RecordMessage{Serial: serial, Record: rec})
		if err != nil {
			return fmt.Errorf("redis.RecordSink: marshal: %w", err)
		}
		if err := p.Publish(ctx, DeviceChannel(serial), payload); err != nil {
			return fmt.Errorf("redis.RecordSink: %w", err)
		}
		return nil
	}
}

var decoders fastjson.ParserPool //nolint:gochecknoglobals // parser pool

// DecodeRecord parses a payload published by RecordSink.
func DecodeRecord(payload []byte) (RecordMessage, error) {
	p := decoders.Get()
	defer decoders.Put(p)

	v, err := p.ParseBytes(payload)
	if err != nil {
		return RecordMessage{}, fmt.Errorf("redis.DecodeRecord: %w", err)
	}
	h := v.Get("record", "header")
	if h == nil {
		return RecordMessage{}, errors.New("redis.DecodeRecord: missing record header")
	}

	var msg RecordMessage
	msg.Serial = string(v.GetStringBytes("serial"))
	msg.Record.Message = string(v.GetStringBytes("record", "message"))

	hdr := &msg.Record.Header
	if err := hdr.Level.UnmarshalText(h.GetStringBytes("level")); err != nil {
		return RecordMessage{}, fmt.Errorf("redis.DecodeRecord: %w", err)
	}
	hdr.PID = h.GetInt("pid")
	hdr.TID = h.GetInt("tid")
	hdr.Package = string(h.GetStringBytes("package"))
	hdr.Tag = string(h.GetStringBytes("tag"))
	if hdr.Timestamp, err = time.Parse(time.RFC3339Nano, string(h.GetStringBytes("timestamp"))); err != nil {
		return RecordMessage{}, fmt.Errorf("redis.DecodeRecord: %w", err)
	}
	return msg, nil
}
