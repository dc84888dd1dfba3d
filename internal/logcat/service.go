package logcat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/logcatd/internal/domain"
)

var (
	// ErrDeviceNotStarted is returned when no ingestion session runs for a device.
	ErrDeviceNotStarted = errors.New("logcat: device not started") //nolint:gochecknoglobals // sentinel error
	// ErrServiceClosed is returned after Shutdown.
	ErrServiceClosed = errors.New("logcat: service closed") //nolint:gochecknoglobals // sentinel error
)

// ErrorTag tags the record synthesized when a device stream fails.
const ErrorTag = "logcatd"

// Transport runs shell commands on a device.
type Transport interface {
	// StreamShell starts command and returns its output stream. Closing the
	// stream terminates the command.
	StreamShell(ctx context.Context, serial, command string) (io.ReadCloser, error)
	// RunShell runs command to completion and returns its output.
	RunShell(ctx context.Context, serial, command string) (string, error)
}

// DeviceLister enumerates attached devices.
type DeviceLister interface {
	Devices(ctx context.Context) ([]domain.Device, error)
}

// Options tunes a Service. Zero values select defaults.
type Options struct {
	FlushDelay   time.Duration
	HistoryBytes int
	// Packages returns the pid resolver for a device. Nil reports every
	// package as UnknownPackage.
	Packages func(serial string) PackageResolver
	// Sinks receive every record of every device, keyed by name.
	Sinks    map[string]Sink
	Now      func() time.Time
	Location *time.Location
}

// SessionInfo describes a running ingestion session.
type SessionInfo struct {
	ID        uuid.UUID `json:"id"`
	Serial    string    `json:"serial"`
	Format    string    `json:"format"`
	StartedAt time.Time `json:"started_at"`
	Listeners int       `json:"listeners"`
	Buffered  int       `json:"buffered"`
}

// deviceState outlives sessions; a device keeps its history across
// stop/start cycles.
type deviceState struct {
	broadcaster *Broadcaster
	sinks       []*SinkListener
}

// Service owns the ingestion sessions of every device: at most one session
// per device, each driven by its own serial queue.
type Service struct {
	transport Transport
	opts      Options

	mu       sync.Mutex
	devices  map[string]*deviceState
	sessions map[string]*session
	closed   bool
}

// NewService creates a service. Call Shutdown to release it.
func NewService(transport Transport, opts Options) *Service {
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = DefaultFlushDelay
	}
	if opts.HistoryBytes <= 0 {
		opts.HistoryBytes = DefaultHistoryBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Service{
		transport: transport,
		opts:      opts,
		devices:   make(map[string]*deviceState),
		sessions:  make(map[string]*session),
	}
}

// Start begins streaming logcat from the device. Starting a device that is
// already streaming returns the running session.
func (s *Service) Start(ctx context.Context, serial string) (SessionInfo, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return SessionInfo{}, fmt.Errorf("logcat.Service.Start: %w", ErrServiceClosed)
	}
	if sess, ok := s.sessions[serial]; ok {
		s.mu.Unlock()
		return sess.info(), nil
	}
	s.mu.Unlock()

	format := ProbeTimestampFormat(ctx, s.transport, serial)

	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := s.transport.StreamShell(streamCtx, serial, format.LogcatArgs())
	if err != nil {
		cancel()
		return SessionInfo{}, fmt.Errorf("logcat.Service.Start: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		_ = stream.Close()
		return SessionInfo{}, fmt.Errorf("logcat.Service.Start: %w", ErrServiceClosed)
	}
	if sess, ok := s.sessions[serial]; ok {
		s.mu.Unlock()
		cancel()
		_ = stream.Close()
		return sess.info(), nil
	}
	sess := s.newSession(serial, format, cancel)
	s.sessions[serial] = sess
	s.mu.Unlock()

	log.Info().Str("serial", serial).Str("session_id", sess.id.String()).Str("format", format.String()).Msg("logcat session started")

	go s.receive(streamCtx, sess, stream)

	return sess.info(), nil
}

// Stop tears down the device's session. Listeners stay attached and simply
// receive nothing further; the history is kept. Stop must not be called from
// a Listener callback.
func (s *Service) Stop(ctx context.Context, serial string) error {
	s.mu.Lock()
	sess, ok := s.sessions[serial]
	if ok {
		delete(s.sessions, serial)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("logcat.Service.Stop(%q): %w", serial, ErrDeviceNotStarted)
	}

	sess.dispose()

	for _, done := range []<-chan struct{}{sess.done, sess.queue.Done()} {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("logcat.Service.Stop(%q): %w", serial, ctx.Err())
		}
	}

	log.Info().Str("serial", serial).Str("session_id", sess.id.String()).Msg("logcat session stopped")
	return nil
}

// Clear clears the device's log buffer and restarts its session. Clearing
// through a live stream is unreliable on some device/adb combinations, so
// the stream is always restarted, even when the clear command fails.
func (s *Service) Clear(ctx context.Context, serial string) error {
	_, clearErr := s.transport.RunShell(ctx, serial, "logcat -c")

	if err := s.Stop(ctx, serial); err != nil && !errors.Is(err, ErrDeviceNotStarted) {
		return fmt.Errorf("logcat.Service.Clear: %w", err)
	}

	s.mu.Lock()
	dev := s.deviceLocked(serial)
	s.mu.Unlock()
	dev.broadcaster.Clear()

	_, startErr := s.Start(ctx, serial)

	if err := errors.Join(clearErr, startErr); err != nil {
		return fmt.Errorf("logcat.Service.Clear: %w", err)
	}
	return nil
}

// Subscribe attaches l to the device. With replay set, l first receives the
// device history, then live records.
func (s *Service) Subscribe(serial string, l Listener, replay bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("logcat.Service.Subscribe: %w", ErrServiceClosed)
	}
	dev := s.deviceLocked(serial)
	sess := s.sessions[serial]
	s.mu.Unlock()

	dev.broadcaster.Subscribe(l, replay)
	if !replay {
		return nil
	}

	// Drain on the session queue so the backlog is ordered with batches
	// already queued. Without a session there is nothing to race with.
	if sess == nil || !sess.queue.Post(dev.broadcaster.Drain) {
		dev.broadcaster.Drain()
	}
	return nil
}

// Unsubscribe detaches l. It reports false if l was not attached.
func (s *Service) Unsubscribe(serial string, l Listener) bool {
	s.mu.Lock()
	dev, ok := s.devices[serial]
	s.mu.Unlock()

	if !ok {
		return false
	}
	return dev.broadcaster.Unsubscribe(l)
}

// History returns a copy of the device history.
func (s *Service) History(serial string) ([]domain.Record, error) {
	s.mu.Lock()
	dev, ok := s.devices[serial]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("logcat.Service.History(%q): %w", serial, domain.ErrNotFound)
	}
	return dev.broadcaster.History(), nil
}

// Session returns the running session of a device.
func (s *Service) Session(serial string) (SessionInfo, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[serial]
	s.mu.Unlock()

	if !ok {
		return SessionInfo{}, false
	}
	return sess.info(), true
}

// Sessions returns every running session ordered by serial.
func (s *Service) Sessions() []SessionInfo {
	s.mu.Lock()
	sessions := slices.Collect(maps.Values(s.sessions))
	s.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.info())
	}
	slices.SortFunc(infos, func(a, b SessionInfo) int {
		return strings.Compare(a.Serial, b.Serial)
	})
	return infos
}

// Watch polls lister until ctx ends, stopping the session of every device
// that goes offline or disappears. With autoStart set, online devices without
// a session are started.
func (s *Service) Watch(ctx context.Context, lister DeviceLister, interval time.Duration, autoStart bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.reconcile(ctx, lister, autoStart)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) reconcile(ctx context.Context, lister DeviceLister, autoStart bool) {
	devices, err := lister.Devices(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("logcat.Service.Watch: failed to list devices")
		return
	}

	online := make(map[string]bool, len(devices))
	for _, d := range devices {
		if d.Online() {
			online[d.Serial] = true
		}
	}

	for _, info := range s.Sessions() {
		if online[info.Serial] {
			continue
		}
		if stopErr := s.Stop(ctx, info.Serial); stopErr != nil && !errors.Is(stopErr, ErrDeviceNotStarted) {
			log.Error().Err(stopErr).Str("serial", info.Serial).Msg("logcat.Service.Watch: failed to stop disconnected device")
		}
	}

	if !autoStart {
		return
	}
	for serial := range online {
		if _, running := s.Session(serial); running {
			continue
		}
		if _, startErr := s.Start(ctx, serial); startErr != nil {
			log.Error().Err(startErr).Str("serial", serial).Msg("logcat.Service.Watch: failed to start device")
		}
	}
}

// Shutdown stops every session and closes the sinks.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	serials := slices.Collect(maps.Keys(s.sessions))
	s.mu.Unlock()

	var errs []error
	for _, serial := range serials {
		if err := s.Stop(ctx, serial); err != nil && !errors.Is(err, ErrDeviceNotStarted) {
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	devices := slices.Collect(maps.Values(s.devices))
	s.mu.Unlock()
	for _, dev := range devices {
		for _, sink := range dev.sinks {
			dev.broadcaster.Unsubscribe(sink)
			_ = sink.Close()
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("logcat.Service.Shutdown: %w", err)
	}
	return nil
}

// deviceLocked returns the state of serial, creating it on first use.
// s.mu must be held.
func (s *Service) deviceLocked(serial string) *deviceState {
	if dev, ok := s.devices[serial]; ok {
		return dev
	}
	dev := &deviceState{broadcaster: NewBroadcaster(NewHistory(s.opts.HistoryBytes))}
	for name, sink := range s.opts.Sinks {
		l := NewSinkListener(name, serial, sink, 0)
		dev.sinks = append(dev.sinks, l)
		dev.broadcaster.Subscribe(l, false)
	}
	s.devices[serial] = dev
	return dev
}

// newSession must be called with s.mu held.
func (s *Service) newSession(serial string, format TimestampFormat, cancel context.CancelFunc) *session {
	var packages PackageResolver
	if s.opts.Packages != nil {
		packages = s.opts.Packages(serial)
	}
	parser := NewTransportParser(format, packages).WithClock(s.opts.Now, s.opts.Location)
	queue := NewSerialQueue()

	return &session{
		id:          uuid.New(),
		serial:      serial,
		format:      format,
		startedAt:   s.opts.Now(),
		queue:       queue,
		flush:       NewFlushScheduler(queue, s.opts.FlushDelay),
		reassembler: NewReassembler(parser, nil),
		broadcaster: s.deviceLocked(serial).broadcaster,
		cancel:      cancel,
		done:        make(chan struct{}),
		now:         s.opts.Now,
	}
}

// receive runs the blocking read of one session. Batches are processed on the
// session queue, never on this goroutine.
func (s *Service) receive(ctx context.Context, sess *session, stream io.ReadCloser) {
	defer close(sess.done)
	defer stream.Close()

	readErr := ReadBatches(ctx, stream, func(lines []string) {
		sess.queue.Post(func() { sess.process(lines) })
	})
	if readErr != nil {
		log.Error().Err(readErr).Str("serial", sess.serial).Str("session_id", sess.id.String()).Msg("logcat stream failed")
	}

	sess.queue.Post(func() {
		sess.flushCarry()
		if readErr != nil {
			sess.broadcaster.Publish(transportErrorRecord(readErr, sess.now()))
		}
		s.detach(sess)
	})
}

// detach removes a session that ended on its own. Runs on the session queue.
func (s *Service) detach(sess *session) {
	s.mu.Lock()
	if s.sessions[sess.serial] == sess {
		delete(s.sessions, sess.serial)
	}
	s.mu.Unlock()

	sess.flush.Stop()
	sess.queue.Close()
	log.Info().Str("serial", sess.serial).Str("session_id", sess.id.String()).Msg("logcat session ended")
}

func transportErrorRecord(err error, now time.Time) domain.Record {
	return domain.Record{
		Header: domain.Header{
			Level:     domain.LevelError,
			Package:   UnknownPackage,
			Tag:       ErrorTag,
			Timestamp: now,
		},
		Message: "logcat stream error: " + err.Error(),
	}
}

type session struct {
	id          uuid.UUID
	serial      string
	format      TimestampFormat
	startedAt   time.Time
	queue       *SerialQueue
	flush       *FlushScheduler
	reassembler *Reassembler
	broadcaster *Broadcaster
	cancel      context.CancelFunc
	done        chan struct{}
	now         func() time.Time

	// carry is only touched on queue.
	carry Carry
}

func (sess *session) info() SessionInfo {
	return SessionInfo{
		ID:        sess.id,
		Serial:    sess.serial,
		Format:    sess.format.String(),
		StartedAt: sess.startedAt,
		Listeners: sess.broadcaster.Listeners(),
		Buffered:  sess.broadcaster.Buffered(),
	}
}

func (sess *session) process(lines []string) {
	batch := sess.reassembler.Reassemble(sess.carry, lines)
	sess.carry = batch.Carry
	for _, rec := range batch.Records {
		sess.broadcaster.Publish(rec)
	}

	if sess.carry.Open() {
		sess.flush.Schedule(sess.flushCarry)
	} else {
		sess.flush.Cancel()
	}
}

// flushCarry seals the open record as if a header had arrived.
func (sess *session) flushCarry() {
	if rec, ok := sess.carry.Seal(); ok {
		sess.broadcaster.Publish(rec)
	}
	sess.carry = Carry{}
	sess.reassembler.Trace().Reset()
}

func (sess *session) dispose() {
	sess.flush.Stop()
	sess.queue.Close()
	sess.cancel()
}
