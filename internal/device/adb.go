package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/logcatd/internal/domain"
)

// ADB runs commands on devices through the adb client binary.
type ADB struct {
	path string
}

// NewADB returns a bridge using the adb binary at path.
func NewADB(path string) *ADB {
	if path == "" {
		path = "adb"
	}
	return &ADB{path: path}
}

// Devices lists the devices the adb server knows about.
func (a *ADB) Devices(ctx context.Context) ([]domain.Device, error) {
	out, err := a.output(ctx, "devices")
	if err != nil {
		return nil, fmt.Errorf("device.ADB.Devices: %w", err)
	}
	return ParseDevices(out), nil
}

// StreamShell starts command on the device and returns its stdout. Closing
// the stream kills the command.
func (a *ADB) StreamShell(ctx context.Context, serial, command string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, a.path, "-s", serial, "shell", command)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("device.ADB.StreamShell: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("device.ADB.StreamShell: %w", err)
	}
	return &commandStream{ReadCloser: stdout, cmd: cmd, stderr: &stderr, serial: serial}, nil
}

// RunShell runs command on the device and returns its combined output.
func (a *ADB) RunShell(ctx context.Context, serial, command string) (string, error) {
	out, err := a.output(ctx, "-s", serial, "shell", command)
	if err != nil {
		return out, fmt.Errorf("device.ADB.RunShell: %w", err)
	}
	return out, nil
}

func (a *ADB) output(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, a.path, args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return string(out), fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, msg)
		}
		return string(out), fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// commandStream owns the adb child process behind a streamed shell command.
// Reading past the end of output reaps the process; a non-zero exit that we
// did not cause surfaces as the read error.
type commandStream struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	serial string

	closed   atomic.Bool
	waitOnce sync.Once
	waitErr  error
}

func (s *commandStream) Read(p []byte) (int, error) {
	n, err := s.ReadCloser.Read(p)
	if err == nil {
		return n, nil
	}
	if s.closed.Load() {
		return n, io.EOF
	}
	if !errors.Is(err, io.EOF) {
		return n, err
	}
	if waitErr := s.wait(); waitErr != nil && !s.closed.Load() {
		if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
			return n, fmt.Errorf("adb shell on %s: %w: %s", s.serial, waitErr, msg)
		}
		return n, fmt.Errorf("adb shell on %s: %w", s.serial, waitErr)
	}
	return n, io.EOF
}

func (s *commandStream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

// Close kills the command. It may be called concurrently with itself.
func (s *commandStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if err := s.wait(); err != nil && s.stderr.Len() > 0 {
		log.Debug().Err(err).Str("serial", s.serial).Msg("device.ADB: shell command killed")
	}
	return nil
}
