package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/gosuda/logcatd/internal/domain"
)

// DockerSerialPrefix marks serials of containerised emulators.
const DockerSerialPrefix = "docker:"

// DefaultEmulatorLabel selects the containers treated as devices.
const DefaultEmulatorLabel = "logcatd.emulator"

// DockerAPI is the subset of the docker client the bridge uses.
type DockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, options container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	Close() error
}

// Docker runs device shell commands inside emulator containers with docker
// exec. Containers carrying the emulator label are reported as devices named
// "docker:<container name>".
type Docker struct {
	api   DockerAPI
	label string
}

// NewDocker connects to the docker daemon at host.
func NewDocker(host, label string) (*Docker, error) {
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("device.NewDocker: %w", err)
	}
	return NewDockerWithAPI(c, label), nil
}

// NewDockerWithAPI wraps an existing docker client.
func NewDockerWithAPI(api DockerAPI, label string) *Docker {
	if label == "" {
		label = DefaultEmulatorLabel
	}
	return &Docker{api: api, label: label}
}

// Close releases the docker client.
func (d *Docker) Close() error {
	return d.api.Close()
}

// Devices lists labelled containers. Running containers are online.
func (d *Docker) Devices(ctx context.Context) ([]domain.Device, error) {
	containers, err := d.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", d.label)),
	})
	if err != nil {
		return nil, fmt.Errorf("device.Docker.Devices: %w", err)
	}

	devices := make([]domain.Device, 0, len(containers))
	for _, c := range containers {
		state := domain.DeviceOffline
		if c.State == "running" {
			state = domain.DeviceOnline
		}
		devices = append(devices, domain.Device{Serial: DockerSerialPrefix + containerName(c), State: state})
	}
	return devices, nil
}

// StreamShell starts command in the container and returns its stdout.
// Closing the stream detaches from the exec session. When the command exits
// with a non-zero status the final Read reports it along with its stderr.
func (d *Docker) StreamShell(ctx context.Context, serial, command string) (io.ReadCloser, error) {
	execID, resp, err := d.exec(ctx, serial, command)
	if err != nil {
		return nil, fmt.Errorf("device.Docker.StreamShell: %w", err)
	}

	pr, pw := io.Pipe()
	stream := &execStream{PipeReader: pr, resp: resp}
	go func() {
		var stderr bytes.Buffer
		_, copyErr := stdcopy.StdCopy(pw, &stderr, resp.Reader)
		if copyErr == nil && ctx.Err() == nil && !stream.closed.Load() {
			copyErr = d.exitStatus(ctx, serial, execID, &stderr)
		}
		pw.CloseWithError(copyErr)
	}()
	return stream, nil
}

// exitStatus reports a non-zero exit of a finished exec session. The daemon
// may still list the session as running right after its output closes.
func (d *Docker) exitStatus(ctx context.Context, serial, execID string, stderr *bytes.Buffer) error {
	var inspect container.ExecInspect
	for attempt := 0; ; attempt++ {
		var err error
		inspect, err = d.api.ContainerExecInspect(ctx, execID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("docker exec on %s: inspect: %w", serial, err)
		}
		if !inspect.Running || attempt >= execInspectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(execInspectInterval):
		}
	}

	if inspect.Running || inspect.ExitCode == 0 {
		return nil
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return fmt.Errorf("docker exec on %s: exited with %d: %s", serial, inspect.ExitCode, msg)
	}
	return fmt.Errorf("docker exec on %s: exited with %d", serial, inspect.ExitCode)
}

// RunShell runs command in the container and returns its combined output.
// A non-zero exit status is an error.
func (d *Docker) RunShell(ctx context.Context, serial, command string) (string, error) {
	execID, resp, err := d.exec(ctx, serial, command)
	if err != nil {
		return "", fmt.Errorf("device.Docker.RunShell: %w", err)
	}
	defer resp.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, resp.Reader); err != nil {
		return "", fmt.Errorf("device.Docker.RunShell: %w", err)
	}
	out := stdout.String() + stderr.String()

	inspect, err := d.api.ContainerExecInspect(ctx, execID)
	if err != nil {
		return out, fmt.Errorf("device.Docker.RunShell: %w", err)
	}
	if inspect.ExitCode != 0 {
		return out, fmt.Errorf("device.Docker.RunShell: %q exited with %d: %s", command, inspect.ExitCode, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func (d *Docker) exec(ctx context.Context, serial, command string) (string, types.HijackedResponse, error) {
	name, ok := strings.CutPrefix(serial, DockerSerialPrefix)
	if !ok || name == "" {
		return "", types.HijackedResponse{}, fmt.Errorf("%q: %w", serial, ErrUnknownDevice)
	}

	created, err := d.api.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          []string{"sh", "-c", command},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", types.HijackedResponse{}, fmt.Errorf("create: %w", err)
	}

	resp, err := d.api.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", types.HijackedResponse{}, fmt.Errorf("attach: %w", err)
	}
	return created.ID, resp, nil
}

func containerName(c container.Summary) string {
	if len(c.Names) > 0 {
		return strings.TrimPrefix(c.Names[0], "/")
	}
	if len(c.ID) > 12 {
		return c.ID[:12]
	}
	return c.ID
}

const (
	execInspectAttempts = 10
	execInspectInterval = 50 * time.Millisecond
)

type execStream struct {
	*io.PipeReader
	resp   types.HijackedResponse
	closed atomic.Bool
	once   sync.Once
}

func (s *execStream) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		s.resp.Close()
		_ = s.PipeReader.Close()
	})
	return nil
}
