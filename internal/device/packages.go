package device

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/logcatd/internal/logcat"
)

const (
	defaultPackageEntries  = 1 << 16
	defaultRefreshInterval = 2 * time.Second
	refreshTimeout         = 5 * time.Second
)

// ShellRunner runs a command on a device to completion.
type ShellRunner interface {
	RunShell(ctx context.Context, serial, command string) (string, error)
}

// Packages maps process ids to package names from the device's process
// table. Lookups never block: a miss reports logcat.UnknownPackage and
// triggers a background refresh of that device's table.
type Packages struct {
	shell    ShellRunner
	cache    *ristretto.Cache
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]bool
	last     map[string]time.Time
}

// NewPackages returns a resolver holding up to maxEntries pids across all
// devices. A refresh of the same device happens at most once per interval.
func NewPackages(shell ShellRunner, maxEntries int64, interval time.Duration) (*Packages, error) {
	if maxEntries <= 0 {
		maxEntries = defaultPackageEntries
	}
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("device.NewPackages: %w", err)
	}
	return &Packages{
		shell:    shell,
		cache:    cache,
		interval: interval,
		now:      time.Now,
		inflight: make(map[string]bool),
		last:     make(map[string]time.Time),
	}, nil
}

// Close releases the cache.
func (p *Packages) Close() {
	p.cache.Close()
}

// Resolver returns the pid resolver of one device.
func (p *Packages) Resolver(serial string) logcat.PackageResolver {
	return packageResolver{packages: p, serial: serial}
}

// Lookup returns the cached package of pid.
func (p *Packages) Lookup(serial string, pid int) (string, bool) {
	v, ok := p.cache.Get(pidKey(serial, pid))
	if !ok {
		return "", false
	}
	name, ok := v.(string)
	return name, ok
}

// Refresh reloads the process table of a device.
func (p *Packages) Refresh(ctx context.Context, serial string) error {
	out, err := p.shell.RunShell(ctx, serial, "ps -A")
	procs := ParseProcesses(out)
	if len(procs) <= 1 {
		// Releases before O list only the shell itself for "ps -A".
		out, err = p.shell.RunShell(ctx, serial, "ps")
		procs = ParseProcesses(out)
	}
	if err != nil && len(procs) == 0 {
		return fmt.Errorf("device.Packages.Refresh: %w", err)
	}

	for pid, name := range procs {
		p.cache.Set(pidKey(serial, pid), name, 1)
	}
	p.cache.Wait()

	log.Debug().Str("serial", serial).Int("processes", len(procs)).Msg("device.Packages: process table refreshed")
	return nil
}

func (p *Packages) resolve(serial string, pid int) string {
	if name, ok := p.Lookup(serial, pid); ok {
		return name
	}
	p.refreshAsync(serial)
	return logcat.UnknownPackage
}

func (p *Packages) refreshAsync(serial string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inflight[serial] || p.now().Sub(p.last[serial]) < p.interval {
		return
	}
	p.inflight[serial] = true

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		if err := p.Refresh(ctx, serial); err != nil {
			log.Warn().Err(err).Str("serial", serial).Msg("device.Packages: failed to refresh process table")
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		p.inflight[serial] = false
		p.last[serial] = p.now()
	}()
}

type packageResolver struct {
	packages *Packages
	serial   string
}

func (r packageResolver) PackageForPID(pid int) string {
	return r.packages.resolve(r.serial, pid)
}

func pidKey(serial string, pid int) string {
	return serial + "/" + strconv.Itoa(pid)
}

// ParseProcesses parses `ps` output into pid -> process name. The PID column
// is located from the header line; the name is the last column.
func ParseProcesses(out string) map[int]string {
	lines := strings.Split(out, "\n")
	pidCol := -1
	procs := make(map[int]string)

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if pidCol < 0 {
			for i, f := range fields {
				if f == "PID" {
					pidCol = i
					break
				}
			}
			continue
		}
		if len(fields) <= pidCol+1 {
			continue
		}
		pid, err := strconv.Atoi(fields[pidCol])
		if err != nil {
			continue
		}
		procs[pid] = fields[len(fields)-1]
	}
	return procs
}
