// Package smi drives the vendor system-management tools (nvidia-smi,
// rocm-smi) to enumerate physical devices. It is the data source behind the
// genuine backend; everything above it works on the returned records only.
package smi

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Vendor selects which management tool to drive.
type Vendor int

const (
	NVIDIA Vendor = iota
	AMD
)

func (v Vendor) String() string {
	switch v {
	case NVIDIA:
		return "nvidia"
	case AMD:
		return "amd"
	}
	return "unknown"
}

func (v Vendor) tool() string {
	switch v {
	case NVIDIA:
		return "nvidia-smi"
	case AMD:
		return "rocm-smi"
	}
	return ""
}

// Device is one enumerated device in vendor-neutral terms. Index is the
// system-wide index the tool reports, unaffected by *_VISIBLE_DEVICES.
type Device struct {
	Index        int
	Name         string
	ComputeMajor int
	ComputeMinor int
	TotalMemory  uint64
}

// Runner executes a management tool and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Querier enumerates devices through the vendor tools. The zero value is not
// usable; construct with New or NewWithRunner.
type Querier struct {
	run      Runner
	lookPath func(string) (string, error)
	timeout  time.Duration
}

// New returns a Querier that executes the real tools with the given timeout
// per invocation.
func New(timeout time.Duration) *Querier {
	return &Querier{
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
		lookPath: exec.LookPath,
		timeout:  timeout,
	}
}

// NewWithRunner returns a Querier with the tool execution and lookup
// replaced, for tests.
func NewWithRunner(run Runner, lookPath func(string) (string, error)) *Querier {
	return &Querier{run: run, lookPath: lookPath, timeout: time.Minute}
}

// Available reports whether the vendor's management tool is installed.
func (q *Querier) Available(v Vendor) bool {
	_, err := q.lookPath(v.tool())
	return err == nil
}

// Devices enumerates all devices of the given vendor in system index order.
func (q *Querier) Devices(v Vendor) ([]Device, error) {
	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		slog.Debug("device enumeration", "vendor", v.String(), "duration", time.Since(start))
	}()

	switch v {
	case NVIDIA:
		return q.nvidiaDevices(ctx)
	case AMD:
		return q.amdDevices(ctx)
	}
	return nil, fmt.Errorf("unsupported vendor %d", v)
}

func (q *Querier) nvidiaDevices(ctx context.Context) ([]Device, error) {
	out, err := q.run(ctx, NVIDIA.tool(),
		"--query-gpu=index,name,compute_cap,memory.total",
		"--format=csv,noheader,nounits")
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi: %w", err)
	}

	var devices []Device
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 4 {
			slog.Warn("unexpected nvidia-smi output line", "line", line)
			continue
		}

		var d Device
		d.Index, err = strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("nvidia-smi: bad index in %q", line)
		}
		d.Name = strings.TrimSpace(parts[1])
		d.ComputeMajor, d.ComputeMinor = parseComputeCap(strings.TrimSpace(parts[2]))
		if mib, err := strconv.ParseUint(strings.TrimSpace(parts[3]), 10, 64); err == nil {
			d.TotalMemory = mib * 1024 * 1024 // memory.total is reported in MiB
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func parseComputeCap(s string) (major, minor int) {
	maj, min, ok := strings.Cut(s, ".")
	if !ok {
		return 0, 0
	}
	major, _ = strconv.Atoi(maj)
	minor, _ = strconv.Atoi(min)
	return major, minor
}
