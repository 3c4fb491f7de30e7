// Package liveness answers whether registered agents still have a
// reachable backing process, using PID signals and process-table scans.
package liveness

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// Probe is the OS-inspection surface the classifier depends on. Both
// calls are cheap enough to run once per check; batch callers take one
// Snapshot and share it.
type Probe interface {
	// PIDAlive reports whether a process with the given PID exists.
	PIDAlive(pid int) bool
	// Snapshot returns the process table as text, one process per line.
	Snapshot(ctx context.Context) (string, error)
}

type osProbe struct{}

// NewProbe returns the OS-backed probe.
func NewProbe() Probe {
	return osProbe{}
}

// PIDAlive sends signal 0 to the PID. Any error, including a permission
// error, counts as not alive. Stricter than the session check: a direct
// signal we cannot deliver is treated as a dead process, while an
// unreadable process table assumes liveness.
func (osProbe) PIDAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds. Signal 0 does the real check.
	return proc.Signal(syscall.Signal(0)) == nil
}

func (osProbe) Snapshot(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "ps", "aux").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// SessionInSnapshot reports whether any process-table line shows the
// session token. Lines with a standalone "serve" field are skipped: they
// denote the agent tool's daemon form (e.g. "opencode serve"), not the
// interactive session we are looking for.
func SessionInSnapshot(token, snapshot string) bool {
	if token == "" {
		return false
	}
	for _, line := range strings.Split(snapshot, "\n") {
		if !strings.Contains(line, token) {
			continue
		}
		if hasServeField(line) {
			continue
		}
		return true
	}
	return false
}

func hasServeField(line string) bool {
	for _, field := range strings.Fields(line) {
		if field == "serve" {
			return true
		}
	}
	return false
}

// SessionAlive checks the process table for the session token. If the
// table cannot be listed at all (ps missing, sandboxed), it fails open
// and assumes the session is alive rather than falsely killing a
// working agent.
func SessionAlive(ctx context.Context, probe Probe, token string) bool {
	snapshot, err := probe.Snapshot(ctx)
	if err != nil {
		slog.Warn("process table unavailable, assuming session alive", "error", err)
		return true
	}
	return SessionInSnapshot(token, snapshot)
}
