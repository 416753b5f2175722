// process.go implements the process-table side of simulator control:
// finding simulator processes by executable name and force-killing them.
//
// Name matching is a case-sensitive substring match, so "CarlaUE4" catches
// both the launcher script's child and "CarlaUE4-Linux-Shipping" — but a
// case-insensitive "carla" would match carlactl itself, so case matters.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// FindProcesses returns the PIDs of every process whose executable name
// contains name. The current process is always excluded.
//
// Processes that disappear mid-scan or deny access are skipped silently:
// the process table is shared mutable state and races here are normal.
func FindProcesses(ctx context.Context, name string) ([]int32, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	self := int32(os.Getpid())

	var pids []int32
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		if matchesName(ctx, p, name) {
			pids = append(pids, p.Pid)
		}
	}
	return pids, nil
}

// matchesName reports whether the process's name or executable path base
// contains the target string.
func matchesName(ctx context.Context, p *process.Process, name string) bool {
	// /proc comm names are truncated to 15 characters on Linux, so check
	// the full executable path as a fallback for long binary names like
	// CarlaUE4-Linux-Shipping.
	if procName, err := p.NameWithContext(ctx); err == nil && strings.Contains(procName, name) {
		return true
	}
	if exe, err := p.ExeWithContext(ctx); err == nil && strings.Contains(filepath.Base(exe), name) {
		return true
	}
	return false
}

// KillProcesses force-kills (SIGKILL) every process whose executable name
// contains name. It returns the number of processes it signalled.
//
// The operation is best-effort and idempotent: zero matches is success,
// and a process that exits between scan and signal is not an error.
func KillProcesses(ctx context.Context, name string) (int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list processes: %w", err)
	}

	self := int32(os.Getpid())

	killed := 0
	var errs []error
	for _, p := range procs {
		if p.Pid == self || !matchesName(ctx, p, name) {
			continue
		}
		if err := p.KillWithContext(ctx); err != nil {
			// Already-gone processes are fine; anything else (e.g. a
			// permission error) is worth surfacing to the caller.
			if running, runErr := p.IsRunningWithContext(ctx); runErr == nil && !running {
				continue
			}
			errs = append(errs, fmt.Errorf("kill pid %d: %w", p.Pid, err))
			continue
		}
		killed++
	}

	return killed, errors.Join(errs...)
}
