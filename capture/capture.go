// Package capture wraps one externally spawned recording process per channel.
// The handle guarantees the child is reaped on every exit path: a dedicated
// goroutine waits on the process and closes waitDone, so Alive stays
// non-blocking and Terminate can escalate from graceful stop to kill without
// leaking a process table entry.
package capture

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

var (
	// ErrToolUnavailable means the external capture tool could not be
	// launched. Fatal to the single capture attempt only.
	ErrToolUnavailable = errors.New("capture tool unavailable")
	// ErrPathConflict means an output path could not be disambiguated.
	ErrPathConflict = errors.New("output path conflict")
)

// Handle owns one running capture process.
type Handle struct {
	cmd        *exec.Cmd
	outputPath string
	waitErr    error // written once by the reaper goroutine before waitDone closes
	waitDone   chan struct{}
}

// Start launches the capture tool recording to outputPath. The tool's own
// diagnostics go to our stdout/stderr; they are not parsed beyond exit status.
func Start(tool string, args []string, outputPath string) (*Handle, error) {
	bin, err := exec.LookPath(tool)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", tool, err, ErrToolUnavailable)
	}
	cmd := exec.Command(bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	setProcAttrs(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %v: %w", tool, err, ErrToolUnavailable)
	}
	h := &Handle{cmd: cmd, outputPath: outputPath, waitDone: make(chan struct{})}
	go func() {
		h.waitErr = cmd.Wait()
		close(h.waitDone)
	}()
	return h, nil
}

// OutputPath returns the file this capture writes to.
func (h *Handle) OutputPath() string { return h.outputPath }

// PID returns the capture process id.
func (h *Handle) PID() int { return h.cmd.Process.Pid }

// Alive reports whether the process is still running. Non-blocking.
func (h *Handle) Alive() bool {
	select {
	case <-h.waitDone:
		return false
	default:
		return true
	}
}

// ExitErr returns the process exit error (nil for a clean exit). Only
// meaningful once Alive reports false; returns nil while still running.
func (h *Handle) ExitErr() error {
	select {
	case <-h.waitDone:
		return h.waitErr
	default:
		return nil
	}
}

// Terminate sends a graceful stop to the process group, waits up to grace,
// then force-kills. Safe to call on an already-exited process. The reaper
// goroutine releases the process entry on every path.
func (h *Handle) Terminate(grace time.Duration) error {
	select {
	case <-h.waitDone:
		return nil
	default:
	}
	_ = signalGroup(h.cmd, false)
	select {
	case <-h.waitDone:
		return nil
	case <-time.After(grace):
	}
	_ = signalGroup(h.cmd, true)
	select {
	case <-h.waitDone:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("capture process %d did not exit after kill", h.cmd.Process.Pid)
	}
}
