//go:build !windows

package capture

import (
	"os/exec"
	"syscall"
)

// setProcAttrs puts the child in its own process group so signals reach the
// capture tool's own children (muxer subprocesses) too.
func setProcAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(cmd *exec.Cmd, kill bool) error {
	sig := syscall.SIGTERM
	if kill {
		sig = syscall.SIGKILL
	}
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil {
		// Group already gone or never created; fall back to the process itself.
		return cmd.Process.Signal(sig)
	}
	return nil
}
