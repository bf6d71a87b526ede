//go:build windows

package capture

import "os/exec"

func setProcAttrs(cmd *exec.Cmd) {}

// Windows has no POSIX signals or process groups here; both the graceful and
// forced paths terminate the process directly.
func signalGroup(cmd *exec.Cmd, kill bool) error {
	return cmd.Process.Kill()
}
