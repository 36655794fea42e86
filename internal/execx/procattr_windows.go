//go:build windows

package execx

import "os/exec"

// setProcessGroup is a no-op on Windows (see procattr_unix.go).
func setProcessGroup(_ *exec.Cmd) {}

// killProcessGroup kills the immediate child on Windows.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
