//go:build windows

package proc

import (
	"os/exec"
)

// configureProcAttr is a no-op on Windows; there are no process groups to
// configure for signal delivery.
func configureProcAttr(cmd *exec.Cmd) {}

// signalTerm kills immediately on Windows; there is no SIGTERM equivalent
// that console applications reliably honor.
func signalTerm(cmd *exec.Cmd) {
	_ = cmd.Process.Kill()
}

func signalKill(cmd *exec.Cmd) {
	_ = cmd.Process.Kill()
}
