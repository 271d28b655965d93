//go:build !unix

package profile

import (
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

// No graceful signal is available, so terminating is killing.
func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func kill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
