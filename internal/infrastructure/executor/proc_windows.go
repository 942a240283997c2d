//go:build windows

package executor

import "os/exec"

// Windows has no process groups in the POSIX sense; the direct child is the
// best termination target available.
func setProcessGroup(*exec.Cmd) {}

func signalTerm(cmd *exec.Cmd) error { return signalKill(cmd) }

func signalKill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
