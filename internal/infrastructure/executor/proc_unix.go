//go:build !windows

package executor

import (
	"os/exec"
	"syscall"
)

// setProcessGroup detaches the child into its own process group so signals
// reach the whole tree, including grandchildren the shell forks.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalTerm(cmd *exec.Cmd) error { return signalGroup(cmd, syscall.SIGTERM) }

func signalKill(cmd *exec.Cmd) error { return signalGroup(cmd, syscall.SIGKILL) }

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		// Group already gone; fall back to the direct child.
		return cmd.Process.Signal(sig)
	}
	return syscall.Kill(-pgid, sig)
}
