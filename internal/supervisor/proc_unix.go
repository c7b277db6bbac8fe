//go:build !windows

package supervisor

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup sends SIGTERM to the group led by cmd, waits grace, then
// SIGKILLs whatever is left. The group id equals the leader's pid, which
// stays valid after the leader is reaped while descendants live on. A group
// that is already gone returns at once.
func terminateGroup(cmd *exec.Cmd, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil || cmd.Process.Pid <= 0 {
		return nil
	}
	pgid := cmd.Process.Pid
	gone, err := signalGroup(pgid, unix.SIGTERM)
	if err != nil || gone {
		return err
	}
	time.Sleep(grace)
	_, err = signalGroup(pgid, unix.SIGKILL)
	return err
}

// signalGroup reports gone when no process is left in the group.
func signalGroup(pgid int, sig unix.Signal) (gone bool, err error) {
	err = unix.Kill(-pgid, sig)
	if errors.Is(err, unix.ESRCH) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("signalling process group %d with %s: %w", pgid, unix.SignalName(sig), err)
	}
	return false, nil
}
