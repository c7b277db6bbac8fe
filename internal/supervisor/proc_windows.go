//go:build windows

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"time"
)

func configureProcessGroup(cmd *exec.Cmd) {}

func terminateGroup(cmd *exec.Cmd, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	err := cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	time.Sleep(grace)
	return err
}
