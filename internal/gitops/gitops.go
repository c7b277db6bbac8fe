package gitops

import (
	"fmt"
	"os/exec"
	"strings"
)

// Revision returns the HEAD commit of the repository at dir, with a
// "-dirty" suffix when the worktree has uncommitted changes.
func Revision(dir string) (string, error) {
	head := exec.Command("git", "rev-parse", "HEAD")
	head.Dir = dir
	out, err := head.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w", err)
	}
	rev := strings.TrimSpace(string(out))

	dirty, err := Dirty(dir)
	if err != nil {
		return "", err
	}
	if dirty {
		rev += "-dirty"
	}
	return rev, nil
}

// Dirty reports whether the worktree at dir has changes, untracked files included.
func Dirty(dir string) (bool, error) {
	status := exec.Command("git", "status", "--porcelain")
	status.Dir = dir
	out, err := status.Output()
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return len(strings.TrimSpace(string(out))) > 0, nil
}
