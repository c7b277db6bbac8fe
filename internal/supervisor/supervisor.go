// Package supervisor owns the lifecycle of the supervised test process.
//
// Each launch starts the command as the leader of a fresh process group so
// that Terminate can take down everything the test suite spawned.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultGrace is how long Terminate waits between the polite and the
// forceful group signal.
const DefaultGrace = time.Second

// ErrEmptyCommand is returned when a launcher has nothing to run.
var ErrEmptyCommand = errors.New("empty command")

// Process is a running child whose output can be read as a single stream.
type Process interface {
	// Output yields the child's stdout and stderr, merged.
	Output() io.Reader
	// Done is closed once the child has exited.
	Done() <-chan struct{}
	// Terminate signals the whole process group and blocks for the grace
	// period. Terminating an already-gone group is not an error and does not wait.
	Terminate() error
	// ID identifies the child in logs.
	ID() string
}

// Launcher starts one Process per iteration.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// Local runs Command through Shell on the host.
type Local struct {
	Command string
	Shell   string
	WorkDir string
	// Env is the full child environment; nil inherits the parent's.
	Env   []string
	Grace time.Duration
}

func (l *Local) Launch(ctx context.Context) (Process, error) {
	if strings.TrimSpace(l.Command) == "" {
		return nil, ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shell := l.Shell
	if shell == "" {
		shell = "sh"
	}

	cmd := exec.Command(shell, "-c", l.Command)
	cmd.Dir = l.WorkDir
	cmd.Env = l.Env
	configureProcessGroup(cmd)

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("starting %q: %w", l.Command, err)
	}
	// The child holds its own copy; ours must go so EOF arrives when the
	// whole group is gone.
	pw.Close()

	grace := l.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	p := &localProcess{
		cmd:   cmd,
		out:   pr,
		done:  make(chan struct{}),
		grace: grace,
	}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type localProcess struct {
	cmd   *exec.Cmd
	out   *os.File
	done  chan struct{}
	grace time.Duration

	once    sync.Once
	termErr error
}

func (p *localProcess) Output() io.Reader     { return p.out }
func (p *localProcess) Done() <-chan struct{} { return p.done }

func (p *localProcess) ID() string {
	return fmt.Sprintf("pid %d", p.cmd.Process.Pid)
}

func (p *localProcess) Terminate() error {
	p.once.Do(func() {
		p.termErr = terminateGroup(p.cmd, p.grace)
		// Unblocks the reader if a stray descendant still holds the pipe.
		p.out.Close()
	})
	return p.termErr
}
