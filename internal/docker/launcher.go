// Package docker runs the test command inside a throwaway container. The
// container plays the role of the process group: killing and removing it
// takes every descendant with it.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
	"github.com/signalnine/grind/internal/supervisor"
)

const workspace = "/workspace"

type Launcher struct {
	Image   string
	Command string
	Shell   string
	// WorkDir is bind-mounted at /workspace when set.
	WorkDir string
	// Env holds only the variables to set inside the container.
	Env    []string
	Grace  time.Duration
	UserID string
}

func (l *Launcher) Launch(ctx context.Context) (supervisor.Process, error) {
	if strings.TrimSpace(l.Command) == "" {
		return nil, supervisor.ErrEmptyCommand
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	containerCfg, hostCfg := l.containerConfig()
	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("creating container: %w", err)
	}
	id := createResp.ID
	p := &containerProcess{cli: cli, id: id, grace: l.Grace, done: make(chan struct{})}
	if p.grace <= 0 {
		p.grace = supervisor.DefaultGrace
	}

	if _, err := cli.ContainerStart(ctx, id, client.ContainerStartOptions{}); err != nil {
		p.remove()
		return nil, fmt.Errorf("starting container: %w", err)
	}

	logs, err := cli.ContainerLogs(ctx, id, client.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		p.remove()
		return nil, fmt.Errorf("attaching to container logs: %w", err)
	}
	p.logs = logs

	waitResult := cli.ContainerWait(context.Background(), id, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	go func() {
		defer close(p.done)
		errc := waitResult.Error
		for {
			select {
			case <-waitResult.Result:
				return
			case err := <-errc:
				if err != nil {
					return
				}
				// nil means no error on this channel; wait for the result
				errc = nil
			}
		}
	}()
	return p, nil
}

// containerConfig builds the create request. A TTY keeps stdout and stderr
// as one raw stream, so no demultiplexing is needed.
func (l *Launcher) containerConfig() (*container.Config, *container.HostConfig) {
	shell := l.Shell
	if shell == "" {
		shell = "sh"
	}
	initTrue := true
	hostCfg := &container.HostConfig{Init: &initTrue}
	containerCfg := &container.Config{
		Image:  l.Image,
		Cmd:    []string{shell, "-c", l.Command},
		Env:    l.Env,
		Tty:    true,
		Labels: map[string]string{"grind": "true"},
	}
	if l.WorkDir != "" {
		hostCfg.Mounts = []mount.Mount{{
			Type:   mount.TypeBind,
			Source: l.WorkDir,
			Target: workspace,
		}}
		containerCfg.WorkingDir = workspace
	}
	if l.UserID != "" {
		containerCfg.User = l.UserID
	}
	return containerCfg, hostCfg
}

type containerProcess struct {
	cli   *client.Client
	id    string
	logs  io.ReadCloser
	grace time.Duration
	done  chan struct{}

	once    sync.Once
	termErr error
}

func (p *containerProcess) Output() io.Reader     { return p.logs }
func (p *containerProcess) Done() <-chan struct{} { return p.done }
func (p *containerProcess) ID() string            { return "container " + shortID(p.id) }

// Terminate stops the container politely, waits the grace period, then
// force-removes it. A container that already exited or is already gone is
// removed without waiting; daemon errors are returned.
func (p *containerProcess) Terminate() error {
	p.once.Do(func() {
		_, err := p.cli.ContainerKill(context.Background(), p.id, client.ContainerKillOptions{Signal: "SIGTERM"})
		switch {
		case err == nil:
			time.Sleep(p.grace)
		case !containerGone(err):
			p.termErr = fmt.Errorf("killing container %s: %w", shortID(p.id), err)
		}
		if err := p.remove(); err != nil {
			p.termErr = errors.Join(p.termErr, err)
		}
	})
	return p.termErr
}

func (p *containerProcess) remove() error {
	_, err := p.cli.ContainerRemove(context.Background(), p.id, client.ContainerRemoveOptions{Force: true})
	if p.logs != nil {
		p.logs.Close()
	}
	p.cli.Close()
	if err != nil && !containerGone(err) {
		return fmt.Errorf("removing container %s: %w", shortID(p.id), err)
	}
	return nil
}

// containerGone reports daemon errors that mean there is nothing left to
// stop: no such container, not running, or removal already in progress.
func containerGone(err error) bool {
	return cerrdefs.IsNotFound(err) || cerrdefs.IsConflict(err)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
