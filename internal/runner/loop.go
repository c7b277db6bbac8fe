// Package runner drives the supervisor loop: launch the command, hand the
// child to the monitor, record the outcome and go again.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/signalnine/grind/internal/result"
	"github.com/signalnine/grind/internal/supervisor"
)

const (
	// DefaultRetryDelay applies when Loop.RetryDelay is unset.
	DefaultRetryDelay = time.Second
	// DefaultSettleDelay applies when Loop.SettleDelay is unset.
	DefaultSettleDelay = 100 * time.Millisecond
)

// Watcher supervises one launched iteration until it ends.
type Watcher interface {
	Run(ctx context.Context, index uint64, proc supervisor.Process) (result.Outcome, error)
}

// Stats counts what a loop has seen so far.
type Stats struct {
	Iterations     uint64
	Completed      uint64
	Aborted        map[result.AbortCause]uint64
	LaunchFailures uint64
}

type Loop struct {
	Launcher supervisor.Launcher
	Watcher  Watcher
	Logger   zerolog.Logger
	// RetryDelay is the pause before relaunching after a launch failure.
	RetryDelay time.Duration
	// SettleDelay is the pause between a finished iteration and the next launch.
	SettleDelay time.Duration
	// MaxIterations stops the loop after that many finished iterations; 0 runs forever.
	MaxIterations uint64

	next  uint64
	stats Stats
}

// Run loops until ctx is cancelled or MaxIterations is reached. Indices start
// at 1 and are not consumed by failed launches. Interruption is reported as
// ctx.Err().
func (l *Loop) Run(ctx context.Context) (Stats, error) {
	if l.RetryDelay <= 0 {
		l.RetryDelay = DefaultRetryDelay
	}
	if l.SettleDelay <= 0 {
		l.SettleDelay = DefaultSettleDelay
	}
	if l.next == 0 {
		l.next = 1
	}
	if l.stats.Aborted == nil {
		l.stats.Aborted = make(map[result.AbortCause]uint64)
	}

	for {
		if l.MaxIterations > 0 && l.stats.Iterations >= l.MaxIterations {
			return l.stats, nil
		}
		if err := ctx.Err(); err != nil {
			return l.stats, err
		}

		index := l.next
		proc, err := l.Launcher.Launch(ctx)
		if err != nil {
			if errors.Is(err, supervisor.ErrEmptyCommand) {
				return l.stats, err
			}
			l.stats.LaunchFailures++
			l.Logger.Error().Err(err).Uint64("iteration", index).Dur("retry_in", l.RetryDelay).Msg("launch failed")
			if err := sleep(ctx, l.RetryDelay); err != nil {
				return l.stats, err
			}
			continue
		}
		l.Logger.Info().Uint64("iteration", index).Str("process", proc.ID()).Msg("launched")

		outcome, err := l.Watcher.Run(ctx, index, proc)
		if err != nil {
			return l.stats, err
		}
		l.next++
		l.stats.Iterations++
		if outcome.Completed {
			l.stats.Completed++
		} else {
			l.stats.Aborted[outcome.Cause]++
		}

		if err := sleep(ctx, l.SettleDelay); err != nil {
			return l.stats, err
		}
	}
}

// Next is the index the next launched iteration will get.
func (l *Loop) Next() uint64 {
	if l.next == 0 {
		return 1
	}
	return l.next
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
