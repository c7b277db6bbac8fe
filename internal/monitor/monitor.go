// Package monitor runs the per-iteration control loop: it consumes the
// child's output, classifies each line, and ends the iteration on the
// completion marker or when a liveness, volume or timeout policy trips.
//
// Policies are evaluated on every tick before any buffered output is
// consumed, so a child that has gone silent is aborted even though no new
// line arrives to wake the loop.
package monitor

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/signalnine/grind/internal/classify"
	"github.com/signalnine/grind/internal/result"
	"github.com/signalnine/grind/internal/stream"
	"github.com/signalnine/grind/internal/supervisor"
	"github.com/signalnine/grind/internal/telemetry"
)

// Policy holds the abort thresholds and loop cadence.
type Policy struct {
	StallTimeout     time.Duration
	MaxSeverityCount int
	IterationTimeout time.Duration
	Tick             time.Duration
	// ExitGrace bounds the wait for a completed child to exit on its own.
	ExitGrace       time.Duration
	ChannelCapacity int
}

func DefaultPolicy() Policy {
	return Policy{
		StallTimeout:     20 * time.Second,
		MaxSeverityCount: 10000,
		IterationTimeout: 1200 * time.Second,
		Tick:             100 * time.Millisecond,
		ExitGrace:        time.Second,
		ChannelCapacity:  stream.DefaultCapacity,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.StallTimeout <= 0 {
		p.StallTimeout = d.StallTimeout
	}
	if p.MaxSeverityCount <= 0 {
		p.MaxSeverityCount = d.MaxSeverityCount
	}
	if p.IterationTimeout <= 0 {
		p.IterationTimeout = d.IterationTimeout
	}
	if p.Tick <= 0 {
		p.Tick = d.Tick
	}
	if p.ExitGrace <= 0 {
		p.ExitGrace = d.ExitGrace
	}
	if p.ChannelCapacity <= 0 {
		p.ChannelCapacity = d.ChannelCapacity
	}
	return p
}

// Recorder persists finished iterations.
type Recorder interface {
	RecordCompleted(it *result.Iteration, durationMs int64) error
	RecordAborted(it *result.Iteration, cause result.AbortCause) error
}

// Operator is the human-facing output stream.
type Operator interface {
	Echo(tag classify.Tag, raw string)
	Stat(payload string)
	Aborted(index uint64, cause result.AbortCause)
}

// Publisher receives machine-readable events.
type Publisher interface {
	Publish(ev telemetry.Event)
}

type Monitor struct {
	Policy    Policy
	Markers   classify.Markers
	Recorder  Recorder
	Operator  Operator
	Telemetry Publisher // optional
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Run supervises proc as iteration index until it completes or is aborted.
// The child has been released by the time Run returns. The only error is
// the context's, after an external interrupt; nothing is recorded then.
func (m *Monitor) Run(ctx context.Context, index uint64, proc supervisor.Process) (result.Outcome, error) {
	if m.Now == nil {
		m.Now = time.Now
	}
	policy := m.Policy.withDefaults()
	logger := m.Logger.With().Uint64("iteration", index).Logger()

	readerCtx, stopReader := context.WithCancel(ctx)
	defer stopReader()
	lines := stream.Start(readerCtx, proc.Output(), policy.ChannelCapacity)

	it := result.NewIteration(index, m.Now())
	lastRead := it.Start
	logger.Debug().Str("process", proc.ID()).Msg("iteration started")

	ticker := time.NewTicker(policy.Tick)
	defer ticker.Stop()

	var held *string
	for {
		now := m.Now()
		if cause := check(policy, it, now, lastRead); cause != result.CauseNone {
			return m.abort(logger, it, proc, cause), nil
		}

		busy := false
		if held != nil {
			done := m.handle(it, *held)
			held = nil
			if done {
				return m.complete(logger, policy, it, proc), nil
			}
		}
	drain:
		for n := 0; ; n++ {
			if n == policy.ChannelCapacity {
				// Re-check policies before taking more from a busy child.
				busy = true
				break
			}
			select {
			case line, ok := <-lines:
				if !ok {
					lines = nil
					break drain
				}
				lastRead = m.Now()
				// Policies gate every line, so a marker cannot hide a tripped ceiling.
				if cause := check(policy, it, lastRead, lastRead); cause != result.CauseNone {
					return m.abort(logger, it, proc, cause), nil
				}
				if m.handle(it, line) {
					return m.complete(logger, policy, it, proc), nil
				}
			default:
				break drain
			}
		}
		if busy {
			continue
		}

		select {
		case <-ctx.Done():
			logger.Info().Msg("interrupted, releasing process group")
			_ = proc.Terminate()
			return result.Outcome{Iteration: it}, ctx.Err()
		case <-ticker.C:
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			lastRead = m.Now()
			held = &line
		}
	}
}

// check evaluates the abort policies in priority order: stall, volume,
// timeout.
func check(p Policy, it *result.Iteration, now, lastRead time.Time) result.AbortCause {
	if now.Sub(lastRead) > p.StallTimeout {
		return result.CauseStalledOutput
	}
	for _, tag := range classify.Severities {
		if it.Count(tag) > p.MaxSeverityCount {
			return result.CauseExcessiveSeverity
		}
	}
	if now.Sub(it.Start) > p.IterationTimeout {
		return result.CauseIterationTimeout
	}
	return result.CauseNone
}

// handle classifies and records one line and reports whether it carries
// the completion marker.
func (m *Monitor) handle(it *result.Iteration, raw string) bool {
	elapsed := m.Now().Sub(it.Start).Seconds()
	tag, payload := m.Markers.Classify(raw)
	it.Append(result.LogLine{Elapsed: elapsed, Raw: raw, Tag: tag, Payload: payload})

	switch tag {
	case classify.Warning, classify.Error, classify.Critical:
		m.Operator.Echo(tag, raw)
	case classify.Stat:
		m.Operator.Stat(payload)
		m.publish(telemetry.Event{Type: telemetry.EventStat, Iteration: it.Index, Elapsed: elapsed, Payload: payload})
	}
	return m.Markers.Completed(raw)
}

func (m *Monitor) complete(logger zerolog.Logger, p Policy, it *result.Iteration, proc supervisor.Process) result.Outcome {
	durationMs := int64(math.Round(float64(m.Now().Sub(it.Start)) / float64(time.Millisecond)))
	logger.Info().Int64("duration_ms", durationMs).Int("lines", len(it.Transcript)).Msg("iteration completed")

	if err := m.Recorder.RecordCompleted(it, durationMs); err != nil {
		logger.Error().Err(err).Msg("recording completed iteration")
	}
	m.publish(telemetry.Event{Type: telemetry.EventCompleted, Iteration: it.Index, DurationMs: durationMs})

	select {
	case <-proc.Done():
	case <-time.After(p.ExitGrace):
		logger.Debug().Msg("child still running after completion, terminating")
	}
	if err := proc.Terminate(); err != nil {
		logger.Warn().Err(err).Msg("terminating completed process group")
	}
	return result.Outcome{Iteration: it, Completed: true, DurationMs: durationMs}
}

func (m *Monitor) abort(logger zerolog.Logger, it *result.Iteration, proc supervisor.Process, cause result.AbortCause) result.Outcome {
	if len(it.Transcript) == 0 {
		logger.Warn().Msg("output is empty")
	}
	if err := proc.Terminate(); err != nil {
		logger.Warn().Err(err).Msg("terminating aborted process group")
	}

	elapsed := m.Now().Sub(it.Start).Seconds()
	it.Note(elapsed, result.AbortSummary(it.Index, cause))
	m.Operator.Aborted(it.Index, cause)
	logger.Warn().Str("cause", cause.String()).Float64("elapsed_s", elapsed).Msg("iteration aborted")

	if err := m.Recorder.RecordAborted(it, cause); err != nil {
		logger.Error().Err(err).Msg("recording aborted iteration")
	}
	m.publish(telemetry.Event{Type: telemetry.EventAborted, Iteration: it.Index, Elapsed: elapsed, Cause: cause.String()})
	return result.Outcome{Iteration: it, Cause: cause}
}

func (m *Monitor) publish(ev telemetry.Event) {
	if m.Telemetry != nil {
		m.Telemetry.Publish(ev)
	}
}
