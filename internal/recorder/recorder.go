// Package recorder persists iteration transcripts. It keeps every aborted
// transcript and exactly one fastest and one slowest completed transcript.
package recorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/signalnine/grind/internal/result"
)

type Recorder struct {
	dir    string
	logger zerolog.Logger

	mu      sync.Mutex
	fastest *result.ExtremeRecord
	worst   *result.ExtremeRecord
}

func New(dir string, logger zerolog.Logger) *Recorder {
	return &Recorder{dir: dir, logger: logger}
}

func (r *Recorder) Dir() string { return r.dir }

// RecordCompleted updates the fastest and worst slots. Ties supersede the
// current holder. Both slots are attempted even if the first write fails.
func (r *Recorder) RecordCompleted(it *result.Iteration, durationMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.fastest == nil || durationMs <= r.fastest.DurationMs {
		rec, err := r.replace(r.fastest, result.Fastest, it, durationMs)
		r.fastest = rec
		errs = append(errs, err)
	}
	if r.worst == nil || durationMs >= r.worst.DurationMs {
		rec, err := r.replace(r.worst, result.Worst, it, durationMs)
		r.worst = rec
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RecordAborted writes the transcript of an aborted iteration.
func (r *Recorder) RecordAborted(it *result.Iteration, cause result.AbortCause) error {
	path := filepath.Join(r.dir, result.AbortedFile(it.Index, cause))
	if err := result.WriteTranscript(path, it.Transcript); err != nil {
		return err
	}
	r.logger.Info().Uint64("iteration", it.Index).Str("cause", cause.String()).Str("path", path).Msg("saved aborted transcript")
	return nil
}

func (r *Recorder) Fastest() (result.ExtremeRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fastest == nil {
		return result.ExtremeRecord{}, false
	}
	return *r.fastest, true
}

func (r *Recorder) Worst() (result.ExtremeRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.worst == nil {
		return result.ExtremeRecord{}, false
	}
	return *r.worst, true
}

// replace removes prev's file and writes the new one. The returned record
// always carries the new duration so later comparisons use it, but Path is
// empty when the write failed.
func (r *Recorder) replace(prev *result.ExtremeRecord, kind result.ExtremeKind, it *result.Iteration, durationMs int64) (*result.ExtremeRecord, error) {
	if prev != nil && prev.Path != "" {
		if err := os.Remove(prev.Path); err != nil && !os.IsNotExist(err) {
			r.logger.Warn().Err(err).Str("path", prev.Path).Msg("removing superseded transcript")
		}
	}
	rec := &result.ExtremeRecord{Kind: kind, DurationMs: durationMs, Index: it.Index}
	path := filepath.Join(r.dir, result.ExtremeFile(kind, it.Index, durationMs))
	if err := result.WriteTranscript(path, it.Transcript); err != nil {
		return rec, fmt.Errorf("saving %s transcript: %w", kind, err)
	}
	rec.Path = path
	r.logger.Info().Str("kind", string(kind)).Uint64("iteration", it.Index).Int64("duration_ms", durationMs).Msg("new extreme")
	return rec, nil
}
