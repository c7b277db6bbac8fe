package result

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/signalnine/grind/internal/classify"
)

// LogLine is one classified line of child output.
type LogLine struct {
	Elapsed float64 // seconds since the iteration started
	Raw     string
	Tag     classify.Tag
	Payload string
}

// Format renders the line as it appears in a transcript file.
func (l LogLine) Format() string {
	return fmt.Sprintf("%5.2f :: %s\n", l.Elapsed, l.Raw)
}

// Iteration is the state collected for one launch of the test command.
type Iteration struct {
	Index      uint64
	Start      time.Time
	Transcript []LogLine
	counts     map[classify.Tag]int
}

func NewIteration(index uint64, start time.Time) *Iteration {
	return &Iteration{
		Index:  index,
		Start:  start,
		counts: make(map[classify.Tag]int, len(classify.Severities)),
	}
}

// Append adds line to the transcript and bumps its severity counter.
func (it *Iteration) Append(line LogLine) {
	it.Transcript = append(it.Transcript, line)
	switch line.Tag {
	case classify.Warning, classify.Error, classify.Critical:
		it.counts[line.Tag]++
	}
}

// Note appends an unclassified harness line, such as the abort marker.
func (it *Iteration) Note(elapsed float64, text string) {
	it.Transcript = append(it.Transcript, LogLine{Elapsed: elapsed, Raw: text, Tag: classify.Plain})
}

// Count returns the number of transcript lines tagged tag. Only severity
// tags are tracked.
func (it *Iteration) Count(tag classify.Tag) int {
	return it.counts[tag]
}

// AbortCause names the single policy that ended an aborted iteration.
type AbortCause int

const (
	CauseNone AbortCause = iota
	CauseStalledOutput
	CauseExcessiveSeverity
	CauseIterationTimeout
)

// Code is the numeric cause written into aborted transcript filenames.
func (c AbortCause) Code() int { return int(c) }

func (c AbortCause) String() string {
	switch c {
	case CauseStalledOutput:
		return "stalled_output"
	case CauseExcessiveSeverity:
		return "excessive_severity"
	case CauseIterationTimeout:
		return "iteration_timeout"
	default:
		return "none"
	}
}

// Description is the operator-facing wording of the cause.
func (c AbortCause) Description() string {
	switch c {
	case CauseStalledOutput:
		return "process output timed out"
	case CauseExcessiveSeverity:
		return "too many warnings"
	case CauseIterationTimeout:
		return "test iteration timed out"
	default:
		return "unknown cause"
	}
}

// AbortSummary is the one-line abort notice shown to the operator and
// appended to the aborted transcript.
func AbortSummary(index uint64, cause AbortCause) string {
	return fmt.Sprintf("#ABORTED %d cause: %q", index, cause.Description())
}

// ExtremeKind selects one of the two retained completed-iteration slots.
type ExtremeKind string

const (
	Fastest ExtremeKind = "fastest"
	Worst   ExtremeKind = "worst"
)

// FilePrefix is the transcript filename prefix for the kind.
func (k ExtremeKind) FilePrefix() string {
	if k == Fastest {
		return "min"
	}
	return "max"
}

// ExtremeRecord tracks the transcript currently kept for one kind.
type ExtremeRecord struct {
	Kind       ExtremeKind
	DurationMs int64
	Index      uint64
	Path       string
}

// Outcome is how an iteration ended.
type Outcome struct {
	Iteration  *Iteration
	Completed  bool
	Cause      AbortCause
	DurationMs int64
}

// Policy mirrors the monitor thresholds for the session manifest.
type Policy struct {
	StallSeconds            float64 `json:"stall_seconds"`
	MaxSeverityCount        int     `json:"max_severity_count"`
	IterationTimeoutSeconds float64 `json:"iteration_timeout_seconds"`
}

// SessionMeta describes one invocation of the supervisor loop.
type SessionMeta struct {
	ID        uuid.UUID `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Command   string    `json:"command"`
	WorkDir   string    `json:"work_dir,omitempty"`
	Revision  string    `json:"revision,omitempty"`
	Launcher  string    `json:"launcher"`
	Policy    Policy    `json:"policy"`
}
