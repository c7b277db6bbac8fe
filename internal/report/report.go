package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/grind/internal/result"
)

var (
	extremePattern = regexp.MustCompile(`^(min|max)_(\d+)_(\d+)\.out$`)
	abortedPattern = regexp.MustCompile(`^aborted_(\d+)_type_(\d+)\.out$`)
)

type Extreme struct {
	Index      uint64 `json:"index"`
	DurationMs int64  `json:"duration_ms"`
	File       string `json:"file"`
}

type Aborted struct {
	Index uint64 `json:"index"`
	Cause string `json:"cause"`
	File  string `json:"file"`
}

// Summary describes what a run directory retained.
type Summary struct {
	Session *result.SessionMeta `json:"session,omitempty"`
	Fastest *Extreme            `json:"fastest,omitempty"`
	Worst   *Extreme            `json:"worst,omitempty"`
	Aborted []Aborted           `json:"aborted"`
	// ByCause counts aborted transcripts per cause name.
	ByCause map[string]int `json:"by_cause"`
}

// Generate summarises the artifacts in runDir and writes them in format
// (table, markdown or json).
func Generate(runDir, format string, w io.Writer) error {
	s, err := Collect(runDir)
	if err != nil {
		return err
	}
	switch format {
	case "markdown":
		return writeMarkdown(s, w)
	case "json":
		return writeJSON(s, w)
	default:
		return writeTable(s, w)
	}
}

// Collect parses artifact filenames in runDir. A missing session manifest
// is tolerated.
func Collect(runDir string) (*Summary, error) {
	entries, err := os.ReadDir(runDir)
	if err != nil {
		return nil, fmt.Errorf("reading run dir: %w", err)
	}
	s := &Summary{ByCause: map[string]int{}}
	if meta, err := result.ReadSessionMeta(runDir); err == nil {
		s.Session = meta
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if m := extremePattern.FindStringSubmatch(name); m != nil {
			index, _ := strconv.ParseUint(m[2], 10, 64)
			ms, _ := strconv.ParseInt(m[3], 10, 64)
			x := &Extreme{Index: index, DurationMs: ms, File: name}
			if m[1] == "min" {
				if s.Fastest == nil || ms <= s.Fastest.DurationMs {
					s.Fastest = x
				}
			} else if s.Worst == nil || ms >= s.Worst.DurationMs {
				s.Worst = x
			}
			continue
		}
		if m := abortedPattern.FindStringSubmatch(name); m != nil {
			index, _ := strconv.ParseUint(m[1], 10, 64)
			code, _ := strconv.Atoi(m[2])
			cause := result.AbortCause(code).String()
			s.Aborted = append(s.Aborted, Aborted{Index: index, Cause: cause, File: name})
			s.ByCause[cause]++
		}
	}
	sort.Slice(s.Aborted, func(i, j int) bool {
		return s.Aborted[i].Index < s.Aborted[j].Index
	})
	return s, nil
}

func extremeCells(x *Extreme) (string, string, string) {
	if x == nil {
		return "-", "-", "-"
	}
	return strconv.FormatUint(x.Index, 10), strconv.FormatInt(x.DurationMs, 10), x.File
}

func causeNames(s *Summary) []string {
	names := make([]string, 0, len(s.ByCause))
	for name := range s.ByCause {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func writeTable(s *Summary, w io.Writer) error {
	if s.Session != nil {
		fmt.Fprintf(w, "session %s  started %s\ncommand: %s\n", s.Session.ID, s.Session.StartedAt.Format("2006-01-02 15:04:05"), s.Session.Command)
		if s.Session.Revision != "" {
			fmt.Fprintf(w, "revision: %s\n", s.Session.Revision)
		}
		fmt.Fprintln(w)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tITERATION\tDURATION MS\tFILE")
	fmt.Fprintln(tw, strings.Repeat("-", 60))
	i, ms, f := extremeCells(s.Fastest)
	fmt.Fprintf(tw, "fastest\t%s\t%s\t%s\n", i, ms, f)
	i, ms, f = extremeCells(s.Worst)
	fmt.Fprintf(tw, "worst\t%s\t%s\t%s\n", i, ms, f)
	for _, a := range s.Aborted {
		fmt.Fprintf(tw, "aborted (%s)\t%d\t-\t%s\n", a.Cause, a.Index, a.File)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d aborted", len(s.Aborted))
	for _, name := range causeNames(s) {
		fmt.Fprintf(w, ", %s=%d", name, s.ByCause[name])
	}
	fmt.Fprintln(w)
	return nil
}

func writeMarkdown(s *Summary, w io.Writer) error {
	if s.Session != nil {
		fmt.Fprintf(w, "**Session** `%s`: `%s`\n\n", s.Session.ID, s.Session.Command)
	}
	fmt.Fprintln(w, "| Kind | Iteration | Duration (ms) | File |")
	fmt.Fprintln(w, "|---|---|---|---|")
	i, ms, f := extremeCells(s.Fastest)
	fmt.Fprintf(w, "| fastest | %s | %s | %s |\n", i, ms, f)
	i, ms, f = extremeCells(s.Worst)
	fmt.Fprintf(w, "| worst | %s | %s | %s |\n", i, ms, f)
	for _, a := range s.Aborted {
		fmt.Fprintf(w, "| aborted (%s) | %d | - | %s |\n", a.Cause, a.Index, a.File)
	}
	return nil
}

func writeJSON(s *Summary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
