package result

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const sessionFile = "session.json"

// CreateRunDir makes a fresh timestamped directory under baseDir/runs and
// points baseDir/latest at it.
func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp)
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

func ExtremeFile(kind ExtremeKind, index uint64, durationMs int64) string {
	return fmt.Sprintf("%s_%d_%d.out", kind.FilePrefix(), index, durationMs)
}

func AbortedFile(index uint64, cause AbortCause) string {
	return fmt.Sprintf("aborted_%d_type_%d.out", index, cause.Code())
}

// WriteTranscript overwrites path with every line of the transcript.
func WriteTranscript(path string, lines []LogLine) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating transcript: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := w.WriteString(l.Format()); err != nil {
			f.Close()
			return fmt.Errorf("writing transcript %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing transcript %s: %w", path, err)
	}
	return f.Close()
}

func WriteSessionMeta(runDir string, meta *SessionMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	return os.WriteFile(filepath.Join(runDir, sessionFile), data, 0o644)
}

// ReadSessionMeta loads runDir/session.json.
func ReadSessionMeta(runDir string) (*SessionMeta, error) {
	data, err := os.ReadFile(filepath.Join(runDir, sessionFile))
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	var meta SessionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}
	return &meta, nil
}
