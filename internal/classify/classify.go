package classify

import "strings"

// Tag is the severity class assigned to a single output line.
type Tag int

const (
	Plain Tag = iota
	Warning
	Error
	Critical
	Stat
)

func (t Tag) String() string {
	switch t {
	case Plain:
		return "plain"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Critical:
		return "critical"
	case Stat:
		return "stat"
	default:
		return "unknown"
	}
}

// Severities lists the tags that are counted toward the volume ceiling.
var Severities = []Tag{Warning, Error, Critical}

// Markers holds the substrings used to classify lines. Matching is a plain
// substring search; a marker embedded in unrelated text still matches.
type Markers struct {
	Warning    string `yaml:"warning"`
	Error      string `yaml:"error"`
	Critical   string `yaml:"critical"`
	Stat       string `yaml:"stat"`
	Completion string `yaml:"completion"`
}

// DefaultMarkers returns the markers emitted by the scp test suite's logger.
func DefaultMarkers() Markers {
	return Markers{
		Warning:    "WARN",
		Error:      "ERRO",
		Critical:   "CRIT",
		Stat:       "(stats)",
		Completion: "build and test completed",
	}
}

// Classify returns the tag for line and, for stat lines, the text following
// the stat marker. The first marker found in the order critical, error,
// warning, stat wins.
func (m Markers) Classify(line string) (Tag, string) {
	switch {
	case contains(line, m.Critical):
		return Critical, ""
	case contains(line, m.Error):
		return Error, ""
	case contains(line, m.Warning):
		return Warning, ""
	case contains(line, m.Stat):
		_, after, _ := strings.Cut(line, m.Stat)
		return Stat, strings.TrimSpace(after)
	}
	return Plain, ""
}

// Completed reports whether line carries the end-of-run marker.
func (m Markers) Completed(line string) bool {
	return contains(line, m.Completion)
}

func contains(line, marker string) bool {
	return marker != "" && strings.Contains(line, marker)
}
