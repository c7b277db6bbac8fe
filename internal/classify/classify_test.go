package classify_test

import (
	"testing"

	"github.com/signalnine/grind/internal/classify"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	m := classify.DefaultMarkers()
	tests := []struct {
		name    string
		line    string
		tag     classify.Tag
		payload string
	}{
		{"plain", "test slot_advance ... ok", classify.Plain, ""},
		{"warning", "Jan 01 WARN slow peer", classify.Warning, ""},
		{"error", "Jan 01 ERRO bad ballot", classify.Error, ""},
		{"critical", "Jan 01 CRIT node halted", classify.Critical, ""},
		{"critical beats error and warning", "CRIT ERRO WARN all three", classify.Critical, ""},
		{"error beats warning", "WARN then ERRO", classify.Error, ""},
		{"stat payload", "... (stats) cpu=12,mem=34", classify.Stat, "cpu=12,mem=34"},
		{"warning beats stat", "WARN (stats) a=1", classify.Warning, ""},
		{"marker at start of line", "WARN leading", classify.Warning, ""},
		{"false positive kept", "/var/ERRORS/log opened", classify.Error, ""},
		{"empty", "", classify.Plain, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, payload := m.Classify(tt.line)
			assert.Equal(t, tt.tag, tag)
			assert.Equal(t, tt.payload, payload)
		})
	}
}

func TestClassifyEmptyMarkerNeverMatches(t *testing.T) {
	m := classify.Markers{Warning: "WARN"}
	tag, _ := m.Classify("ERRO CRIT (stats) x")
	assert.Equal(t, classify.Plain, tag)
	assert.False(t, m.Completed("build and test completed"))
}

func TestCompleted(t *testing.T) {
	m := classify.DefaultMarkers()
	assert.True(t, m.Completed("INFO build and test completed in 3s"))
	assert.False(t, m.Completed("build and test started"))
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "critical", classify.Critical.String())
	assert.Equal(t, "stat", classify.Stat.String())
	assert.Equal(t, "unknown", classify.Tag(42).String())
}
