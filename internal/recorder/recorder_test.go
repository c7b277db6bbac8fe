package recorder_test

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/signalnine/grind/internal/recorder"
	"github.com/signalnine/grind/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iteration(index uint64, lines ...string) *result.Iteration {
	it := result.NewIteration(index, time.Now())
	for i, l := range lines {
		it.Append(result.LogLine{Elapsed: float64(i), Raw: l})
	}
	return it
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRecordCompletedTracksExtremes(t *testing.T) {
	dir := t.TempDir()
	r := recorder.New(dir, zerolog.Nop())

	for i, d := range []int64{500, 200, 800, 200} {
		require.NoError(t, r.RecordCompleted(iteration(uint64(i), "line"), d))
	}

	fastest, ok := r.Fastest()
	require.True(t, ok)
	assert.Equal(t, int64(200), fastest.DurationMs)
	assert.Equal(t, uint64(3), fastest.Index, "a tie supersedes the earlier holder")

	worst, ok := r.Worst()
	require.True(t, ok)
	assert.Equal(t, int64(800), worst.DurationMs)
	assert.Equal(t, uint64(2), worst.Index)

	assert.Equal(t, []string{"max_2_800.out", "min_3_200.out"}, listDir(t, dir))
}

func TestFirstIterationIsBothExtremes(t *testing.T) {
	dir := t.TempDir()
	r := recorder.New(dir, zerolog.Nop())
	require.NoError(t, r.RecordCompleted(iteration(0, "only"), 1234))
	assert.Equal(t, []string{"max_0_1234.out", "min_0_1234.out"}, listDir(t, dir))
}

func TestTieReplacesFastestFile(t *testing.T) {
	dir := t.TempDir()
	r := recorder.New(dir, zerolog.Nop())
	require.NoError(t, r.RecordCompleted(iteration(0, "first"), 300))
	require.NoError(t, r.RecordCompleted(iteration(1, "second"), 900))
	old := filepath.Join(dir, "min_0_300.out")
	require.FileExists(t, old)

	require.NoError(t, r.RecordCompleted(iteration(2, "third"), 300))
	assert.NoFileExists(t, old)

	data, err := os.ReadFile(filepath.Join(dir, "min_2_300.out"))
	require.NoError(t, err)
	assert.Equal(t, " 0.00 :: third\n", string(data))
}

func TestRecordAbortedAlwaysWrites(t *testing.T) {
	dir := t.TempDir()
	r := recorder.New(dir, zerolog.Nop())
	require.NoError(t, r.RecordAborted(iteration(5, "a", "b"), result.CauseStalledOutput))
	require.NoError(t, r.RecordAborted(iteration(6), result.CauseIterationTimeout))

	assert.Equal(t, []string{"aborted_5_type_1.out", "aborted_6_type_3.out"}, listDir(t, dir))
	_, ok := r.Fastest()
	assert.False(t, ok, "aborted iterations never become extremes")
}

func TestWriteFailureStillTracksDuration(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")
	r := recorder.New(dir, zerolog.Nop())

	err := r.RecordCompleted(iteration(0, "x"), 100)
	assert.Error(t, err)
	fastest, ok := r.Fastest()
	require.True(t, ok)
	assert.Equal(t, int64(100), fastest.DurationMs)
	assert.Empty(t, fastest.Path)

	assert.Error(t, r.RecordAborted(iteration(1), result.CauseStalledOutput))
}
