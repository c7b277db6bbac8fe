package stream_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/signalnine/grind/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan string) []string {
	t.Helper()
	var got []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, line)
		case <-timeout:
			t.Fatal("reader did not close channel")
		}
	}
}

func TestStartPreservesOrder(t *testing.T) {
	input := "one\ntwo\r\nthree\nunterminated"
	got := collect(t, stream.Start(context.Background(), strings.NewReader(input), 2))
	assert.Equal(t, []string{"one", "two", "three", "unterminated"}, got)
}

func TestStartLongLine(t *testing.T) {
	long := strings.Repeat("x", 1<<20)
	got := collect(t, stream.Start(context.Background(), strings.NewReader(long+"\nend\n"), 1))
	require.Len(t, got, 2)
	assert.Len(t, got[0], 1<<20)
	assert.Equal(t, "end", got[1])
}

type failingReader struct{ sent bool }

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, "partial\n"), nil
	}
	return 0, errors.New("broken pipe")
}

func TestStartClosesOnReadError(t *testing.T) {
	got := collect(t, stream.Start(context.Background(), &failingReader{}, 4))
	assert.Equal(t, []string{"partial"}, got)
}

func TestStartAbandonedOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())
	ch := stream.Start(ctx, pr, 1)

	go func() {
		_, _ = io.WriteString(pw, "a\nb\nc\n")
	}()
	// The reader fills the single slot and blocks sending "b".
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []string{"a"}, collect(t, ch))
}
