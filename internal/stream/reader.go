// Package stream drains a child's output into a bounded line channel.
package stream

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// DefaultCapacity is the hand-off channel size used when none is given.
const DefaultCapacity = 4096

// Start reads complete lines from r on its own goroutine and sends them, in
// order, on the returned channel. The channel is closed when r reaches EOF
// or returns any other error. Cancelling ctx abandons the reader even when
// it is blocked on a full channel.
func Start(ctx context.Context, r io.Reader, capacity int) <-chan string {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	lines := make(chan string, capacity)
	go func() {
		defer close(lines)
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				select {
				case lines <- trimEOL(line):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return lines
}

func trimEOL(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}
