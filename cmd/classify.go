package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"text/tabwriter"

	"github.com/signalnine/grind/internal/classify"
	"github.com/spf13/cobra"
)

// transcriptPrefix matches the elapsed-time column of a saved transcript.
var transcriptPrefix = regexp.MustCompile(`^\s*\d+\.\d{2} :: `)

type classifyCounts struct {
	Lines     int
	ByTag     map[classify.Tag]int
	Completed int
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [file]",
		Short: "Count how the configured markers classify a log or transcript",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			var in io.Reader = os.Stdin
			if len(args) > 0 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening %s: %w", args[0], err)
				}
				defer f.Close()
				in = f
			}
			counts, err := countTags(in, cfg.Markers)
			if err != nil {
				return err
			}
			return writeCounts(cmd.OutOrStdout(), counts)
		},
	}
}

func countTags(r io.Reader, m classify.Markers) (*classifyCounts, error) {
	counts := &classifyCounts{ByTag: map[classify.Tag]int{}}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := transcriptPrefix.ReplaceAllString(sc.Text(), "")
		tag, _ := m.Classify(line)
		counts.Lines++
		counts.ByTag[tag]++
		if m.Completed(line) {
			counts.Completed++
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return counts, nil
}

func writeCounts(w io.Writer, c *classifyCounts) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TAG\tLINES")
	for _, tag := range []classify.Tag{classify.Plain, classify.Warning, classify.Error, classify.Critical, classify.Stat} {
		fmt.Fprintf(tw, "%s\t%d\n", tag, c.ByTag[tag])
	}
	fmt.Fprintf(tw, "completion\t%d\n", c.Completed)
	fmt.Fprintf(tw, "total\t%d\n", c.Lines)
	return tw.Flush()
}
