package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rcvimpute/internal/report"
	"github.com/ppiankov/rcvimpute/internal/store"
)

var (
	summarizeFormat string
	summarizeJSON   bool
	summarizeTop    int
)

// summarizeCmd represents the summarize command
var summarizeCmd = &cobra.Command{
	Use:   "summarize [dir]",
	Short: "Summarize a stored run",
	Long: `Summarize reads a stored run (json, parquet or sqlite) and prints
city-wide totals: ballots by race and rank position, the most common
schedules, and warning counts by kind.

The store format is detected from the files in the directory unless
--format is given. The directory defaults to output.dir.

Example:
  rcvimpute summarize
  rcvimpute summarize ./results --top 20
  rcvimpute summarize ./results --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)

	summarizeCmd.Flags().StringVar(&summarizeFormat, "format", "", "store format: json, parquet or sqlite (default: detect)")
	summarizeCmd.Flags().BoolVar(&summarizeJSON, "json", false, "print the summary as JSON")
	summarizeCmd.Flags().IntVar(&summarizeTop, "top", 10, "number of most common schedules to list")
}

func runSummarize(cmd *cobra.Command, args []string) error {
	if summarizeTop < 0 {
		return fmt.Errorf("--top must not be negative, got %d", summarizeTop)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dir := cfg.Output.Dir
	if len(args) == 1 {
		dir = args[0]
	}

	var s store.Store
	if summarizeFormat != "" {
		s, err = store.New(summarizeFormat, dir)
	} else {
		s, err = store.Detect(dir)
	}
	if err != nil {
		return err
	}

	run, err := s.Read(context.Background())
	if err != nil {
		return fmt.Errorf("read run: %w", err)
	}

	summary := report.Summarize(run, cfg.Vocabulary.Labels, summarizeTop)
	if summarizeJSON {
		return report.WriteJSON(os.Stdout, summary)
	}
	return report.WriteText(os.Stdout, summary)
}
