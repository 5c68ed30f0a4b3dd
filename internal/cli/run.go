package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/rcvimpute/internal/ingest"
	"github.com/ppiankov/rcvimpute/internal/logging"
	"github.com/ppiankov/rcvimpute/internal/model"
	"github.com/ppiankov/rcvimpute/internal/pipeline"
	"github.com/ppiankov/rcvimpute/internal/store"
	"github.com/ppiankov/rcvimpute/internal/worker"
)

var (
	workers        int
	outputDir      string
	outputFormat   string
	noCache        bool
	tieBreak       string
	weightExponent float64
	precinctsFile  string
	runTimeout     time.Duration
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Match and impute every target precinct",
	Long: `Run loads the target and donor tables, then for every target precinct:
- Scores it against each donor city's precincts by cosine similarity
- Keeps each donor city's top-K donors, city by city
- Blends the donors' ballot schedules weighted by similarity
- Scales the blend to the precinct's voting-age population

Results are written once, after every precinct has finished.

Example:
  rcvimpute run
  rcvimpute run --workers 8 --format parquet --output-dir ./results
  rcvimpute run --precincts subset.txt --no-cache`,
	Args: cobra.NoArgs,
	RunE: runImpute,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&workers, "workers", 0, "number of concurrent workers (overrides concurrency.workers)")
	runCmd.Flags().StringVar(&outputDir, "output-dir", "", "output directory (overrides output.dir)")
	runCmd.Flags().StringVar(&outputFormat, "format", "", "output format: json, parquet or sqlite (overrides output.format)")
	runCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the match cache")
	runCmd.Flags().StringVar(&tieBreak, "tie-break", "", "order of equally similar donors: stable or id (overrides matching.tie_break)")
	runCmd.Flags().Float64Var(&weightExponent, "weight-exponent", 0, "power applied to similarity weights (overrides imputation.weight_exponent)")
	runCmd.Flags().StringVar(&precinctsFile, "precincts", "", "file of target precinct ids to impute (one per line)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Minute, "total timeout for the run")
}

// applyRunFlags overrides config values with flags the user set
func applyRunFlags(cmd *cobra.Command, cfg *model.Config) {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Concurrency.Workers = workers
	}
	if flags.Changed("output-dir") {
		cfg.Output.Dir = outputDir
	}
	if flags.Changed("format") {
		cfg.Output.Format = outputFormat
	}
	if flags.Changed("no-cache") {
		cfg.Cache.Enabled = !noCache
	}
	if flags.Changed("tie-break") {
		cfg.Matching.TieBreak = tieBreak
	}
	if flags.Changed("weight-exponent") {
		cfg.Imputation.WeightExponent = weightExponent
	}
}

func runImpute(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := model.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	counts := &logging.Counts{}
	logger, err := newLogger(cfg, counts)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	var ids []model.PrecinctID
	if precinctsFile != "" {
		if ids, err = worker.ReadPrecinctIDs(precinctsFile); err != nil {
			return fmt.Errorf("read precinct list: %w", err)
		}
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  rcvimpute Run\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Target:       %s (%s)\n", cfg.Target.City, cfg.Target.Demographics.Path)
	for _, d := range cfg.Donors {
		fmt.Fprintf(os.Stderr, "  Donor:        %s (top %d)\n", d.City, d.Limit)
	}
	fmt.Fprintf(os.Stderr, "  Tie break:    %s\n", cfg.Matching.TieBreak)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Cache:        %v\n", cfg.Cache.Enabled)
	fmt.Fprintf(os.Stderr, "  Output:       %s (%s)\n", cfg.Output.Dir, cfg.Output.Format)
	if len(ids) > 0 {
		fmt.Fprintf(os.Stderr, "  Precincts:    %d listed in %s\n", len(ids), precinctsFile)
	}
	fmt.Fprintf(os.Stderr, "\n")

	fmt.Fprintf(os.Stderr, "⚙️  Loading tables...\n")
	data, err := ingest.LoadDataset(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("load tables: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Loaded %d target precincts\n", data.Target.Len())
	for _, city := range cfg.DonorCities() {
		fmt.Fprintf(os.Stderr, "✓ Loaded %s: %d demographic rows, %d ballots in %d precincts\n",
			city, data.Demographics[city].Len(), data.Ballots[city].Ballots(), data.Ballots[city].Precincts())
	}
	fmt.Fprintf(os.Stderr, "\n")

	p, err := pipeline.New(cfg, data, logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "⚙️  Imputing with %d workers...\n", cfg.Concurrency.Workers)
	run, err := p.Run(ctx, ids)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if verbose {
		for _, w := range run.Warnings {
			if w.Precinct == "" {
				fmt.Fprintf(os.Stderr, "✗ %s: %s\n", w.Kind, w.Message)
				continue
			}
			fmt.Fprintf(os.Stderr, "✗ %s %s: %s\n", w.Precinct, w.Kind, w.Message)
		}
	}

	s, err := store.New(cfg.Output.Format, cfg.Output.Dir)
	if err != nil {
		return err
	}
	if err := s.Write(ctx, run); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	logger.Info("results written",
		zap.String("dir", cfg.Output.Dir),
		zap.String("format", cfg.Output.Format),
	)

	hits, misses := p.CacheStats()

	// Summary
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Run Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Run ID:     %s\n", run.RunID)
	fmt.Fprintf(os.Stderr, "  Imputed:    %d precincts\n", len(run.Imputations))
	fmt.Fprintf(os.Stderr, "  Excluded:   %d\n", len(run.Excluded))
	fmt.Fprintf(os.Stderr, "  Warnings:   %d (%d logged warnings, %d errors)\n", len(run.Warnings), counts.Warnings(), counts.Errors())
	if cfg.Cache.Enabled {
		fmt.Fprintf(os.Stderr, "  Cache:      %d hits, %d misses\n", hits, misses)
	}
	fmt.Fprintf(os.Stderr, "  Elapsed:    %v\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "  Output:     %s\n", cfg.Output.Dir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}
