package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rcvimpute/internal/ingest"
	"github.com/ppiankov/rcvimpute/internal/model"
	"github.com/ppiankov/rcvimpute/internal/pipeline"
	"github.com/ppiankov/rcvimpute/internal/report"
)

var explainJSON bool

// explainCmd represents the explain command
var explainCmd = &cobra.Command{
	Use:   "explain <precinct>",
	Short: "Show matches and imputed schedules for one target precinct",
	Long: `Explain matches and imputes a single target precinct and prints its
donor list (rank, city, donor, similarity), the imputed schedule counts and
any warnings. Nothing is written to the output directory.

Example:
  rcvimpute explain 1-1
  rcvimpute explain 24-13 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runExplain,
}

func init() {
	rootCmd.AddCommand(explainCmd)
	explainCmd.Flags().BoolVar(&explainJSON, "json", false, "print the precinct result as JSON")
}

func runExplain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := model.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	data, err := ingest.LoadDataset(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("load tables: %w", err)
	}

	p, err := pipeline.New(cfg, data, logger)
	if err != nil {
		return err
	}

	pr, err := p.Explain(ctx, model.PrecinctID(args[0]))
	if err != nil {
		return err
	}

	if explainJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(pr)
	}
	return report.WritePrecinct(os.Stdout, pr)
}
