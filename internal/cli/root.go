package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/rcvimpute/internal/logging"
	"github.com/ppiankov/rcvimpute/internal/model"
)

// version is set at build time with -ldflags "-X .../internal/cli.version=..."
var version = "v0.1.0"

var (
	cfgFile   string
	verbose   bool
	logFormat string
	logLevel  string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rcvimpute",
	Short: "rcvimpute - Ranked-choice ballot imputation by voter race",
	Long: `rcvimpute estimates, for each precinct of a city whose ranked-choice
ballots carry no voter race, how many ballots followed each race schedule
(the races of the 1st, 2nd and 3rd choice candidates).

It borrows observed schedules from precincts in donor cities whose ballots do
record race, choosing donors by demographic similarity and weighting them by
it, then scales each estimate to the precinct's voting-age population.

Estimates are similarity-weighted borrowing, not a statistical model.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of rcvimpute.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rcvimpute %s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.rcvimpute/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging, per-precinct warnings)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json (overrides log.format)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log.level)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(home + "/.rcvimpute")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match RCVIMPUTE_*, with nested keys
	// joined by underscores (RCVIMPUTE_OUTPUT_FORMAT)
	viper.SetEnvPrefix("RCVIMPUTE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig layers the config file and environment over the defaults.
// Lists replace their defaults rather than merging element by element.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()

	if viper.IsSet("donors") {
		cfg.Donors = nil
	}
	if viper.IsSet("vocabulary.labels") {
		cfg.Vocabulary.Labels = nil
	}
	if viper.IsSet("vocabulary.synonyms") {
		cfg.Vocabulary.Synonyms = nil
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the zap logger for a command. Logs go to stderr so
// stdout stays clean for reports.
func newLogger(cfg *model.Config, counts *logging.Counts) (*zap.Logger, error) {
	lc := logging.DefaultConfig()
	if cfg.Log.Format != "" {
		lc.Format = cfg.Log.Format
	}
	if cfg.Log.Level != "" {
		lc.Level = cfg.Log.Level
	}
	lc.Counts = counts

	logger, err := logging.NewLogger(lc)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}
