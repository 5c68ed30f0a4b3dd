package model

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

// Config validation errors
var (
	ErrNoTarget          = errors.New("target.demographics.path cannot be empty")
	ErrNoDonors          = errors.New("at least one donor city is required")
	ErrDuplicateDonor    = errors.New("donor cities must be unique")
	ErrInvalidLimit      = errors.New("donor limit must be positive")
	ErrInvalidTieBreak   = errors.New("matching.tie_break must be 'stable' or 'id'")
	ErrInvalidExponent   = errors.New("imputation.weight_exponent must be positive")
	ErrInvalidFormat     = errors.New("output.format must be 'json', 'parquet' or 'sqlite'")
	ErrInvalidWorkers    = errors.New("concurrency.workers must be positive")
	ErrInvalidIDFormat   = errors.New("id_format must be empty, 'cambridge' or 'minneapolis'")
	ErrMissingBallotCols = errors.New("ballot source needs precinct_column and three choice_columns")
	ErrNoCacheDir        = errors.New("cache.dir cannot be empty when the cache is enabled")
	ErrColumnMismatch    = errors.New("demographic sources must list the same number of columns")
)

// Config is the complete run configuration
type Config struct {
	Target      TargetConfig      `mapstructure:"target" yaml:"target"`
	Donors      []DonorConfig     `mapstructure:"donors" yaml:"donors"`
	Matching    MatchingConfig    `mapstructure:"matching" yaml:"matching"`
	Imputation  ImputationConfig  `mapstructure:"imputation" yaml:"imputation"`
	Vocabulary  VocabularyConfig  `mapstructure:"vocabulary" yaml:"vocabulary"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency" yaml:"concurrency"`
	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

// TargetConfig describes the city whose ballots lack race data
type TargetConfig struct {
	City         string            `mapstructure:"city" yaml:"city"`
	Demographics DemographicSource `mapstructure:"demographics" yaml:"demographics"`
}

// DonorConfig describes a city whose ballots record voter race
type DonorConfig struct {
	City         DonorCity         `mapstructure:"city" yaml:"city"`
	Limit        int               `mapstructure:"limit" yaml:"limit"` // Top-K matches kept from this city
	Demographics DemographicSource `mapstructure:"demographics" yaml:"demographics"`
	Ballots      []BallotSource    `mapstructure:"ballots" yaml:"ballots"`
	Aliases      []AliasConfig     `mapstructure:"aliases" yaml:"aliases,omitempty"`
}

// AliasConfig folds a donor id into the canonical id used by its ballot table.
// Kept as a list because viper lowercases map keys.
type AliasConfig struct {
	From PrecinctID `mapstructure:"from" yaml:"from"`
	To   PrecinctID `mapstructure:"to" yaml:"to"`
}

// DemographicSource locates a demographic CSV
type DemographicSource struct {
	Path      string   `mapstructure:"path" yaml:"path"`
	IDColumn  string   `mapstructure:"id_column" yaml:"id_column,omitempty"` // Defaults to the first column
	Columns   []string `mapstructure:"columns" yaml:"columns,omitempty"`     // Defaults to DefaultCompositionColumns
	VAPColumn string   `mapstructure:"vap_column" yaml:"vap_column,omitempty"`
}

// Dimension is the length of the composition vectors this source produces
func (s DemographicSource) Dimension() int {
	if len(s.Columns) > 0 {
		return len(s.Columns)
	}
	return len(DefaultCompositionColumns)
}

// BallotSource locates one cast-vote-record CSV for a donor city
type BallotSource struct {
	Path           string   `mapstructure:"path" yaml:"path"`
	PrecinctColumn string   `mapstructure:"precinct_column" yaml:"precinct_column"`
	ChoiceColumns  []string `mapstructure:"choice_columns" yaml:"choice_columns"`
	CountColumn    string   `mapstructure:"count_column" yaml:"count_column,omitempty"`       // Empty: one ballot per row
	CandidateRaces string   `mapstructure:"candidate_races" yaml:"candidate_races,omitempty"` // Tab-separated candidate -> race file
	IDFormat       string   `mapstructure:"id_format" yaml:"id_format,omitempty"`             // cambridge, minneapolis, or empty
}

// Tie-break modes for equal similarity scores
const (
	TieBreakStable = "stable" // Source table row order
	TieBreakID     = "id"     // Donor id, lexical
)

// MatchingConfig controls the precinct matcher
type MatchingConfig struct {
	TieBreak string `mapstructure:"tie_break" yaml:"tie_break"`
}

// ImputationConfig controls the imputation engine
type ImputationConfig struct {
	WeightExponent float64 `mapstructure:"weight_exponent" yaml:"weight_exponent"`
}

// VocabularyConfig defines the closed race-label vocabulary
type VocabularyConfig struct {
	Labels   []Race          `mapstructure:"labels" yaml:"labels"`
	Synonyms map[string]Race `mapstructure:"synonyms" yaml:"synonyms"`
}

// ConcurrencyConfig controls the worker pool
type ConcurrencyConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// CacheConfig controls the match-list cache
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Dir       string        `mapstructure:"dir" yaml:"dir"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
	MemoryTTL time.Duration `mapstructure:"memory_ttl" yaml:"memory_ttl"`
}

// Output formats for the result store
const (
	FormatJSON    = "json"
	FormatParquet = "parquet"
	FormatSQLite  = "sqlite"
)

// OutputConfig controls the result store
type OutputConfig struct {
	Dir    string `mapstructure:"dir" yaml:"dir"`
	Format string `mapstructure:"format" yaml:"format"`
}

// LogConfig controls logging
type LogConfig struct {
	Format           string        `mapstructure:"format" yaml:"format"`
	Level            string        `mapstructure:"level" yaml:"level"`
	ProgressInterval time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`
}

// Id formats understood by the ballot loader
const (
	IDFormatCambridge   = "cambridge"
	IDFormatMinneapolis = "minneapolis"
)

// DefaultConfig returns the configuration of the Chicago/Cambridge/Minneapolis run
func DefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			City: "chicago",
			Demographics: DemographicSource{
				Path:      "chicago_prec_demo.csv",
				VAPColumn: "VAP",
			},
		},
		Donors: []DonorConfig{
			{
				City:         "cambridge",
				Limit:        5,
				Demographics: DemographicSource{Path: "camb_prec_demo.csv"},
				Ballots: []BallotSource{
					{
						Path:           "cambridge-2015-cvr.csv",
						PrecinctColumn: "ID",
						ChoiceColumns:  []string{"1st Choice", "2nd Choice", "3rd Choice"},
						IDFormat:       IDFormatCambridge,
					},
				},
				Aliases: []AliasConfig{{From: "3-2A", To: "3-2"}},
			},
			{
				City:         "minneapolis",
				Limit:        15,
				Demographics: DemographicSource{Path: "minn_prec_demo.csv"},
				Ballots: []BallotSource{
					minneapolis2017("2017-mayor-cvr.csv"),
					{
						Path:           "2013-mayor-cvr.csv",
						PrecinctColumn: "PRECINCT",
						ChoiceColumns: []string{
							"1ST CHOICE MAYOR MINNEAPOLIS_Race",
							"2ND CHOICE MAYOR MINNEAPOLIS_Race",
							"3RD CHOICE MAYOR MINNEAPOLIS_Race",
						},
						IDFormat: IDFormatMinneapolis,
					},
					minneapolis2017("2017-ward-4-cvr.csv"),
					minneapolis2017("2017-ward-5-cvr.csv"),
					minneapolis2017("2017-ward-11-cvr.csv"),
				},
			},
		},
		Matching:   MatchingConfig{TieBreak: TieBreakStable},
		Imputation: ImputationConfig{WeightExponent: 1},
		Vocabulary: VocabularyConfig{
			Labels:   DefaultRaces(),
			Synonyms: map[string]Race{"middle eastern": RaceAsian},
		},
		Concurrency: ConcurrencyConfig{Workers: runtime.NumCPU()},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".rcvimpute-cache",
			TTL:       7 * 24 * time.Hour,
			MemoryTTL: time.Hour,
		},
		Output: OutputConfig{
			Dir:    "./rcvimpute-results",
			Format: FormatJSON,
		},
		Log: LogConfig{
			Format:           "console",
			Level:            "info",
			ProgressInterval: 2 * time.Second,
		},
	}
}

// minneapolis2017 is a 2017 Minneapolis CVR with race-coded choice columns
func minneapolis2017(path string) BallotSource {
	return BallotSource{
		Path:           path,
		PrecinctColumn: "Precinct",
		ChoiceColumns:  []string{"1st Choice_Race", "2nd Choice_Race", "3rd Choice_Race"},
		IDFormat:       IDFormatMinneapolis,
	}
}

// DonorCities returns the donor cities in declared order
func (c *Config) DonorCities() []DonorCity {
	cities := make([]DonorCity, len(c.Donors))
	for i, d := range c.Donors {
		cities[i] = d.City
	}
	return cities
}

// ValidateConfig validates the configuration and returns an error if invalid
func ValidateConfig(cfg *Config) error {
	if cfg.Target.Demographics.Path == "" {
		return ErrNoTarget
	}
	if len(cfg.Donors) == 0 {
		return ErrNoDonors
	}
	dim := cfg.Target.Demographics.Dimension()
	seen := make(map[DonorCity]bool, len(cfg.Donors))
	for _, d := range cfg.Donors {
		if n := d.Demographics.Dimension(); n != dim {
			return fmt.Errorf("%w: %s has %d, target has %d", ErrColumnMismatch, d.City, n, dim)
		}
		if seen[d.City] {
			return fmt.Errorf("%w: %s", ErrDuplicateDonor, d.City)
		}
		seen[d.City] = true
		if d.Limit <= 0 {
			return fmt.Errorf("%w: %s has %d", ErrInvalidLimit, d.City, d.Limit)
		}
		for _, b := range d.Ballots {
			if b.PrecinctColumn == "" || len(b.ChoiceColumns) != ScheduleLen {
				return fmt.Errorf("%w: %s", ErrMissingBallotCols, b.Path)
			}
			switch b.IDFormat {
			case "", IDFormatCambridge, IDFormatMinneapolis:
			default:
				return fmt.Errorf("%w: got %q", ErrInvalidIDFormat, b.IDFormat)
			}
		}
	}
	if cfg.Matching.TieBreak != TieBreakStable && cfg.Matching.TieBreak != TieBreakID {
		return ErrInvalidTieBreak
	}
	if cfg.Imputation.WeightExponent <= 0 {
		return ErrInvalidExponent
	}
	switch cfg.Output.Format {
	case FormatJSON, FormatParquet, FormatSQLite:
	default:
		return ErrInvalidFormat
	}
	if cfg.Concurrency.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if cfg.Cache.Enabled && cfg.Cache.Dir == "" {
		return ErrNoCacheDir
	}
	return nil
}
