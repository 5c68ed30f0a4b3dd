// Package store persists a finished run's imputations, match lists and
// warnings, and reads them back for reporting.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ppiankov/rcvimpute/internal/model"
)

// ErrNoRun is returned by Read when the location holds no stored run
var ErrNoRun = errors.New("no stored run")

// Store writes a run once, after every precinct has finished, and reads it back
type Store interface {
	Write(ctx context.Context, run *model.RunResult) error
	Read(ctx context.Context) (*model.RunResult, error)
}

// New returns the store for an output format rooted at dir
func New(format, dir string) (Store, error) {
	switch format {
	case model.FormatJSON, "":
		return NewJSONStore(dir), nil
	case model.FormatParquet:
		return NewParquetStore(dir), nil
	case model.FormatSQLite:
		return NewSQLiteStore(filepath.Join(dir, sqliteFile)), nil
	default:
		return nil, fmt.Errorf("%w: got %q", model.ErrInvalidFormat, format)
	}
}

// Detect picks the store matching the files found in dir. A results
// database wins over parquet files, which win over JSON.
func Detect(dir string) (Store, error) {
	if fileExists(filepath.Join(dir, sqliteFile)) {
		return NewSQLiteStore(filepath.Join(dir, sqliteFile)), nil
	}
	if fileExists(filepath.Join(dir, imputationsParquet)) {
		return NewParquetStore(dir), nil
	}
	if fileExists(filepath.Join(dir, runFile)) {
		return NewJSONStore(dir), nil
	}
	return nil, fmt.Errorf("%s: %w", dir, ErrNoRun)
}

const runFile = "run.json"

// matchRecord is one entry of a stored match list
type matchRecord struct {
	City       model.DonorCity  `json:"city"`
	ID         model.PrecinctID `json:"id"`
	Similarity float64          `json:"similarity"`
}

func writeRunMeta(dir string, run *model.RunResult) error {
	return writeJSONFile(dir, runFile, run)
}

// readRunMeta reads run.json. Imputations and matches are left empty for the
// caller to fill.
func readRunMeta(dir string) (*model.RunResult, error) {
	data, err := os.ReadFile(filepath.Join(dir, runFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoRun)
	}
	if err != nil {
		return nil, fmt.Errorf("read run metadata: %w", err)
	}

	run := model.NewRunResult("", "", nil)
	if err := json.Unmarshal(data, run); err != nil {
		return nil, fmt.Errorf("decode run metadata: %w", err)
	}
	return run, nil
}

// writeJSONFile writes v as indented JSON through a temp file and rename, so
// readers never see a half-written file.
func writeJSONFile(dir, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return writeAtomic(dir, name, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

func writeAtomic(dir, name string, write func(f *os.File) error) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// sortedSchedules returns a table's schedules in text order
func sortedSchedules(t model.ImputedFrequencyTable) []model.RaceSchedule {
	out := make([]model.RaceSchedule, 0, len(t))
	for s := range t {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// matchPrecincts returns the precincts with a match list in lexical order
func matchPrecincts(run *model.RunResult) []model.PrecinctID {
	ids := make([]model.PrecinctID, 0, len(run.Matches))
	for id := range run.Matches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
