package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/ppiankov/rcvimpute/internal/model"
)

const (
	imputationsParquet = "imputations.parquet"
	matchesParquet     = "matches.parquet"
)

// ImputationRecord represents one (precinct, schedule) row for Parquet serialization
type ImputationRecord struct {
	Precinct string  `parquet:"precinct,dict"`
	First    string  `parquet:"first,dict"`
	Second   string  `parquet:"second,dict"`
	Third    string  `parquet:"third,dict"`
	Count    float64 `parquet:"count"`
}

// MatchRecord represents one ranked donor of a target precinct for Parquet serialization
type MatchRecord struct {
	Precinct   string  `parquet:"precinct,dict"`
	Rank       int32   `parquet:"rank"`
	City       string  `parquet:"city,dict"`
	Donor      string  `parquet:"donor"`
	Similarity float64 `parquet:"similarity"`
}

// ParquetStore writes imputations and matches as flat Parquet tables, with
// run metadata in run.json
type ParquetStore struct {
	dir string
}

// NewParquetStore creates a Parquet store rooted at dir
func NewParquetStore(dir string) *ParquetStore {
	return &ParquetStore{dir: dir}
}

// Write stores the run. Rows are sorted by precinct, then schedule or rank.
func (s *ParquetStore) Write(ctx context.Context, run *model.RunResult) error {
	var imputations []ImputationRecord
	for _, id := range run.Precincts() {
		table := run.Imputations[id]
		for _, sched := range sortedSchedules(table) {
			imputations = append(imputations, ImputationRecord{
				Precinct: string(id),
				First:    string(sched[0]),
				Second:   string(sched[1]),
				Third:    string(sched[2]),
				Count:    table[sched],
			})
		}
	}
	if err := writeParquetFile(s.dir, imputationsParquet, imputations); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var matches []MatchRecord
	for _, id := range matchPrecincts(run) {
		for rank, m := range run.Matches[id] {
			matches = append(matches, MatchRecord{
				Precinct:   string(id),
				Rank:       int32(rank + 1),
				City:       string(m.Donor.City),
				Donor:      string(m.Donor.ID),
				Similarity: m.Similarity,
			})
		}
	}
	if err := writeParquetFile(s.dir, matchesParquet, matches); err != nil {
		return err
	}

	return writeRunMeta(s.dir, run)
}

// Read loads a run written by Write
func (s *ParquetStore) Read(ctx context.Context) (*model.RunResult, error) {
	run, err := readRunMeta(s.dir)
	if err != nil {
		return nil, err
	}

	imputations, err := parquet.ReadFile[ImputationRecord](filepath.Join(s.dir, imputationsParquet))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", imputationsParquet, err)
	}
	for _, r := range imputations {
		id := model.PrecinctID(r.Precinct)
		table, ok := run.Imputations[id]
		if !ok {
			table = make(model.ImputedFrequencyTable)
			run.Imputations[id] = table
		}
		sched := model.NewRaceSchedule(model.Race(r.First), model.Race(r.Second), model.Race(r.Third))
		table[sched] += r.Count
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matches, err := parquet.ReadFile[MatchRecord](filepath.Join(s.dir, matchesParquet))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", matchesParquet, err)
	}
	// Rows were written in rank order
	for _, r := range matches {
		id := model.PrecinctID(r.Precinct)
		run.Matches[id] = append(run.Matches[id], model.Match{
			Donor:      model.DonorRef{City: model.DonorCity(r.City), ID: model.PrecinctID(r.Donor)},
			Similarity: r.Similarity,
		})
	}

	return run, nil
}

func writeParquetFile[T any](dir, name string, rows []T) error {
	return writeAtomic(dir, name, func(f *os.File) error {
		pw := parquet.NewGenericWriter[T](f, parquet.Compression(&parquet.Zstd))
		if len(rows) > 0 {
			if _, err := pw.Write(rows); err != nil {
				_ = pw.Close()
				return err
			}
		}
		return pw.Close()
	})
}
