package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/rcvimpute/internal/model"
)

const (
	imputationsJSON = "imputations.json"
	matchesJSON     = "matches.json"
)

// JSONStore writes a run as three JSON documents in one directory
type JSONStore struct {
	dir string
}

// NewJSONStore creates a JSON store rooted at dir
func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{dir: dir}
}

// Write stores imputations keyed by precinct then schedule, match lists, and
// run metadata. run.json goes last so a reader never finds it beside stale
// data files.
func (s *JSONStore) Write(ctx context.Context, run *model.RunResult) error {
	if err := writeJSONFile(s.dir, imputationsJSON, run.Imputations); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	matches := make(map[model.PrecinctID][]matchRecord, len(run.Matches))
	for id, list := range run.Matches {
		recs := make([]matchRecord, len(list))
		for i, m := range list {
			recs[i] = matchRecord{City: m.Donor.City, ID: m.Donor.ID, Similarity: m.Similarity}
		}
		matches[id] = recs
	}
	if err := writeJSONFile(s.dir, matchesJSON, matches); err != nil {
		return err
	}

	return writeRunMeta(s.dir, run)
}

// Read loads a run written by Write
func (s *JSONStore) Read(ctx context.Context) (*model.RunResult, error) {
	run, err := readRunMeta(s.dir)
	if err != nil {
		return nil, err
	}

	if err := readJSONFile(filepath.Join(s.dir, imputationsJSON), &run.Imputations); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var matches map[model.PrecinctID][]matchRecord
	if err := readJSONFile(filepath.Join(s.dir, matchesJSON), &matches); err != nil {
		return nil, err
	}
	for id, recs := range matches {
		list := make(model.MatchList, len(recs))
		for i, r := range recs {
			list[i] = model.Match{Donor: model.DonorRef{City: r.City, ID: r.ID}, Similarity: r.Similarity}
		}
		run.Matches[id] = list
	}

	return run, nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
