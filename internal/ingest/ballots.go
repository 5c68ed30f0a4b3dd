package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ppiankov/rcvimpute/internal/model"
)

// BallotStats counts what a ballot load kept and dropped
type BallotStats struct {
	Rows        int // Data rows read
	Records     int // Rows recorded
	Ballots     int // Ballots recorded (rows weighted by count)
	NoTopChoice int // Dropped: first choice missing or outside the vocabulary
	BadPrecinct int // Dropped: precinct id could not be normalized
	BadCount    int // Dropped: count column unparseable or not positive
}

// Add accumulates another load's counts
func (s *BallotStats) Add(o BallotStats) {
	s.Rows += o.Rows
	s.Records += o.Records
	s.Ballots += o.Ballots
	s.NoTopChoice += o.NoTopChoice
	s.BadPrecinct += o.BadPrecinct
	s.BadCount += o.BadCount
}

// BallotLoader reads cast-vote records into per-precinct race schedules
type BallotLoader struct {
	vocab *Vocabulary
}

// NewBallotLoader creates a loader using vocab for label normalization
func NewBallotLoader(vocab *Vocabulary) *BallotLoader {
	return &BallotLoader{vocab: vocab}
}

// LoadInto adds one source's ballots to table. Sources for the same city
// accumulate.
func (l *BallotLoader) LoadInto(table *model.BallotTable, src model.BallotSource) (BallotStats, error) {
	var stats BallotStats

	if len(src.ChoiceColumns) != model.ScheduleLen {
		return stats, fmt.Errorf("%s: want %d choice columns, got %d", src.Path, model.ScheduleLen, len(src.ChoiceColumns))
	}

	normalizeID, err := NormalizerFor(src.IDFormat)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", src.Path, err)
	}

	var candidates map[string]string
	if src.CandidateRaces != "" {
		if candidates, err = LoadCandidateRaces(src.CandidateRaces); err != nil {
			return stats, err
		}
	}

	f, err := openCSV(src.Path, ',')
	if err != nil {
		return stats, err
	}
	defer func() { _ = f.Close() }()

	precinctCol, err := f.column(src.PrecinctColumn)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", src.Path, err)
	}
	choiceCols := make([]int, model.ScheduleLen)
	for i, name := range src.ChoiceColumns {
		if choiceCols[i], err = f.column(name); err != nil {
			return stats, fmt.Errorf("%s: %w", src.Path, err)
		}
	}
	countCol := -1
	if src.CountColumn != "" {
		if countCol, err = f.column(src.CountColumn); err != nil {
			return stats, fmt.Errorf("%s: %w", src.Path, err)
		}
	}

	for {
		rec, err := f.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read %s: %w", src.Path, err)
		}
		stats.Rows++

		schedule, ok := l.schedule(rec, choiceCols, candidates)
		if !ok {
			stats.NoTopChoice++
			continue
		}

		id, err := normalizeID(cell(rec, precinctCol))
		if err != nil {
			stats.BadPrecinct++
			continue
		}

		count := 1
		if countCol >= 0 {
			n, err := strconv.Atoi(cell(rec, countCol))
			if err != nil || n <= 0 {
				stats.BadCount++
				continue
			}
			count = n
		}

		table.Record(id, schedule, count)
		stats.Records++
		stats.Ballots += count
	}

	return stats, nil
}

// schedule maps the choice cells onto race labels. A missing first choice
// rejects the record; missing lower choices become RaceNone.
func (l *BallotLoader) schedule(rec []string, cols []int, candidates map[string]string) (model.RaceSchedule, bool) {
	var s model.RaceSchedule
	for pos, c := range cols {
		raw := cell(rec, c)
		if candidates != nil {
			raw = candidates[fold(raw)]
		}

		var race model.Race
		ok := false
		if !isMissing(raw) {
			race, ok = l.vocab.Normalize(raw)
		}
		if !ok {
			if pos == 0 {
				return s, false
			}
			race = model.RaceNone
		}
		s[pos] = race
	}
	return s, true
}

// LoadCandidateRaces reads a headerless tab-separated candidate -> race file.
// Candidate names are matched case-insensitively.
func LoadCandidateRaces(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	out := make(map[string]string)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if len(rec) < 2 {
			continue
		}
		out[fold(rec[0])] = rec[1]
	}
	return out, nil
}
