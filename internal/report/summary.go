// Package report aggregates a stored run into city-wide totals.
package report

import (
	"sort"

	"github.com/ppiankov/rcvimpute/internal/model"
)

// Summary holds city-wide totals across every imputed precinct
type Summary struct {
	RunID             string                    `json:"run_id"`
	TargetCity        string                    `json:"target_city"`
	Precincts         int                       `json:"precincts"`
	Excluded          int                       `json:"excluded"`
	DistinctSchedules int                       `json:"distinct_schedules"`
	TotalBallots      float64                   `json:"total_ballots"`
	Races             []RaceTotals              `json:"races"`
	TopSchedules      []model.ScheduleCount     `json:"top_schedules"`
	WarningsByKind    map[model.WarningKind]int `json:"warnings_by_kind"`
}

// RaceTotals is one race's imputed ballot mass
type RaceTotals struct {
	Race model.Race `json:"race"`
	// ByPosition[i] sums ballots ranking this race at position i+1
	ByPosition [model.ScheduleLen]float64 `json:"by_position"`
	// InTop3 sums ballots ranking this race anywhere, each ballot counted once
	InTop3 float64 `json:"in_top3"`
}

// Summarize totals a run's imputations. races fixes the row order; labels
// found in the data but missing from races are appended in lexical order.
// topN limits TopSchedules; zero or negative keeps none.
func Summarize(run *model.RunResult, races []model.Race, topN int) *Summary {
	s := &Summary{
		RunID:          run.RunID,
		TargetCity:     run.TargetCity,
		Precincts:      len(run.Imputations),
		Excluded:       len(run.Excluded),
		WarningsByKind: make(map[model.WarningKind]int),
	}

	totals := make(model.ImputedFrequencyTable)
	for _, table := range run.Imputations {
		for sched, v := range table {
			totals[sched] += v
		}
	}
	s.DistinctSchedules = len(totals)
	s.TotalBallots = totals.Total()

	for _, race := range orderRaces(races, totals) {
		rt := RaceTotals{Race: race}
		for sched, v := range totals {
			for pos, r := range sched {
				if r == race {
					rt.ByPosition[pos] += v
				}
			}
			if sched.Contains(race) {
				rt.InTop3 += v
			}
		}
		s.Races = append(s.Races, rt)
	}

	sorted := totals.Sorted()
	topN = max(topN, 0)
	if topN < len(sorted) {
		sorted = sorted[:topN]
	}
	s.TopSchedules = sorted

	for _, w := range run.Warnings {
		s.WarningsByKind[w.Kind]++
	}
	return s
}

// orderRaces lists races first, then any other label seen in the data.
// The no-ranking label is never a race row.
func orderRaces(races []model.Race, totals model.ImputedFrequencyTable) []model.Race {
	seen := make(map[model.Race]bool)
	var out []model.Race
	for _, r := range races {
		if r == model.RaceNone || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}

	var extra []model.Race
	for sched := range totals {
		for _, r := range sched {
			if r == model.RaceNone || seen[r] {
				continue
			}
			seen[r] = true
			extra = append(extra, r)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}
