package model

import (
	"sort"
	"time"
)

// ImputedFrequencyTable holds weighted ballot counts per schedule for a target precinct.
// After normalization the values sum to the precinct's VAP.
type ImputedFrequencyTable map[RaceSchedule]float64

// Total returns the sum of all weighted counts
func (t ImputedFrequencyTable) Total() float64 {
	total := 0.0
	for _, v := range t {
		total += v
	}
	return total
}

// ScheduleCount is one row of a sorted imputed table
type ScheduleCount struct {
	Schedule RaceSchedule `json:"schedule"`
	Count    float64      `json:"count"`
}

// Sorted returns the rows by descending count, then by schedule text
func (t ImputedFrequencyTable) Sorted() []ScheduleCount {
	rows := make([]ScheduleCount, 0, len(t))
	for s, c := range t {
		rows = append(rows, ScheduleCount{Schedule: s, Count: c})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Schedule.String() < rows[j].Schedule.String()
	})
	return rows
}

// WarningKind classifies a precinct-level problem
type WarningKind string

const (
	WarnMissingVAP     WarningKind = "missing_vap"      // Target precinct has no VAP value
	WarnInvalidVAP     WarningKind = "invalid_vap"      // Target precinct VAP is negative
	WarnZeroTotal      WarningKind = "zero_total"       // No matched donor contributed ballots
	WarnSkippedDonor   WarningKind = "skipped_donor"    // Donor id missing from its ballot table
	WarnEmptyDonorCity WarningKind = "empty_donor_city" // Donor city has no demographic rows
	WarnMatchFailed    WarningKind = "match_failed"     // Similarity could not be computed
)

// Warning is a non-fatal problem collected into the run report
type Warning struct {
	Precinct PrecinctID  `json:"precinct,omitempty"` // Empty for run-level warnings
	Kind     WarningKind `json:"kind"`
	Message  string      `json:"message"`
}

// PrecinctResult is the outcome for one target precinct
type PrecinctResult struct {
	Precinct PrecinctID            `json:"precinct"`
	Matches  MatchList             `json:"matches"`
	Imputed  ImputedFrequencyTable `json:"imputed,omitempty"` // Nil when excluded
	Excluded bool                  `json:"excluded"`
	Warnings []Warning             `json:"warnings,omitempty"`
}

// RunResult is everything the result store persists for a full run
type RunResult struct {
	RunID       string                               `json:"run_id"`
	TargetCity  string                               `json:"target_city"`
	DonorCities []DonorCity                          `json:"donor_cities"`
	StartedAt   time.Time                            `json:"started_at"`
	FinishedAt  time.Time                            `json:"finished_at"`
	Imputations map[PrecinctID]ImputedFrequencyTable `json:"-"`
	Matches     map[PrecinctID]MatchList             `json:"-"`
	Excluded    []PrecinctID                         `json:"excluded"`
	Warnings    []Warning                            `json:"warnings"`
}

// NewRunResult creates an empty run result
func NewRunResult(runID, targetCity string, donors []DonorCity) *RunResult {
	return &RunResult{
		RunID:       runID,
		TargetCity:  targetCity,
		DonorCities: donors,
		Imputations: make(map[PrecinctID]ImputedFrequencyTable),
		Matches:     make(map[PrecinctID]MatchList),
	}
}

// AddPrecinct folds one precinct's outcome into the run
func (r *RunResult) AddPrecinct(pr *PrecinctResult) {
	if pr.Matches != nil {
		r.Matches[pr.Precinct] = pr.Matches
	}
	if pr.Excluded {
		r.Excluded = append(r.Excluded, pr.Precinct)
	} else {
		r.Imputations[pr.Precinct] = pr.Imputed
	}
	r.Warnings = append(r.Warnings, pr.Warnings...)
}

// Precincts returns the imputed precinct ids in lexical order
func (r *RunResult) Precincts() []PrecinctID {
	ids := make([]PrecinctID, 0, len(r.Imputations))
	for id := range r.Imputations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Normalize sorts the excluded list and warnings so output is deterministic
// regardless of worker completion order.
func (r *RunResult) Normalize() {
	sort.Slice(r.Excluded, func(i, j int) bool { return r.Excluded[i] < r.Excluded[j] })
	sort.SliceStable(r.Warnings, func(i, j int) bool {
		if r.Warnings[i].Precinct != r.Warnings[j].Precinct {
			return r.Warnings[i].Precinct < r.Warnings[j].Precinct
		}
		return r.Warnings[i].Kind < r.Warnings[j].Kind
	})
}
