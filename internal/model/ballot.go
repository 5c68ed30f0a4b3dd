package model

// PreferenceFrequencyTable counts observed ballots per race schedule in one precinct
type PreferenceFrequencyTable map[RaceSchedule]int

// Total returns the number of ballots in the table
func (t PreferenceFrequencyTable) Total() int {
	n := 0
	for _, c := range t {
		n += c
	}
	return n
}

// BallotTable maps a city's precincts to their preference frequencies
type BallotTable struct {
	City      string
	precincts map[PrecinctID]PreferenceFrequencyTable
}

// NewBallotTable creates an empty ballot table for a city
func NewBallotTable(city string) *BallotTable {
	return &BallotTable{
		City:      city,
		precincts: make(map[PrecinctID]PreferenceFrequencyTable),
	}
}

// Record adds count ballots with the given schedule to a precinct
func (t *BallotTable) Record(id PrecinctID, s RaceSchedule, count int) {
	if count <= 0 {
		return
	}
	freq, ok := t.precincts[id]
	if !ok {
		freq = make(PreferenceFrequencyTable)
		t.precincts[id] = freq
	}
	freq[s] += count
}

// Lookup returns the frequency table for a precinct
func (t *BallotTable) Lookup(id PrecinctID) (PreferenceFrequencyTable, bool) {
	freq, ok := t.precincts[id]
	return freq, ok
}

// Precincts returns the number of precincts with at least one ballot
func (t *BallotTable) Precincts() int {
	return len(t.precincts)
}

// Ballots returns the total ballot count across precincts
func (t *BallotTable) Ballots() int {
	n := 0
	for _, freq := range t.precincts {
		n += freq.Total()
	}
	return n
}
