package model

// DonorCity names a city whose ballots record voter race
type DonorCity string

// DonorRef identifies a donor precinct across cities
type DonorRef struct {
	City DonorCity  `json:"city"`
	ID   PrecinctID `json:"id"`
}

func (r DonorRef) String() string {
	return string(r.City) + "/" + string(r.ID)
}

// Match pairs a donor precinct with its demographic similarity to a target
type Match struct {
	Donor      DonorRef `json:"donor"`
	Similarity float64  `json:"similarity"`
}

// MatchList is a target precinct's ranked donors: per-city top-K sub-lists,
// each in descending similarity, concatenated in the configured city order.
type MatchList []Match

// ForCity returns the sub-list contributed by one donor city
func (l MatchList) ForCity(city DonorCity) []Match {
	var out []Match
	for _, m := range l {
		if m.Donor.City == city {
			out = append(out, m)
		}
	}
	return out
}
