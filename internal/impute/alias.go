package impute

import "github.com/ppiankov/rcvimpute/internal/model"

// AliasTable folds donor ids into the canonical ids their ballot tables use,
// e.g. a sub-precinct folded into its parent.
type AliasTable map[model.DonorCity]map[model.PrecinctID]model.PrecinctID

// Add registers an alias for a city
func (a AliasTable) Add(city model.DonorCity, from, to model.PrecinctID) {
	m, ok := a[city]
	if !ok {
		m = make(map[model.PrecinctID]model.PrecinctID)
		a[city] = m
	}
	m[from] = to
}

// Resolve returns the canonical id for a donor, or the id unchanged.
// Aliases are not chained.
func (a AliasTable) Resolve(ref model.DonorRef) model.PrecinctID {
	if to, ok := a[ref.City][ref.ID]; ok {
		return to
	}
	return ref.ID
}

// AliasesFromConfig builds the alias table declared on the donors
func AliasesFromConfig(donors []model.DonorConfig) AliasTable {
	a := make(AliasTable)
	for _, d := range donors {
		for _, al := range d.Aliases {
			a.Add(d.City, al.From, al.To)
		}
	}
	return a
}
