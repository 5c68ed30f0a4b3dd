package model

import "fmt"

// PrecinctID identifies a precinct within one city's tables.
// IDs are only unique per city; see DonorRef for the cross-city form.
type PrecinctID string

// CompositionDims is the number of race/ethnicity categories in a composition vector
const CompositionDims = 8

// DefaultCompositionColumns are the census columns, in vector order
var DefaultCompositionColumns = []string{
	"NH_WHITE", "NH_BLACK", "NH_AMIN", "NH_ASIAN", "NH_NHPI", "NH_OTHER", "NH_2MORE", "HISP",
}

// CompositionVector holds raw population counts per category.
// Counts are not normalized; cosine similarity is scale-invariant.
type CompositionVector []float64

// IsZero reports whether every component is zero
func (v CompositionVector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// DemographicRow is one precinct's entry in a DemographicTable
type DemographicRow struct {
	ID          PrecinctID
	Composition CompositionVector
	VAP         float64
	HasVAP      bool
}

// DemographicTable is a city's precinct composition table.
// Rows keep their source order, which is the basis of the stable tie-break.
type DemographicTable struct {
	City  string
	rows  []DemographicRow
	index map[PrecinctID]int
}

// NewDemographicTable creates an empty table for a city
func NewDemographicTable(city string) *DemographicTable {
	return &DemographicTable{
		City:  city,
		index: make(map[PrecinctID]int),
	}
}

// Add appends a row. All-zero vectors and duplicate ids are rejected.
func (t *DemographicTable) Add(row DemographicRow) error {
	if row.Composition.IsZero() {
		return fmt.Errorf("precinct %s: all-zero composition", row.ID)
	}
	if _, exists := t.index[row.ID]; exists {
		return fmt.Errorf("precinct %s: duplicate id in %s table", row.ID, t.City)
	}
	t.index[row.ID] = len(t.rows)
	t.rows = append(t.rows, row)
	return nil
}

// Rows returns the rows in source order. The slice must not be modified.
func (t *DemographicTable) Rows() []DemographicRow {
	return t.rows
}

// Get looks up a row by id
func (t *DemographicTable) Get(id PrecinctID) (DemographicRow, bool) {
	i, ok := t.index[id]
	if !ok {
		return DemographicRow{}, false
	}
	return t.rows[i], true
}

// Len returns the number of rows
func (t *DemographicTable) Len() int {
	return len(t.rows)
}
