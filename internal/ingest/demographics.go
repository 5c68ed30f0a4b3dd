package ingest

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/ppiankov/rcvimpute/internal/model"
)

// DemographicStats counts what a demographic load kept and dropped
type DemographicStats struct {
	Rows       int // Data rows read
	Kept       int
	Missing    int // Dropped: a composition value was missing or unparseable
	AllZero    int // Dropped: every composition value was zero
	MissingVAP int // Kept, but no VAP value
}

// LoadDemographics reads a precinct composition CSV into a table. Rows with
// missing values or an all-zero composition never reach the table.
func LoadDemographics(city string, src model.DemographicSource) (*model.DemographicTable, DemographicStats, error) {
	var stats DemographicStats

	f, err := openCSV(src.Path, ',')
	if err != nil {
		return nil, stats, err
	}
	defer func() { _ = f.Close() }()

	idCol := 0
	if src.IDColumn != "" {
		if idCol, err = f.column(src.IDColumn); err != nil {
			return nil, stats, fmt.Errorf("%s: %w", src.Path, err)
		}
	}

	names := src.Columns
	if len(names) == 0 {
		names = model.DefaultCompositionColumns
	}
	compCols := make([]int, len(names))
	for i, name := range names {
		if compCols[i], err = f.column(name); err != nil {
			return nil, stats, fmt.Errorf("%s: %w", src.Path, err)
		}
	}

	vapCol := -1
	if src.VAPColumn != "" {
		if vapCol, err = f.column(src.VAPColumn); err != nil {
			return nil, stats, fmt.Errorf("%s: %w", src.Path, err)
		}
	}

	table := model.NewDemographicTable(city)
	for {
		rec, err := f.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read %s: %w", src.Path, err)
		}
		stats.Rows++

		id := cell(rec, idCol)
		if id == "" {
			stats.Missing++
			continue
		}

		comp, ok := parseComposition(rec, compCols)
		if !ok {
			stats.Missing++
			continue
		}
		if comp.IsZero() {
			stats.AllZero++
			continue
		}

		row := model.DemographicRow{ID: model.PrecinctID(id), Composition: comp}
		if vapCol >= 0 {
			if vap, err := strconv.ParseFloat(cell(rec, vapCol), 64); err == nil {
				row.VAP = vap
				row.HasVAP = true
			}
		}
		if !row.HasVAP {
			stats.MissingVAP++
		}

		if err := table.Add(row); err != nil {
			return nil, stats, fmt.Errorf("%s line %d: %w", src.Path, f.line(), err)
		}
		stats.Kept++
	}

	return table, stats, nil
}

func parseComposition(rec []string, cols []int) (model.CompositionVector, bool) {
	comp := make(model.CompositionVector, len(cols))
	for i, c := range cols {
		s := cell(rec, c)
		if isMissing(s) {
			return nil, false
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return nil, false
		}
		comp[i] = v
	}
	return comp, true
}
