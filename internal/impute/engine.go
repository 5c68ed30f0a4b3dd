package impute

import (
	"errors"
	"fmt"
	"math"

	"github.com/ppiankov/rcvimpute/internal/model"
)

var (
	// ErrZeroTotal means no matched donor contributed any weighted ballots
	ErrZeroTotal = errors.New("accumulated weight is zero")
	// ErrNegativeVAP means the target population cannot be a normalization target
	ErrNegativeVAP = errors.New("VAP must not be negative")
)

// DefaultWeightExponent applies similarity weights linearly
const DefaultWeightExponent = 1.0

// Imputation is the outcome of imputing one target precinct
type Imputation struct {
	Table    model.ImputedFrequencyTable
	RawTotal float64          // Weighted ballot total before normalization
	Used     int              // Matches that resolved to a ballot table
	Skipped  []model.DonorRef // Matches with no ballot table under their resolved id
}

// Engine blends donor ballot distributions into target precinct estimates
type Engine struct {
	tables   map[model.DonorCity]*model.BallotTable
	aliases  AliasTable
	exponent float64
}

// Option configures an Engine
type Option func(*Engine)

// WithAliases sets the donor id alias table
func WithAliases(a AliasTable) Option {
	return func(e *Engine) {
		e.aliases = a
	}
}

// WithWeightExponent raises each similarity to the given power before weighting
func WithWeightExponent(p float64) Option {
	return func(e *Engine) {
		if p > 0 {
			e.exponent = p
		}
	}
}

// NewEngine creates an engine over the donor ballot tables. The tables are
// only read, so one engine may serve many goroutines.
func NewEngine(tables map[model.DonorCity]*model.BallotTable, opts ...Option) *Engine {
	e := &Engine{
		tables:   tables,
		aliases:  AliasTable{},
		exponent: DefaultWeightExponent,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Impute folds every match's weighted frequency table into a fresh
// accumulator and rescales it so the values sum to vap. Matches whose donor
// has no ballot table are skipped, not fatal. Returns ErrZeroTotal when
// nothing was accumulated; the caller should exclude the precinct.
func (e *Engine) Impute(matches model.MatchList, vap float64) (*Imputation, error) {
	if vap < 0 || math.IsNaN(vap) {
		return nil, fmt.Errorf("%w: %v", ErrNegativeVAP, vap)
	}

	acc := make(model.ImputedFrequencyTable)
	res := &Imputation{}

	for _, m := range matches {
		freq, ok := e.lookup(m.Donor)
		if !ok {
			res.Skipped = append(res.Skipped, m.Donor)
			continue
		}
		res.Used++

		w := e.weight(m.Similarity)
		for schedule, count := range freq {
			acc[schedule] += float64(count) * w
		}
	}

	total := acc.Total()
	res.RawTotal = total
	if total == 0 || math.IsNaN(total) {
		return res, ErrZeroTotal
	}

	scale := vap / total
	for k, v := range acc {
		acc[k] = v * scale
	}
	res.Table = acc

	return res, nil
}

func (e *Engine) lookup(ref model.DonorRef) (model.PreferenceFrequencyTable, bool) {
	tbl, ok := e.tables[ref.City]
	if !ok || tbl == nil {
		return nil, false
	}
	return tbl.Lookup(e.aliases.Resolve(ref))
}

func (e *Engine) weight(similarity float64) float64 {
	if e.exponent == 1 {
		return similarity
	}
	return math.Pow(similarity, e.exponent)
}
