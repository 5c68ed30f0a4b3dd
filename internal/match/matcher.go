package match

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ppiankov/rcvimpute/internal/model"
)

var (
	ErrZeroVector        = errors.New("cosine similarity undefined for zero vector")
	ErrDimensionMismatch = errors.New("composition vectors differ in length")
	ErrInvalidLimit      = errors.New("donor limit must be positive")
	ErrDuplicateCity     = errors.New("donor city declared twice")
)

// TieBreak orders donors with equal similarity
type TieBreak int

const (
	// TieBreakStable keeps donor table row order. Row order comes from the
	// source file, so reordering the file can change which donors survive
	// the top-K cut when scores tie.
	TieBreakStable TieBreak = iota
	// TieBreakID orders tied donors by id, lexically
	TieBreakID
)

// ParseTieBreak maps a config value to a TieBreak
func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case model.TieBreakStable, "":
		return TieBreakStable, nil
	case model.TieBreakID:
		return TieBreakID, nil
	default:
		return 0, fmt.Errorf("unknown tie break %q", s)
	}
}

// Donor is one donor city's demographic table and its top-K limit
type Donor struct {
	City  model.DonorCity
	Limit int
	Table *model.DemographicTable
}

// donorPool holds a donor city's rows with precomputed norms
type donorPool struct {
	city  model.DonorCity
	limit int
	rows  []model.DemographicRow
	norms []float64
}

// Matcher pairs target precincts with their most similar donor precincts
type Matcher struct {
	pools       []donorPool
	dim         int // Shared length of every donor vector, 0 with no rows
	tieBreak    TieBreak
	fingerprint string
}

// Option configures a Matcher
type Option func(*Matcher)

// WithTieBreak sets how equal similarity scores are ordered
func WithTieBreak(tb TieBreak) Option {
	return func(m *Matcher) {
		m.tieBreak = tb
	}
}

// NewMatcher creates a matcher over donors, kept in the given order.
// Donor rows with a zero vector, or whose length differs from the first
// donor row's, fail here rather than on every target precinct later.
func NewMatcher(donors []Donor, opts ...Option) (*Matcher, error) {
	m := &Matcher{}
	for _, opt := range opts {
		opt(m)
	}

	seen := make(map[model.DonorCity]bool, len(donors))
	for _, d := range donors {
		if seen[d.City] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCity, d.City)
		}
		seen[d.City] = true
		if d.Limit <= 0 {
			return nil, fmt.Errorf("%w: %s has %d", ErrInvalidLimit, d.City, d.Limit)
		}

		pool := donorPool{city: d.City, limit: d.Limit}
		if d.Table != nil {
			pool.rows = d.Table.Rows()
		}
		pool.norms = make([]float64, len(pool.rows))
		for i, row := range pool.rows {
			if m.dim == 0 {
				m.dim = len(row.Composition)
			}
			if len(row.Composition) != m.dim {
				return nil, fmt.Errorf("donor %s/%s has %d components, want %d: %w",
					d.City, row.ID, len(row.Composition), m.dim, ErrDimensionMismatch)
			}
			n := norm(row.Composition)
			if n == 0 {
				return nil, fmt.Errorf("donor %s/%s: %w", d.City, row.ID, ErrZeroVector)
			}
			pool.norms[i] = n
		}
		m.pools = append(m.pools, pool)
	}

	m.fingerprint = m.computeFingerprint()
	return m, nil
}

// Dimension returns the length of the donor vectors, or 0 when every donor
// table is empty
func (m *Matcher) Dimension() int {
	return m.dim
}

// Cities returns the donor cities in concatenation order
func (m *Matcher) Cities() []model.DonorCity {
	cities := make([]model.DonorCity, len(m.pools))
	for i, p := range m.pools {
		cities[i] = p.city
	}
	return cities
}

// EmptyCities returns donor cities whose tables have no rows
func (m *Matcher) EmptyCities() []model.DonorCity {
	var empty []model.DonorCity
	for _, p := range m.pools {
		if len(p.rows) == 0 {
			empty = append(empty, p.city)
		}
	}
	return empty
}

// Fingerprint identifies the donor data and settings this matcher was built from
func (m *Matcher) Fingerprint() string {
	return m.fingerprint
}

// Match scores the target against every donor precinct and returns each
// city's top-K, concatenated in city order. Cities are never re-sorted
// against each other: every city contributes its full quota.
func (m *Matcher) Match(target model.CompositionVector) (model.MatchList, error) {
	targetNorm := norm(target)
	if targetNorm == 0 {
		return nil, fmt.Errorf("target: %w", ErrZeroVector)
	}

	var out model.MatchList
	for _, pool := range m.pools {
		candidates := make(model.MatchList, 0, len(pool.rows))
		for i, row := range pool.rows {
			if len(row.Composition) != len(target) {
				return nil, fmt.Errorf("donor %s/%s: %w (%d vs %d)",
					pool.city, row.ID, ErrDimensionMismatch, len(row.Composition), len(target))
			}
			sim := clamp(dot(target, row.Composition) / (targetNorm * pool.norms[i]))
			candidates = append(candidates, model.Match{
				Donor:      model.DonorRef{City: pool.city, ID: row.ID},
				Similarity: sim,
			})
		}

		m.sortCandidates(candidates)

		k := pool.limit
		if k > len(candidates) {
			k = len(candidates)
		}
		out = append(out, candidates[:k]...)
	}

	return out, nil
}

func (m *Matcher) sortCandidates(c model.MatchList) {
	if m.tieBreak == TieBreakID {
		sort.SliceStable(c, func(i, j int) bool {
			if c[i].Similarity != c[j].Similarity {
				return c[i].Similarity > c[j].Similarity
			}
			return c[i].Donor.ID < c[j].Donor.ID
		})
		return
	}
	sort.SliceStable(c, func(i, j int) bool {
		return c[i].Similarity > c[j].Similarity
	})
}

func (m *Matcher) computeFingerprint() string {
	h := sha256.New()
	buf := make([]byte, 8)
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf, uint64(v))
		h.Write(buf)
	}

	writeInt(int(m.tieBreak))
	for _, p := range m.pools {
		h.Write([]byte(p.city))
		h.Write([]byte{0})
		writeInt(p.limit)
		writeInt(len(p.rows))
		for _, row := range p.rows {
			h.Write([]byte(row.ID))
			h.Write([]byte{0})
			for _, x := range row.Composition {
				binary.LittleEndian.PutUint64(buf, math.Float64bits(x))
				h.Write(buf)
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CosineSimilarity returns 1 - cosine distance between a and b.
// It fails on a zero vector or mismatched lengths instead of returning NaN.
func CosineSimilarity(a, b model.CompositionVector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w (%d vs %d)", ErrDimensionMismatch, len(a), len(b))
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0, ErrZeroVector
	}
	return clamp(dot(a, b) / (na * nb)), nil
}

func dot(a, b model.CompositionVector) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v model.CompositionVector) float64 {
	return math.Sqrt(dot(v, v))
}

// clamp absorbs rounding that pushes identical directions past 1
func clamp(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}
