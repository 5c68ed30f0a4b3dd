package impute

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/rcvimpute/internal/model"
)

var (
	www = model.NewRaceSchedule(model.RaceWhite, model.RaceWhite, model.RaceWhite)
	bwa = model.NewRaceSchedule(model.RaceBlack, model.RaceWhite, model.RaceAsian)
	hnn = model.NewRaceSchedule(model.RaceHispanic, model.RaceNone, model.RaceNone)
)

func ref(city, id string) model.DonorRef {
	return model.DonorRef{City: model.DonorCity(city), ID: model.PrecinctID(id)}
}

// exampleTables builds D1 = {www:3, bwa:1} and D2 = {www:1}
func exampleTables() map[model.DonorCity]*model.BallotTable {
	cam := model.NewBallotTable("cambridge")
	cam.Record("D1", www, 3)
	cam.Record("D1", bwa, 1)

	mpls := model.NewBallotTable("minneapolis")
	mpls.Record("D2", www, 1)

	return map[model.DonorCity]*model.BallotTable{
		"cambridge":   cam,
		"minneapolis": mpls,
	}
}

func TestEngine_WorkedExample(t *testing.T) {
	e := NewEngine(exampleTables())

	res, err := e.Impute(model.MatchList{
		{Donor: ref("cambridge", "D1"), Similarity: 0.8},
		{Donor: ref("minneapolis", "D2"), Similarity: 0.2},
	}, 100)
	require.NoError(t, err)

	assert.InDelta(t, 3.4, res.RawTotal, 1e-12)
	assert.Equal(t, 2, res.Used)
	assert.Empty(t, res.Skipped)
	assert.InDelta(t, 2.6/3.4*100, res.Table[www], 1e-9)
	assert.InDelta(t, 0.8/3.4*100, res.Table[bwa], 1e-9)
	assert.InDelta(t, 76.47, res.Table[www], 0.01)
	assert.InDelta(t, 23.53, res.Table[bwa], 0.01)
	assert.InDelta(t, 100, res.Table.Total(), 1e-9)
}

func TestEngine_NormalizationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	schedules := []model.RaceSchedule{www, bwa, hnn}

	cam := model.NewBallotTable("cambridge")
	for i := 0; i < 20; i++ {
		id := model.PrecinctID(rune('a' + i))
		for _, s := range schedules {
			cam.Record(id, s, rng.Intn(40))
		}
	}
	e := NewEngine(map[model.DonorCity]*model.BallotTable{"cambridge": cam})

	for trial := 0; trial < 50; trial++ {
		var matches model.MatchList
		for i := 0; i < 5; i++ {
			matches = append(matches, model.Match{
				Donor:      ref("cambridge", string(rune('a'+rng.Intn(20)))),
				Similarity: 0.05 + rng.Float64()*0.95,
			})
		}
		vap := float64(rng.Intn(5000) + 1)

		res, err := e.Impute(matches, vap)
		if err != nil {
			assert.ErrorIs(t, err, ErrZeroTotal)
			continue
		}
		assert.InEpsilon(t, vap, res.Table.Total(), 1e-6)
		for _, v := range res.Table {
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}
}

func TestEngine_OrderIndependent(t *testing.T) {
	e := NewEngine(exampleTables())
	matches := model.MatchList{
		{Donor: ref("cambridge", "D1"), Similarity: 0.8},
		{Donor: ref("minneapolis", "D2"), Similarity: 0.2},
		{Donor: ref("cambridge", "D1"), Similarity: 0.37},
		{Donor: ref("minneapolis", "D2"), Similarity: 0.91},
	}

	base, err := e.Impute(matches, 250)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 20; i++ {
		shuffled := append(model.MatchList(nil), matches...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := e.Impute(shuffled, 250)
		require.NoError(t, err)
		require.Len(t, got.Table, len(base.Table))
		for k, v := range base.Table {
			assert.InDelta(t, v, got.Table[k], 1e-9)
		}
	}
}

func TestEngine_ZeroTotal(t *testing.T) {
	tables := exampleTables()
	empty := model.NewBallotTable("oakland")
	tables["oakland"] = empty
	e := NewEngine(tables)

	tests := []struct {
		name    string
		matches model.MatchList
	}{
		{"no matches", nil},
		{"unknown donors", model.MatchList{{Donor: ref("cambridge", "nope"), Similarity: 0.9}}},
		{"empty donor table", model.MatchList{{Donor: ref("oakland", "X"), Similarity: 0.9}}},
		{"zero similarity", model.MatchList{{Donor: ref("cambridge", "D1"), Similarity: 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Impute(tt.matches, 100)
			assert.ErrorIs(t, err, ErrZeroTotal)
			require.NotNil(t, res)
			assert.Nil(t, res.Table)
		})
	}
}

func TestEngine_SkipsMissingDonors(t *testing.T) {
	e := NewEngine(exampleTables())

	res, err := e.Impute(model.MatchList{
		{Donor: ref("cambridge", "missing"), Similarity: 0.99},
		{Donor: ref("nowhere", "D1"), Similarity: 0.99},
		{Donor: ref("minneapolis", "D2"), Similarity: 0.5},
	}, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Used)
	assert.Equal(t, []model.DonorRef{ref("cambridge", "missing"), ref("nowhere", "D1")}, res.Skipped)
	assert.InDelta(t, 10, res.Table[www], 1e-9)
	assert.Len(t, res.Table, 1)
}

func TestEngine_Aliases(t *testing.T) {
	cam := model.NewBallotTable("cambridge")
	cam.Record("3-2", hnn, 4)
	tables := map[model.DonorCity]*model.BallotTable{"cambridge": cam}

	without := NewEngine(tables)
	_, err := without.Impute(model.MatchList{{Donor: ref("cambridge", "3-2A"), Similarity: 1}}, 10)
	assert.ErrorIs(t, err, ErrZeroTotal)

	aliases := AliasesFromConfig([]model.DonorConfig{{
		City:    "cambridge",
		Aliases: []model.AliasConfig{{From: "3-2A", To: "3-2"}},
	}})
	with := NewEngine(tables, WithAliases(aliases))
	res, err := with.Impute(model.MatchList{{Donor: ref("cambridge", "3-2A"), Similarity: 1}}, 10)
	require.NoError(t, err)
	assert.InDelta(t, 10, res.Table[hnn], 1e-9)

	// Aliases are city-scoped
	assert.Equal(t, model.PrecinctID("3-2A"), aliases.Resolve(ref("minneapolis", "3-2A")))
}

func TestEngine_WeightExponent(t *testing.T) {
	matches := model.MatchList{
		{Donor: ref("cambridge", "D1"), Similarity: 0.8},
		{Donor: ref("minneapolis", "D2"), Similarity: 0.2},
	}

	linear, err := NewEngine(exampleTables(), WithWeightExponent(0)).Impute(matches, 100)
	require.NoError(t, err)
	assert.InDelta(t, 2.6/3.4*100, linear.Table[www], 1e-9, "non-positive exponent keeps the default")

	squared, err := NewEngine(exampleTables(), WithWeightExponent(2)).Impute(matches, 100)
	require.NoError(t, err)
	// www = 3*0.64 + 1*0.04 = 1.96, bwa = 0.64, total 2.6
	assert.InDelta(t, 1.96/2.6*100, squared.Table[www], 1e-9)
	assert.InDelta(t, 0.64/2.6*100, squared.Table[bwa], 1e-9)
}

func TestEngine_VAP(t *testing.T) {
	e := NewEngine(exampleTables())
	matches := model.MatchList{{Donor: ref("cambridge", "D1"), Similarity: 0.5}}

	_, err := e.Impute(matches, -1)
	assert.ErrorIs(t, err, ErrNegativeVAP)

	res, err := e.Impute(matches, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Table.Total())
	assert.Len(t, res.Table, 2)
}
