package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/rcvimpute/internal/cache"
	"github.com/ppiankov/rcvimpute/internal/ingest"
	"github.com/ppiankov/rcvimpute/internal/match"
	"github.com/ppiankov/rcvimpute/internal/model"
	"github.com/ppiankov/rcvimpute/internal/store"
)

var (
	www = model.NewRaceSchedule(model.RaceWhite, model.RaceWhite, model.RaceWhite)
	bwa = model.NewRaceSchedule(model.RaceBlack, model.RaceWhite, model.RaceAsian)
)

func comp(xs ...float64) model.CompositionVector {
	v := make(model.CompositionVector, model.CompositionDims)
	copy(v, xs)
	return v
}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Donors = []model.DonorConfig{
		{City: "cambridge", Limit: 2},
		{City: "minneapolis", Limit: 1},
	}
	cfg.Concurrency.Workers = 1
	cfg.Cache.Enabled = false
	return cfg
}

// testDataset builds:
//
//	1-1 white-heavy, VAP 100
//	1-2 no VAP
//	1-3 same composition as 1-1, negative VAP
//	1-4 orthogonal to every donor, so nothing accumulates
func testDataset(t *testing.T) *ingest.Dataset {
	t.Helper()

	target := model.NewDemographicTable("chicago")
	require.NoError(t, target.Add(model.DemographicRow{ID: "1-1", Composition: comp(10), VAP: 100, HasVAP: true}))
	require.NoError(t, target.Add(model.DemographicRow{ID: "1-2", Composition: comp(0, 10)}))
	require.NoError(t, target.Add(model.DemographicRow{ID: "1-3", Composition: comp(10), VAP: -5, HasVAP: true}))
	require.NoError(t, target.Add(model.DemographicRow{ID: "1-4", Composition: comp(0, 0, 10), VAP: 50, HasVAP: true}))

	cam := model.NewDemographicTable("cambridge")
	require.NoError(t, cam.Add(model.DemographicRow{ID: "A", Composition: comp(10, 1)}))
	require.NoError(t, cam.Add(model.DemographicRow{ID: "B", Composition: comp(1, 10)}))

	mpls := model.NewDemographicTable("minneapolis")
	require.NoError(t, mpls.Add(model.DemographicRow{ID: "W1-P1", Composition: comp(1, 1)}))

	camBallots := model.NewBallotTable("cambridge")
	camBallots.Record("A", www, 3)
	camBallots.Record("B", bwa, 1)

	mplsBallots := model.NewBallotTable("minneapolis")
	mplsBallots.Record("W9-P9", www, 7)

	return &ingest.Dataset{
		Target:       target,
		Demographics: map[model.DonorCity]*model.DemographicTable{"cambridge": cam, "minneapolis": mpls},
		Ballots:      map[model.DonorCity]*model.BallotTable{"cambridge": camBallots, "minneapolis": mplsBallots},
	}
}

func warningKinds(ws []model.Warning) []model.WarningKind {
	var kinds []model.WarningKind
	for _, w := range ws {
		kinds = append(kinds, w.Kind)
	}
	return kinds
}

func TestPipeline_Run(t *testing.T) {
	p, err := New(testConfig(), testDataset(t), nil)
	require.NoError(t, err)

	run, err := p.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, "chicago", run.TargetCity)
	assert.Equal(t, []model.DonorCity{"cambridge", "minneapolis"}, run.DonorCities)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))

	require.Len(t, run.Imputations, 1)
	table := run.Imputations["1-1"]
	assert.InEpsilon(t, 100, table.Total(), 1e-6)

	simA := 10 / math.Sqrt(101)
	simB := 1 / math.Sqrt(101)
	assert.InDelta(t, 100*3*simA/(3*simA+simB), table[www], 1e-9)
	assert.InDelta(t, 100*simB/(3*simA+simB), table[bwa], 1e-9)

	assert.Equal(t, []model.PrecinctID{"1-2", "1-3", "1-4"}, run.Excluded)
	assert.Len(t, run.Matches, 4, "excluded precincts keep their match lists")
	for id, list := range run.Matches {
		assert.Len(t, list.ForCity("cambridge"), 2, id)
		assert.Len(t, list.ForCity("minneapolis"), 1, id)
	}

	byPrecinct := make(map[model.PrecinctID][]model.WarningKind)
	for _, w := range run.Warnings {
		byPrecinct[w.Precinct] = append(byPrecinct[w.Precinct], w.Kind)
	}
	assert.Equal(t, []model.WarningKind{model.WarnSkippedDonor}, byPrecinct["1-1"])
	assert.Equal(t, []model.WarningKind{model.WarnMissingVAP}, byPrecinct["1-2"])
	assert.Equal(t, []model.WarningKind{model.WarnInvalidVAP}, byPrecinct["1-3"])
	assert.Equal(t, []model.WarningKind{model.WarnSkippedDonor, model.WarnZeroTotal}, byPrecinct["1-4"])
}

func TestPipeline_RunSubset(t *testing.T) {
	p, err := New(testConfig(), testDataset(t), nil)
	require.NoError(t, err)

	run, err := p.Run(context.Background(), []model.PrecinctID{"1-1", "9-9"})
	require.NoError(t, err)
	assert.Len(t, run.Imputations, 1)
	assert.Len(t, run.Matches, 1)
	assert.Empty(t, run.Excluded)
}

func TestPipeline_EmptyDonorCity(t *testing.T) {
	cfg := testConfig()
	cfg.Donors = append(cfg.Donors, model.DonorConfig{City: "oakland", Limit: 3})

	data := testDataset(t)
	data.Demographics["oakland"] = model.NewDemographicTable("oakland")

	p, err := New(cfg, data, nil)
	require.NoError(t, err)

	run, err := p.Run(context.Background(), []model.PrecinctID{"1-1"})
	require.NoError(t, err)

	var runLevel []model.Warning
	for _, w := range run.Warnings {
		if w.Precinct == "" {
			runLevel = append(runLevel, w)
		}
	}
	assert.Equal(t, []model.WarningKind{model.WarnEmptyDonorCity, model.WarnEmptyDonorCity}, warningKinds(runLevel))
	assert.Len(t, run.Imputations, 1, "an empty donor city does not abort the batch")
}

func TestPipeline_Explain(t *testing.T) {
	p, err := New(testConfig(), testDataset(t), nil)
	require.NoError(t, err)

	pr, err := p.Explain(context.Background(), "1-1")
	require.NoError(t, err)
	assert.False(t, pr.Excluded)
	assert.Len(t, pr.Matches, 3)
	assert.Equal(t, model.DonorRef{City: "cambridge", ID: "A"}, pr.Matches[0].Donor)

	_, err = p.Explain(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownPrecinct)
}

func TestNew_TargetDimensionMismatch(t *testing.T) {
	data := testDataset(t)
	require.NoError(t, data.Target.Add(model.DemographicRow{ID: "9-9", Composition: model.CompositionVector{1, 2, 3}, VAP: 10, HasVAP: true}))

	_, err := New(testConfig(), data, nil)
	assert.ErrorIs(t, err, match.ErrDimensionMismatch)
	assert.ErrorContains(t, err, "9-9")
}

func TestPipeline_Cancelled(t *testing.T) {
	p, err := New(testConfig(), testDataset(t), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_Cache(t *testing.T) {
	p, err := New(testConfig(), testDataset(t), nil, WithCache(cache.NewMemoryCache[model.MatchList](time.Minute, time.Minute)))
	require.NoError(t, err)

	first, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	hits, misses := p.CacheStats()
	assert.Equal(t, int64(1), hits, "1-3 shares 1-1's composition")
	assert.Equal(t, int64(3), misses)

	second, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	hits, misses = p.CacheStats()
	assert.Equal(t, int64(5), hits)
	assert.Equal(t, int64(3), misses)

	if diff := cmp.Diff(first.Imputations, second.Imputations); diff != "" {
		t.Errorf("cached run differs (-first +second):\n%s", diff)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestPipeline_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	header := "precinct,NH_WHITE,NH_BLACK,NH_AMIN,NH_ASIAN,NH_NHPI,NH_OTHER,NH_2MORE,HISP,VAP\n"

	cfg := model.DefaultConfig()
	cfg.Target.Demographics.Path = writeFile(t, dir, "chicago.csv", header+
		"1-1,80,10,0,5,0,0,0,5,1000\n"+
		"1-2,5,80,0,5,0,0,0,10,400\n")
	cfg.Donors[0].Limit = 1
	cfg.Donors[0].Demographics = model.DemographicSource{Path: writeFile(t, dir, "camb.csv", header+
		"3-5,90,5,0,3,0,0,0,2,\n"+
		"3-2A,10,85,0,2,0,0,0,3,\n")}
	cfg.Donors[0].Ballots[0].Path = writeFile(t, dir, "camb-cvr.csv",
		"ID,1st Choice,2nd Choice,3rd Choice\n"+
			"0103051234,White,White,\n"+
			"0103051235,White,Black,\n"+
			"0103021236,Black,,\n")
	cfg.Donors[1].Limit = 1
	cfg.Donors[1].Demographics = model.DemographicSource{Path: writeFile(t, dir, "minn.csv", header+
		"W1-P1,70,20,0,5,0,0,0,5,\n")}
	cfg.Donors[1].Ballots[0].Path = writeFile(t, dir, "minn-cvr.csv",
		"Precinct,1st Choice_Race,2nd Choice_Race,3rd Choice_Race\n"+
			"MINNEAPOLIS W-1 P-01,Hispanic,Middle Eastern,White\n")
	cfg.Cache.Dir = filepath.Join(dir, "cache")
	cfg.Output.Dir = filepath.Join(dir, "out")
	require.NoError(t, model.ValidateConfig(cfg))

	ctx := context.Background()
	data, err := ingest.LoadDataset(ctx, cfg, nil)
	require.NoError(t, err)

	p, err := New(cfg, data, nil)
	require.NoError(t, err)

	run, err := p.Run(ctx, nil)
	require.NoError(t, err)
	require.Len(t, run.Imputations, 2)
	assert.Empty(t, run.Excluded)

	// 1-2 matches cambridge 3-2A, which the alias folds into 3-2
	assert.Equal(t, model.PrecinctID("3-2A"), run.Matches["1-2"][0].Donor.ID)
	bnn := model.NewRaceSchedule(model.RaceBlack, model.RaceNone, model.RaceNone)
	assert.Greater(t, run.Imputations["1-2"][bnn], 0.0)
	for id, table := range run.Imputations {
		row, _ := data.Target.Get(id)
		assert.InEpsilon(t, row.VAP, table.Total(), 1e-6, id)
	}

	s, err := store.New(cfg.Output.Format, cfg.Output.Dir)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, run))

	got, err := s.Read(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(run, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("stored run mismatch (-want +got):\n%s", diff)
	}
}
