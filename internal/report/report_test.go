package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/rcvimpute/internal/model"
)

var (
	wbn = model.NewRaceSchedule(model.RaceWhite, model.RaceBlack, model.RaceNone)
	bww = model.NewRaceSchedule(model.RaceBlack, model.RaceWhite, model.RaceWhite)
	hnn = model.NewRaceSchedule(model.RaceHispanic, model.RaceNone, model.RaceNone)
	mnn = model.NewRaceSchedule("martian", model.RaceNone, model.RaceNone)
)

func sampleRun() *model.RunResult {
	run := model.NewRunResult("r1", "chicago", []model.DonorCity{"cambridge"})
	run.Imputations["1-1"] = model.ImputedFrequencyTable{wbn: 60, bww: 40}
	run.Imputations["1-2"] = model.ImputedFrequencyTable{wbn: 10, hnn: 20, mnn: 1}
	run.Excluded = []model.PrecinctID{"1-3"}
	run.Warnings = []model.Warning{
		{Precinct: "1-3", Kind: model.WarnZeroTotal},
		{Precinct: "1-3", Kind: model.WarnSkippedDonor},
		{Precinct: "1-4", Kind: model.WarnSkippedDonor},
	}
	return run
}

func TestSummarize_TopNBounds(t *testing.T) {
	run := sampleRun()

	assert.Empty(t, Summarize(run, model.DefaultRaces(), -1).TopSchedules)
	assert.Empty(t, Summarize(run, model.DefaultRaces(), 0).TopSchedules)
	assert.Len(t, Summarize(run, model.DefaultRaces(), 100).TopSchedules, 4)
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleRun(), model.DefaultRaces(), 2)

	assert.Equal(t, 2, s.Precincts)
	assert.Equal(t, 1, s.Excluded)
	assert.Equal(t, 4, s.DistinctSchedules)
	assert.InDelta(t, 131, s.TotalBallots, 1e-9)

	byRace := make(map[model.Race]RaceTotals)
	var order []model.Race
	for _, r := range s.Races {
		byRace[r.Race] = r
		order = append(order, r.Race)
	}
	assert.Equal(t, []model.Race{
		model.RaceWhite, model.RaceBlack, model.RaceHispanic, model.RaceAsian, model.RaceUndetermined, "martian",
	}, order, "configured races first, unknown labels last, none never a row")

	white := byRace[model.RaceWhite]
	assert.Equal(t, [3]float64{70, 40, 40}, white.ByPosition)
	assert.InDelta(t, 110, white.InTop3, 1e-9, "bww counts once though white appears twice")

	black := byRace[model.RaceBlack]
	assert.Equal(t, [3]float64{40, 70, 0}, black.ByPosition)
	assert.InDelta(t, 110, black.InTop3, 1e-9)

	assert.InDelta(t, 20, byRace[model.RaceHispanic].InTop3, 1e-9)
	assert.Zero(t, byRace[model.RaceAsian].InTop3)

	require.Len(t, s.TopSchedules, 2)
	assert.Equal(t, wbn, s.TopSchedules[0].Schedule)
	assert.InDelta(t, 70, s.TopSchedules[0].Count, 1e-9)
	assert.Equal(t, bww, s.TopSchedules[1].Schedule)

	assert.Equal(t, map[model.WarningKind]int{model.WarnZeroTotal: 1, model.WarnSkippedDonor: 2}, s.WarningsByKind)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, Summarize(sampleRun(), model.DefaultRaces(), 3)))

	out := buf.String()
	assert.Contains(t, out, "Distinct schedules:")
	assert.Contains(t, out, "IN TOP 3")
	assert.Contains(t, out, "white|black|none")
	assert.Contains(t, out, "skipped_donor")

	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "white ") {
			assert.Contains(t, line, "70.00")
			assert.Contains(t, line, "110.00")
		}
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, Summarize(sampleRun(), model.DefaultRaces(), 1)))

	var decoded struct {
		DistinctSchedules int `json:"distinct_schedules"`
		TopSchedules      []struct {
			Schedule string  `json:"schedule"`
			Count    float64 `json:"count"`
		} `json:"top_schedules"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 4, decoded.DistinctSchedules)
	require.Len(t, decoded.TopSchedules, 1)
	assert.Equal(t, "white|black|none", decoded.TopSchedules[0].Schedule)
}

func TestWritePrecinct(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePrecinct(&buf, &model.PrecinctResult{
		Precinct: "1-1",
		Matches:  model.MatchList{{Donor: model.DonorRef{City: "cambridge", ID: "3-5"}, Similarity: 0.75}},
		Imputed:  model.ImputedFrequencyTable{wbn: 3, hnn: 1},
	}))
	out := buf.String()
	assert.Contains(t, out, "cambridge")
	assert.Contains(t, out, "0.750000")
	assert.Less(t, strings.Index(out, "white|black|none"), strings.Index(out, "hispanic|none|none"), "sorted by count")

	buf.Reset()
	require.NoError(t, WritePrecinct(&buf, &model.PrecinctResult{
		Precinct: "1-9",
		Excluded: true,
		Warnings: []model.Warning{{Precinct: "1-9", Kind: model.WarnZeroTotal, Message: "no ballots"}},
	}))
	assert.Contains(t, buf.String(), "Excluded")
	assert.Contains(t, buf.String(), "zero_total")
}
