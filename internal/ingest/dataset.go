package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/rcvimpute/internal/model"
)

// Dataset holds every table a run needs. It is read-only once loaded.
type Dataset struct {
	Target       *model.DemographicTable
	Demographics map[model.DonorCity]*model.DemographicTable
	Ballots      map[model.DonorCity]*model.BallotTable
}

// LoadDataset loads the target and all donor cities concurrently
func LoadDataset(ctx context.Context, cfg *model.Config, logger *zap.Logger) (*Dataset, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	vocab := VocabularyFromConfig(cfg.Vocabulary)
	loader := NewBallotLoader(vocab)

	demos := make([]*model.DemographicTable, len(cfg.Donors))
	ballots := make([]*model.BallotTable, len(cfg.Donors))
	var target *model.DemographicTable

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tbl, stats, err := LoadDemographics(cfg.Target.City, cfg.Target.Demographics)
		if err != nil {
			return fmt.Errorf("load target %s: %w", cfg.Target.City, err)
		}
		logDemographics(logger, cfg.Target.City, stats)
		target = tbl
		return nil
	})

	for i, d := range cfg.Donors {
		g.Go(func() error {
			tbl, stats, err := LoadDemographics(string(d.City), d.Demographics)
			if err != nil {
				return fmt.Errorf("load donor %s demographics: %w", d.City, err)
			}
			logDemographics(logger, string(d.City), stats)
			demos[i] = tbl
			return nil
		})

		g.Go(func() error {
			tbl := model.NewBallotTable(string(d.City))
			var total BallotStats
			for _, src := range d.Ballots {
				if err := ctx.Err(); err != nil {
					return err
				}
				stats, err := loader.LoadInto(tbl, src)
				if err != nil {
					return fmt.Errorf("load donor %s ballots: %w", d.City, err)
				}
				total.Add(stats)
			}
			logger.Info("ballots loaded",
				zap.String("city", string(d.City)),
				zap.Int("sources", len(d.Ballots)),
				zap.Int("rows", total.Rows),
				zap.Int("ballots", total.Ballots),
				zap.Int("precincts", tbl.Precincts()),
				zap.Int("dropped_no_top_choice", total.NoTopChoice),
				zap.Int("dropped_bad_precinct", total.BadPrecinct),
				zap.Int("dropped_bad_count", total.BadCount),
			)
			ballots[i] = tbl
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	ds := &Dataset{
		Target:       target,
		Demographics: make(map[model.DonorCity]*model.DemographicTable, len(cfg.Donors)),
		Ballots:      make(map[model.DonorCity]*model.BallotTable, len(cfg.Donors)),
	}
	for i, d := range cfg.Donors {
		ds.Demographics[d.City] = demos[i]
		ds.Ballots[d.City] = ballots[i]
	}
	return ds, nil
}

func logDemographics(logger *zap.Logger, city string, s DemographicStats) {
	logger.Info("demographics loaded",
		zap.String("city", city),
		zap.Int("rows", s.Rows),
		zap.Int("kept", s.Kept),
		zap.Int("dropped_missing", s.Missing),
		zap.Int("dropped_all_zero", s.AllZero),
		zap.Int("missing_vap", s.MissingVAP),
	)
}
