package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/rcvimpute/internal/cache"
	"github.com/ppiankov/rcvimpute/internal/impute"
	"github.com/ppiankov/rcvimpute/internal/ingest"
	"github.com/ppiankov/rcvimpute/internal/match"
	"github.com/ppiankov/rcvimpute/internal/model"
	"github.com/ppiankov/rcvimpute/internal/worker"
)

// ErrUnknownPrecinct means a requested target precinct is not in the target table
var ErrUnknownPrecinct = errors.New("precinct not in target table")

// Pipeline matches and imputes target precincts against loaded donor data
type Pipeline struct {
	config  *model.Config
	data    *ingest.Dataset
	matcher *match.Matcher
	cached  *match.CachedMatcher // Nil when caching is disabled
	finder  match.Finder
	engine  *impute.Engine
	logger  *zap.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithCache overrides the match cache built from config
func WithCache(c cache.Cache[model.MatchList]) Option {
	return func(p *Pipeline) {
		p.cached = match.NewCachedMatcher(p.matcher, c, p.config.Cache.TTL)
		p.finder = p.cached
	}
}

// New builds the matcher and engine for a loaded dataset
func New(cfg *model.Config, data *ingest.Dataset, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tieBreak, err := match.ParseTieBreak(cfg.Matching.TieBreak)
	if err != nil {
		return nil, err
	}

	donors := make([]match.Donor, 0, len(cfg.Donors))
	for _, d := range cfg.Donors {
		donors = append(donors, match.Donor{City: d.City, Limit: d.Limit, Table: data.Demographics[d.City]})
	}
	matcher, err := match.NewMatcher(donors, match.WithTieBreak(tieBreak))
	if err != nil {
		return nil, fmt.Errorf("build matcher: %w", err)
	}
	if dim := matcher.Dimension(); dim > 0 {
		for _, row := range data.Target.Rows() {
			if len(row.Composition) != dim {
				return nil, fmt.Errorf("target %s has %d components, donors have %d: %w",
					row.ID, len(row.Composition), dim, match.ErrDimensionMismatch)
			}
		}
	}

	engine := impute.NewEngine(data.Ballots,
		impute.WithAliases(impute.AliasesFromConfig(cfg.Donors)),
		impute.WithWeightExponent(cfg.Imputation.WeightExponent),
	)

	p := &Pipeline{
		config:  cfg,
		data:    data,
		matcher: matcher,
		finder:  matcher,
		engine:  engine,
		logger:  logger,
	}

	if cfg.Cache.Enabled {
		p.cached = match.NewCachedMatcher(matcher,
			cache.NewLayeredCache[model.MatchList](cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.TTL), cfg.Cache.TTL)
		p.finder = p.cached
	}

	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ImputePrecinct matches one target precinct and imputes its table.
// Precinct-level problems become warnings on the result; only cancellation
// is returned as an error.
func (p *Pipeline) ImputePrecinct(ctx context.Context, row model.DemographicRow) (*model.PrecinctResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pr := &model.PrecinctResult{Precinct: row.ID}
	exclude := func(kind model.WarningKind, format string, args ...any) (*model.PrecinctResult, error) {
		pr.Excluded = true
		pr.Imputed = nil
		pr.Warnings = append(pr.Warnings, model.Warning{
			Precinct: row.ID,
			Kind:     kind,
			Message:  fmt.Sprintf(format, args...),
		})
		return pr, nil
	}

	matches, err := p.finder.Match(row.Composition)
	if err != nil {
		return exclude(model.WarnMatchFailed, "match: %v", err)
	}
	pr.Matches = matches

	if !row.HasVAP {
		return exclude(model.WarnMissingVAP, "no VAP value")
	}

	res, err := p.engine.Impute(matches, row.VAP)
	if errors.Is(err, impute.ErrNegativeVAP) {
		return exclude(model.WarnInvalidVAP, "%v", err)
	}

	if res != nil {
		for _, ref := range res.Skipped {
			pr.Warnings = append(pr.Warnings, model.Warning{
				Precinct: row.ID,
				Kind:     model.WarnSkippedDonor,
				Message:  fmt.Sprintf("donor %s has no ballots", ref),
			})
		}
	}

	if errors.Is(err, impute.ErrZeroTotal) {
		return exclude(model.WarnZeroTotal, "none of %d matched donors contributed ballots", len(matches))
	}
	if err != nil {
		return nil, fmt.Errorf("impute %s: %w", row.ID, err)
	}

	pr.Imputed = res.Table
	return pr, nil
}

// Explain imputes a single target precinct by id
func (p *Pipeline) Explain(ctx context.Context, id model.PrecinctID) (*model.PrecinctResult, error) {
	row, ok := p.data.Target.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrecinct, id)
	}
	return p.ImputePrecinct(ctx, row)
}

// Run imputes every target precinct, or only those in ids when given, and
// returns the run once all precincts have finished.
func (p *Pipeline) Run(ctx context.Context, ids []model.PrecinctID) (*model.RunResult, error) {
	run := model.NewRunResult(uuid.NewString(), p.config.Target.City, p.matcher.Cities())
	run.StartedAt = time.Now().UTC()

	for _, city := range p.matcher.EmptyCities() {
		run.Warnings = append(run.Warnings, model.Warning{
			Kind:    model.WarnEmptyDonorCity,
			Message: fmt.Sprintf("donor city %s has no demographic rows", city),
		})
		p.logger.Warn("donor city has no demographic rows", zap.String("city", string(city)))
	}
	for _, city := range p.matcher.Cities() {
		if tbl := p.data.Ballots[city]; tbl == nil || tbl.Precincts() == 0 {
			run.Warnings = append(run.Warnings, model.Warning{
				Kind:    model.WarnEmptyDonorCity,
				Message: fmt.Sprintf("donor city %s has no ballots", city),
			})
			p.logger.Warn("donor city has no ballots", zap.String("city", string(city)))
		}
	}

	rows, unknown := worker.FilterRows(p.data.Target.Rows(), ids)
	for _, id := range unknown {
		p.logger.Warn("requested precinct not in target table", zap.String("precinct", string(id)))
	}

	p.logger.Info("imputing precincts",
		zap.String("run_id", run.RunID),
		zap.Int("precincts", len(rows)),
		zap.Int("workers", p.config.Concurrency.Workers),
	)

	processor := worker.NewBatchProcessor(p, p.config.Concurrency.Workers, p.logger, p.config.Log.ProgressInterval)
	outcomes := processor.ProcessPrecincts(ctx, rows)

	// Fan-in barrier: every precinct has finished before the run is assembled
	for _, o := range outcomes {
		if o.Error != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("run cancelled: %w", ctx.Err())
			}
			return nil, fmt.Errorf("precinct %s: %w", o.Precinct, o.Error)
		}
		for _, w := range o.Result.Warnings {
			p.logger.Debug("precinct warning",
				zap.String("precinct", string(w.Precinct)),
				zap.String("kind", string(w.Kind)),
				zap.String("message", w.Message),
			)
		}
		run.AddPrecinct(o.Result)
	}

	run.FinishedAt = time.Now().UTC()
	run.Normalize()

	fields := []zap.Field{
		zap.String("run_id", run.RunID),
		zap.Int("imputed", len(run.Imputations)),
		zap.Int("excluded", len(run.Excluded)),
		zap.Int("warnings", len(run.Warnings)),
		zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
	}
	if p.cached != nil {
		hits, misses := p.cached.Stats()
		fields = append(fields, zap.Int64("cache_hits", hits), zap.Int64("cache_misses", misses))
	}
	p.logger.Info("run complete", fields...)

	return run, nil
}

// CacheStats returns match cache hits and misses, zero when caching is off
func (p *Pipeline) CacheStats() (hits, misses int64) {
	if p.cached == nil {
		return 0, 0
	}
	return p.cached.Stats()
}
