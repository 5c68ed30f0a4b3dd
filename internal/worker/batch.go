package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/rcvimpute/internal/model"
)

// Imputer defines the interface for processing one target precinct
type Imputer interface {
	ImputePrecinct(ctx context.Context, row model.DemographicRow) (*model.PrecinctResult, error)
}

// PrecinctJob represents one target precinct to match and impute
type PrecinctJob struct {
	Index   int
	Row     model.DemographicRow
	Imputer Imputer
}

// Execute matches and imputes the row, or records ctx's error if the batch
// was cancelled before the job started
func (j *PrecinctJob) Execute(ctx context.Context) *PrecinctOutcome {
	if err := ctx.Err(); err != nil {
		return &PrecinctOutcome{Index: j.Index, Precinct: j.Row.ID, Error: err}
	}
	result, err := j.Imputer.ImputePrecinct(ctx, j.Row)
	return &PrecinctOutcome{
		Index:    j.Index,
		Precinct: j.Row.ID,
		Result:   result,
		Error:    err,
	}
}

// PrecinctOutcome represents the result of a precinct job
type PrecinctOutcome struct {
	Index    int
	Precinct model.PrecinctID
	Result   *model.PrecinctResult
	Error    error
}

// GetError returns the error from the precinct outcome
func (o *PrecinctOutcome) GetError() error {
	return o.Error
}

// BatchProcessor processes target precincts concurrently
type BatchProcessor struct {
	imputer     Imputer
	concurrency int
	logger      *zap.Logger
	interval    time.Duration
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(imputer Imputer, concurrency int, logger *zap.Logger, interval time.Duration) *BatchProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchProcessor{
		imputer:     imputer,
		concurrency: concurrency,
		logger:      logger,
		interval:    interval,
	}
}

// ProcessPrecincts imputes every row concurrently. Outcomes are returned in
// row order; workers share nothing but the read-only imputer.
func (b *BatchProcessor) ProcessPrecincts(ctx context.Context, rows []model.DemographicRow) []*PrecinctOutcome {
	if len(rows) == 0 {
		return []*PrecinctOutcome{}
	}

	jobs := make([]Job[*PrecinctOutcome], len(rows))
	for i, row := range rows {
		jobs[i] = &PrecinctJob{Index: i, Row: row, Imputer: b.imputer}
	}

	progress := NewProgress(b.logger, len(rows), b.interval)

	pool := NewPool[*PrecinctOutcome](ctx, b.concurrency)
	pool.Start()
	results := pool.Run(jobs, func(o *PrecinctOutcome) { progress.Observe(o) })
	progress.Finish()

	outcomes := make([]*PrecinctOutcome, len(rows))
	for _, o := range results {
		outcomes[o.Index] = o
	}

	// Jobs never dequeued after cancellation still get an outcome
	for i, o := range outcomes {
		if o == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			outcomes[i] = &PrecinctOutcome{Index: i, Precinct: rows[i].ID, Error: err}
		}
	}

	return outcomes
}

// FilterRows keeps the rows whose id is in ids, in table order. An empty id
// list keeps every row. Ids that match no row are returned separately.
func FilterRows(rows []model.DemographicRow, ids []model.PrecinctID) (kept []model.DemographicRow, unknown []model.PrecinctID) {
	if len(ids) == 0 {
		return rows, nil
	}

	want := make(map[model.PrecinctID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, row := range rows {
		if want[row.ID] {
			kept = append(kept, row)
			delete(want, row.ID)
		}
	}
	for _, id := range ids {
		if want[id] {
			unknown = append(unknown, id)
			delete(want, id)
		}
	}
	return kept, unknown
}

// ReadPrecinctIDs reads precinct ids from a file (one per line)
func ReadPrecinctIDs(filePath string) ([]model.PrecinctID, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var ids []model.PrecinctID
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			ids = append(ids, model.PrecinctID(line))
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return ids, nil
}
