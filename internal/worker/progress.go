package worker

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Progress reports batch completion at most once per interval
type Progress struct {
	logger    *zap.Logger
	total     int
	done      atomic.Int64
	failed    atomic.Int64
	sometimes *rate.Sometimes
	start     time.Time
}

// NewProgress creates a progress reporter for total jobs. A non-positive
// interval reports every completion.
func NewProgress(logger *zap.Logger, total int, interval time.Duration) *Progress {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &rate.Sometimes{Interval: interval}
	if interval <= 0 {
		s = &rate.Sometimes{Every: 1}
	}
	return &Progress{
		logger:    logger,
		total:     total,
		sometimes: s,
		start:     time.Now(),
	}
}

// Observe records one completed job
func (p *Progress) Observe(r Result) {
	done := p.done.Add(1)
	if r != nil && r.GetError() != nil {
		p.failed.Add(1)
	}
	p.sometimes.Do(func() {
		p.logger.Info("progress",
			zap.Int64("done", done),
			zap.Int("total", p.total),
			zap.Int64("failed", p.failed.Load()),
		)
	})
}

// Done returns the number of observed jobs and how many failed
func (p *Progress) Done() (done, failed int64) {
	return p.done.Load(), p.failed.Load()
}

// Finish logs the final tally
func (p *Progress) Finish() {
	done, failed := p.Done()
	p.logger.Info("batch finished",
		zap.Int64("done", done),
		zap.Int("total", p.total),
		zap.Int64("failed", failed),
		zap.Duration("elapsed", time.Since(p.start)),
	)
}
