package accessibility

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Progress observes completed work units: one unit per threshold column of
// one (travel-time, land-use) pair.
type Progress interface {
	Start(total int)
	Advance(n int)
}

// NopProgress discards progress.
type NopProgress struct{}

// Start implements Progress.
func (NopProgress) Start(int) {}

// Advance implements Progress.
func (NopProgress) Advance(int) {}

// LogProgress reports progress through zap. Safe for concurrent use.
type LogProgress struct {
	log   *zap.Logger
	total atomic.Int64
	done  atomic.Int64
}

// NewLogProgress returns a Progress that logs to l.
func NewLogProgress(l *zap.Logger) *LogProgress {
	return &LogProgress{log: l.With(zap.String("component", "accessibility.progress"))}
}

// Start implements Progress.
func (p *LogProgress) Start(total int) {
	p.total.Store(int64(total))
	p.done.Store(0)
	p.log.Info("calculating cumulative opportunities accessibility", zap.Int("units", total))
}

// Advance implements Progress.
func (p *LogProgress) Advance(n int) {
	done := p.done.Add(int64(n))
	total := p.total.Load()
	p.log.Debug("progress", zap.Int64("done", done), zap.Int64("total", total))
	if done == total {
		p.log.Info("all units complete", zap.Int64("total", total))
	}
}

// Done returns the number of completed units.
func (p *LogProgress) Done() int64 { return p.done.Load() }

// Total returns the expected number of units.
func (p *LogProgress) Total() int64 { return p.total.Load() }
