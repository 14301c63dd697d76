package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/localnotify/internal/repository"
	"github.com/jwalitptl/localnotify/pkg/logger"
	"github.com/jwalitptl/localnotify/pkg/metrics"
)

// Pruner removes one-shot requests that fired more than retention ago.
type Pruner struct {
	repo      repository.PendingPruner
	retention time.Duration
	interval  time.Duration
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewPruner(repo repository.PendingPruner, retention, interval time.Duration, log *logger.Logger, m *metrics.Metrics) *Pruner {
	if log == nil {
		log = logger.Nop()
	}
	return &Pruner{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    log,
		metrics:   m,
		now:       time.Now,
	}
}

// Start prunes once immediately, then on every tick until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Starting pending request pruner", "interval", p.interval.String(), "retention", p.retention.String())
	p.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down pending request pruner")
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Pruner) runOnce(ctx context.Context) {
	if _, err := p.Prune(ctx); err != nil {
		p.logger.Error(err, "Failed to prune fired requests")
	}
}

func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)

	rows, err := p.repo.DeleteFiredBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune fired requests: %w", err)
	}

	if p.metrics != nil {
		p.metrics.PrunedRequests.Add(float64(rows))
	}
	if rows > 0 {
		p.logger.Info("Pruned fired requests", "count", rows, "cutoff", cutoff)
	}
	return rows, nil
}
