package collector

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kerlexov/clientlog/pkg/config"
	"github.com/kerlexov/clientlog/pkg/logger"
)

// Pruner deletes stored entries once they outlive their level's retention
// period and drops them from the search index.
type Pruner struct {
	store   *Store
	search  *SearchIndex
	policy  config.RetentionConfig
	metrics *Metrics
	log     *zap.Logger
	now     func() time.Time
}

type PruneResult struct {
	TotalDeleted   int                  `json:"totalDeleted"`
	DeletedByLevel map[logger.Level]int `json:"deletedByLevel"`
	Duration       time.Duration        `json:"duration"`
}

func NewPruner(store *Store, search *SearchIndex, policy config.RetentionConfig, metrics *Metrics, log *zap.Logger) *Pruner {
	return &Pruner{
		store:   store,
		search:  search,
		policy:  policy,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// cutoff returns the zero time when entries of level are kept forever.
func (p *Pruner) cutoff(level logger.Level) time.Time {
	days := p.policy.DefaultDays
	if levelDays, ok := p.policy.ByLevel[level.String()]; ok {
		days = levelDays
	}
	if days <= 0 {
		return time.Time{}
	}
	return p.now().AddDate(0, 0, -days)
}

func (p *Pruner) Sweep(ctx context.Context) (*PruneResult, error) {
	start := p.now()
	result := &PruneResult{DeletedByLevel: make(map[logger.Level]int)}

	for _, level := range []logger.Level{logger.LevelDebug, logger.LevelInfo, logger.LevelWarn, logger.LevelError} {
		cutoff := p.cutoff(level)
		if cutoff.IsZero() {
			continue
		}

		ids, err := p.store.DeleteBefore(ctx, level, cutoff)
		if err != nil {
			return result, err
		}
		if len(ids) == 0 {
			continue
		}

		if p.search != nil {
			if err := p.search.Delete(ids); err != nil {
				p.log.Warn("failed to drop pruned logs from search index", zap.Error(err))
			}
		}

		result.DeletedByLevel[level] = len(ids)
		result.TotalDeleted += len(ids)
		if p.metrics != nil {
			p.metrics.pruned.Add(float64(len(ids)))
		}
	}

	result.Duration = p.now().Sub(start)
	return result, nil
}

// Run sweeps every interval until ctx is done.
func (p *Pruner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := p.Sweep(ctx)
			if err != nil {
				p.log.Error("retention sweep failed", zap.Error(err))
				continue
			}
			if result.TotalDeleted > 0 {
				p.log.Info("retention sweep finished",
					zap.Int("deleted", result.TotalDeleted),
					zap.Duration("took", result.Duration))
			}
		}
	}
}
