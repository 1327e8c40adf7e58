package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-fusion-service/internal/models"
	"github.com/kjstillabower/weather-fusion-service/internal/observability"
)

// Refresher is implemented by the resolver package. Refresh searches the
// provider regardless of what is cached and stores the answer.
type Refresher interface {
	Refresh(ctx context.Context, query string) ([]models.Candidate, error)
}

// warmConcurrency bounds parallel upstream searches during a warm.
const warmConcurrency = 4

// CacheWarmer prefills and renews the search cache for a fixed list of queries.
type CacheWarmer struct {
	refresher Refresher
	logger    *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer. logger may be nil.
func NewCacheWarmer(refresher Refresher, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{refresher: refresher, logger: logger}
}

// Warm refreshes every query and returns the joined errors of those that failed.
// One failing query does not cancel the others.
func (w *CacheWarmer) Warm(ctx context.Context, queries []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming search cache", zap.Int("queries", len(queries)))

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(warmConcurrency)
	for _, q := range queries {
		g.Go(func() error {
			if _, err := w.refresher.Refresh(ctx, q); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %q: %w", q, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("search cache warming complete",
		zap.Int("queries", len(queries)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration),
	)
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return errors.Join(errs...)
	}
	return nil
}

// WarmPeriodic runs Warm every interval until ctx is done. The caller does the
// initial Warm.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, queries []string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, queries); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
