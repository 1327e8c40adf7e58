// Package resolver turns a free-text query into an ordered list of candidate locations.
package resolver

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/weather-fusion-service/internal/cache"
	"github.com/kjstillabower/weather-fusion-service/internal/client"
	"github.com/kjstillabower/weather-fusion-service/internal/models"
	"github.com/kjstillabower/weather-fusion-service/internal/observability"
	"github.com/kjstillabower/weather-fusion-service/internal/validation"
)

var (
	ErrQueryEmpty   = validation.ErrQueryEmpty
	ErrQueryTooLong = validation.ErrQueryTooLong
)

// Resolver searches the weather provider, coalescing identical in-flight
// queries and optionally serving recent results from a cache.
type Resolver struct {
	client    client.WeatherClient
	cache     cache.Cache
	ttl       time.Duration
	maxLength int
	group     singleflight.Group
}

// New returns a Resolver. A nil cache or a non-positive ttl disables caching;
// maxLength <= 0 disables the length check.
func New(weather client.WeatherClient, c cache.Cache, ttl time.Duration, maxLength int) *Resolver {
	if ttl <= 0 {
		c = nil
	}
	return &Resolver{client: weather, cache: c, ttl: ttl, maxLength: maxLength}
}

// Resolve returns the provider's candidates for query in provider order. Zero
// candidates is a successful result. Empty queries never reach the provider.
// Failures wrap client.ErrResolutionFailed.
func (r *Resolver) Resolve(ctx context.Context, query string) ([]models.Candidate, error) {
	if err := validation.ValidateQuery(query, r.maxLength); err != nil {
		return nil, err
	}
	logger := observability.LoggerFromContext(ctx)

	if cached, ok := r.fromCache(ctx, query); ok {
		observability.ResolutionsTotal.WithLabelValues(outcome(cached)).Inc()
		logger.Debug("resolution served from cache", zap.String("query", query), zap.Int("candidates", len(cached)))
		return cached, nil
	}

	return r.shared(ctx, query)
}

// Refresh searches the provider for query without consulting the cache and
// stores the answer, so an entry still inside its ttl is renewed.
func (r *Resolver) Refresh(ctx context.Context, query string) ([]models.Candidate, error) {
	if err := validation.ValidateQuery(query, r.maxLength); err != nil {
		return nil, err
	}
	return r.shared(ctx, query)
}

// shared runs one provider search per query at a time and hands its result to
// every caller waiting on it.
func (r *Resolver) shared(ctx context.Context, query string) ([]models.Candidate, error) {
	logger := observability.LoggerFromContext(ctx)

	// The shared search must not be cancelled by whichever caller started it.
	ch := r.group.DoChan(query, func() (interface{}, error) {
		return r.search(context.WithoutCancel(ctx), query)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		observability.ResolutionsTotal.WithLabelValues("failed").Inc()
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Shared {
		observability.ResolutionsCoalescedTotal.Inc()
	}
	if res.Err != nil {
		observability.ResolutionsTotal.WithLabelValues("failed").Inc()
		logger.Warn("resolution failed",
			zap.String("query", query),
			zap.String("category", string(client.CategorizeError(res.Err))),
			zap.Error(res.Err),
		)
		return nil, res.Err
	}

	candidates := clone(res.Val.([]models.Candidate))
	observability.ResolutionsTotal.WithLabelValues(outcome(candidates)).Inc()
	logger.Debug("resolved query", zap.String("query", query), zap.Int("candidates", len(candidates)), zap.Bool("shared", res.Shared))
	return candidates, nil
}

func (r *Resolver) search(ctx context.Context, query string) ([]models.Candidate, error) {
	candidates, err := r.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if candidates == nil {
		candidates = []models.Candidate{}
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, query, candidates, r.ttl); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("set").Inc()
			observability.LoggerFromContext(ctx).Warn("search cache set failed", zap.String("query", query), zap.String("category", categorizeCacheError(err)), zap.Error(err))
		}
	}
	return candidates, nil
}

func (r *Resolver) fromCache(ctx context.Context, query string) ([]models.Candidate, bool) {
	if r.cache == nil {
		return nil, false
	}
	cached, ok, err := r.cache.Get(ctx, query)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		observability.LoggerFromContext(ctx).Warn("search cache get failed", zap.String("query", query), zap.String("category", categorizeCacheError(err)), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	observability.CacheHitsTotal.WithLabelValues("search").Inc()
	return cached, true
}

func outcome(candidates []models.Candidate) string {
	if len(candidates) == 0 {
		return "empty"
	}
	return "candidates"
}

func clone(in []models.Candidate) []models.Candidate {
	out := make([]models.Candidate, len(in))
	copy(out, in)
	return out
}

// categorizeCacheError returns a stable log label for cache backend errors.
func categorizeCacheError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timeout") {
		return "timeout"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
