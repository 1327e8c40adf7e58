package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-fusion-service/internal/client"
	"github.com/kjstillabower/weather-fusion-service/internal/fusion"
	"github.com/kjstillabower/weather-fusion-service/internal/models"
	"github.com/kjstillabower/weather-fusion-service/internal/observability"
	"github.com/kjstillabower/weather-fusion-service/internal/resolver"
	"github.com/kjstillabower/weather-fusion-service/internal/session"
	"github.com/kjstillabower/weather-fusion-service/internal/traffic"
)

// ErrValidation means the request cannot be served as asked and the caller
// should show its validation indicator: the gate is closed, the query is
// empty or too long, or the provider could not find the location.
var ErrValidation = errors.New("validation failed")

// Resolver is implemented by resolver.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, query string) ([]models.Candidate, error)
}

// Fetcher is implemented by fetcher.Fetcher.
type Fetcher interface {
	FetchAll(ctx context.Context, query string) (models.CurrentConditions, models.SunTimes, error)
}

// WeatherService runs the resolve and search flows against per-session state.
type WeatherService struct {
	sessions    *session.Store
	resolver    Resolver
	fetcher     Fetcher
	defaultUnit models.Unit
}

// NewWeatherService creates a WeatherService. defaultUnit is the unit of new sessions.
func NewWeatherService(sessions *session.Store, r Resolver, f Fetcher, defaultUnit models.Unit) *WeatherService {
	if defaultUnit != models.Imperial {
		defaultUnit = models.Metric
	}
	return &WeatherService{sessions: sessions, resolver: r, fetcher: f, defaultUnit: defaultUnit}
}

// Resolution is the outcome of one resolution request.
type Resolution struct {
	Candidates []models.Candidate
	State      session.State
	// Stale is true when a newer resolution was dispatched for the session while
	// this one was in flight. Stale candidates are returned but not applied.
	Stale bool
}

// UnitChange is the outcome of a unit toggle.
type UnitChange struct {
	State session.State
	// Result is the last search rebuilt in the new unit; nil before the first search.
	Result *models.FusedResult
	// Reloaded is true when Result comes from a fresh fetch rather than the stored inputs.
	Reloaded bool
	// ValidationIndicator is set when a reload was wanted but the gate was closed
	// or the location could not be found.
	ValidationIndicator bool
}

// CreateSession starts a session in the default unit.
func (s *WeatherService) CreateSession() (string, session.State) {
	return s.sessions.Create(s.defaultUnit)
}

// Session returns the state of id.
func (s *WeatherService) Session(id string) (session.State, error) {
	return s.sessions.Get(id)
}

// EndSession discards the state of id.
func (s *WeatherService) EndSession(id string) error {
	if _, err := s.sessions.Get(id); err != nil {
		return err
	}
	s.sessions.Delete(id)
	return nil
}

// Resolve resolves query for session id. An empty query is a no-op that
// returns the current state without calling the provider. The gate opens iff
// the latest resolution returned at least one candidate.
func (s *WeatherService) Resolve(ctx context.Context, id, query string) (Resolution, error) {
	logger := observability.LoggerFromContext(ctx)

	if strings.TrimSpace(query) == "" {
		st, err := s.sessions.Get(id)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Candidates: st.Candidates, State: st}, nil
	}

	var seq uint64
	if _, err := s.sessions.Update(id, func(st session.State) (session.State, error) {
		var next session.State
		next, seq = st.BeginResolution()
		return next, nil
	}); err != nil {
		return Resolution{}, err
	}

	candidates, resolveErr := s.resolver.Resolve(ctx, query)
	if resolveErr != nil {
		recordUpstream(resolveErr)
		st, applied, err := s.failResolution(id, seq)
		if err != nil {
			return Resolution{}, err
		}
		if !applied {
			observability.ResolutionsTotal.WithLabelValues("stale").Inc()
			logger.Debug("stale resolution failure ignored", zap.String("query", query), zap.Uint64("seq", seq))
		}
		if errors.Is(resolveErr, resolver.ErrQueryTooLong) {
			return Resolution{State: st, Stale: !applied}, fmt.Errorf("%w: %w", ErrValidation, resolveErr)
		}
		return Resolution{State: st, Stale: !applied}, resolveErr
	}
	traffic.Record(traffic.Success)

	var applied bool
	st, err := s.sessions.Update(id, func(st session.State) (session.State, error) {
		var next session.State
		next, applied = st.ApplyResolution(seq, query, candidates)
		return next, nil
	})
	if err != nil {
		return Resolution{}, err
	}
	if !applied {
		observability.ResolutionsTotal.WithLabelValues("stale").Inc()
		logger.Debug("stale resolution discarded", zap.String("query", query), zap.Uint64("seq", seq), zap.Uint64("latest", st.Seq))
	}
	return Resolution{Candidates: candidates, State: st, Stale: !applied}, nil
}

func (s *WeatherService) failResolution(id string, seq uint64) (session.State, bool, error) {
	var applied bool
	st, err := s.sessions.Update(id, func(st session.State) (session.State, error) {
		var next session.State
		next, applied = st.FailResolution(seq)
		return next, nil
	})
	return st, applied, err
}

// Search fetches and fuses weather for query in the session's unit. An empty
// query, or one that is not the query whose resolution opened the gate, fails
// with ErrValidation before any network call. A location the provider cannot
// find also yields ErrValidation. Fetch failures keep the previous result.
func (s *WeatherService) Search(ctx context.Context, id, query string) (models.FusedResult, error) {
	st, err := s.sessions.Get(id)
	if err != nil {
		return models.FusedResult{}, err
	}
	if strings.TrimSpace(query) == "" {
		observability.RecordSearch(query, "validation")
		return models.FusedResult{}, fmt.Errorf("%w: %w", ErrValidation, resolver.ErrQueryEmpty)
	}
	if !st.CanSearchFor(query) {
		observability.RecordSearch(query, "validation")
		return models.FusedResult{}, fmt.Errorf("%w: no resolved location for %q", ErrValidation, query)
	}
	return s.fetchAndStore(ctx, id, query)
}

func (s *WeatherService) fetchAndStore(ctx context.Context, id, query string) (models.FusedResult, error) {
	logger := observability.LoggerFromContext(ctx)
	start := time.Now()

	conditions, sun, err := s.fetcher.FetchAll(ctx, query)
	if err != nil {
		recordUpstream(err)
		if errors.Is(err, client.ErrLocationNotFound) {
			observability.RecordSearch(query, "not_found")
			logger.Debug("location not found", zap.String("query", query))
			return models.FusedResult{}, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		observability.RecordSearch(query, "failed")
		logger.Warn("weather fetch failed",
			zap.String("query", query),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err),
		)
		return models.FusedResult{}, err
	}
	traffic.Record(traffic.Success)

	var result models.FusedResult
	if _, err := s.sessions.Update(id, func(st session.State) (session.State, error) {
		result = fusion.Fuse(conditions.Location, conditions, sun, st.Unit)
		return st.WithResult(query, conditions, sun, result), nil
	}); err != nil {
		return models.FusedResult{}, err
	}

	observability.RecordSearch(query, "ok")
	logger.Debug("weather served",
		zap.String("query", query),
		zap.String("location", result.Name),
		zap.String("unit", string(result.Unit)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// SetUnit switches the session to unit and rebuilds the last result in it.
// A blank query defaults to the last resolved query, then to the last searched
// one. When the gate is open for that query the weather is fetched again.
// Otherwise, or if the fetch fails, the result is rebuilt from the stored
// inputs without network calls.
func (s *WeatherService) SetUnit(ctx context.Context, id string, unit models.Unit, query string) (UnitChange, error) {
	logger := observability.LoggerFromContext(ctx)

	st, err := s.sessions.Update(id, func(st session.State) (session.State, error) {
		return s.refuse(st.WithUnit(unit)), nil
	})
	if err != nil {
		return UnitChange{}, err
	}
	change := UnitChange{State: st, Result: st.LastResult}

	if strings.TrimSpace(query) == "" {
		query = st.ResolvedQuery
	}
	if strings.TrimSpace(query) == "" {
		query = st.LastQuery
	}
	if strings.TrimSpace(query) == "" {
		return change, nil
	}
	if !st.CanSearchFor(query) {
		change.ValidationIndicator = true
		return change, nil
	}

	result, err := s.fetchAndStore(ctx, id, query)
	switch {
	case err == nil:
		change.Result = &result
		change.Reloaded = true
	case errors.Is(err, ErrValidation):
		change.ValidationIndicator = true
	default:
		logger.Info("unit reload failed, serving stored inputs", zap.String("query", query), zap.Error(err))
	}
	if latest, getErr := s.sessions.Get(id); getErr == nil {
		change.State = latest
		if !change.Reloaded {
			change.Result = latest.LastResult
		}
	}
	return change, nil
}

// refuse rebuilds LastResult from the stored inputs in st.Unit.
func (s *WeatherService) refuse(st session.State) session.State {
	if !st.HasResult() {
		return st
	}
	result := fusion.Fuse(st.LastConditions.Location, *st.LastConditions, *st.LastSun, st.Unit)
	return st.WithResult(st.LastQuery, *st.LastConditions, *st.LastSun, result)
}

// recordUpstream feeds the health window. Caller cancellations and provider
// answers about the query itself are not provider failures.
func recordUpstream(err error) {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, resolver.ErrQueryEmpty),
		errors.Is(err, resolver.ErrQueryTooLong):
	case errors.Is(err, client.ErrLocationNotFound):
		traffic.Record(traffic.Success)
	default:
		traffic.Record(traffic.Failure)
	}
}
