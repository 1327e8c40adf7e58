package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-fusion-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-fusion-service/internal/models"
	"github.com/kjstillabower/weather-fusion-service/internal/observability"
)

// WeatherClient is the weather provider: location search plus current conditions.
type WeatherClient interface {
	Search(ctx context.Context, query string) ([]models.Candidate, error)
	GetCurrent(ctx context.Context, query string) (models.CurrentConditions, error)
	ValidateAPIKey(ctx context.Context) error
}

// SunClient is the astronomy provider.
type SunClient interface {
	GetSunTimes(ctx context.Context, lat, lon float64, tzID string) (models.SunTimes, error)
}

var (
	// ErrResolutionFailed wraps any transport or parse failure of a location search.
	ErrResolutionFailed = errors.New("resolution failed")
	// ErrFetchFailed wraps any transport or parse failure of a conditions or sun-times fetch.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrLocationNotFound is returned when the provider answers with an error payload for the query.
	ErrLocationNotFound = errors.New("location not found")

	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
)

// Upstream api labels used in metrics and circuit breaker components.
const (
	APIWeatherSearch  = "weather_search"
	APIWeatherCurrent = "weather_current"
	APISun            = "sun"
)

// maxBodyBytes bounds how much of an upstream body is read.
const maxBodyBytes = 1 << 20

// upstream performs single-attempt GETs against one base URL. An optional
// limiter delays calls (never drops them) and an optional breaker rejects
// calls while the provider is failing.
type upstream struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
}

func newUpstream(baseURL string, timeout time.Duration) upstream {
	return upstream{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// get issues GET <base>/<method>?<params> and returns status and body.
// Transport errors and 5xx statuses are returned as errors; other statuses are
// left to the caller, since providers put meaningful payloads in 4xx bodies.
func (u *upstream) get(ctx context.Context, api, method string, params url.Values) (int, []byte, error) {
	if u.limiter != nil {
		if err := u.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var (
		status int
		body   []byte
	)
	call := func() error {
		var err error
		status, body, err = u.do(ctx, api, method, params)
		return err
	}

	var err error
	if u.breaker != nil {
		err = u.breaker.Call(ctx, call)
	} else {
		err = call()
	}
	return status, body, err
}

func (u *upstream) do(ctx context.Context, api, method string, params url.Values) (int, []byte, error) {
	start := time.Now()

	req, err := u.buildRequest(ctx, method, params)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(api, "error").Inc()
		return 0, nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(api, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(api, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return 0, nil, fmt.Errorf("request timeout: %w", err)
		}
		return 0, nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(api, status).Inc()
	observability.UpstreamDuration.WithLabelValues(api, status).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 500 {
		return resp.StatusCode, body, fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return resp.StatusCode, body, nil
}

func (u *upstream) buildRequest(ctx context.Context, method string, params url.Values) (*http.Request, error) {
	endpoint, err := url.Parse(u.baseURL + "/" + method)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

// recordError counts a failed upstream operation by category.
func recordError(api string, err error) {
	if err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues(api, string(CategorizeError(err))).Inc()
	}
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
