package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-fusion-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-fusion-service/internal/models"
)

// WeatherAPIClient talks to a weatherapi.com-shaped provider (search.json, current.json).
type WeatherAPIClient struct {
	apiKey string
	upstream
}

// NewWeatherAPIClient returns a client for baseURL (e.g. "https://api.weatherapi.com/v1").
// Every call is a single attempt bounded by timeout.
func NewWeatherAPIClient(apiKey, baseURL string, timeout time.Duration) (*WeatherAPIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if baseURL == "" {
		return nil, fmt.Errorf("weather API base URL is required")
	}
	return &WeatherAPIClient{apiKey: apiKey, upstream: newUpstream(baseURL, timeout)}, nil
}

// SetCircuitBreaker guards subsequent calls with cb.
func (c *WeatherAPIClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// SetRateLimiter makes subsequent calls wait for a token from l.
func (c *WeatherAPIClient) SetRateLimiter(l *rate.Limiter) {
	c.limiter = l
}

type searchResult struct {
	Name    string  `json:"name"`
	Region  string  `json:"region"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

type locationBlock struct {
	Name      string  `json:"name"`
	Region    string  `json:"region"`
	Country   string  `json:"country"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	TzID      string  `json:"tz_id"`
	LocalTime string  `json:"localtime"`
}

type currentResponse struct {
	Location *locationBlock `json:"location"`
	Current  *struct {
		LastUpdated string  `json:"last_updated"`
		TempC       float64 `json:"temp_c"`
		TempF       float64 `json:"temp_f"`
		FeelsLikeC  float64 `json:"feelslike_c"`
		FeelsLikeF  float64 `json:"feelslike_f"`
		WindKph     float64 `json:"wind_kph"`
		WindMph     float64 `json:"wind_mph"`
		WindDegree  int     `json:"wind_degree"`
		PrecipMm    float64 `json:"precip_mm"`
		PrecipIn    float64 `json:"precip_in"`
		Condition   struct {
			Text string `json:"text"`
			Icon string `json:"icon"`
		} `json:"condition"`
	} `json:"current"`
}

// apiError is the provider's error payload: {"error":{"code":1006,"message":"..."}}.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// err maps a provider error code to a sentinel. Key and quota codes keep their
// own meaning; every other error payload means the query could not be resolved.
func (e apiError) err() error {
	switch e.Code {
	case 1002, 2006, 2008:
		return fmt.Errorf("%w: %s (code %d)", ErrInvalidAPIKey, e.Message, e.Code)
	case 2007, 2009:
		return fmt.Errorf("%w: %s (code %d)", ErrRateLimited, e.Message, e.Code)
	}
	return fmt.Errorf("%w: %s (code %d)", ErrLocationNotFound, e.Message, e.Code)
}

// classifyResponse inspects the body before the status: the provider reports
// unresolvable queries as an error payload on a 400.
func classifyResponse(status int, body []byte) error {
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
		return envelope.Error.err()
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, status)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d", ErrRateLimited, status)
	case status < 200 || status >= 300:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, status)
	}
	return nil
}

func (c *WeatherAPIClient) params(query string) url.Values {
	params := url.Values{}
	params.Set("q", query)
	params.Set("key", c.apiKey)
	return params
}

// Search resolves query to candidates in provider order. An empty array is a
// valid result. Every failure is wrapped in ErrResolutionFailed.
func (c *WeatherAPIClient) Search(ctx context.Context, query string) ([]models.Candidate, error) {
	candidates, err := c.search(ctx, query)
	if err != nil {
		recordError(APIWeatherSearch, err)
		return nil, fmt.Errorf("%w: %w", ErrResolutionFailed, err)
	}
	return candidates, nil
}

func (c *WeatherAPIClient) search(ctx context.Context, query string) ([]models.Candidate, error) {
	status, body, err := c.get(ctx, APIWeatherSearch, "search.json", c.params(query))
	if err != nil {
		return nil, err
	}
	if err := classifyResponse(status, body); err != nil {
		return nil, err
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, models.Candidate{
			Name:      r.Name,
			Region:    r.Region,
			Country:   r.Country,
			Latitude:  r.Lat,
			Longitude: r.Lon,
		})
	}
	return candidates, nil
}

// GetCurrent fetches current conditions; the provider re-resolves query itself.
// An error payload yields ErrLocationNotFound; other failures are wrapped in ErrFetchFailed.
func (c *WeatherAPIClient) GetCurrent(ctx context.Context, query string) (models.CurrentConditions, error) {
	conditions, err := c.getCurrent(ctx, query)
	if err != nil {
		recordError(APIWeatherCurrent, err)
		if errors.Is(err, ErrLocationNotFound) {
			return models.CurrentConditions{}, err
		}
		return models.CurrentConditions{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return conditions, nil
}

func (c *WeatherAPIClient) getCurrent(ctx context.Context, query string) (models.CurrentConditions, error) {
	status, body, err := c.get(ctx, APIWeatherCurrent, "current.json", c.params(query))
	if err != nil {
		return models.CurrentConditions{}, err
	}
	if err := classifyResponse(status, body); err != nil {
		return models.CurrentConditions{}, err
	}

	var apiResp currentResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.CurrentConditions{}, fmt.Errorf("parse response: %w", err)
	}
	if apiResp.Location == nil || apiResp.Current == nil {
		return models.CurrentConditions{}, fmt.Errorf("parse response: missing location or current block")
	}
	return mapCurrent(apiResp), nil
}

func mapCurrent(apiResp currentResponse) models.CurrentConditions {
	loc, cur := apiResp.Location, apiResp.Current
	return models.CurrentConditions{
		Location: models.Candidate{
			Name:       loc.Name,
			Region:     loc.Region,
			Country:    loc.Country,
			Latitude:   loc.Lat,
			Longitude:  loc.Lon,
			TimeZoneID: loc.TzID,
			LocalTime:  loc.LocalTime,
		},
		ConditionText: cur.Condition.Text,
		ConditionIcon: cur.Condition.Icon,
		Temperature:   models.Reading{Metric: cur.TempC, Imperial: cur.TempF},
		FeelsLike:     models.Reading{Metric: cur.FeelsLikeC, Imperial: cur.FeelsLikeF},
		WindSpeed:     models.Reading{Metric: cur.WindKph, Imperial: cur.WindMph},
		Precipitation: models.Reading{Metric: cur.PrecipMm, Imperial: cur.PrecipIn},
		WindDegree:    cur.WindDegree,
		LastUpdated:   cur.LastUpdated,
	}
}

// ValidateAPIKey issues one search to confirm the credential is accepted.
func (c *WeatherAPIClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status, body, err := c.get(ctx, APIWeatherSearch, "search.json", c.params("London"))
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	if err := classifyResponse(status, body); err != nil {
		if errors.Is(err, ErrInvalidAPIKey) {
			return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
