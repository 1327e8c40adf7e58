package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-fusion-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-fusion-service/internal/models"
)

// ErrSunStatus is returned when the astronomy provider answers with a non-OK status field.
var ErrSunStatus = errors.New("sun api status")

// SunriseSunsetClient talks to a sunrise-sunset.org-shaped provider. No credential is needed.
type SunriseSunsetClient struct {
	upstream
}

// NewSunriseSunsetClient returns a client for baseURL (e.g. "https://api.sunrise-sunset.org").
func NewSunriseSunsetClient(baseURL string, timeout time.Duration) (*SunriseSunsetClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("sun API base URL is required")
	}
	return &SunriseSunsetClient{upstream: newUpstream(baseURL, timeout)}, nil
}

// SetCircuitBreaker guards subsequent calls with cb.
func (c *SunriseSunsetClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// SetRateLimiter makes subsequent calls wait for a token from l.
func (c *SunriseSunsetClient) SetRateLimiter(l *rate.Limiter) {
	c.limiter = l
}

type sunResponse struct {
	// Results is an object on success and an empty string on error statuses.
	Results json.RawMessage `json:"results"`
	Status  string          `json:"status"`
}

type sunResults struct {
	Sunrise string `json:"sunrise"`
	Sunset  string `json:"sunset"`
}

// GetSunTimes fetches sunrise and sunset for the coordinates, formatted in tzID.
// Every failure is wrapped in ErrFetchFailed.
func (c *SunriseSunsetClient) GetSunTimes(ctx context.Context, lat, lon float64, tzID string) (models.SunTimes, error) {
	sun, err := c.getSunTimes(ctx, lat, lon, tzID)
	if err != nil {
		recordError(APISun, err)
		return models.SunTimes{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return sun, nil
}

func (c *SunriseSunsetClient) getSunTimes(ctx context.Context, lat, lon float64, tzID string) (models.SunTimes, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lng", strconv.FormatFloat(lon, 'f', -1, 64))
	if tzID != "" {
		params.Set("tzid", tzID)
	}

	status, body, err := c.get(ctx, APISun, "json", params)
	if err != nil {
		return models.SunTimes{}, err
	}

	var apiResp sunResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		if status < 200 || status >= 300 {
			return models.SunTimes{}, fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, status)
		}
		return models.SunTimes{}, fmt.Errorf("parse response: %w", err)
	}
	if apiResp.Status != "" && apiResp.Status != "OK" {
		return models.SunTimes{}, fmt.Errorf("%w: %s", ErrSunStatus, apiResp.Status)
	}
	if status < 200 || status >= 300 {
		return models.SunTimes{}, fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, status)
	}
	var results sunResults
	if len(apiResp.Results) == 0 || json.Unmarshal(apiResp.Results, &results) != nil {
		return models.SunTimes{}, fmt.Errorf("parse response: missing results block")
	}

	return models.SunTimes{
		Sunrise:    results.Sunrise,
		Sunset:     results.Sunset,
		Latitude:   lat,
		Longitude:  lon,
		TimeZoneID: tzID,
	}, nil
}
