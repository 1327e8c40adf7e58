// Package fetcher retrieves current conditions and the matching sun times for a query.
package fetcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-fusion-service/internal/client"
	"github.com/kjstillabower/weather-fusion-service/internal/models"
	"github.com/kjstillabower/weather-fusion-service/internal/observability"
)

// Fetcher pairs a weather provider with an astronomy provider.
type Fetcher struct {
	weather client.WeatherClient
	sun     client.SunClient
}

// New returns a Fetcher over the given clients.
func New(weather client.WeatherClient, sun client.SunClient) *Fetcher {
	return &Fetcher{weather: weather, sun: sun}
}

// FetchConditions asks the weather provider for current conditions. The provider
// resolves query again on its side.
func (f *Fetcher) FetchConditions(ctx context.Context, query string) (models.CurrentConditions, error) {
	return f.weather.GetCurrent(ctx, query)
}

// FetchSunTimes asks the astronomy provider for sunrise and sunset.
func (f *Fetcher) FetchSunTimes(ctx context.Context, lat, lon float64, tzID string) (models.SunTimes, error) {
	return f.sun.GetSunTimes(ctx, lat, lon, tzID)
}

// FetchAll fetches conditions, then sun times for exactly the coordinates and
// timezone in the conditions' location block. The sun request is never issued
// if the conditions fetch fails.
func (f *Fetcher) FetchAll(ctx context.Context, query string) (models.CurrentConditions, models.SunTimes, error) {
	logger := observability.LoggerFromContext(ctx)
	start := time.Now()

	conditions, err := f.FetchConditions(ctx, query)
	if err != nil {
		logger.Debug("conditions fetch failed",
			zap.String("query", query),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err),
		)
		return models.CurrentConditions{}, models.SunTimes{}, err
	}

	loc := conditions.Location
	sun, err := f.FetchSunTimes(ctx, loc.Latitude, loc.Longitude, loc.TimeZoneID)
	if err != nil {
		logger.Debug("sun times fetch failed",
			zap.Float64("lat", loc.Latitude),
			zap.Float64("lon", loc.Longitude),
			zap.String("tz_id", loc.TimeZoneID),
			zap.Error(err),
		)
		return models.CurrentConditions{}, models.SunTimes{}, err
	}

	logger.Debug("fetched conditions and sun times",
		zap.String("query", query),
		zap.String("location", loc.DisplayName()),
		zap.Duration("duration", time.Since(start)),
	)
	return conditions, sun, nil
}
