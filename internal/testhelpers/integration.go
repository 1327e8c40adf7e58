//go:build integration
// +build integration

package testhelpers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weather-fusion-service/internal/cache"
	"github.com/kjstillabower/weather-fusion-service/internal/client"
	"github.com/kjstillabower/weather-fusion-service/internal/fetcher"
	"github.com/kjstillabower/weather-fusion-service/internal/models"
	"github.com/kjstillabower/weather-fusion-service/internal/resolver"
	"github.com/kjstillabower/weather-fusion-service/internal/service"
	"github.com/kjstillabower/weather-fusion-service/internal/session"
)

// TestAPIKey is accepted by the fake weather provider.
const TestAPIKey = "integration-test-key"

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	CacheBackend  string // "in_memory", "memcached" or "redis"
	MemcachedAddr string
	RedisAddr     string
}

// GetIntegrationConfig loads integration test configuration from environment.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	cfg := IntegrationTestConfig{
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: os.Getenv("MEMCACHED_ADDRS"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
	}
	if cfg.MemcachedAddr == "" {
		cfg.MemcachedAddr = "localhost:11211"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	return cfg
}

// FakeUpstreams serves weatherapi-shaped search/current endpoints and a
// sunrise-sunset-shaped json endpoint. Only "Paris" is known.
type FakeUpstreams struct {
	Weather      *httptest.Server
	Sun          *httptest.Server
	SearchCalls  atomic.Int32
	CurrentCalls atomic.Int32
	SunCalls     atomic.Int32
	// FailSun makes the sun endpoint answer 500.
	FailSun atomic.Bool
}

// NewFakeUpstreams starts both fake providers and closes them on cleanup.
func NewFakeUpstreams(t *testing.T) *FakeUpstreams {
	t.Helper()
	f := &FakeUpstreams{}

	weather := http.NewServeMux()
	weather.HandleFunc("/search.json", func(w http.ResponseWriter, r *http.Request) {
		f.SearchCalls.Add(1)
		if !f.checkKey(w, r) {
			return
		}
		if r.URL.Query().Get("q") == "Paris" {
			fmt.Fprint(w, `[{"id":1,"name":"Paris","region":"Ile-de-France","country":"France","lat":48.87,"lon":2.33}]`)
			return
		}
		fmt.Fprint(w, `[]`)
	})
	weather.HandleFunc("/current.json", func(w http.ResponseWriter, r *http.Request) {
		f.CurrentCalls.Add(1)
		if !f.checkKey(w, r) {
			return
		}
		if r.URL.Query().Get("q") != "Paris" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"code":1006,"message":"No matching location found."}}`)
			return
		}
		fmt.Fprint(w, `{"location":{"name":"Paris","region":"Ile-de-France","country":"France","lat":48.87,"lon":2.33,"tz_id":"Europe/Paris","localtime":"2024-04-28 21:07"},`+
			`"current":{"temp_c":11.0,"temp_f":51.8,"feelslike_c":8.8,"feelslike_f":47.8,"wind_kph":9.0,"wind_mph":5.6,"wind_degree":260,"precip_mm":0.1,"precip_in":0.0,`+
			`"condition":{"text":"Light rain","icon":"//cdn.weatherapi.com/weather/64x64/night/296.png"}}}`)
	})
	f.Weather = httptest.NewServer(weather)
	t.Cleanup(f.Weather.Close)

	f.Sun = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.SunCalls.Add(1)
		if f.FailSun.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"results":{"sunrise":"6:32:10 AM","sunset":"9:03:44 PM"},"status":"OK","tzid":"`+r.URL.Query().Get("tzid")+`"}`)
	}))
	t.Cleanup(f.Sun.Close)
	return f
}

func (f *FakeUpstreams) checkKey(w http.ResponseWriter, r *http.Request) bool {
	if r.URL.Query().Get("key") != TestAPIKey {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"code":2006,"message":"API key is invalid."}}`)
		return false
	}
	return true
}

// SetupIntegrationCache returns the cache selected by cfg, falling back to
// in-memory when the external backend is unreachable.
func SetupIntegrationCache(t *testing.T, cfg IntegrationTestConfig) cache.Cache {
	t.Helper()
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil {
			t.Cleanup(func() { _ = mc.Close() })
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
			return mc
		}
		t.Logf("Memcached not available (%v), using in-memory cache", err)
	case "redis":
		rc := cache.NewRedisCache(cache.RedisOptions{Addr: cfg.RedisAddr, DialTimeout: 500 * time.Millisecond})
		t.Cleanup(func() { _ = rc.Close() })
		t.Logf("Using Redis cache at %s", cfg.RedisAddr)
		return rc
	}
	return cache.NewInMemoryCache()
}

// SetupIntegrationClients builds real provider clients pointed at f.
func SetupIntegrationClients(t *testing.T, f *FakeUpstreams) (*client.WeatherAPIClient, *client.SunriseSunsetClient) {
	t.Helper()
	weather, err := client.NewWeatherAPIClient(TestAPIKey, f.Weather.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewWeatherAPIClient() error = %v", err)
	}
	sun, err := client.NewSunriseSunsetClient(f.Sun.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewSunriseSunsetClient() error = %v", err)
	}
	return weather, sun
}

// SetupIntegrationService wires clients, resolver, fetcher and session store
// the way the service binary does.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig, f *FakeUpstreams) (*service.WeatherService, *client.WeatherAPIClient) {
	t.Helper()
	weather, sun := SetupIntegrationClients(t, f)
	res := resolver.New(weather, SetupIntegrationCache(t, cfg), time.Minute, 100)
	svc := service.NewWeatherService(session.NewStore(time.Hour), res, fetcher.New(weather, sun), models.Metric)
	return svc, weather
}
