package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-fusion-service/internal/cache"
	"github.com/kjstillabower/weather-fusion-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-fusion-service/internal/client"
	"github.com/kjstillabower/weather-fusion-service/internal/config"
	"github.com/kjstillabower/weather-fusion-service/internal/fetcher"
	httphandler "github.com/kjstillabower/weather-fusion-service/internal/http"
	"github.com/kjstillabower/weather-fusion-service/internal/lifecycle"
	"github.com/kjstillabower/weather-fusion-service/internal/models"
	"github.com/kjstillabower/weather-fusion-service/internal/observability"
	"github.com/kjstillabower/weather-fusion-service/internal/resolver"
	"github.com/kjstillabower/weather-fusion-service/internal/service"
	"github.com/kjstillabower/weather-fusion-service/internal/session"
)

// remoteCache is a cache backend with a network connection to check and release.
type remoteCache interface {
	cache.Cache
	cache.Pinger
	Close() error
}

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := config.LoadDotEnv(); err != nil {
		logger.Fatal("dotenv", zap.Error(err))
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("config", zap.String("warning", w))
	}

	weatherClient, err := client.NewWeatherAPIClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	sunClient, err := client.NewSunriseSunsetClient(cfg.SunAPIURL, cfg.SunAPITimeout)
	if err != nil {
		logger.Fatal("sun client", zap.Error(err))
	}
	if cfg.WeatherAPIRateRPS > 0 {
		weatherClient.SetRateLimiter(rate.NewLimiter(rate.Limit(cfg.WeatherAPIRateRPS), 1))
	}
	if cfg.SunAPIRateRPS > 0 {
		sunClient.SetRateLimiter(rate.NewLimiter(rate.Limit(cfg.SunAPIRateRPS), 1))
	}

	if cfg.CircuitBreaker.Enabled {
		weatherClient.SetCircuitBreaker(newBreaker(cfg.CircuitBreaker, "weather_api"))
		sunClient.SetCircuitBreaker(newBreaker(cfg.CircuitBreaker, client.APISun))
		logger.Info("circuit breakers enabled",
			zap.Int("failure_threshold", cfg.CircuitBreaker.FailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreaker.Timeout))
	}

	var (
		cacheSvc cache.Cache
		remote   remoteCache
	)
	switch cfg.CacheBackend {
	case config.CacheMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdle)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		remote, cacheSvc = mc, mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case config.CacheRedis:
		rc := cache.NewRedisCache(cache.RedisOptions{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: cfg.RedisDialTimeout,
			PoolSize:    cfg.RedisPoolSize,
		})
		remote, cacheSvc = rc, rc
		logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr))
	case config.CacheNone:
		logger.Info("cache backend: none")
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	res := resolver.New(weatherClient, cacheSvc, cfg.CacheTTL, cfg.QueryMaxLength)
	defaultUnit, err := models.ParseUnit(cfg.DefaultUnit)
	if err != nil {
		logger.Fatal("default unit", zap.Error(err))
	}
	sessions := session.NewStore(cfg.SessionTTL)
	weatherService := service.NewWeatherService(sessions, res, fetcher.New(weatherClient, sunClient), defaultUnit)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go sessions.RunSweeper(bgCtx, cfg.SessionSweep, logger)

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThreshold,
		RateLimitRPS:         cfg.RateLimitRPS,
		RateLimitBurst:       cfg.RateLimitBurst,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
	}
	if remote != nil {
		healthConfig.CachePing = remote.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(weatherService, weatherClient, healthConfig, logger, limiter)

	observability.RegisterRateLimitGauges(cfg.OverloadWindow)
	if len(cfg.TrackedQueries) > 0 {
		observability.SetTrackedQueries(cfg.TrackedQueries)
	}

	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		TestingMode:    cfg.TestingMode,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	// /health reports "starting" until the warm-up pass is done.
	if cacheSvc != nil && len(cfg.WarmQueries) > 0 {
		warmer := cache.NewCacheWarmer(res, logger)
		warmCtx, warmCancel := context.WithTimeout(bgCtx, 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.WarmQueries); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(bgCtx, cfg.WarmQueries, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}
	lifecycle.SetReady()
	logger.Info("service ready")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	observability.RecordShutdownInFlight(inFlight)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.InFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.InFlightInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}
	bgCancel()

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if remote != nil {
		if err := remote.Close(); err != nil {
			logger.Error("cache close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// newBreaker returns a breaker for component that reports its transitions as metrics.
func newBreaker(cfg config.CircuitBreakerConfig, component string) *circuitbreaker.CircuitBreaker {
	observability.SetCircuitBreakerStateGauge(component, 0)
	return circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		Timeout:          cfg.Timeout,
		Component:        component,
		// Cancelled callers are not upstream failures.
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
		OnStateChange: func(component string, from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(component, from.String(), to.String())
			observability.SetCircuitBreakerStateGauge(component, observability.CircuitBreakerStateValue(int(to)))
		},
	})
}
