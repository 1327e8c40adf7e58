package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-fusion-service/internal/observability"
)

// RouterConfig selects the middleware applied to session routes.
type RouterConfig struct {
	Limiter        *rate.Limiter // nil disables inbound rate limiting
	RequestTimeout time.Duration
	TestingMode    bool
}

// NewRouter wires h behind the correlation and metrics middleware. Session
// routes are additionally rate limited and bounded by RequestTimeout.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	sessions := router.PathPrefix("/sessions").Subrouter()
	sessions.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		sessions.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	sessions.HandleFunc("", h.CreateSession).Methods(http.MethodPost)
	sessions.HandleFunc("/{id}", h.GetSession).Methods(http.MethodGet)
	sessions.HandleFunc("/{id}", h.DeleteSession).Methods(http.MethodDelete)
	sessions.HandleFunc("/{id}/locations", h.GetLocations).Methods(http.MethodGet)
	sessions.HandleFunc("/{id}/search", h.PostSearch).Methods(http.MethodPost)
	sessions.HandleFunc("/{id}/unit", h.PutUnit).Methods(http.MethodPut)

	if cfg.TestingMode {
		logger.Warn("Testing mode enabled; /test endpoint exposed")
		router.HandleFunc("/test", h.GetTestStatus).Methods(http.MethodGet)
		router.HandleFunc("/test/{action}", h.PostTestAction).Methods(http.MethodPost)
	}
	return router
}
