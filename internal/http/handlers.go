package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-fusion-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-fusion-service/internal/client"
	"github.com/kjstillabower/weather-fusion-service/internal/lifecycle"
	"github.com/kjstillabower/weather-fusion-service/internal/models"
	"github.com/kjstillabower/weather-fusion-service/internal/observability"
	"github.com/kjstillabower/weather-fusion-service/internal/service"
	"github.com/kjstillabower/weather-fusion-service/internal/session"
	"github.com/kjstillabower/weather-fusion-service/internal/traffic"
	"github.com/kjstillabower/weather-fusion-service/internal/validation"
)

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	RateLimitBurst       int // 0 when rate limiter disabled
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	// CachePing, when set, is called to check cache reachability.
	CachePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weatherService   *service.WeatherService
	client           client.WeatherClient
	healthConfig     *HealthConfig
	logger           *zap.Logger
	rateLimiter      *rate.Limiter
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	weatherService *service.WeatherService,
	client client.WeatherClient,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	rateLimiter *rate.Limiter,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weatherService: weatherService,
		client:         client,
		healthConfig:   healthConfig,
		logger:         logger,
		rateLimiter:    rateLimiter,
	}
}

type candidateView struct {
	models.Candidate
	DisplayName string `json:"displayName"`
}

type resultView struct {
	models.FusedResult
	IconURL string `json:"iconUrl"`
}

type stateView struct {
	LastResolvedOK bool            `json:"lastResolvedOk"`
	Unit           models.Unit     `json:"unit"`
	Candidates     []candidateView `json:"candidates"`
	LastQuery      string          `json:"lastQuery,omitempty"`
	LastResult     *resultView     `json:"lastResult,omitempty"`
}

func newCandidateViews(candidates []models.Candidate) []candidateView {
	views := make([]candidateView, 0, len(candidates))
	for _, c := range candidates {
		views = append(views, candidateView{Candidate: c, DisplayName: c.DisplayName()})
	}
	return views
}

func newResultView(r *models.FusedResult) *resultView {
	if r == nil {
		return nil
	}
	return &resultView{FusedResult: *r, IconURL: r.IconURL()}
}

func newStateView(st session.State) stateView {
	return stateView{
		LastResolvedOK: st.LastResolvedOK,
		Unit:           st.Unit,
		Candidates:     newCandidateViews(st.Candidates),
		LastQuery:      st.LastQuery,
		LastResult:     newResultView(st.LastResult),
	}
}

// sessionID returns the {id} path variable, or writes 404 and returns false
// when it is not a session id.
func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if err := validation.ValidateSessionID(id); err != nil {
		writeError(w, r, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found")
		return "", false
	}
	return id, true
}

// CreateSession handles POST /sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	id, st := h.weatherService.CreateSession()
	observability.LoggerFromContext(r.Context()).Debug("session created", zap.String("session_id", id))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"sessionId": id,
		"state":     newStateView(st),
	})
}

// GetSession handles GET /sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	st, err := h.weatherService.Session(id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": id,
		"state":     newStateView(st),
	})
}

// DeleteSession handles DELETE /sessions/{id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.weatherService.EndSession(id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetLocations handles GET /sessions/{id}/locations?q=. It resolves the
// query to candidates and opens or closes the session's search gate.
func (h *Handler) GetLocations(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("q")

	res, err := h.weatherService.Resolve(r.Context(), id, query)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":          query,
		"candidates":     newCandidateViews(res.Candidates),
		"lastResolvedOk": res.State.LastResolvedOK,
		"stale":          res.Stale,
	})
}

type searchRequest struct {
	Query string `json:"query"`
}

// PostSearch handles POST /sessions/{id}/search.
func (h *Handler) PostSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var body searchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with a query field")
		return
	}

	result, err := h.weatherService.Search(r.Context(), id, body.Query)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newResultView(&result))
}

type unitRequest struct {
	Unit  string `json:"unit"`
	Query string `json:"query"`
}

// PutUnit handles PUT /sessions/{id}/unit.
func (h *Handler) PutUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var body unitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with a unit field")
		return
	}
	unit, err := models.ParseUnit(body.Unit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_UNIT", "unit must be metric, imperial or us")
		return
	}

	change, err := h.weatherService.SetUnit(r.Context(), id, unit, body.Query)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":               newStateView(change.State),
		"result":              newResultView(change.Result),
		"reloaded":            change.Reloaded,
		"validationIndicator": change.ValidationIndicator,
	})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.reason == "api_key_invalid" || result.reason == "error_rate_breach" {
		checks["weatherApi"] = "unhealthy"
	} else {
		checks["weatherApi"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing(r.Context()) == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "weather-fusion-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > starting > API key invalid > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if lifecycle.CurrentPhase() == lifecycle.Starting {
		return healthResult{"starting", http.StatusServiceUnavailable, "warming"}
	}
	if err := h.client.ValidateAPIKey(ctx); err != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if h.healthConfig.RateLimitRPS > 0 && h.healthConfig.OverloadWindow > 0 {
		threshold := float64(h.healthConfig.RateLimitRPS) * h.healthConfig.OverloadWindow.Seconds() * float64(h.healthConfig.OverloadThresholdPct) / 100
		if float64(traffic.RequestCount(h.healthConfig.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		failures, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(failures) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error":{code,message,requestId}}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

// writeServiceError maps a service error to a status and error code.
// Validation failures also carry validationIndicator so clients can flag the input.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context())

	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found")
		return
	case errors.Is(err, service.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error": map[string]string{
				"code":      "VALIDATION",
				"message":   validationMessage(err),
				"requestId": observability.CorrelationIDFromContext(r.Context()),
			},
			"validationIndicator": true,
		})
		return
	}

	logger.Debug("upstream error", zap.Error(err), zap.String("category", string(client.CategorizeError(err))))
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "Upstream providers did not answer in time")
	case errors.Is(err, context.Canceled):
		// client went away; the status is never read
		writeError(w, r, http.StatusServiceUnavailable, "CANCELED", "Request canceled")
	case errors.Is(err, circuitbreaker.ErrOpen):
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Upstream provider temporarily unavailable")
	case errors.Is(err, client.ErrResolutionFailed):
		writeError(w, r, http.StatusBadGateway, "RESOLUTION_FAILED", "Unable to resolve location")
	case errors.Is(err, client.ErrFetchFailed):
		writeError(w, r, http.StatusBadGateway, "FETCH_FAILED", "Unable to fetch weather data")
	default:
		logger.Error("unexpected error", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Internal error")
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, validation.ErrQueryEmpty):
		return "query is required"
	case errors.Is(err, validation.ErrQueryTooLong):
		return "query is too long"
	case errors.Is(err, client.ErrLocationNotFound):
		return "no matching location found"
	}
	return "no resolved location for the current query"
}

// GetTestStatus handles GET /test. Returns the health windows as seen by /health.
func (h *Handler) GetTestStatus(w http.ResponseWriter, r *http.Request) {
	window := 60 * time.Second
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 {
		window = h.healthConfig.DegradedWindow
	}
	failures, total := traffic.ErrorRate(window)

	cfg := make(map[string]interface{})
	if h.healthConfig != nil {
		overloadThreshold := 0
		if h.healthConfig.RateLimitRPS > 0 {
			overloadThreshold = int(float64(h.healthConfig.RateLimitRPS) *
				h.healthConfig.OverloadWindow.Seconds() *
				float64(h.healthConfig.OverloadThresholdPct) / 100)
		}
		cfg["rate_limit_rps"] = h.healthConfig.RateLimitRPS
		cfg["rate_limit_burst"] = h.healthConfig.RateLimitBurst
		cfg["overload_threshold"] = overloadThreshold
		cfg["overload_window_seconds"] = h.healthConfig.OverloadWindow.Seconds()
		cfg["degraded_error_pct"] = h.healthConfig.DegradedErrorPct
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_requests_in_window":  traffic.RequestCount(window),
		"denied_requests_in_window": traffic.DenialCount(window),
		"upstream_calls_in_window":  total,
		"errors_in_window":          failures,
		"window_length":             window.String(),
		"phase":                     lifecycle.CurrentPhase().String(),
		"config":                    cfg,
	})
}

// PostTestAction handles POST /test/{action} for load, error, reset and shutdown.
func (h *Handler) PostTestAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	switch action {
	case "load":
		h.postTestLoad(w, r)
	case "error":
		h.postTestError(w, r)
	case "reset":
		traffic.Reset()
		lifecycle.SetShuttingDown(false)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":      true,
			"action":  "reset",
			"message": "All simulated state cleared",
		})
	case "shutdown":
		lifecycle.SetShuttingDown(true)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":      true,
			"action":  "shutdown",
			"message": "Shutting-down flag set",
		})
	default:
		writeError(w, r, http.StatusNotFound, "UNKNOWN_ACTION", "unknown test action: "+action)
	}
}

type countRequest struct {
	Count int `json:"count"`
}

// postTestLoad records count simulated requests through the rate limiter.
func (h *Handler) postTestLoad(w http.ResponseWriter, r *http.Request) {
	var body countRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Count <= 0 {
		body.Count = 10
	}
	var accepted, denied int
	for i := 0; i < body.Count; i++ {
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			traffic.Record(traffic.Denied)
			observability.RateLimitDeniedTotal.Inc()
			denied++
			continue
		}
		traffic.Record(traffic.Success)
		accepted++
	}
	result := h.computeHealthStatus(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"action":   "load",
		"state":    result.status,
		"accepted": accepted,
		"denied":   denied,
	})
}

// postTestError records count simulated upstream failures.
func (h *Handler) postTestError(w http.ResponseWriter, r *http.Request) {
	var body countRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Count <= 0 {
		body.Count = 1
	}
	for i := 0; i < body.Count; i++ {
		traffic.Record(traffic.Failure)
	}
	window := 60 * time.Second
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 {
		window = h.healthConfig.DegradedWindow
	}
	failures, total := traffic.ErrorRate(window)
	pct := 0
	if total > 0 {
		pct = failures * 100 / total
	}
	result := h.computeHealthStatus(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"action":         "error",
		"state":          result.status,
		"error_rate_pct": pct,
	})
}
