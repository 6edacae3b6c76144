package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"rediguard/internal/service"
	"rediguard/internal/store"
	"rediguard/internal/util"
)

// SecurityHandler handles HTTP requests for the security monitoring API
type SecurityHandler struct {
	securityService *service.SecurityService
	tasks           *service.TaskManager
	logger          *zap.Logger
}

// NewSecurityHandler creates a new security handler
func NewSecurityHandler(securityService *service.SecurityService, tasks *service.TaskManager, logger *zap.Logger) *SecurityHandler {
	return &SecurityHandler{
		securityService: securityService,
		tasks:           tasks,
		logger:          logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// RegisterRoutes registers all security monitoring routes
func (h *SecurityHandler) RegisterRoutes(router chi.Router) {
	router.Route("/events", func(r chi.Router) {
		r.Post("/login", h.SubmitLoginEvent)
	})

	router.Route("/demo", func(r chi.Router) {
		r.Post("/generate-events", h.GenerateEvents)
	})

	router.Post("/seed", h.StartSeeding)

	router.Route("/stream", func(r chi.Router) {
		r.Post("/start", h.StartStreaming)
		r.Post("/stop", h.StopStreaming)
		r.Get("/status", h.StreamStatus)
	})

	router.Route("/alerts", func(r chi.Router) {
		r.Get("/search", h.SearchAlerts)
	})

	router.Route("/users", func(r chi.Router) {
		r.Get("/{userID}/anomaly-history", h.AnomalyHistory)
		r.Get("/{userID}/similar-behavior", h.SimilarBehavior)
	})

	router.Route("/security", func(r chi.Router) {
		r.Get("/check-ip/{ip}", h.CheckIP)
		r.Post("/add-malicious-ip", h.AddMaliciousIP)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Post("/clear-data", h.ClearData)
	})

	router.Route("/stats", func(r chi.Router) {
		r.Get("/overview", h.StatsOverview)
	})
}

// SubmitLoginEvent accepts a login event into the pipeline
func (h *SecurityHandler) SubmitLoginEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.LoginEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	ref, err := h.securityService.SubmitLoginEvent(ctx, &req)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to accept login event")
		return
	}

	h.respondWithJSON(w, http.StatusAccepted, successResponse(ref, "Login event accepted"))
	h.logger.Debug("Login event accepted via HTTP",
		util.String("user_id", req.UserID),
		util.Duration("duration", time.Since(startTime)),
	)
}

// GenerateEvents creates a synchronous batch of demo events
func (h *SecurityHandler) GenerateEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req service.GenerateEventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	created, err := h.securityService.GenerateBatch(ctx, &req)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to generate events")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]int{"events_created": created}, "Events generated"))
}

type seedRequest struct {
	NumEvents   int      `json:"num_events"`
	AnomalyRate *float64 `json:"anomaly_rate"`
}

// StartSeeding launches the historical seeding task
func (h *SecurityHandler) StartSeeding(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	rate := service.DefaultSeedAnomalyRate
	if req.AnomalyRate != nil {
		rate = *req.AnomalyRate
	}
	if err := h.tasks.StartSeeding(req.NumEvents, rate); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to start seeding")
		return
	}

	h.respondWithJSON(w, http.StatusAccepted, successResponse(h.tasks.Status(), "Seeding started"))
}

type streamRequest struct {
	EventsPerMinute int      `json:"events_per_minute"`
	DurationMinutes int      `json:"duration_minutes"`
	AnomalyRate     *float64 `json:"anomaly_rate"`
}

// StartStreaming launches the real-time streaming task
func (h *SecurityHandler) StartStreaming(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	rate := service.DefaultStreamAnomalyRate
	if req.AnomalyRate != nil {
		rate = *req.AnomalyRate
	}
	duration := time.Duration(req.DurationMinutes) * time.Minute
	if err := h.tasks.StartStreaming(req.EventsPerMinute, duration, rate); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to start streaming")
		return
	}

	h.respondWithJSON(w, http.StatusAccepted, successResponse(h.tasks.Status(), "Streaming started"))
}

// StopStreaming stops the running background task
func (h *SecurityHandler) StopStreaming(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Stop(); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to stop task")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(h.tasks.Status(), "Task stopped"))
}

// StreamStatus reports the state of the current or last background task
func (h *SecurityHandler) StreamStatus(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, successResponse(h.tasks.Status(), "Task status"))
}

// SearchAlerts runs a filtered alert search
func (h *SecurityHandler) SearchAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query, err := parseAlertQuery(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid query parameter")
		return
	}

	alerts, err := h.securityService.SearchAlerts(ctx, query)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to search alerts")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(alerts, "Alerts retrieved"))
}

// AnomalyHistory returns a user's recent anomaly scores
func (h *SecurityHandler) AnomalyHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")

	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, err, "Invalid hours parameter")
			return
		}
		hours = parsed
	}

	scores, err := h.securityService.AnomalyHistory(ctx, userID, hours)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to get anomaly history")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(scores, "Anomaly history retrieved"))
}

// SimilarBehavior returns users with the most similar recent behavior
func (h *SecurityHandler) SimilarBehavior(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")

	// "k" is accepted as a legacy alias for "limit".
	k := 10
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		raw = r.URL.Query().Get("k")
	}
	if raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, err, "Invalid limit parameter")
			return
		}
		k = parsed
	}

	similar, err := h.securityService.SimilarBehavior(ctx, userID, k)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to find similar behavior")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(similar, "Similar behavior retrieved"))
}

// CheckIP reports whether an IP is in the malicious set
func (h *SecurityHandler) CheckIP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := chi.URLParam(r, "ip")

	result, err := h.securityService.CheckIP(ctx, ip)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to check IP")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "IP checked"))
}

// AddMaliciousIP registers an IP in the malicious set
func (h *SecurityHandler) AddMaliciousIP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req service.AddMaliciousIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.securityService.AddMaliciousIP(ctx, &req); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to add malicious IP")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(nil, "Malicious IP added"))
}

// ClearData wipes all stored security data
func (h *SecurityHandler) ClearData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req service.ClearDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.securityService.ClearAllData(ctx, &req); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to clear data")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "All data cleared"))
}

// StatsOverview returns aggregate counts across the backends
func (h *SecurityHandler) StatsOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.respondWithJSON(w, http.StatusOK, successResponse(h.securityService.Stats(ctx), "Stats retrieved"))
}

func parseAlertQuery(r *http.Request) (store.AlertQuery, error) {
	q := r.URL.Query()
	var query store.AlertQuery

	if raw := q.Get("min_score"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return query, err
		}
		query.MinScore = &v
	}
	if raw := q.Get("max_score"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return query, err
		}
		query.MaxScore = &v
	}
	if raw := q.Get("start_time"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return query, err
		}
		query.StartTime = &v
	}
	if raw := q.Get("end_time"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return query, err
		}
		query.EndTime = &v
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return query, err
		}
		query.Limit = v
	}
	query.UserID = q.Get("user_id")
	query.IP = q.Get("ip")
	query.Location = q.Get("location")
	return query, nil
}

// respondWithJSON sends a JSON response
func (h *SecurityHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h *SecurityHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *SecurityHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrConfirmationRequired):
		return http.StatusPreconditionFailed
	case errors.Is(err, service.ErrTaskConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrTaskNotRunning):
		return http.StatusConflict
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
