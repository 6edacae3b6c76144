package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"rediguard/internal/config"
	"rediguard/internal/ipset"
	"rediguard/internal/service"
	"rediguard/internal/store/memory"
)

func newTestRouter() http.Handler {
	eventLog := memory.NewEventLog()
	generator := service.NewGenerator(1)
	limits := config.LimitsConfig{
		MaxSeedEvents:      10000,
		MaxBatchEvents:     100,
		MaxEventsPerMinute: 100,
		MaxStreamDuration:  4 * time.Hour,
	}

	securityService := service.NewSecurityService(
		eventLog,
		memory.NewScoreSeries(),
		memory.NewEmbeddingStore(),
		memory.NewAlertIndex(),
		memory.NewEventArchive(),
		memory.NewStateStore(),
		ipset.NewMemorySet(),
		generator,
		limits,
		zap.NewNop(),
	)
	tasks := service.NewTaskManager(eventLog, generator, limits, zap.NewNop())
	securityHandler := NewSecurityHandler(securityService, tasks, zap.NewNop())

	return NewRouter(securityHandler, func() error { return nil }, zap.NewNop())
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestSubmitLoginEventAccepted(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/events/login", map[string]interface{}{
		"user_id":   "alice.johnson",
		"ip":        "192.168.1.10",
		"location":  "New York, US",
		"timestamp": time.Now().Unix(),
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Errorf("success = false: %s", resp.Error)
	}
}

func TestSubmitLoginEventRejectsBadPayload(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "empty body", body: map[string]interface{}{}},
		{name: "missing ip", body: map[string]interface{}{
			"user_id": "alice", "location": "London, UK", "timestamp": time.Now().Unix(),
		}},
		{name: "ancient timestamp", body: map[string]interface{}{
			"user_id": "alice", "ip": "1.2.3.4", "location": "London, UK", "timestamp": 5,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/v1/events/login", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			resp := decodeResponse(t, rec)
			if resp.Success {
				t.Error("success = true for invalid payload")
			}
		})
	}
}

func TestGenerateEventsOverLimit(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/demo/generate-events", map[string]interface{}{
		"count":        101,
		"anomaly_rate": 0.1,
	})

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 (%s)", rec.Code, rec.Body.String())
	}
}

func TestClearDataRequiresConfirmation(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/admin/clear-data", map[string]interface{}{
		"confirm": false,
	})
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("status = %d, want 412 (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/admin/clear-data", map[string]interface{}{
		"confirm": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirmed clear status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
}

func TestCheckIPRoundTrip(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/security/add-malicious-ip", map[string]interface{}{
		"ip": "66.13.0.1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/security/check-ip/66.13.0.1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("check status = %d, want 200", rec.Code)
	}

	var resp struct {
		Data service.IPCheckResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Data.IsMalicious {
		t.Error("added IP not reported malicious")
	}
}

func TestStreamLifecycle(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/stream/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d, want 200", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/stream/start", map[string]interface{}{
		"events_per_minute": 60,
		"duration_minutes":  1,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start = %d, want 202 (%s)", rec.Code, rec.Body.String())
	}

	// A second start conflicts.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/stream/start", map[string]interface{}{
		"events_per_minute": 60,
		"duration_minutes":  1,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("conflicting start = %d, want 409", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/stream/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}

	// Stopping again conflicts.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/stream/stop", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second stop = %d, want 409", rec.Code)
	}
}

func TestSeedOverLimit(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/seed", map[string]interface{}{
		"num_events": 10001,
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 (%s)", rec.Code, rec.Body.String())
	}
}

func TestSeedAnomalyRateValidated(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/seed", map[string]interface{}{
		"num_events":   10,
		"anomaly_rate": 1.5,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("seed with rate 1.5 = %d, want 400 (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/stream/start", map[string]interface{}{
		"events_per_minute": 60,
		"duration_minutes":  1,
		"anomaly_rate":      -0.2,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("stream with rate -0.2 = %d, want 400 (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/seed", map[string]interface{}{
		"num_events":   10,
		"anomaly_rate": 1.0,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("seed with rate 1.0 = %d, want 202 (%s)", rec.Code, rec.Body.String())
	}
}

func TestSimilarBehaviorLimitParam(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/users/alice/similar-behavior?limit=notanumber", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/users/alice/similar-behavior?limit=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("limit=5 = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
}

func TestSearchAlertsBadParams(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/alerts/search?min_score=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStatsOverviewEndpoint(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/stats/overview", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Data service.StatsOverview `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Degraded {
		t.Error("memory-backed stats reported degraded")
	}
}

func TestUnknownEndpoint(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/nonexistent", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAnomalyHistoryBadHours(t *testing.T) {
	router := newTestRouter()

	path := fmt.Sprintf("/api/v1/users/%s/anomaly-history?hours=notanumber", "alice")
	rec := doJSON(t, router, http.MethodGet, path, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
