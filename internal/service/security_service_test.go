package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"rediguard/internal/config"
	"rediguard/internal/ipset"
	"rediguard/internal/models"
	"rediguard/internal/store/memory"
)

func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		MaxSeedEvents:      10000,
		MaxBatchEvents:     100,
		MaxEventsPerMinute: 100,
		MaxStreamDuration:  4 * time.Hour,
	}
}

func newTestService() (*SecurityService, *memory.EventLog, *ipset.MemorySet) {
	eventLog := memory.NewEventLog()
	badIPs := ipset.NewMemorySet()
	svc := NewSecurityService(
		eventLog,
		memory.NewScoreSeries(),
		memory.NewEmbeddingStore(),
		memory.NewAlertIndex(),
		memory.NewEventArchive(),
		memory.NewStateStore(),
		badIPs,
		NewGenerator(1),
		testLimits(),
		zap.NewNop(),
	)
	return svc, eventLog, badIPs
}

func TestSubmitLoginEvent(t *testing.T) {
	ctx := context.Background()
	svc, eventLog, _ := newTestService()

	req := &LoginEventRequest{
		UserID:    "alice.johnson",
		IP:        "192.168.1.10",
		Location:  "New York, US",
		Timestamp: time.Now().Unix(),
	}

	ref, err := svc.SubmitLoginEvent(ctx, req)
	if err != nil {
		t.Fatalf("SubmitLoginEvent: %v", err)
	}
	if ref.ID == "" {
		t.Error("event ref has no ID")
	}

	length, _ := eventLog.Length(ctx)
	if length != 1 {
		t.Errorf("event log length = %d, want 1", length)
	}
}

func TestSubmitLoginEventValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	now := time.Now().Unix()

	tests := []struct {
		name string
		req  LoginEventRequest
	}{
		{name: "missing user", req: LoginEventRequest{IP: "1.2.3.4", Location: "London, UK", Timestamp: now}},
		{name: "missing ip", req: LoginEventRequest{UserID: "alice", Location: "London, UK", Timestamp: now}},
		{name: "missing location", req: LoginEventRequest{UserID: "alice", IP: "1.2.3.4", Timestamp: now}},
		{name: "prehistoric timestamp", req: LoginEventRequest{UserID: "alice", IP: "1.2.3.4", Location: "London, UK", Timestamp: 100000}},
		{name: "far future timestamp", req: LoginEventRequest{UserID: "alice", IP: "1.2.3.4", Location: "London, UK", Timestamp: now + 90000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SubmitLoginEvent(ctx, &tt.req)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestSubmitLoginEventDefaultsTimestamp(t *testing.T) {
	ctx := context.Background()
	svc, eventLog, _ := newTestService()

	before := time.Now().Unix()
	req := &LoginEventRequest{
		UserID:   "alice.johnson",
		IP:       "192.168.1.10",
		Location: "New York, US",
	}
	if _, err := svc.SubmitLoginEvent(ctx, req); err != nil {
		t.Fatalf("SubmitLoginEvent without timestamp: %v", err)
	}
	after := time.Now().Unix()

	events := eventLog.Events()
	if len(events) != 1 {
		t.Fatalf("event log has %d events, want 1", len(events))
	}
	if ts := events[0].Timestamp; ts < before || ts > after {
		t.Errorf("defaulted timestamp %d outside [%d, %d]", ts, before, after)
	}
}

func TestGenerateBatch(t *testing.T) {
	ctx := context.Background()
	svc, eventLog, _ := newTestService()

	created, err := svc.GenerateBatch(ctx, &GenerateEventsRequest{Count: 20, AnomalyRate: 0.2})
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	if created != 20 {
		t.Errorf("created = %d, want 20", created)
	}

	length, _ := eventLog.Length(ctx)
	if length != 20 {
		t.Errorf("event log length = %d, want 20", length)
	}
}

func TestGenerateBatchLimit(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	_, err := svc.GenerateBatch(ctx, &GenerateEventsRequest{Count: 101, AnomalyRate: 0.1})
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
}

func TestCheckIPAndAddMalicious(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	result, err := svc.CheckIP(ctx, "66.13.0.1")
	if err != nil {
		t.Fatalf("CheckIP: %v", err)
	}
	if result.IsMalicious {
		t.Error("unknown IP reported malicious")
	}

	if err := svc.AddMaliciousIP(ctx, &AddMaliciousIPRequest{IP: "66.13.0.1"}); err != nil {
		t.Fatalf("AddMaliciousIP: %v", err)
	}

	result, err = svc.CheckIP(ctx, "66.13.0.1")
	if err != nil {
		t.Fatalf("CheckIP: %v", err)
	}
	if !result.IsMalicious {
		t.Error("added IP not reported malicious")
	}
	if result.CheckedAt == 0 {
		t.Error("checked_at not set")
	}
}

func TestClearAllDataRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	svc, _, badIPs := newTestService()

	if err := badIPs.Add(ctx, "66.13.0.1"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	err := svc.ClearAllData(ctx, &ClearDataRequest{Confirm: false})
	if !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("expected ErrConfirmationRequired, got %v", err)
	}

	// Nothing was wiped.
	ok, _ := badIPs.Contains(ctx, "66.13.0.1")
	if !ok {
		t.Error("data cleared despite missing confirmation")
	}

	if err := svc.ClearAllData(ctx, &ClearDataRequest{Confirm: true}); err != nil {
		t.Fatalf("ClearAllData: %v", err)
	}
	ok, _ = badIPs.Contains(ctx, "66.13.0.1")
	if ok {
		t.Error("data survived confirmed clear")
	}
}

func TestAnomalyHistory(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	now := time.Now().Unix()
	for i, score := range []float64{0.2, 0.5, 0.9} {
		entry := models.AnomalyScore{
			UserID:    "alice.johnson",
			Timestamp: now - int64(i*600),
			Score:     score,
		}
		if err := svc.scores.Append(ctx, entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	// Outside the 24h window.
	old := models.AnomalyScore{UserID: "alice.johnson", Timestamp: now - 48*3600, Score: 0.1}
	if err := svc.scores.Append(ctx, old); err != nil {
		t.Fatalf("Append: %v", err)
	}

	history, err := svc.AnomalyHistory(ctx, "alice.johnson", 24)
	if err != nil {
		t.Fatalf("AnomalyHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history entries = %d, want 3", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp < history[i-1].Timestamp {
			t.Error("history not in ascending timestamp order")
		}
	}
}

func TestSimilarBehavior(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	vec := func(vals ...float32) []float32 {
		out := make([]float32, 8)
		copy(out, vals)
		return out
	}

	embeddings := []models.BehaviorEmbedding{
		{UserID: "alice", Timestamp: 100, Vector: vec(1, 0, 0)},
		{UserID: "bob", Timestamp: 101, Vector: vec(0.9, 0.1, 0)},
		{UserID: "carol", Timestamp: 102, Vector: vec(0, 1, 0)},
	}
	for _, e := range embeddings {
		if err := svc.embeddings.Put(ctx, e); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	similar, err := svc.SimilarBehavior(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("SimilarBehavior: %v", err)
	}
	if len(similar) != 2 {
		t.Fatalf("matches = %d, want 2", len(similar))
	}
	if similar[0].UserID != "bob" {
		t.Errorf("closest match = %q, want bob", similar[0].UserID)
	}
	for _, match := range similar {
		if match.UserID == "alice" {
			t.Error("result includes the query user")
		}
	}
}

func TestSimilarBehaviorUnknownUser(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	similar, err := svc.SimilarBehavior(ctx, "nobody", 5)
	if err != nil {
		t.Fatalf("SimilarBehavior: %v", err)
	}
	if similar != nil {
		t.Errorf("expected nil for unknown user, got %v", similar)
	}
}

func TestStatsOverview(t *testing.T) {
	ctx := context.Background()
	svc, eventLog, badIPs := newTestService()

	if _, err := eventLog.Append(ctx, models.LoginEvent{UserID: "alice", IP: "1.2.3.4", Location: "London, UK", Timestamp: time.Now().Unix()}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := badIPs.Add(ctx, "66.13.0.1"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	stats := svc.Stats(ctx)
	if stats.Degraded {
		t.Error("memory-backed stats reported degraded")
	}
	if stats.TotalEvents != 1 {
		t.Errorf("total events = %d, want 1", stats.TotalEvents)
	}
	if stats.MaliciousIPs != 1 {
		t.Errorf("malicious IPs = %d, want 1", stats.MaliciousIPs)
	}
}
