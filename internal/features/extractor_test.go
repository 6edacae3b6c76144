package features

import (
	"testing"

	"rediguard/internal/models"
)

func TestClassifyIP(t *testing.T) {
	tests := []struct {
		ip   string
		want int
	}{
		{"192.168.1.42", IPClassCorporate},
		{"10.0.0.7", IPClassCorporate},
		{"203.0.113.99", IPClassHome},
		{"185.220.14.3", IPClassVPN},
		{"8.8.8.8", IPClassUnclassified},
	}

	for _, tt := range tests {
		if got := ClassifyIP(tt.ip); got != tt.want {
			t.Errorf("ClassifyIP(%q) = %d, want %d", tt.ip, got, tt.want)
		}
	}
}

func TestExtractFirstEvent(t *testing.T) {
	event := models.LoginEvent{
		UserID:    "alice.johnson",
		IP:        "192.168.1.10",
		Location:  "New York, US",
		Timestamp: 1700000000,
	}

	vector, geoJump, state := Extract(event, nil)

	if geoJump != 0 {
		t.Errorf("first event geo jump = %.1f, want 0", geoJump)
	}
	if vector.GeoJumpKM != 0 || vector.VelocityKMH != 0 {
		t.Errorf("first event features: jump=%.1f velocity=%.1f, want both 0", vector.GeoJumpKM, vector.VelocityKMH)
	}
	if vector.HistFrequency != 0 {
		t.Errorf("first event frequency = %.1f, want 0", vector.HistFrequency)
	}
	if state.LastLocation != event.Location || state.LastTimestamp != event.Timestamp {
		t.Errorf("state not advanced: %+v", state)
	}
}

func TestExtractImpossibleTravel(t *testing.T) {
	prior := &models.UserState{
		UserID:        "alice.johnson",
		LastLocation:  "New York, US",
		LastTimestamp: 1700000000,
	}
	event := models.LoginEvent{
		UserID:    "alice.johnson",
		IP:        "185.220.14.3",
		Location:  "Sydney, AU",
		Timestamp: 1700000138, // 138 seconds later
	}

	vector, geoJump, _ := Extract(event, prior)

	if geoJump < 15000 {
		t.Errorf("geo jump = %.0f km, want roughly 16000", geoJump)
	}
	// ~16000 km in 138s is far beyond any feasible velocity.
	if vector.VelocityKMH < 100000 {
		t.Errorf("velocity = %.0f km/h, want captured as extreme", vector.VelocityKMH)
	}
}

func TestExtractSameLocationNoJump(t *testing.T) {
	prior := &models.UserState{
		UserID:        "bob.smith",
		LastLocation:  "London, UK",
		LastTimestamp: 1700000000,
	}
	event := models.LoginEvent{
		UserID:    "bob.smith",
		IP:        "10.0.0.5",
		Location:  "London, UK",
		Timestamp: 1700003600,
	}

	vector, geoJump, _ := Extract(event, prior)
	if geoJump != 0 || vector.VelocityKMH != 0 {
		t.Errorf("same location: jump=%.1f velocity=%.1f, want both 0", geoJump, vector.VelocityKMH)
	}
}

func TestExtractBackfilledEventKeepsState(t *testing.T) {
	prior := &models.UserState{
		UserID:        "carol",
		LastLocation:  "Tokyo, JP",
		LastTimestamp: 1700000000,
	}
	// Strictly in the past relative to the prior state.
	event := models.LoginEvent{
		UserID:    "carol",
		IP:        "10.0.0.5",
		Location:  "Berlin, DE",
		Timestamp: 1690000000,
	}

	_, _, state := Extract(event, prior)

	if state.LastLocation != "Tokyo, JP" || state.LastTimestamp != 1700000000 {
		t.Errorf("backfilled event regressed state: %+v", state)
	}
}

func TestExtractEqualTimestampAdvances(t *testing.T) {
	prior := &models.UserState{
		UserID:        "dave",
		LastLocation:  "Toronto, CA",
		LastTimestamp: 1700000000,
	}
	event := models.LoginEvent{
		UserID:    "dave",
		IP:        "10.0.0.5",
		Location:  "Berlin, DE",
		Timestamp: 1700000000,
	}

	_, _, state := Extract(event, prior)
	if state.LastLocation != "Berlin, DE" {
		t.Errorf("equal-timestamp event should advance state, got %+v", state)
	}
}

func TestPushScoreCapsHistory(t *testing.T) {
	state := &models.UserState{UserID: "eve"}
	for i := 0; i < RecentScoreWindow+10; i++ {
		PushScore(state, float64(i))
	}

	if len(state.RecentScores) != RecentScoreWindow {
		t.Fatalf("history length = %d, want %d", len(state.RecentScores), RecentScoreWindow)
	}
	if state.RecentScores[0] != 10 {
		t.Errorf("oldest retained score = %.0f, want 10", state.RecentScores[0])
	}
}
