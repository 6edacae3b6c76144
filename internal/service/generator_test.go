package service

import (
	"strings"
	"testing"
	"time"

	"rediguard/internal/geo"
)

func TestGeneratorNormalEvents(t *testing.T) {
	g := NewGenerator(7)
	now := time.Now()

	for i := 0; i < 200; i++ {
		event := g.Generate(now, 0)

		if event.UserID == "" || event.IP == "" || event.Location == "" {
			t.Fatalf("incomplete event: %+v", event)
		}
		if geo.IsHighRisk(event.Location) {
			t.Errorf("normal event in high-risk location %q", event.Location)
		}
		for _, prefix := range suspiciousIPPrefixes {
			if strings.HasPrefix(event.IP, prefix) {
				t.Errorf("normal event from suspicious IP %q", event.IP)
			}
		}
	}
}

func TestGeneratorAnomalousEvents(t *testing.T) {
	g := NewGenerator(7)
	now := time.Now()

	for i := 0; i < 200; i++ {
		event := g.Generate(now, 1)

		if !geo.IsHighRisk(event.Location) {
			t.Errorf("anomalous event in %q, want high-risk location", event.Location)
		}

		hour := time.Unix(event.Timestamp, 0).Hour()
		if hour >= 6 && hour <= 22 {
			t.Errorf("anomalous event at hour %d, want odd hours", hour)
		}
	}
}

func TestGeneratorDeterministic(t *testing.T) {
	a := NewGenerator(42)
	b := NewGenerator(42)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 50; i++ {
		ea := a.Generate(now, 0.5)
		eb := b.Generate(now, 0.5)
		if ea != eb {
			t.Fatalf("same seed diverged at %d: %+v != %+v", i, ea, eb)
		}
	}
}

func TestGenerateHistoricalWindow(t *testing.T) {
	g := NewGenerator(3)
	now := time.Now()
	window := 30 * 24 * time.Hour

	for i := 0; i < 100; i++ {
		event := g.GenerateHistorical(now, window, 0.1)
		age := now.Unix() - event.Timestamp
		if age < 0 || age > int64(window.Seconds()) {
			t.Errorf("historical timestamp outside window: age %ds", age)
		}
	}
}
