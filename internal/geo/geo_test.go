package geo

import (
	"math"
	"sort"
	"testing"
)

func TestDistanceKM(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want float64
		tol  float64
	}{
		{name: "new york to sydney", from: "New York, US", to: "Sydney, AU", want: 15988, tol: 100},
		{name: "new york to london", from: "New York, US", to: "London, UK", want: 5570, tol: 100},
		{name: "london to berlin", from: "London, UK", to: "Berlin, DE", want: 930, tol: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := Lookup(tt.from)
			if !ok {
				t.Fatalf("Lookup(%q) failed", tt.from)
			}
			b, ok := Lookup(tt.to)
			if !ok {
				t.Fatalf("Lookup(%q) failed", tt.to)
			}
			got := DistanceKM(a, b)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("DistanceKM(%q, %q) = %.0f, want %.0f±%.0f", tt.from, tt.to, got, tt.want, tt.tol)
			}
		})
	}
}

func TestJumpKM(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		zero bool
	}{
		{name: "same location", from: "New York, US", to: "New York, US", zero: true},
		{name: "case insensitive same", from: "new york, us", to: "NEW YORK, US", zero: true},
		{name: "unknown origin", from: "Atlantis, XX", to: "London, UK", zero: true},
		{name: "unknown destination", from: "London, UK", to: "Atlantis, XX", zero: true},
		{name: "real jump", from: "New York, US", to: "Sydney, AU", zero: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JumpKM(tt.from, tt.to)
			if tt.zero && got != 0 {
				t.Errorf("JumpKM(%q, %q) = %.1f, want 0", tt.from, tt.to, got)
			}
			if !tt.zero && got <= 0 {
				t.Errorf("JumpKM(%q, %q) = %.1f, want > 0", tt.from, tt.to, got)
			}
		})
	}
}

func TestLocationRisk(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"New York, US", RiskLow},
		{"Mumbai, IN", RiskMedium},
		{"Moscow, RU", RiskHigh},
		{"Pyongyang, KP", RiskVeryHigh},
		{"Atlantis, XX", RiskLow},
	}

	for _, tt := range tests {
		if got := LocationRisk(tt.location); got != tt.want {
			t.Errorf("LocationRisk(%q) = %q, want %q", tt.location, got, tt.want)
		}
	}
}

func TestIsHighRisk(t *testing.T) {
	if IsHighRisk("London, UK") {
		t.Error("London should not be high risk")
	}
	if !IsHighRisk("Tehran, IR") {
		t.Error("Tehran should be high risk")
	}
}

func TestLocations(t *testing.T) {
	lowRisk := Locations(RiskLow)
	if len(lowRisk) == 0 {
		t.Fatal("expected low-risk locations")
	}
	for _, loc := range lowRisk {
		if LocationRisk(loc) != RiskLow {
			t.Errorf("Locations(low) returned %q with risk %q", loc, LocationRisk(loc))
		}
	}
}

func TestLocationsStableOrder(t *testing.T) {
	first := Locations("")
	if !sort.StringsAreSorted(first) {
		t.Errorf("Locations not sorted: %v", first)
	}
	for i := 0; i < 10; i++ {
		again := Locations("")
		if len(again) != len(first) {
			t.Fatalf("length changed between calls: %d != %d", len(again), len(first))
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("order changed at %d: %q != %q", j, again[j], first[j])
			}
		}
	}
}
