package scoring

import (
	"errors"
	"math/rand"
	"testing"

	"go.uber.org/zap"

	"rediguard/internal/models"
)

func testScorer() *Scorer {
	return NewScorer(Options{
		Trees:      100,
		SampleSize: 256,
		Seed:       42,
	}, zap.NewNop())
}

func TestScoreDeterministic(t *testing.T) {
	a := testScorer()
	b := testScorer()

	vector := models.FeatureVector{
		TimeOfDay:     0.5,
		GeoJumpKM:     12000,
		VelocityKMH:   4000,
		IPClass:       3,
		HistFrequency: 2,
	}

	scoreA, err := a.Score(vector)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	scoreB, err := b.Score(vector)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	if scoreA != scoreB {
		t.Errorf("same seed, same input: %.6f != %.6f", scoreA, scoreB)
	}

	// Same scorer, same input must repeat exactly.
	again, _ := a.Score(vector)
	if again != scoreA {
		t.Errorf("repeat score changed: %.6f != %.6f", again, scoreA)
	}
}

func TestScoreRange(t *testing.T) {
	s := testScorer()

	vectors := []models.FeatureVector{
		{TimeOfDay: 0.4, GeoJumpKM: 0, VelocityKMH: 0, IPClass: 0, HistFrequency: 3},
		{TimeOfDay: 0.1, GeoJumpKM: 15988, VelocityKMH: 417000, IPClass: 3, HistFrequency: 0},
		{TimeOfDay: 0.99, GeoJumpKM: 500, VelocityKMH: 900, IPClass: 2, HistFrequency: 20},
	}

	for i, vector := range vectors {
		score, err := s.Score(vector)
		if err != nil {
			t.Fatalf("vector %d: %v", i, err)
		}
		if score < 0 || score > 1 {
			t.Errorf("vector %d: score %.4f outside [0,1]", i, score)
		}
	}
}

func TestAnomalousScoresHigherThanNormal(t *testing.T) {
	s := testScorer()

	normal := models.FeatureVector{
		TimeOfDay:     0.45, // late morning
		GeoJumpKM:     0,
		VelocityKMH:   0,
		IPClass:       0,
		HistFrequency: 4,
	}
	anomalous := models.FeatureVector{
		TimeOfDay:     0.12, // middle of the night
		GeoJumpKM:     15988,
		VelocityKMH:   417000,
		IPClass:       3,
		HistFrequency: 0,
	}

	normalScore, _ := s.Score(normal)
	anomalousScore, _ := s.Score(anomalous)

	if anomalousScore <= normalScore {
		t.Errorf("anomalous %.4f should exceed normal %.4f", anomalousScore, normalScore)
	}
}

func TestImpossibleTravelSaturatesAboveThreshold(t *testing.T) {
	s := testScorer()

	// New York to Sydney in 138 seconds.
	vector := models.FeatureVector{
		TimeOfDay:     0.5,
		GeoJumpKM:     15988,
		VelocityKMH:   15988 / (138.0 / 3600),
		IPClass:       1,
		HistFrequency: 5,
	}

	score, err := s.Score(vector)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score <= 0.8 {
		t.Errorf("impossible travel score = %.4f, want > 0.8", score)
	}
}

func TestFeasibleVelocityNotSaturated(t *testing.T) {
	if got := travelSaturation(900); got != 0 {
		t.Errorf("travelSaturation(900) = %.4f, want 0", got)
	}
	if got := travelSaturation(MaxFeasibleVelocityKMH); got != 0 {
		t.Errorf("travelSaturation(max) = %.4f, want 0", got)
	}
	if got := travelSaturation(1500); got <= 0.8 {
		t.Errorf("travelSaturation(1500) = %.4f, want > 0.8", got)
	}
}

func TestUntrainedScorerFailsClosed(t *testing.T) {
	s := NewUntrainedScorer(zap.NewNop())

	_, err := s.Score(models.FeatureVector{})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if s.Ready() {
		t.Error("untrained scorer reports ready")
	}
}

func TestBootstrapDataShape(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	data := BootstrapData(1000, 50, rng)

	if len(data) != 1050 {
		t.Fatalf("bootstrap rows = %d, want 1050", len(data))
	}
	for i, row := range data {
		if len(row) != models.FeatureDimensions {
			t.Fatalf("row %d has %d dims, want %d", i, len(row), models.FeatureDimensions)
		}
	}
}
