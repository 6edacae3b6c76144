package scoring

import (
	"errors"
	"math"
	"math/rand"

	"rediguard/internal/models"

	"go.uber.org/zap"
)

// ErrModelUnavailable is returned when scoring is requested before the model
// has been trained. The pipeline fails closed on it: the event is flagged
// for review instead of passing through as safe.
var ErrModelUnavailable = errors.New("anomaly model unavailable")

// Scorer produces anomaly scores in [0,1] from feature vectors. The score is
// the isolation-forest output blended with a deterministic travel-feasibility
// term, so impossible travel always saturates above the alert threshold even
// when the forest alone is conservative.
type Scorer struct {
	forest *Forest
	logger *zap.Logger
}

// Options configures model training.
type Options struct {
	Trees        int
	SampleSize   int
	Seed         int64
	NumNormal    int
	NumAnomalous int
}

// NewScorer trains a scorer on seeded synthetic bootstrap data.
func NewScorer(opts Options, logger *zap.Logger) *Scorer {
	if opts.NumNormal <= 0 {
		opts.NumNormal = 1000
	}
	if opts.NumAnomalous <= 0 {
		opts.NumAnomalous = 50
	}

	forest := NewForest(opts.Trees, opts.SampleSize)
	rng := rand.New(rand.NewSource(opts.Seed))
	data := BootstrapData(opts.NumNormal, opts.NumAnomalous, rng)
	forest.Fit(data, rng)

	logger.Info("Anomaly model trained",
		zap.Int("trees", len(forest.trees)),
		zap.Int("sample_size", forest.sampleSize),
		zap.Int("training_rows", len(data)),
		zap.Int64("seed", opts.Seed),
	)

	return &Scorer{forest: forest, logger: logger}
}

// NewUntrainedScorer returns a scorer with no model, used to exercise the
// fail-closed path.
func NewUntrainedScorer(logger *zap.Logger) *Scorer {
	return &Scorer{forest: NewForest(0, 0), logger: logger}
}

// Score returns the anomaly score for a feature vector. Deterministic for
// identical input once the model is trained.
func (s *Scorer) Score(features models.FeatureVector) (float64, error) {
	if !s.forest.Trained() {
		return 0, ErrModelUnavailable
	}

	forestScore := s.forest.Score(features.Values())
	saturated := travelSaturation(features.VelocityKMH)

	return clamp01(math.Max(forestScore, saturated)), nil
}

// Ready reports whether the model can score.
func (s *Scorer) Ready() bool {
	return s.forest.Trained()
}
