// Package pipeline implements the per-event scoring flow: feature
// extraction, anomaly scoring, state and embedding persistence, and alert
// materialization.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rediguard/internal/bucketing"
	"rediguard/internal/features"
	"rediguard/internal/geo"
	"rediguard/internal/ipset"
	"rediguard/internal/metrics"
	"rediguard/internal/models"
	"rediguard/internal/scoring"
	"rediguard/internal/store"
)

// alertNamespace seeds deterministic alert IDs. The same event always maps
// to the same alert document, so replaying the log cannot duplicate alerts.
var alertNamespace = uuid.MustParse("8f1c9f2e-4b7a-5d36-9c81-2a6e0d5b7f43")

// Options carries the tunables the pipeline needs.
type Options struct {
	AnomalyThreshold   float64
	GeoJumpThresholdKM float64
	VectorDimension    int
	LockStripes        int
}

// Result summarizes one pipeline run.
type Result struct {
	Score     float64
	GeoJumpKM float64
	Alert     *models.Alert
}

// Pipeline processes login events one at a time, serialized per user so
// state reads and writes for the same user never interleave.
type Pipeline struct {
	states     store.StateStore
	scores     store.ScoreSeries
	embeddings store.EmbeddingStore
	alerts     store.AlertIndex
	archive    store.EventArchive
	badIPs     ipset.Set
	scorer     *scoring.Scorer
	opts       Options
	locks      []sync.Mutex
	buckets    *bucketing.Manager
	logger     *zap.Logger
}

func New(
	states store.StateStore,
	scores store.ScoreSeries,
	embeddings store.EmbeddingStore,
	alerts store.AlertIndex,
	archive store.EventArchive,
	badIPs ipset.Set,
	scorer *scoring.Scorer,
	opts Options,
	logger *zap.Logger,
) *Pipeline {
	if opts.LockStripes <= 0 {
		opts.LockStripes = 64
	}
	if opts.VectorDimension <= 0 {
		opts.VectorDimension = 128
	}
	return &Pipeline{
		states:     states,
		scores:     scores,
		embeddings: embeddings,
		alerts:     alerts,
		archive:    archive,
		badIPs:     badIPs,
		scorer:     scorer,
		opts:       opts,
		locks:      make([]sync.Mutex, opts.LockStripes),
		buckets:    bucketing.NewManager(opts.LockStripes),
		logger:     logger,
	}
}

// Process runs one event through the full flow and returns its outcome.
// Exactly one score entry and one embedding are written per call; an alert
// is written only when a risk factor triggers.
func (p *Pipeline) Process(ctx context.Context, event models.LoginEvent) (*Result, error) {
	started := time.Now()

	stripe := p.buckets.UserStripe(event.UserID)
	p.locks[stripe].Lock()
	defer p.locks[stripe].Unlock()

	prior, err := p.states.Get(ctx, event.UserID)
	if err != nil {
		metrics.EventsProcessedTotal.WithLabelValues("failed").Inc()
		metrics.StoreFailuresTotal.WithLabelValues("state").Inc()
		return nil, fmt.Errorf("failed to load user state: %w", err)
	}

	vector, geoJump, updated := features.Extract(event, prior)

	var riskFactors []string
	score, err := p.scorer.Score(vector)
	if err != nil {
		if !errors.Is(err, scoring.ErrModelUnavailable) {
			metrics.EventsProcessedTotal.WithLabelValues("failed").Inc()
			return nil, err
		}
		// Fail closed: an unscorable event is flagged for review rather
		// than passed through as safe.
		riskFactors = append(riskFactors, models.RiskModelUnavailable)
		p.logger.Warn("Scoring model unavailable, flagging event",
			zap.String("user_id", event.UserID),
		)
	}
	metrics.AnomalyScoreDistribution.Observe(score)

	malicious, err := p.badIPs.Contains(ctx, event.IP)
	if err != nil {
		metrics.StoreFailuresTotal.WithLabelValues("ipset").Inc()
		return nil, fmt.Errorf("failed to check malicious IP set: %w", err)
	}

	if score > p.opts.AnomalyThreshold {
		riskFactors = append(riskFactors, models.RiskHighAnomalyScore)
	}
	if malicious {
		riskFactors = append(riskFactors, models.RiskKnownBadIP)
	}
	if geoJump >= p.opts.GeoJumpThresholdKM {
		riskFactors = append(riskFactors, models.RiskImpossibleTravel)
	}
	if geo.IsHighRisk(event.Location) {
		riskFactors = append(riskFactors, models.RiskHighRiskLocation)
	}

	if err := p.scores.Append(ctx, models.AnomalyScore{
		UserID:    event.UserID,
		Timestamp: event.Timestamp,
		Score:     score,
	}); err != nil {
		metrics.StoreFailuresTotal.WithLabelValues("scores").Inc()
		return nil, fmt.Errorf("failed to append anomaly score: %w", err)
	}

	if err := p.embeddings.Put(ctx, models.BehaviorEmbedding{
		UserID:    event.UserID,
		Timestamp: event.Timestamp,
		Vector:    p.embed(vector, score),
	}); err != nil {
		metrics.StoreFailuresTotal.WithLabelValues("embeddings").Inc()
		return nil, fmt.Errorf("failed to store behavior embedding: %w", err)
	}

	features.PushScore(updated, score)
	if err := p.states.Put(ctx, updated); err != nil {
		metrics.StoreFailuresTotal.WithLabelValues("state").Inc()
		return nil, fmt.Errorf("failed to persist user state: %w", err)
	}

	result := &Result{Score: score, GeoJumpKM: geoJump}

	if len(riskFactors) > 0 {
		alert := &models.Alert{
			AlertID:     alertID(event),
			UserID:      event.UserID,
			IP:          event.IP,
			Score:       score,
			Location:    event.Location,
			GeoJumpKM:   geoJump,
			RiskFactors: riskFactors,
			Timestamp:   event.Timestamp,
			Resolved:    false,
		}
		if err := p.alerts.Index(ctx, alert); err != nil {
			metrics.StoreFailuresTotal.WithLabelValues("alerts").Inc()
			return nil, fmt.Errorf("failed to index alert: %w", err)
		}
		result.Alert = alert

		for _, factor := range riskFactors {
			metrics.AlertsCreatedTotal.WithLabelValues(factor).Inc()
		}
		p.logger.Info("Security alert created",
			zap.String("alert_id", alert.AlertID),
			zap.String("user_id", alert.UserID),
			zap.Float64("score", alert.Score),
			zap.Strings("risk_factors", alert.RiskFactors),
		)
	}

	if err := p.archive.Archive(ctx, []models.ProcessedEvent{{
		UserID:    event.UserID,
		IP:        event.IP,
		Location:  event.Location,
		EventTime: time.Unix(event.Timestamp, 0).UTC(),
		Score:     score,
		GeoJumpKM: geoJump,
		Alerted:   result.Alert != nil,
	}}); err != nil {
		// The archive is analytics-only; a failed insert does not undo an
		// already-materialized alert.
		metrics.StoreFailuresTotal.WithLabelValues("archive").Inc()
		p.logger.Warn("Failed to archive processed event",
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
	}

	metrics.EventsProcessedTotal.WithLabelValues("ok").Inc()
	metrics.ProcessingDuration.Observe(time.Since(started).Seconds())
	return result, nil
}

// alertID derives a stable ID from the event identity, so reprocessing the
// same event overwrites its alert instead of duplicating it.
func alertID(event models.LoginEvent) string {
	name := fmt.Sprintf("%s|%d|%s", event.UserID, event.Timestamp, event.IP)
	return uuid.NewSHA1(alertNamespace, []byte(name)).String()
}

// embed expands the feature vector into a fixed-dimension float32 embedding.
// Features are squashed into [0,1] and written cyclically with a decaying
// weight; the final slot carries the score so near-identical behavior with
// different outcomes still separates.
func (p *Pipeline) embed(vector models.FeatureVector, score float64) []float32 {
	raw := []float64{
		vector.TimeOfDay,
		squash(vector.GeoJumpKM / 1000),
		squash(vector.VelocityKMH / 1000),
		vector.IPClass / 3,
		squash(vector.HistFrequency / 10),
	}

	out := make([]float32, p.opts.VectorDimension)
	for i := 0; i < p.opts.VectorDimension-1; i++ {
		weight := 1.0 / float64(1+i/len(raw))
		out[i] = float32(raw[i%len(raw)] * weight)
	}
	out[p.opts.VectorDimension-1] = float32(score)
	return out
}

// squash maps [0, inf) into [0, 1).
func squash(x float64) float64 {
	return 1 - math.Exp(-math.Max(x, 0))
}
