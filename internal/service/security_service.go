// Package service implements the business operations behind the HTTP API:
// event ingestion, alert search, user history, IP intelligence and the
// demo data tasks.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rediguard/internal/config"
	"rediguard/internal/ipset"
	"rediguard/internal/metrics"
	"rediguard/internal/models"
	"rediguard/internal/store"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrLimitExceeded        = errors.New("request exceeds configured limit")
	ErrConfirmationRequired = errors.New("destructive operation requires confirmation")
	ErrTaskConflict         = errors.New("a background task is already running")
	ErrTaskNotRunning       = errors.New("no background task is running")
)

// earliestPlausibleTimestamp rejects obviously bogus epochs (before
// 2000-01-01 UTC).
const earliestPlausibleTimestamp = 946684800

// maxFutureSkew tolerates client clock drift on incoming events.
const maxFutureSkew = 24 * time.Hour

// LoginEventRequest is the ingestion payload. Timestamp is optional; an
// omitted or zero timestamp defaults to the time of receipt.
type LoginEventRequest struct {
	UserID    string `json:"user_id" validate:"required,max=128"`
	IP        string `json:"ip" validate:"required,max=64"`
	Location  string `json:"location" validate:"required,max=128"`
	Timestamp int64  `json:"timestamp"`
}

// GenerateEventsRequest asks for a synchronous batch of demo events.
type GenerateEventsRequest struct {
	Count       int     `json:"count" validate:"required,min=1"`
	AnomalyRate float64 `json:"anomaly_rate" validate:"min=0,max=1"`
}

// AddMaliciousIPRequest registers an IP in the bad-IP set.
type AddMaliciousIPRequest struct {
	IP string `json:"ip" validate:"required,max=64"`
}

// ClearDataRequest guards the destructive reset.
type ClearDataRequest struct {
	Confirm bool `json:"confirm"`
}

// IPCheckResult is the response of a bad-IP lookup.
type IPCheckResult struct {
	IP          string `json:"ip"`
	IsMalicious bool   `json:"is_malicious"`
	CheckedAt   int64  `json:"checked_at"`
}

// SimilarUser is one nearest-neighbor match by behavior embedding.
type SimilarUser struct {
	UserID     string  `json:"user_id"`
	Timestamp  int64   `json:"timestamp"`
	Similarity float64 `json:"similarity"`
}

// StatsOverview aggregates counts across the backends. A backend that cannot
// be reached reports -1 and sets Degraded instead of failing the request.
type StatsOverview struct {
	TotalEvents    int64 `json:"total_events"`
	TotalAlerts    int64 `json:"total_alerts"`
	ArchivedEvents int64 `json:"archived_events"`
	MaliciousIPs   int64 `json:"malicious_ips"`
	Degraded       bool  `json:"degraded"`
}

// SecurityService coordinates ingestion and queries across the stores.
type SecurityService struct {
	eventLog   store.EventLog
	scores     store.ScoreSeries
	embeddings store.EmbeddingStore
	alerts     store.AlertIndex
	archive    store.EventArchive
	states     store.StateStore
	badIPs     ipset.Set
	generator  *Generator
	limits     config.LimitsConfig
	validate   *validator.Validate
	logger     *zap.Logger
}

func NewSecurityService(
	eventLog store.EventLog,
	scores store.ScoreSeries,
	embeddings store.EmbeddingStore,
	alerts store.AlertIndex,
	archive store.EventArchive,
	states store.StateStore,
	badIPs ipset.Set,
	generator *Generator,
	limits config.LimitsConfig,
	logger *zap.Logger,
) *SecurityService {
	return &SecurityService{
		eventLog:   eventLog,
		scores:     scores,
		embeddings: embeddings,
		alerts:     alerts,
		archive:    archive,
		states:     states,
		badIPs:     badIPs,
		generator:  generator,
		limits:     limits,
		validate:   validator.New(),
		logger:     logger,
	}
}

// SubmitLoginEvent validates an event and appends it to the event log. The
// consumer scores it asynchronously.
func (s *SecurityService) SubmitLoginEvent(ctx context.Context, req *LoginEventRequest) (models.EventRef, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.EventRef{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().Unix()
	}
	if err := validateTimestamp(req.Timestamp); err != nil {
		return models.EventRef{}, err
	}

	event := models.LoginEvent{
		UserID:    req.UserID,
		IP:        req.IP,
		Location:  req.Location,
		Timestamp: req.Timestamp,
	}

	ref, err := s.eventLog.Append(ctx, event)
	if err != nil {
		return models.EventRef{}, err
	}

	metrics.EventsIngestedTotal.WithLabelValues("api").Inc()
	s.logger.Debug("Login event accepted",
		zap.String("user_id", event.UserID),
		zap.String("event_ref", ref.ID),
	)
	return ref, nil
}

// GenerateBatch creates a bounded batch of demo events and appends them
// concurrently. Returns the number of events appended.
func (s *SecurityService) GenerateBatch(ctx context.Context, req *GenerateEventsRequest) (int, error) {
	if err := s.validate.Struct(req); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if req.Count > s.limits.MaxBatchEvents {
		return 0, fmt.Errorf("%w: batch size %d exceeds maximum %d",
			ErrLimitExceeded, req.Count, s.limits.MaxBatchEvents)
	}

	now := time.Now()
	events := make([]models.LoginEvent, req.Count)
	for i := range events {
		events[i] = s.generator.Generate(now, req.AnomalyRate)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for _, event := range events {
		event := event
		group.Go(func() error {
			if _, err := s.eventLog.Append(ctx, event); err != nil {
				return err
			}
			metrics.EventsIngestedTotal.WithLabelValues("generator").Inc()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return 0, err
	}
	return len(events), nil
}

// SearchAlerts runs a filtered alert query.
func (s *SecurityService) SearchAlerts(ctx context.Context, query store.AlertQuery) ([]models.Alert, error) {
	if query.Limit <= 0 {
		query.Limit = 100
	}
	return s.alerts.Search(ctx, query)
}

// AnomalyHistory returns a user's scores over the trailing window, oldest
// first.
func (s *SecurityService) AnomalyHistory(ctx context.Context, userID string, hours int) ([]models.AnomalyScore, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if hours <= 0 {
		hours = 24
	}

	now := time.Now().Unix()
	from := now - int64(hours)*3600
	return s.scores.Range(ctx, userID, from, now)
}

// SimilarBehavior finds users whose recent behavior embeddings are closest
// to the given user's latest embedding. The user's own entries are skipped.
func (s *SecurityService) SimilarBehavior(ctx context.Context, userID string, k int) ([]SimilarUser, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if k <= 0 || k > 50 {
		k = 10
	}

	latest, err := s.embeddings.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}

	// Over-fetch so dropping the user's own entries still leaves k matches.
	neighbors, err := s.embeddings.Nearest(ctx, latest.Vector, k*3)
	if err != nil {
		return nil, err
	}

	out := make([]SimilarUser, 0, k)
	for _, n := range neighbors {
		if n.UserID == userID {
			continue
		}
		out = append(out, SimilarUser{
			UserID:     n.UserID,
			Timestamp:  n.Timestamp,
			Similarity: cosine(latest.Vector, n.Vector),
		})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// CheckIP reports whether an IP is in the bad-IP set.
func (s *SecurityService) CheckIP(ctx context.Context, ip string) (*IPCheckResult, error) {
	if ip == "" {
		return nil, fmt.Errorf("%w: ip is required", ErrInvalidInput)
	}

	malicious, err := s.badIPs.Contains(ctx, ip)
	if err != nil {
		return nil, err
	}
	return &IPCheckResult{
		IP:          ip,
		IsMalicious: malicious,
		CheckedAt:   time.Now().Unix(),
	}, nil
}

// AddMaliciousIP registers an IP in the bad-IP set.
func (s *SecurityService) AddMaliciousIP(ctx context.Context, req *AddMaliciousIPRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := s.badIPs.Add(ctx, req.IP); err != nil {
		return err
	}
	s.logger.Info("Malicious IP registered", zap.String("ip", req.IP))
	return nil
}

// ClearAllData wipes every store. Refuses to act without explicit
// confirmation.
func (s *SecurityService) ClearAllData(ctx context.Context, req *ClearDataRequest) error {
	if !req.Confirm {
		return ErrConfirmationRequired
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.states.Clear(ctx) })
	group.Go(func() error { return s.scores.Clear(ctx) })
	group.Go(func() error { return s.embeddings.Clear(ctx) })
	group.Go(func() error { return s.alerts.Clear(ctx) })
	group.Go(func() error { return s.archive.Clear(ctx) })
	group.Go(func() error { return s.badIPs.Clear(ctx) })
	if err := group.Wait(); err != nil {
		return err
	}

	s.logger.Warn("All security data cleared")
	return nil
}

// Stats builds the overview without failing on a single unreachable
// backend: unreachable counts report -1 and flip the degraded flag.
func (s *SecurityService) Stats(ctx context.Context) *StatsOverview {
	overview := &StatsOverview{}

	overview.TotalEvents = s.countOrDegrade(overview, "event_log", func() (int64, error) {
		return s.eventLog.Length(ctx)
	})
	overview.TotalAlerts = s.countOrDegrade(overview, "alerts", func() (int64, error) {
		return s.alerts.Count(ctx)
	})
	overview.ArchivedEvents = s.countOrDegrade(overview, "archive", func() (int64, error) {
		return s.archive.Count(ctx)
	})
	overview.MaliciousIPs = s.countOrDegrade(overview, "ipset", func() (int64, error) {
		return s.badIPs.Cardinality(ctx)
	})
	return overview
}

func (s *SecurityService) countOrDegrade(overview *StatsOverview, backend string, count func() (int64, error)) int64 {
	n, err := count()
	if err != nil {
		overview.Degraded = true
		metrics.StoreFailuresTotal.WithLabelValues(backend).Inc()
		s.logger.Warn("Stats backend unavailable",
			zap.String("backend", backend),
			zap.Error(err),
		)
		return -1
	}
	return n
}

func validateTimestamp(ts int64) error {
	if ts < earliestPlausibleTimestamp {
		return fmt.Errorf("%w: timestamp %d is implausibly old", ErrInvalidInput, ts)
	}
	if ts > time.Now().Add(maxFutureSkew).Unix() {
		return fmt.Errorf("%w: timestamp %d is too far in the future", ErrInvalidInput, ts)
	}
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
