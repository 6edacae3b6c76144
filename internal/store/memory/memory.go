// Package memory provides in-memory store implementations. They back the
// pipeline tests and serve as a degraded-mode fallback when a backend is
// configured off.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"rediguard/internal/models"
	"rediguard/internal/store"
)

// EventLog is an append-only in-memory event slice.
type EventLog struct {
	mu     sync.Mutex
	events []models.LoginEvent
}

func NewEventLog() *EventLog { return &EventLog{} }

func (l *EventLog) Append(ctx context.Context, event models.LoginEvent) (models.EventRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return models.EventRef{Topic: "memory", ID: uuid.NewString()}, nil
}

func (l *EventLog) Length(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.events)), nil
}

// Events returns a snapshot of everything appended, in arrival order.
func (l *EventLog) Events() []models.LoginEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.LoginEvent, len(l.events))
	copy(out, l.events)
	return out
}

// StateStore keeps per-user state in a map.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]models.UserState
}

func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]models.UserState)}
}

func (s *StateStore) Get(ctx context.Context, userID string) (*models.UserState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[userID]
	if !ok {
		return nil, nil
	}
	cp := state
	cp.RecentScores = append([]float64(nil), state.RecentScores...)
	return &cp, nil
}

func (s *StateStore) Put(ctx context.Context, state *models.UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *state
	cp.RecentScores = append([]float64(nil), state.RecentScores...)
	s.states[state.UserID] = cp
	return nil
}

func (s *StateStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[string]models.UserState)
	return nil
}

// ScoreSeries keeps per-user score slices sorted by timestamp.
type ScoreSeries struct {
	mu     sync.Mutex
	series map[string][]models.AnomalyScore
}

func NewScoreSeries() *ScoreSeries {
	return &ScoreSeries{series: make(map[string][]models.AnomalyScore)}
}

func (s *ScoreSeries) Append(ctx context.Context, score models.AnomalyScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := append(s.series[score.UserID], score)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp < entries[j].Timestamp })
	s.series[score.UserID] = entries
	return nil
}

func (s *ScoreSeries) Range(ctx context.Context, userID string, from, to int64) ([]models.AnomalyScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AnomalyScore
	for _, entry := range s.series[userID] {
		if entry.Timestamp >= from && entry.Timestamp <= to {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *ScoreSeries) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series = make(map[string][]models.AnomalyScore)
	return nil
}

// EmbeddingStore keeps embeddings in insertion order and answers cosine
// nearest-neighbor queries by brute force.
type EmbeddingStore struct {
	mu         sync.Mutex
	embeddings []models.BehaviorEmbedding
}

func NewEmbeddingStore() *EmbeddingStore { return &EmbeddingStore{} }

func (e *EmbeddingStore) Put(ctx context.Context, embedding models.BehaviorEmbedding) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := embedding
	cp.Vector = append([]float32(nil), embedding.Vector...)
	e.embeddings = append(e.embeddings, cp)
	return nil
}

func (e *EmbeddingStore) Latest(ctx context.Context, userID string) (*models.BehaviorEmbedding, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.embeddings) - 1; i >= 0; i-- {
		if e.embeddings[i].UserID == userID {
			cp := e.embeddings[i]
			cp.Vector = append([]float32(nil), cp.Vector...)
			return &cp, nil
		}
	}
	return nil, nil
}

func (e *EmbeddingStore) Nearest(ctx context.Context, vector []float32, k int) ([]models.BehaviorEmbedding, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	type scored struct {
		embedding models.BehaviorEmbedding
		sim       float64
	}
	candidates := make([]scored, 0, len(e.embeddings))
	for _, emb := range e.embeddings {
		candidates = append(candidates, scored{embedding: emb, sim: cosineSimilarity(vector, emb.Vector)})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })

	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]models.BehaviorEmbedding, 0, k)
	for _, c := range candidates[:k] {
		cp := c.embedding
		cp.Vector = append([]float32(nil), cp.Vector...)
		out = append(out, cp)
	}
	return out, nil
}

func (e *EmbeddingStore) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.embeddings = nil
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
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

// AlertIndex stores alerts keyed by alert ID and filters linearly on search.
type AlertIndex struct {
	mu     sync.Mutex
	alerts map[string]models.Alert
}

func NewAlertIndex() *AlertIndex {
	return &AlertIndex{alerts: make(map[string]models.Alert)}
}

func (a *AlertIndex) Index(ctx context.Context, alert *models.Alert) error {
	if alert.AlertID == "" {
		return fmt.Errorf("alert is missing an ID")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *alert
	cp.RiskFactors = append([]string(nil), alert.RiskFactors...)
	a.alerts[alert.AlertID] = cp
	return nil
}

func (a *AlertIndex) Search(ctx context.Context, query store.AlertQuery) ([]models.Alert, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []models.Alert
	for _, alert := range a.alerts {
		if matches(alert, query) {
			out = append(out, alert)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })

	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matches(alert models.Alert, query store.AlertQuery) bool {
	if query.MinScore != nil && alert.Score < *query.MinScore {
		return false
	}
	if query.MaxScore != nil && alert.Score > *query.MaxScore {
		return false
	}
	if query.StartTime != nil && alert.Timestamp < *query.StartTime {
		return false
	}
	if query.EndTime != nil && alert.Timestamp > *query.EndTime {
		return false
	}
	if query.UserID != "" && alert.UserID != query.UserID {
		return false
	}
	if query.IP != "" && alert.IP != query.IP {
		return false
	}
	if query.Location != "" && !strings.Contains(strings.ToLower(alert.Location), strings.ToLower(query.Location)) {
		return false
	}
	return true
}

func (a *AlertIndex) Count(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int64(len(a.alerts)), nil
}

func (a *AlertIndex) Clear(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = make(map[string]models.Alert)
	return nil
}

// EventArchive collects processed rows in a slice.
type EventArchive struct {
	mu   sync.Mutex
	rows []models.ProcessedEvent
}

func NewEventArchive() *EventArchive { return &EventArchive{} }

func (e *EventArchive) Archive(ctx context.Context, rows []models.ProcessedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows = append(e.rows, rows...)
	return nil
}

func (e *EventArchive) Count(ctx context.Context) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int64(len(e.rows)), nil
}

func (e *EventArchive) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows = nil
	return nil
}

// Rows returns a snapshot of archived rows.
func (e *EventArchive) Rows() []models.ProcessedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.ProcessedEvent, len(e.rows))
	copy(out, e.rows)
	return out
}
