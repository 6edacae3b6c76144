// Package store defines the storage contracts the pipeline writes through.
// Each backend (Kafka, Redis, Elasticsearch, ClickHouse) implements one of
// these in its own subpackage; in-memory variants back tests and degraded
// operation.
package store

import (
	"context"
	"errors"

	"rediguard/internal/models"
)

// ErrUnavailable indicates the backing store is unreachable. Background
// tasks pause and report degraded status on it instead of crashing.
var ErrUnavailable = errors.New("storage unavailable")

// EventLog is the append-only, arrival-ordered login event log.
type EventLog interface {
	// Append adds an event to the log and returns its position.
	Append(ctx context.Context, event models.LoginEvent) (models.EventRef, error)
	// Length returns the number of events ever appended, for statistics.
	Length(ctx context.Context) (int64, error)
}

// StateStore holds per-user last-known state. Writers serialize per user at
// the pipeline layer; the store itself only needs atomic single-key ops.
type StateStore interface {
	// Get returns the user's state, or nil when the user has none yet.
	Get(ctx context.Context, userID string) (*models.UserState, error)
	Put(ctx context.Context, state *models.UserState) error
	Clear(ctx context.Context) error
}

// ScoreSeries is the per-user append-only anomaly score sequence with a
// bounded rolling retention window.
type ScoreSeries interface {
	Append(ctx context.Context, score models.AnomalyScore) error
	// Range returns scores with from <= timestamp <= to, ascending.
	Range(ctx context.Context, userID string, from, to int64) ([]models.AnomalyScore, error)
	Clear(ctx context.Context) error
}

// EmbeddingStore persists behavior embeddings and answers nearest-neighbor
// queries by cosine similarity.
type EmbeddingStore interface {
	Put(ctx context.Context, embedding models.BehaviorEmbedding) error
	// Latest returns the most recent embedding for a user, or nil.
	Latest(ctx context.Context, userID string) (*models.BehaviorEmbedding, error)
	// Nearest returns up to k embeddings closest to the query vector.
	Nearest(ctx context.Context, vector []float32, k int) ([]models.BehaviorEmbedding, error)
	Clear(ctx context.Context) error
}

// AlertQuery filters alert searches. Nil/zero fields are unconstrained.
type AlertQuery struct {
	MinScore  *float64
	MaxScore  *float64
	StartTime *int64
	EndTime   *int64
	UserID    string
	IP        string
	Location  string
	Limit     int
}

// AlertIndex stores alerts and serves range/text queries over them. Index is
// idempotent on AlertID: re-indexing the same alert overwrites in place.
type AlertIndex interface {
	Index(ctx context.Context, alert *models.Alert) error
	Search(ctx context.Context, query AlertQuery) ([]models.Alert, error)
	Count(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}

// EventArchive receives processed-event rows for offline analytics.
type EventArchive interface {
	Archive(ctx context.Context, rows []models.ProcessedEvent) error
	Count(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}
