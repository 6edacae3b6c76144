package models

import "time"

// LoginEvent is a single login observation. Immutable once ingested.
type LoginEvent struct {
	UserID    string `json:"user_id"`
	IP        string `json:"ip"`
	Location  string `json:"location"`
	Timestamp int64  `json:"timestamp"`
}

// EventRef is an opaque reference to an ingested event in the log.
type EventRef struct {
	Topic string `json:"topic"`
	ID    string `json:"id"`
}

// UserState is the per-user "last known" record the extractor reads and updates.
type UserState struct {
	UserID        string    `json:"user_id"`
	LastLocation  string    `json:"last_location"`
	LastTimestamp int64     `json:"last_timestamp"`
	RecentScores  []float64 `json:"recent_scores"`
}

// FeatureVector is the fixed-size numeric input to the anomaly scorer.
// Ephemeral; never persisted on its own.
type FeatureVector struct {
	TimeOfDay     float64 // position within the 24h cycle, [0,1)
	GeoJumpKM     float64
	VelocityKMH   float64
	IPClass       float64
	HistFrequency float64
}

// Values returns the vector in scoring order.
func (f FeatureVector) Values() []float64 {
	return []float64{f.TimeOfDay, f.GeoJumpKM, f.VelocityKMH, f.IPClass, f.HistFrequency}
}

// FeatureDimensions is the width of FeatureVector.Values.
const FeatureDimensions = 5

// AnomalyScore is one append-only entry in a user's score series.
type AnomalyScore struct {
	UserID    string  `json:"user_id"`
	Timestamp int64   `json:"timestamp"`
	Score     float64 `json:"score"`
}

// BehaviorEmbedding is a fixed-dimension vector summarizing one event,
// used only for nearest-neighbor similarity queries.
type BehaviorEmbedding struct {
	UserID    string    `json:"user_id"`
	Timestamp int64     `json:"timestamp"`
	Vector    []float32 `json:"vector"`
}

// Risk factors attached to alerts. Additive: every triggered factor is listed.
const (
	RiskHighAnomalyScore = "high_anomaly_score"
	RiskKnownBadIP       = "known_bad_ip"
	RiskImpossibleTravel = "impossible_travel"
	RiskHighRiskLocation = "high_risk_location"
	RiskModelUnavailable = "model_unavailable"
)

// Alert is the searchable document materialized when an event trips the
// anomaly condition. Field names are part of the dashboard contract.
type Alert struct {
	AlertID     string   `json:"alert_id"`
	UserID      string   `json:"user_id"`
	IP          string   `json:"ip"`
	Score       float64  `json:"score"`
	Location    string   `json:"location"`
	GeoJumpKM   float64  `json:"geo_jump_km"`
	RiskFactors []string `json:"risk_factors"`
	Timestamp   int64    `json:"timestamp"`
	Resolved    bool     `json:"resolved"`
}

// HasRiskFactor reports whether the alert lists the given factor.
func (a *Alert) HasRiskFactor(factor string) bool {
	for _, f := range a.RiskFactors {
		if f == factor {
			return true
		}
	}
	return false
}

// ProcessedEvent is the archived outcome of one pipeline run.
type ProcessedEvent struct {
	UserID    string
	IP        string
	Location  string
	EventTime time.Time
	Score     float64
	GeoJumpKM float64
	Alerted   bool
}
