package features

import (
	"math"
	"strings"
	"time"

	"rediguard/internal/geo"
	"rediguard/internal/models"
)

// IP class indicator values. A coarse deterministic signal, not a blocker.
const (
	IPClassCorporate    = 0
	IPClassHome         = 1
	IPClassVPN          = 2
	IPClassUnclassified = 3
)

// Static IP-range heuristics by class.
var ipPrefixes = map[int][]string{
	IPClassCorporate: {"192.168.", "10.", "172.16."},
	IPClassHome:      {"203.0.113.", "198.51.100.", "192.0.2."},
	IPClassVPN:       {"185.220.", "91.207.", "104.244."},
}

// ClassifyIP maps an IP to its class indicator via prefix lookup.
func ClassifyIP(ip string) int {
	for _, class := range []int{IPClassCorporate, IPClassHome, IPClassVPN} {
		for _, prefix := range ipPrefixes[class] {
			if strings.HasPrefix(ip, prefix) {
				return class
			}
		}
	}
	return IPClassUnclassified
}

// minElapsedHours guards velocity against division by zero for
// near-simultaneous events.
const minElapsedHours = 1.0 / 3600 // one second

// RecentScoreWindow caps UserState.RecentScores.
const RecentScoreWindow = 50

// Extract derives the feature vector and geo-jump summary for an event given
// the user's prior state, and returns the updated state. The caller commits
// the state under its per-user lock.
//
// A first-ever event has no prior location, so its geo-jump and velocity are
// zero. A backfilled event (timestamp strictly before the prior state's) is
// scored against the current state but does not overwrite last_location or
// last_timestamp, so replays and historical loads cannot regress the
// "last known" point.
func Extract(event models.LoginEvent, prior *models.UserState) (models.FeatureVector, float64, *models.UserState) {
	var geoJump, velocity float64

	if prior != nil && prior.LastLocation != "" {
		geoJump = geo.JumpKM(prior.LastLocation, event.Location)
		elapsed := math.Abs(float64(event.Timestamp-prior.LastTimestamp)) / 3600
		velocity = geoJump / math.Max(elapsed, minElapsedHours)
	}

	vector := models.FeatureVector{
		TimeOfDay:     timeOfDay(event.Timestamp),
		GeoJumpKM:     geoJump,
		VelocityKMH:   velocity,
		IPClass:       float64(ClassifyIP(event.IP)),
		HistFrequency: historicalFrequency(prior),
	}

	updated := advanceState(event, prior)
	return vector, geoJump, updated
}

// advanceState produces the post-event state. Strictly-past timestamps keep
// the existing last-known point.
func advanceState(event models.LoginEvent, prior *models.UserState) *models.UserState {
	state := &models.UserState{UserID: event.UserID}
	if prior != nil {
		state.LastLocation = prior.LastLocation
		state.LastTimestamp = prior.LastTimestamp
		state.RecentScores = prior.RecentScores
	}
	if prior == nil || event.Timestamp >= prior.LastTimestamp {
		state.LastLocation = event.Location
		state.LastTimestamp = event.Timestamp
	}
	return state
}

// PushScore appends a score to the state's rolling history.
func PushScore(state *models.UserState, score float64) {
	state.RecentScores = append(state.RecentScores, score)
	if len(state.RecentScores) > RecentScoreWindow {
		state.RecentScores = state.RecentScores[len(state.RecentScores)-RecentScoreWindow:]
	}
}

func timeOfDay(timestamp int64) float64 {
	t := time.Unix(timestamp, 0).UTC()
	seconds := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return float64(seconds) / 86400
}

func historicalFrequency(prior *models.UserState) float64 {
	if prior == nil {
		return 0
	}
	return float64(len(prior.RecentScores))
}
