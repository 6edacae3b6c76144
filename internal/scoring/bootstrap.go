package scoring

import (
	"math"
	"math/rand"
)

// Synthetic bootstrap training data. The model is unsupervised; it only needs
// a population whose bulk looks like routine logins so that extreme feature
// values isolate quickly. Generation is seeded, so the trained forest is
// reproducible across restarts.

// BootstrapData generates numNormal routine vectors and numAnomalous
// irregular ones in FeatureVector order.
func BootstrapData(numNormal, numAnomalous int, rng *rand.Rand) [][]float64 {
	data := make([][]float64, 0, numNormal+numAnomalous)

	for i := 0; i < numNormal; i++ {
		// Office-hours login from a stable location on a familiar network.
		hour := 8 + rng.Float64()*10 // 08:00-18:00
		geoJump := 0.0
		if rng.Float64() < 0.2 {
			geoJump = rng.Float64() * 50 // commute-scale movement
		}
		elapsed := 1 + rng.Float64()*8 // hours since previous login
		velocity := geoJump / elapsed
		ipClass := float64(rng.Intn(2)) // corporate or home
		freq := rng.Float64() * 5

		data = append(data, []float64{hour / 24, geoJump, velocity, ipClass, freq})
	}

	for i := 0; i < numAnomalous; i++ {
		// Odd hours, continental jumps, infeasible speed, unclassified networks.
		hour := float64(rng.Intn(24))
		geoJump := 500 + rng.Float64()*15000
		elapsed := 0.05 + rng.Float64()*2
		velocity := geoJump / elapsed
		ipClass := 2 + float64(rng.Intn(2)) // vpn or unclassified
		freq := 10 + rng.Float64()*20

		data = append(data, []float64{hour / 24, geoJump, velocity, ipClass, freq})
	}

	rng.Shuffle(len(data), func(i, j int) {
		data[i], data[j] = data[j], data[i]
	})
	return data
}

// MaxFeasibleVelocityKMH is the fastest plausible point-to-point travel
// speed for a legitimate user (upper end of commercial flight).
const MaxFeasibleVelocityKMH = 1000.0

// travelSaturation maps physically impossible travel velocity onto the score
// scale. Zero at feasible speeds, then climbing from just above the default
// alert threshold toward 1 as the velocity becomes absurd. Deterministic.
func travelSaturation(velocityKMH float64) float64 {
	if velocityKMH <= MaxFeasibleVelocityKMH {
		return 0
	}
	excess := (velocityKMH - MaxFeasibleVelocityKMH) / (9 * MaxFeasibleVelocityKMH)
	return 0.82 + 0.18*math.Min(1, excess)
}

// clamp01 bounds a score to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
