package geo

import (
	"math"
	"sort"
	"strings"
)

// Coordinates is a lat/long pair in decimal degrees.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Risk levels for known locations, used as an alert signal.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskVeryHigh = "very_high"
)

type cityInfo struct {
	coords Coordinates
	risk   string
}

// Known city table. Keys are normalized "city, country-code" strings.
// Login locations are free text; unknown locations resolve to no coordinates.
var cities = map[string]cityInfo{
	"new york, us":      {Coordinates{40.7128, -74.0060}, RiskLow},
	"san francisco, us": {Coordinates{37.7749, -122.4194}, RiskLow},
	"london, uk":        {Coordinates{51.5074, -0.1278}, RiskLow},
	"toronto, ca":       {Coordinates{43.6532, -79.3832}, RiskLow},
	"berlin, de":        {Coordinates{52.5200, 13.4050}, RiskLow},
	"tokyo, jp":         {Coordinates{35.6762, 139.6503}, RiskLow},
	"sydney, au":        {Coordinates{-33.8688, 151.2093}, RiskLow},
	"mumbai, in":        {Coordinates{19.0760, 72.8777}, RiskMedium},
	"sao paulo, br":     {Coordinates{-23.5505, -46.6333}, RiskMedium},
	"moscow, ru":        {Coordinates{55.7558, 37.6173}, RiskHigh},
	"beijing, cn":       {Coordinates{39.9042, 116.4074}, RiskHigh},
	"lagos, ng":         {Coordinates{6.5244, 3.3792}, RiskHigh},
	"kiev, ua":          {Coordinates{50.4501, 30.5234}, RiskHigh},
	"tehran, ir":        {Coordinates{35.6892, 51.3890}, RiskVeryHigh},
	"pyongyang, kp":     {Coordinates{39.0392, 125.7625}, RiskVeryHigh},
}

func normalize(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}

// Lookup resolves a free-text location to coordinates.
func Lookup(location string) (Coordinates, bool) {
	info, ok := cities[normalize(location)]
	return info.coords, ok
}

// LocationRisk returns the risk level for a location, or RiskLow when unknown.
func LocationRisk(location string) string {
	if info, ok := cities[normalize(location)]; ok {
		return info.risk
	}
	return RiskLow
}

// IsHighRisk reports whether a location is tagged high or very-high risk.
func IsHighRisk(location string) bool {
	risk := LocationRisk(location)
	return risk == RiskHigh || risk == RiskVeryHigh
}

const earthRadiusKM = 6371.0

// DistanceKM computes the great-circle distance between two points (haversine).
func DistanceKM(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}

// JumpKM computes the geo-jump between two login locations. It returns 0 when
// the locations match or either side cannot be resolved to coordinates; a
// jump is only claimed when both endpoints are known.
func JumpKM(from, to string) float64 {
	if normalize(from) == normalize(to) {
		return 0
	}
	a, okA := Lookup(from)
	b, okB := Lookup(to)
	if !okA || !okB {
		return 0
	}
	return DistanceKM(a, b)
}

// Locations returns the known location strings, optionally filtered by risk.
// The result is sorted so callers drawing from it with a seeded RNG stay
// reproducible.
func Locations(risk string) []string {
	var out []string
	for name, info := range cities {
		if risk == "" || info.risk == risk {
			out = append(out, title(name))
		}
	}
	sort.Strings(out)
	return out
}

// title restores display casing for a normalized "city, cc" key.
func title(name string) string {
	parts := strings.SplitN(name, ",", 2)
	city := strings.TrimSpace(parts[0])
	words := strings.Fields(city)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	out := strings.Join(words, " ")
	if len(parts) == 2 {
		out += ", " + strings.ToUpper(strings.TrimSpace(parts[1]))
	}
	return out
}
