package service

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"rediguard/internal/geo"
	"rediguard/internal/models"
)

// demoUsers is the fixed population the generator draws from.
var demoUsers = []string{
	"alice.johnson", "bob.smith", "charlie.brown", "diana.prince", "eve.adams",
	"frank.miller", "grace.hopper", "henry.ford", "iris.watson", "jack.ryan",
	"kate.bishop", "liam.neeson", "mary.jane", "nick.fury", "olivia.pope",
	"peter.parker", "quinn.fabray", "rick.sanchez", "sarah.connor", "tony.stark",
}

// suspiciousIPPrefixes produce unclassified IPs associated with anomalous
// behavior.
var suspiciousIPPrefixes = []string{"123.45.", "45.67.", "89.12.", "66.13.", "31.13.", "172.245."}

// userProfile pins a user to a home location, work hours and habitual IPs so
// generated traffic has a stable baseline anomalies stand out against.
type userProfile struct {
	homeLocation string
	workStart    int
	workEnd      int
	typicalIPs   []string
}

// Generator produces realistic login events for demos, seeding and
// streaming. Safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	profiles map[string]userProfile
}

func NewGenerator(seed int64) *Generator {
	rng := rand.New(rand.NewSource(seed))

	normalIPs := []string{"192.168.1.", "10.0.0.", "172.16.0.", "203.0.113.", "198.51.100.", "192.0.2."}
	lowRisk := geo.Locations(geo.RiskLow)

	profiles := make(map[string]userProfile, len(demoUsers))
	for _, user := range demoUsers {
		ips := make([]string, 3)
		for i := range ips {
			ips[i] = normalIPs[rng.Intn(len(normalIPs))]
		}
		profiles[user] = userProfile{
			homeLocation: lowRisk[rng.Intn(len(lowRisk))],
			workStart:    8 + rng.Intn(3),
			workEnd:      17 + rng.Intn(3),
			typicalIPs:   ips,
		}
	}

	return &Generator{rng: rng, profiles: profiles}
}

// Generate produces one event at the given moment. anomalyChance in [0,1]
// controls how often the event deviates from the user's profile.
func (g *Generator) Generate(now time.Time, anomalyChance float64) models.LoginEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	user := demoUsers[g.rng.Intn(len(demoUsers))]
	profile := g.profiles[user]

	if g.rng.Float64() < anomalyChance {
		return models.LoginEvent{
			UserID:    user,
			IP:        g.anomalousIP(),
			Location:  g.anomalousLocation(),
			Timestamp: g.anomalousTime(now).Unix(),
		}
	}
	return models.LoginEvent{
		UserID:    user,
		IP:        g.normalIP(profile),
		Location:  g.normalLocation(profile),
		Timestamp: g.normalTime(now, profile).Unix(),
	}
}

// GenerateHistorical produces one event with a timestamp spread uniformly
// over the past window, used for seeding.
func (g *Generator) GenerateHistorical(now time.Time, window time.Duration, anomalyChance float64) models.LoginEvent {
	event := g.Generate(now, anomalyChance)

	g.mu.Lock()
	offset := time.Duration(g.rng.Int63n(int64(window)))
	g.mu.Unlock()

	event.Timestamp = now.Add(-offset).Unix()
	return event
}

func (g *Generator) normalLocation(profile userProfile) string {
	if g.rng.Float64() < 0.8 {
		return profile.homeLocation
	}
	lowRisk := geo.Locations(geo.RiskLow)
	return lowRisk[g.rng.Intn(len(lowRisk))]
}

func (g *Generator) anomalousLocation() string {
	risky := append(geo.Locations(geo.RiskHigh), geo.Locations(geo.RiskVeryHigh)...)
	return risky[g.rng.Intn(len(risky))]
}

func (g *Generator) normalIP(profile userProfile) string {
	prefix := profile.typicalIPs[g.rng.Intn(len(profile.typicalIPs))]
	return prefix + octet(g.rng)
}

func (g *Generator) anomalousIP() string {
	prefix := suspiciousIPPrefixes[g.rng.Intn(len(suspiciousIPPrefixes))]
	return prefix + octet(g.rng)
}

func (g *Generator) normalTime(now time.Time, profile userProfile) time.Time {
	var hour int
	if g.rng.Float64() < 0.7 {
		hour = profile.workStart + g.rng.Intn(profile.workEnd-profile.workStart+1)
	} else {
		hour = 6 + g.rng.Intn(17) // 6 AM to 10 PM
	}
	return atHour(now, hour, g.rng)
}

func (g *Generator) anomalousTime(now time.Time) time.Time {
	oddHours := []int{0, 1, 2, 3, 4, 5, 23}
	return atHour(now, oddHours[g.rng.Intn(len(oddHours))], g.rng)
}

func atHour(now time.Time, hour int, rng *rand.Rand) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), hour, rng.Intn(60), rng.Intn(60), 0, now.Location())
}

func octet(rng *rand.Rand) string {
	return fmt.Sprint(1 + rng.Intn(254))
}
