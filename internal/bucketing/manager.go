package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Manager provides consistent murmur3-based bucketing. The pipeline uses it
// to pick the lock stripe that serializes same-user processing, and the
// bloom-filter IP set uses it to derive its k hash positions.
type Manager struct {
	stripes    int
	hasherPool sync.Pool
}

// NewManager creates a bucketing manager with the given stripe count.
func NewManager(stripes int) *Manager {
	if stripes <= 0 {
		stripes = 64
	}
	m := &Manager{stripes: stripes}

	// Pool of hashers to avoid per-call allocation
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return m
}

// Stripes returns the configured stripe count.
func (m *Manager) Stripes() int {
	return m.stripes
}

// UserStripe returns the consistent lock stripe for a user (0 to stripes-1).
// Events for the same user always land on the same stripe.
func (m *Manager) UserStripe(userID string) int {
	return int(m.hash(userID) % uint64(m.stripes))
}

// BloomPositions derives count bit positions for a key over a bitmap of
// nbits, using independently seeded murmur3 hashes.
func (m *Manager) BloomPositions(key string, count int, nbits uint64) []uint64 {
	positions := make([]uint64, count)
	for i := 0; i < count; i++ {
		hasher := murmur3.New64WithSeed(uint32(i))
		hasher.Write([]byte(key))
		positions[i] = hasher.Sum64() % nbits
	}
	return positions
}

func (m *Manager) hash(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
