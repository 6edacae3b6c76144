// Package ipset provides the known-bad-IP membership set. Two variants are
// selected at startup: an exact Redis set, and a bloom filter over a Redis
// bitmap for large blocklists. The bloom variant can report false positives
// (rate documented on NewBloomSet) but never false negatives: an IP that was
// added always tests positive.
package ipset

import (
	"context"
	"fmt"
	"sync"

	"rediguard/internal/bucketing"
)

// Modes accepted by New.
const (
	ModeExact = "exact"
	ModeBloom = "bloom"
)

// Set is the malicious-IP membership interface. Mutated only by Add;
// the scorer only reads.
type Set interface {
	Add(ctx context.Context, ip string) error
	Contains(ctx context.Context, ip string) (bool, error)
	// Cardinality returns the number of IPs added (approximate for bloom).
	Cardinality(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}

// SetStore is the plain-set storage surface the exact variant needs.
// *client.RedisClient satisfies it.
type SetStore interface {
	SAdd(ctx context.Context, key string, members ...interface{}) error
	SIsMember(ctx context.Context, key string, member interface{}) (bool, error)
	SCard(ctx context.Context, key string) (int64, error)
	Del(ctx context.Context, keys ...string) error
}

// BitStore is the bitmap storage surface the bloom variant needs.
// *client.RedisClient satisfies it.
type BitStore interface {
	SetBit(ctx context.Context, key string, offset int64, value int) error
	GetBit(ctx context.Context, key string, offset int64) (int, error)
	Incr(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, keys ...string) error
}

const (
	exactSetKey     = "security:bad_ips:set"
	bloomBitmapKey  = "security:bad_ips:bloom"
	bloomCounterKey = "security:bad_ips:bloom:count"
)

// ExactSet is the Redis SET variant: exact membership, O(n) memory.
type ExactSet struct {
	store SetStore
}

func NewExactSet(store SetStore) *ExactSet {
	return &ExactSet{store: store}
}

func (s *ExactSet) Add(ctx context.Context, ip string) error {
	if err := s.store.SAdd(ctx, exactSetKey, ip); err != nil {
		return fmt.Errorf("failed to add malicious ip: %w", err)
	}
	return nil
}

func (s *ExactSet) Contains(ctx context.Context, ip string) (bool, error) {
	return s.store.SIsMember(ctx, exactSetKey, ip)
}

func (s *ExactSet) Cardinality(ctx context.Context) (int64, error) {
	return s.store.SCard(ctx, exactSetKey)
}

func (s *ExactSet) Clear(ctx context.Context) error {
	return s.store.Del(ctx, exactSetKey)
}

// BloomSet is a bloom filter over a shared bitmap. With the default sizing
// (2^20 bits, 7 hashes) the false-positive rate stays under 1% up to about
// 100k entries. Deletion is not supported; Clear drops the whole filter.
type BloomSet struct {
	store   BitStore
	buckets *bucketing.Manager
	nbits   uint64
	nhashes int
}

func NewBloomSet(store BitStore, buckets *bucketing.Manager, nbits uint64, nhashes int) *BloomSet {
	if nbits == 0 {
		nbits = 1 << 20
	}
	if nhashes <= 0 {
		nhashes = 7
	}
	return &BloomSet{store: store, buckets: buckets, nbits: nbits, nhashes: nhashes}
}

func (s *BloomSet) Add(ctx context.Context, ip string) error {
	for _, pos := range s.buckets.BloomPositions(ip, s.nhashes, s.nbits) {
		if err := s.store.SetBit(ctx, bloomBitmapKey, int64(pos), 1); err != nil {
			return fmt.Errorf("failed to set bloom bit: %w", err)
		}
	}
	if _, err := s.store.Incr(ctx, bloomCounterKey); err != nil {
		return fmt.Errorf("failed to bump bloom counter: %w", err)
	}
	return nil
}

func (s *BloomSet) Contains(ctx context.Context, ip string) (bool, error) {
	for _, pos := range s.buckets.BloomPositions(ip, s.nhashes, s.nbits) {
		bit, err := s.store.GetBit(ctx, bloomBitmapKey, int64(pos))
		if err != nil {
			return false, err
		}
		if bit == 0 {
			return false, nil
		}
	}
	return true, nil
}

func (s *BloomSet) Cardinality(ctx context.Context) (int64, error) {
	val, ok, err := s.store.Get(ctx, bloomCounterKey)
	if err != nil || !ok {
		return 0, err
	}
	var count int64
	fmt.Sscanf(val, "%d", &count)
	return count, nil
}

func (s *BloomSet) Clear(ctx context.Context) error {
	return s.store.Del(ctx, bloomBitmapKey, bloomCounterKey)
}

// MemorySet is an exact in-memory variant for tests and degraded operation.
type MemorySet struct {
	mu  sync.RWMutex
	ips map[string]struct{}
}

func NewMemorySet() *MemorySet {
	return &MemorySet{ips: make(map[string]struct{})}
}

func (s *MemorySet) Add(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ips[ip] = struct{}{}
	return nil
}

func (s *MemorySet) Contains(_ context.Context, ip string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ips[ip]
	return ok, nil
}

func (s *MemorySet) Cardinality(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.ips)), nil
}

func (s *MemorySet) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ips = make(map[string]struct{})
	return nil
}
