package redisstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"

	"rediguard/internal/client"
	"rediguard/internal/models"
)

const (
	embeddingPrefix    = "embedding:"
	embeddingIndexKey  = "embeddings:index"
	embeddingUserIndex = "embeddings:user:"
)

// EmbeddingStore persists behavior embeddings as packed float32 hashes and
// answers nearest-neighbor queries by scanning the most recent entries and
// ranking them by cosine similarity.
type EmbeddingStore struct {
	client    *client.RedisClient
	scanDepth int
}

func NewEmbeddingStore(client *client.RedisClient, scanDepth int) *EmbeddingStore {
	if scanDepth <= 0 {
		scanDepth = 500
	}
	return &EmbeddingStore{client: client, scanDepth: scanDepth}
}

func (s *EmbeddingStore) Put(ctx context.Context, embedding models.BehaviorEmbedding) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := embeddingKey(embedding.UserID, embedding.Timestamp)
	err := s.client.HSet(ctx, key,
		"user_id", embedding.UserID,
		"timestamp", strconv.FormatInt(embedding.Timestamp, 10),
		"vector", string(packVector(embedding.Vector)),
	)
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}

	if err := s.client.ZAdd(ctx, embeddingIndexKey, float64(embedding.Timestamp), key); err != nil {
		return fmt.Errorf("failed to index embedding: %w", err)
	}
	if err := s.client.ZAdd(ctx, embeddingUserIndex+embedding.UserID, float64(embedding.Timestamp), key); err != nil {
		return fmt.Errorf("failed to index embedding for user: %w", err)
	}
	return nil
}

func (s *EmbeddingStore) Latest(ctx context.Context, userID string) (*models.BehaviorEmbedding, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	keys, err := s.client.ZRevRange(ctx, embeddingUserIndex+userID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read user embedding index: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return s.load(ctx, keys[0])
}

func (s *EmbeddingStore) Nearest(ctx context.Context, vector []float32, k int) ([]models.BehaviorEmbedding, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	keys, err := s.client.ZRevRange(ctx, embeddingIndexKey, 0, int64(s.scanDepth-1))
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding index: %w", err)
	}

	type scored struct {
		embedding models.BehaviorEmbedding
		sim       float64
	}
	candidates := make([]scored, 0, len(keys))
	for _, key := range keys {
		emb, err := s.load(ctx, key)
		if err != nil || emb == nil {
			continue
		}
		candidates = append(candidates, scored{*emb, CosineSimilarity(vector, emb.Vector)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].sim > candidates[j].sim
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]models.BehaviorEmbedding, 0, k)
	for _, c := range candidates[:k] {
		out = append(out, c.embedding)
	}
	return out, nil
}

func (s *EmbeddingStore) Clear(ctx context.Context) error {
	keys, err := s.client.ScanKeys(ctx, embeddingPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to scan embedding keys: %w", err)
	}
	indexKeys, err := s.client.ScanKeys(ctx, "embeddings:*")
	if err != nil {
		return fmt.Errorf("failed to scan embedding indexes: %w", err)
	}
	keys = append(keys, indexKeys...)
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...)
}

func (s *EmbeddingStore) load(ctx context.Context, key string) (*models.BehaviorEmbedding, error) {
	fields, err := s.client.HGetAll(ctx, key)
	if err != nil || len(fields) == 0 {
		return nil, err
	}
	ts, _ := strconv.ParseInt(fields["timestamp"], 10, 64)
	return &models.BehaviorEmbedding{
		UserID:    fields["user_id"],
		Timestamp: ts,
		Vector:    unpackVector([]byte(fields["vector"])),
	}, nil
}

func embeddingKey(userID string, timestamp int64) string {
	return fmt.Sprintf("%s%s:%d", embeddingPrefix, userID, timestamp)
}

func packVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func unpackVector(buf []byte) []float32 {
	vector := make([]float32, len(buf)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vector
}

// CosineSimilarity returns the cosine of the angle between two vectors,
// or 0 when either has zero norm or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
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
