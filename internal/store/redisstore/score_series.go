package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"rediguard/internal/client"
	"rediguard/internal/models"
)

const scoreSeriesPrefix = "user:scores:"

// ScoreSeries keeps each user's anomaly scores in a sorted set ranked by
// timestamp. Every append trims entries older than the retention window, so
// the series is a bounded rolling record.
type ScoreSeries struct {
	client    *client.RedisClient
	retention time.Duration
}

func NewScoreSeries(client *client.RedisClient, retention time.Duration) *ScoreSeries {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &ScoreSeries{client: client, retention: retention}
}

func (s *ScoreSeries) Append(ctx context.Context, score models.AnomalyScore) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := scoreSeriesPrefix + score.UserID
	member := encodeScore(score.Timestamp, score.Score)
	cutoff := score.Timestamp - int64(s.retention.Seconds())

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(score.Timestamp), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", cutoff))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append anomaly score: %w", err)
	}
	return nil
}

func (s *ScoreSeries) Range(ctx context.Context, userID string, from, to int64) ([]models.AnomalyScore, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	members, err := s.client.ZRangeByScore(ctx, scoreSeriesPrefix+userID,
		strconv.FormatInt(from, 10), strconv.FormatInt(to, 10))
	if err != nil {
		return nil, fmt.Errorf("failed to read anomaly scores: %w", err)
	}

	scores := make([]models.AnomalyScore, 0, len(members))
	for _, member := range members {
		ts, value, ok := decodeScore(member)
		if !ok {
			continue
		}
		scores = append(scores, models.AnomalyScore{UserID: userID, Timestamp: ts, Score: value})
	}
	return scores, nil
}

func (s *ScoreSeries) Clear(ctx context.Context) error {
	keys, err := s.client.ScanKeys(ctx, scoreSeriesPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to scan score keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...)
}

func encodeScore(timestamp int64, score float64) string {
	return fmt.Sprintf("%d:%.6f", timestamp, score)
}

func decodeScore(member string) (int64, float64, bool) {
	parts := strings.SplitN(member, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	score, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, false
	}
	return ts, score, true
}
