package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"rediguard/internal/client"
	"rediguard/internal/models"
	"rediguard/internal/util"
)

const (
	userStatePrefix = "user:state:"
	opTimeout       = 5 * time.Second
)

// StateCache stores per-user last-known state as Redis hashes. Per-user
// write serialization is the pipeline's job; this layer only does atomic
// single-key reads and writes.
type StateCache struct {
	client *client.RedisClient
}

func NewStateCache(client *client.RedisClient) *StateCache {
	return &StateCache{client: client}
}

func (c *StateCache) Get(ctx context.Context, userID string) (*models.UserState, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	fields, err := c.client.HGetAll(ctx, userStatePrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read user state: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	state := &models.UserState{
		UserID:       userID,
		LastLocation: fields["last_location"],
	}
	if raw, ok := fields["last_timestamp"]; ok {
		state.LastTimestamp, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw, ok := fields["recent_scores"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &state.RecentScores); err != nil {
			util.Warn("Discarding unreadable recent scores",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}
	return state, nil
}

func (c *StateCache) Put(ctx context.Context, state *models.UserState) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	scores, err := json.Marshal(state.RecentScores)
	if err != nil {
		return fmt.Errorf("failed to encode recent scores: %w", err)
	}

	err = c.client.HSet(ctx, userStatePrefix+state.UserID,
		"last_location", state.LastLocation,
		"last_timestamp", strconv.FormatInt(state.LastTimestamp, 10),
		"recent_scores", string(scores),
	)
	if err != nil {
		return fmt.Errorf("failed to write user state: %w", err)
	}
	return nil
}

func (c *StateCache) Clear(ctx context.Context) error {
	keys, err := c.client.ScanKeys(ctx, userStatePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to scan user state keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...)
}
