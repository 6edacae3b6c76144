package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"go.uber.org/zap"

	"rediguard/internal/models"
)

// messageSource is the consumer-group surface of client.KafkaConsumer.
type messageSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// batchLinger bounds how long a partially filled batch waits for more
// messages before processing starts.
const batchLinger = 100 * time.Millisecond

// Processing retry backoff bounds. Failures here are backend outages, which
// recover; the consumer waits rather than skipping ahead.
const (
	retryBaseDelay = time.Second
	retryMaxDelay  = time.Minute
)

// Consumer drains the login topic and feeds events through the pipeline.
// A single goroutine fetches from the group reader and fans each batch out
// to workers keyed by message key, so same-user events keep their fetch
// order. Offsets are committed in fetch order only after every message in
// the batch has been processed: a later offset never overtakes a failed
// earlier one, and a crash replays the uncommitted batch. Deterministic
// alert IDs make replay harmless.
type Consumer struct {
	consumer messageSource
	pipeline *Pipeline
	workers  int
	logger   *zap.Logger
}

func NewConsumer(consumer messageSource, pipeline *Pipeline, workers int, logger *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 4
	}
	return &Consumer{
		consumer: consumer,
		pipeline: pipeline,
		workers:  workers,
		logger:   logger,
	}
}

// Run blocks consuming messages until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Event consumer started", zap.Int("workers", c.workers))

	for {
		batch, err := c.fetchBatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.processBatch(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.consumer.Commit(ctx, batch...); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// fetchBatch blocks for the first message, then drains up to a worker's
// worth more without waiting past the linger.
func (c *Consumer) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.consumer.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	batch := []kafka.Message{first}

	for len(batch) < c.workers {
		drainCtx, cancel := context.WithTimeout(ctx, batchLinger)
		msg, err := c.consumer.Fetch(drainCtx)
		cancel()
		if err != nil {
			// Process what we have; real fetch errors resurface on the
			// next blocking Fetch.
			break
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

// processBatch groups messages by key and runs the groups concurrently,
// each group sequentially in fetch order.
func (c *Consumer) processBatch(ctx context.Context, batch []kafka.Message) error {
	grouped := make(map[string][]kafka.Message)
	for _, msg := range batch {
		key := string(msg.Key)
		grouped[key] = append(grouped[key], msg)
	}

	var group errgroup.Group
	group.SetLimit(c.workers)
	for _, msgs := range grouped {
		msgs := msgs
		group.Go(func() error {
			for _, msg := range msgs {
				if err := c.handle(ctx, msg); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return group.Wait()
}

// handle processes one message, retrying with backoff until it succeeds or
// the context ends. Only malformed messages are given up on; they are
// committed with the batch since redelivery can never fix them.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var event models.LoginEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Error("Skipping malformed login event",
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return nil
	}

	backoff := retryBaseDelay
	for {
		_, err := c.pipeline.Process(ctx, event)
		if err == nil {
			return nil
		}

		c.logger.Error("Failed to process login event, retrying",
			zap.String("user_id", event.UserID),
			zap.Int64("offset", msg.Offset),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < retryMaxDelay {
			backoff *= 2
		}
	}
}
