package kafkalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rediguard/internal/client"
	"rediguard/internal/models"
	"rediguard/internal/store"
)

// EventLog appends login events to the Kafka login topic. The producer keys
// messages by user ID, so events for one user land on one partition and the
// consumer sees them in submission order.
type EventLog struct {
	producer *client.KafkaProducer
	topic    string
	logger   *zap.Logger
}

func NewEventLog(producer *client.KafkaProducer, topic string, logger *zap.Logger) *EventLog {
	return &EventLog{producer: producer, topic: topic, logger: logger}
}

func (l *EventLog) Append(ctx context.Context, event models.LoginEvent) (models.EventRef, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return models.EventRef{}, fmt.Errorf("failed to marshal login event: %w", err)
	}

	if _, err := l.producer.Produce(ctx, []byte(event.UserID), payload); err != nil {
		return models.EventRef{}, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	ref := models.EventRef{Topic: l.topic, ID: uuid.NewString()}
	l.logger.Debug("Appended login event",
		zap.String("user_id", event.UserID),
		zap.String("event_ref", ref.ID),
	)
	return ref, nil
}

func (l *EventLog) Length(ctx context.Context) (int64, error) {
	total, err := l.producer.PartitionOffsets(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return total, nil
}
