package client

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"rediguard/internal/config"
	"rediguard/internal/util"
)

type KafkaProducer struct {
	Writer *kafka.Writer
	config *config.KafkaConfig
	logger *zap.Logger
}

type KafkaConsumer struct {
	Reader *kafka.Reader
	config *config.KafkaConfig
	logger *zap.Logger
}

// NewKafkaProducer creates the producer that appends login events to the log
// topic. Messages are keyed by user so same-user events keep partition order.
func NewKafkaProducer(cfg *config.Config, logger *zap.Logger) (*KafkaProducer, error) {
	kafkaConfig := cfg.Kafka

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(kafkaConfig.Brokers...),
		Topic:                  kafkaConfig.LoginTopic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            3,
		BatchSize:              100,
		BatchBytes:             1048576, // 1MB
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("failed to write kafka messages",
					zap.Error(err),
					zap.Int("message_count", len(messages)),
				)
			}
		},
	}

	util.Info("Kafka producer initialized",
		zap.Strings("brokers", kafkaConfig.Brokers),
		zap.String("topic", kafkaConfig.LoginTopic),
	)

	return &KafkaProducer{
		Writer: writer,
		config: &kafkaConfig,
		logger: logger,
	}, nil
}

// NewKafkaConsumer creates a consumer-group reader over the login topic.
// Commits are explicit, giving at-least-once delivery to the pipeline.
func NewKafkaConsumer(cfg *config.Config, logger *zap.Logger) (*KafkaConsumer, error) {
	kafkaConfig := cfg.Kafka

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        kafkaConfig.Brokers,
		Topic:          kafkaConfig.LoginTopic,
		GroupID:        kafkaConfig.ConsumerGroup,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		StartOffset:    kafka.FirstOffset,
		MaxWait:        1 * time.Second,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: 1 * time.Second,
	})

	util.Info("Kafka consumer initialized",
		zap.Strings("brokers", kafkaConfig.Brokers),
		zap.String("topic", kafkaConfig.LoginTopic),
		zap.String("group_id", kafkaConfig.ConsumerGroup),
	)

	return &KafkaConsumer{
		Reader: reader,
		config: &kafkaConfig,
		logger: logger,
	}, nil
}

// Produce writes one message to the login topic.
func (p *KafkaProducer) Produce(ctx context.Context, key, value []byte) (kafka.Message, error) {
	msg := kafka.Message{Key: key, Value: value}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return msg, fmt.Errorf("failed to write kafka message: %w", err)
	}

	p.logger.Debug("Produced kafka message",
		zap.ByteString("key", key),
		zap.Int("value_size", len(value)),
	)
	return msg, nil
}

// Fetch reads the next message without committing its offset.
func (c *KafkaConsumer) Fetch(ctx context.Context) (kafka.Message, error) {
	msg, err := c.Reader.FetchMessage(ctx)
	if err != nil {
		return msg, fmt.Errorf("failed to fetch kafka message: %w", err)
	}
	return msg, nil
}

// Commit acknowledges processed messages.
func (c *KafkaConsumer) Commit(ctx context.Context, msgs ...kafka.Message) error {
	return c.Reader.CommitMessages(ctx, msgs...)
}

func (p *KafkaProducer) Close() error {
	if p.Writer != nil {
		if err := p.Writer.Close(); err != nil {
			util.Error("failed to close Kafka producer", zap.Error(err))
			return err
		}
		util.Info("Kafka producer closed")
	}
	return nil
}

func (c *KafkaConsumer) Close() error {
	if c.Reader != nil {
		if err := c.Reader.Close(); err != nil {
			util.Error("failed to close Kafka consumer", zap.Error(err))
			return err
		}
		util.Info("Kafka consumer closed")
	}
	return nil
}

// HealthCheck dials the first broker and lists partitions.
func (p *KafkaProducer) HealthCheck(ctx context.Context) error {
	dialer := &kafka.Dialer{
		Timeout:   5 * time.Second,
		DualStack: true,
	}

	conn, err := dialer.DialContext(ctx, "tcp", p.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(); err != nil {
		return fmt.Errorf("failed to read kafka partitions: %w", err)
	}
	return nil
}

// PartitionOffsets returns the sum of last offsets across the topic's
// partitions, used as the log length for statistics.
func (p *KafkaProducer) PartitionOffsets(ctx context.Context) (int64, error) {
	dialer := &kafka.Dialer{Timeout: 5 * time.Second, DualStack: true}

	conn, err := dialer.DialContext(ctx, "tcp", p.config.Brokers[0])
	if err != nil {
		return 0, fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(p.config.LoginTopic)
	if err != nil {
		return 0, fmt.Errorf("failed to read kafka partitions: %w", err)
	}

	var total int64
	for _, part := range partitions {
		pc, err := dialer.DialLeader(ctx, "tcp", p.config.Brokers[0], part.Topic, part.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to dial partition leader: %w", err)
		}
		_, last, err := pc.ReadOffsets()
		pc.Close()
		if err != nil {
			return 0, fmt.Errorf("failed to read partition offsets: %w", err)
		}
		total += last
	}
	return total, nil
}
