package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/akshaysangma/irec-fractionalizer/internal/config"
	"github.com/akshaysangma/irec-fractionalizer/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher implements Publisher interface for Kafka
type KafkaPublisher struct {
	config *config.KafkaConfig
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher creates a new KafkaPublisher
func NewKafkaPublisher(cfg *config.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		config: cfg,
		logger: logger,
	}
}

// New returns a Kafka publisher when enabled, otherwise a NopPublisher
func New(cfg *config.KafkaConfig, logger *zap.Logger) Publisher {
	if !cfg.Enabled {
		logger.Info("Kafka disabled, events will not be published")
		return NopPublisher{}
	}

	return NewKafkaPublisher(cfg, logger)
}

func (k *KafkaPublisher) Connect(ctx context.Context) error {
	k.writer = &kafka.Writer{
		Addr:         kafka.TCP(k.config.Brokers...),
		Topic:        k.config.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    k.config.BatchSize,
		BatchTimeout: time.Duration(k.config.BatchTimeout) * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}

	ping := &model.Event{
		Type: "ping",
		Data: map[string]string{"message": "IREC fractionalizer startup"},
		Time: time.Now().UTC(),
	}

	err := k.write(ctx, "ping", ping)
	if err != nil {
		return fmt.Errorf("failed to publish to kafka topic %s: %w", k.config.Topic, err)
	}

	k.logger.Info("Connected to Kafka",
		zap.Strings("brokers", k.config.Brokers),
		zap.String("topic", k.config.Topic))

	return nil
}

func (k *KafkaPublisher) Close() error {
	if k.writer != nil {
		err := k.writer.Close()
		if err != nil {
			return fmt.Errorf("failed to close Kafka connection: %w", err)
		}
	}

	k.logger.Info("Disconnected from Kafka")
	return nil
}

// PublishEvent writes the event keyed by its run id, so the events of one
// pipeline run land on one partition in order.
func (k *KafkaPublisher) PublishEvent(ctx context.Context, event *model.Event) error {
	if event == nil {
		return fmt.Errorf("cannot publish nil event")
	}

	if k.writer == nil {
		return fmt.Errorf("kafka publisher is not connected")
	}

	err := k.write(ctx, EventKey(event), event)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	k.logger.Debug("Published event",
		zap.String("type", string(event.Type)),
		zap.String("id", event.ID),
		zap.String("run_id", event.RunID))

	return nil
}

func (k *KafkaPublisher) write(ctx context.Context, key string, event *model.Event) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
}

// EventKey is the partition key of an event
func EventKey(event *model.Event) string {
	switch {
	case event.RunID != "":
		return event.RunID
	case event.TxHash != "":
		return event.TxHash
	default:
		return event.ID
	}
}
