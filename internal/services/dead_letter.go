package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"DealRoom/internal/models"
)

// DeadLetterPublisher receives outbox tasks that exhausted their retries.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, task models.OutboxTask) error
}

type LoggingDeadLetterPublisher struct{}

func (LoggingDeadLetterPublisher) Publish(_ context.Context, task models.OutboxTask) error {
	log.Printf("❌ DEAD LETTER %s kind=%s attempts=%d error=%q payload=%s", task.ID, task.Kind, task.Attempts, task.LastError, string(task.Payload))
	return nil
}

type KafkaDeadLetterPublisher struct {
	writer *kafka.Writer
}

func NewKafkaDeadLetterPublisher(brokers []string, topic string) (*KafkaDeadLetterPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka dead-letter publisher requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka dead-letter publisher requires a topic")
	}
	return &KafkaDeadLetterPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
	}, nil
}

func (p *KafkaDeadLetterPublisher) Publish(ctx context.Context, task models.OutboxTask) error {
	value, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode dead-letter task: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.ID),
		Value: value,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(task.Kind)},
		},
	})
}

func (p *KafkaDeadLetterPublisher) Close() error {
	return p.writer.Close()
}
