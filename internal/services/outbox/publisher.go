package outbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
)

// Publisher writes outbox documents to Kafka. The writer is created lazily
// on first publish and reused afterwards.
type Publisher struct {
	brokers []string
	topic   string

	once   sync.Once
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{brokers: brokers, topic: topic}
}

func (p *Publisher) Publish(ctx context.Context, key string, value []byte) error {
	p.once.Do(func() {
		p.writer = kafka.NewWriter(kafka.WriterConfig{
			Brokers:  p.brokers,
			Topic:    p.topic,
			Balancer: &kafka.LeastBytes{},
		})
	})

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish outbox document: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
