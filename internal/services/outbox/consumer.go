package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	dLog "pglisten/internal/domain/log"
)

const defaultWorkers = 10

type sender interface {
	Send(m Message, attachments []Attachment) error
}

type sentMarker interface {
	MarkSent(ctx context.Context, id string) error
}

// Consumer drains the outbox topic and sends the mails. Delivery runs on a
// worker pool so one slow SMTP round trip does not serialize the topic.
type Consumer struct {
	brokers []string
	topic   string
	groupID string
	workers int
	mailer  sender
	repo    sentMarker
	log     dLog.Logger
}

func NewConsumer(brokers []string, topic, groupID string, workers int, mailer sender, repo sentMarker, log dLog.Logger) *Consumer {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Consumer{
		brokers: brokers,
		topic:   topic,
		groupID: groupID,
		workers: workers,
		mailer:  mailer,
		repo:    repo,
		log:     log,
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.brokers,
		Topic:    c.topic,
		GroupID:  c.groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msgs := make(chan []byte, 100)
	var wg sync.WaitGroup

	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range msgs {
				if err := c.handle(ctx, msg); err != nil {
					c.log.Error("outbox delivery failed", dLog.Field{Key: "err", Value: err})
				}
			}
		}()
	}

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.log.Warn("read outbox topic", dLog.Field{Key: "err", Value: err})
			continue
		}
		msgs <- m.Value
	}

	close(msgs)
	wg.Wait()
	return ctx.Err()
}

func (c *Consumer) handle(ctx context.Context, raw []byte) error {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("decode outbox document: %w", err)
	}

	attachments, err := m.Attachments()
	if err != nil {
		return err
	}

	if err := c.mailer.Send(m, attachments); err != nil {
		return fmt.Errorf("send mail to %s: %w", m.ToAddress, err)
	}

	if m.ID != "" {
		if err := c.repo.MarkSent(ctx, m.ID); err != nil {
			return err
		}
	}
	c.log.Info("mail sent", dLog.Field{Key: "to", Value: m.ToAddress})
	return nil
}
