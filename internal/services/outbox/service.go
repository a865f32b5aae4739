// Package outbox relays email_outbox rows announced over NOTIFY: the
// payload of a notification is a row id, the row is fetched as JSON and
// pushed through Kafka, and a consumer on the other side sends the mail.
package outbox

import (
	"context"
	"errors"
	"fmt"

	dLog "pglisten/internal/domain/log"
	"pglisten/internal/domain/notify"
)

type rowSource interface {
	Pending(ctx context.Context, id string) ([]byte, error)
}

type publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Service reacts to outbox notifications.
type Service struct {
	repo rowSource
	pub  publisher
	log  dLog.Logger
}

func NewService(repo rowSource, pub publisher, log dLog.Logger) *Service {
	return &Service{repo: repo, pub: pub, log: log}
}

// Handler adapts the service to the listener's per-channel contract.
// Timeout events double as the relay's liveness heartbeat.
func (s *Service) Handler() notify.Handler {
	return func(ctx context.Context, ev notify.Event) error {
		switch ev := ev.(type) {
		case notify.Notification:
			return s.relay(ctx, ev)
		case notify.Timeout:
			s.log.Debug("no outbox activity", dLog.Field{Key: "channel", Value: ev.Channel})
		}
		return nil
	}
}

func (s *Service) relay(ctx context.Context, n notify.Notification) error {
	if n.Payload == "" {
		return fmt.Errorf("notification on %s without row id", n.Channel)
	}

	doc, err := s.repo.Pending(ctx, n.Payload)
	if err != nil {
		if errors.Is(err, ErrNoPending) {
			// Already sent, or raced with another relay instance.
			s.log.Debug("outbox row already handled", dLog.Field{Key: "id", Value: n.Payload})
			return nil
		}
		return err
	}

	if err := s.pub.Publish(ctx, n.Channel, doc); err != nil {
		return err
	}
	s.log.Info("outbox row published",
		dLog.Field{Key: "id", Value: n.Payload},
		dLog.Field{Key: "channel", Value: n.Channel})
	return nil
}
