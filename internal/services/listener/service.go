// Package listener multiplexes a connector's notification stream out to
// per-channel handlers with independent pacing, buffering policies and a
// timeout heartbeat.
package listener

import (
	"context"
	"errors"
	"time"

	"pglisten/internal/adapters/logger"
	dLog "pglisten/internal/domain/log"
	"pglisten/internal/domain/notify"
)

// Service ties a connector to a set of channel registrations and runs the
// full pipeline: subscribe, route, deliver.
type Service struct {
	connector notify.Connector
	log       dLog.Logger
	timeout   time.Duration
}

// New builds a Service. timeout bounds how long a delivery loop waits
// before handing the handler a Timeout event; notify.NoTimeout disables
// the heartbeat entirely.
func New(connector notify.Connector, log dLog.Logger, timeout time.Duration) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{connector: connector, log: log, timeout: timeout}
}

// Run blocks until ctx is cancelled or the subscription is rejected at
// startup. Connection loss mid-run is absorbed by the connector and never
// surfaces here.
func (s *Service) Run(ctx context.Context, regs ...notify.Registration) error {
	if len(regs) == 0 {
		return errors.New("listener: no registrations")
	}

	d, err := newDispatcher(regs, s.timeout, s.log)
	if err != nil {
		return err
	}

	channels := make([]string, 0, len(regs))
	for _, reg := range regs {
		channels = append(channels, reg.Channel)
	}

	stream, err := s.connector.Listen(ctx, channels...)
	if err != nil {
		return err
	}

	s.log.Info("listening", dLog.Field{Key: "channels", Value: channels})
	d.run(ctx, stream)
	return ctx.Err()
}
