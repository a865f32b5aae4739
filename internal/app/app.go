package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"pglisten/internal/adapters/logger"
	"pglisten/internal/adapters/pgnotify"
	"pglisten/internal/config"
	dLog "pglisten/internal/domain/log"
	"pglisten/internal/domain/notify"
	"pglisten/internal/services/listener"
	"pglisten/internal/services/outbox"
)

type App struct {
	Listener      *listener.Service
	Registrations []notify.Registration
	Consumer      *outbox.Consumer
	Logger        dLog.Logger

	closers []func() error
}

func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	myLogger, err := logger.New(
		cfg.Logger.GRPCAddress,
		cfg.Logger.FallbackPath,
		cfg.Logger.ServiceName,
	)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	dsn, err := cfg.Db.DSN()
	if err != nil {
		return nil, fmt.Errorf("invalid db config: %w", err)
	}

	var connector notify.Connector
	switch cfg.Db.Driver {
	case "postgres":
		connector = pgnotify.New(pgnotify.Dial(dsn), myLogger, pgnotify.Config{
			MinBackoff: cfg.Listener.MinBackoff.Std(),
			MaxBackoff: cfg.Listener.MaxBackoff.Std(),
		})
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Db.Driver)
	}

	policy, err := notify.ParsePolicy(cfg.Listener.Policy)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open outbox pool: %w", err)
	}

	repo := outbox.NewRepository(pool, cfg.Db.TableEmail)
	pub := outbox.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	relay := outbox.NewService(repo, pub, myLogger)
	mailer := outbox.NewMailer(cfg.Smtp.Host, cfg.Smtp.Port, cfg.Smtp.Username, cfg.Smtp.Password, cfg.Smtp.From)
	consumer := outbox.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, cfg.Kafka.Workers, mailer, repo, myLogger)

	regs := make([]notify.Registration, 0, len(cfg.Listener.Channels))
	for _, ch := range cfg.Listener.Channels {
		regs = append(regs, notify.Registration{
			Channel: ch,
			Handler: relay.Handler(),
			Policy:  policy,
		})
	}

	svc := listener.New(connector, myLogger, cfg.Listener.NotificationTimeout.Std())

	myLogger.Info("application built", dLog.Field{Key: "dsn", Value: cfg.Db.RedactedDSN()})

	return &App{
		Listener:      svc,
		Registrations: regs,
		Consumer:      consumer,
		Logger:        myLogger,
		closers: []func() error{
			pub.Close,
			connector.Close,
			func() error { pool.Close(); return nil },
		},
	}, nil
}

func (a *App) Close() error {
	var errs []error
	for _, fn := range a.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
