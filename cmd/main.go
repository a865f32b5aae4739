package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"pglisten/internal/app"
	"pglisten/internal/config"
	dLog "pglisten/internal/domain/log"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.MustLoad()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Println("shutdown:", err)
		}
	}()

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- a.Listener.Run(ctx, a.Registrations...)
	}()
	go func() {
		if err := a.Consumer.Run(ctx); err != nil && ctx.Err() == nil {
			a.Logger.Error("outbox consumer stopped", dLog.Field{Key: "err", Value: err})
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-listenErr:
		if err != nil && ctx.Err() == nil {
			a.Logger.Error("listener stopped", dLog.Field{Key: "err", Value: err})
		}
	}
	fmt.Println("shutting down...")
}
