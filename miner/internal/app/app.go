package mapp

import (
	"context"
	"log/slog"

	"github.com/you-humble/ubattery/core/queue"
)

type app struct {
	di *dependencyInjector
}

func New(ctx context.Context) *app {
	di := newDI()
	di.Logger()
	return &app{di: di}
}

func (a *app) Run(ctx context.Context) error {
	defer a.di.Close()

	if ar := a.di.Archiver(ctx); ar != nil {
		ar.Start(ctx)
	}

	cfg := a.di.Config()
	sub, err := queue.SubscribeInterrupts(a.di.NATSConn(ctx), cfg.NATS.InterruptSubject, a.di.Inflight())
	if err != nil {
		return err
	}
	slog.Info("listening for interrupts", slog.String("subject", cfg.NATS.InterruptSubject))

	m := a.di.Miner(ctx)
	slog.Info("miner starting...")
	if err := m.Run(ctx); err != nil {
		return err
	}

	a.di.Reaper(ctx).Start(ctx)
	slog.Info("cleanup running...")

	<-ctx.Done()
	slog.Info("miner shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := m.Stop(shutdownCtx); err != nil {
		slog.Error("miner stop", slog.String("error", err.Error()))
	}
	if err := sub.Unsubscribe(); err != nil {
		slog.Warn("interrupt unsubscribe", slog.String("error", err.Error()))
	}
	if ar := a.di.Archiver(ctx); ar != nil {
		if err := ar.Stop(shutdownCtx); err != nil {
			slog.Error("archiver stop", slog.String("error", err.Error()))
		}
	}
	return nil
}
