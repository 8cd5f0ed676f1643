package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/you-humble/ubattery/api/internal/transport"
)

type app struct {
	di  *dependencyInjector
	srv *http.Server
}

func New(ctx context.Context) *app {
	di := newDI()
	di.Logger()
	mux := http.NewServeMux()
	return &app{
		di: di,
		srv: &http.Server{
			Addr: di.Config().Addr,
			Handler: transport.WithRecover(
				transport.LogMiddleware(
					di.Router(ctx).MountRoutes(mux),
				),
			),
		},
	}
}

func (a *app) Run(ctx context.Context) error {
	defer a.di.Close()

	// with the local driver this process also executes the tasks
	if a.di.Archiver(ctx) != nil {
		a.di.Archiver(ctx).Start(ctx)
	}
	if q := a.di.LocalQueue(ctx); q != nil {
		q.Start(ctx)
	}
	if r := a.di.Reaper(ctx); r != nil {
		r.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", slog.String("addr", a.srv.Addr))
		if e := a.srv.ListenAndServe(); e != nil && !errors.Is(e, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", e.Error()))
			errCh <- e
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		a.di.Config().ShutdownTimeout,
	)
	defer cancel()

	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
		runErr = errors.Join(runErr, err)
	}
	if q := a.di.LocalQueue(ctx); q != nil {
		if err := q.Stop(shutdownCtx); err != nil {
			slog.Error("task queue stop", slog.String("error", err.Error()))
		}
	}
	if ar := a.di.Archiver(ctx); ar != nil {
		if err := ar.Stop(shutdownCtx); err != nil {
			slog.Error("archiver stop", slog.String("error", err.Error()))
		}
	}

	if runErr == nil {
		slog.Info("server gracefully stopped")
	}
	return runErr
}
