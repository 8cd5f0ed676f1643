package miner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/you-humble/ubattery/core/mining"
	"github.com/you-humble/ubattery/core/queue"

	"github.com/nats-io/nats.go"
)

const (
	fetchWait = 5 * time.Second
	// JetStream default when the consumer does not set AckWait.
	defaultAckWait = 30 * time.Second
)

type Executor interface {
	Execute(ctx context.Context, taskID string) error
}

type message interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	InProgress(opts ...nats.AckOpt) error
}

type Config struct {
	Stream  string
	Subject string
	Durable string
	Workers int
	// AckWait bounds one execution before JetStream redelivers the id.
	AckWait time.Duration
}

type natsMiner struct {
	cfg      Config
	js       nats.JetStreamContext
	exec     Executor
	inflight *queue.Inflight

	sub *nats.Subscription
	wg  sync.WaitGroup
}

func New(cfg Config, js nats.JetStreamContext, exec Executor, inflight *queue.Inflight) *natsMiner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Durable == "" {
		cfg.Durable = "mining-task-consumer"
	}
	return &natsMiner{
		cfg:      cfg,
		js:       js,
		exec:     exec,
		inflight: inflight,
	}
}

func (m *natsMiner) Run(ctx context.Context) error {
	consumer := &nats.ConsumerConfig{
		Durable:       m.cfg.Durable,
		AckPolicy:     nats.AckExplicitPolicy,
		FilterSubject: m.cfg.Subject,
		MaxAckPending: m.cfg.Workers * 2,
	}
	if m.cfg.AckWait > 0 {
		consumer.AckWait = m.cfg.AckWait
	}

	_, err := m.js.AddConsumer(m.cfg.Stream, consumer)
	if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		return fmt.Errorf("JetStream AddConsumer: %w", err)
	}

	sub, err := m.js.PullSubscribe(m.cfg.Subject, m.cfg.Durable, nats.Bind(m.cfg.Stream, m.cfg.Durable))
	if err != nil {
		return fmt.Errorf("JetStream PullSubscribe: %w", err)
	}
	m.sub = sub

	m.wg.Add(m.cfg.Workers)
	for i := range m.cfg.Workers {
		go func() {
			defer m.wg.Done()
			m.runWorker(ctx, i)
		}()
	}

	slog.Info("miner is running",
		slog.Int("workers", m.cfg.Workers),
		slog.String("subject", m.cfg.Subject),
	)
	return nil
}

// Stop waits for the workers, which return once ctx passed to Run is done.
func (m *natsMiner) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	if m.sub != nil {
		if err := m.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			slog.Warn("NATS unsubscribe", slog.String("error", err.Error()))
		}
	}

	slog.Info("miner stopped")
	return nil
}

func (m *natsMiner) runWorker(ctx context.Context, n int) {
	for {
		select {
		case <-ctx.Done():
			slog.Debug("worker stopping", slog.Int("worker", n))
			return
		default:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, fetchWait)
		msgs, err := m.sub.Fetch(1, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				continue
			}
			slog.Warn("NATS Fetch", slog.String("error", err.Error()))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, msg := range msgs {
			m.handle(ctx, string(msg.Data), msg)
		}
	}
}

func (m *natsMiner) handle(ctx context.Context, taskID string, msg message) {
	l := slog.With(slog.String("task_id", taskID))
	l.Debug("got message")

	execCtx, done := m.inflight.Begin(ctx, taskID)
	stopProgress := m.keepAlive(msg, l)
	err := m.exec.Execute(execCtx, taskID)
	stopProgress()
	done()

	switch {
	case err == nil:
	case errors.Is(err, mining.ErrTaskNotFound):
		l.Info("task removed before start, skipped")
	default:
		l.Error("process", slog.String("error", err.Error()))
		if err := msg.Nak(); err != nil {
			l.Warn("NATS Nak", slog.String("error", err.Error()))
		}
		return
	}

	if err := msg.Ack(); err != nil {
		l.Warn("NATS Ack", slog.String("error", err.Error()))
	}
}

// keepAlive resets the ack deadline of msg while the task runs so JetStream
// does not redeliver it to another worker.
func (m *natsMiner) keepAlive(msg message, l *slog.Logger) func() {
	ackWait := m.cfg.AckWait
	if ackWait <= 0 {
		ackWait = defaultAckWait
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(ackWait / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := msg.InProgress(); err != nil {
					l.Warn("NATS InProgress", slog.String("error", err.Error()))
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}
