package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Broadcaster sends interrupt signals to every miner over core NATS.
// Delivery is at most once; a miner that is not listening misses it.
type Broadcaster struct {
	nc      *nats.Conn
	subject string
}

func NewBroadcaster(nc *nats.Conn, subject string) *Broadcaster {
	return &Broadcaster{nc: nc, subject: subject}
}

func (b *Broadcaster) Interrupt(_ context.Context, taskID string) error {
	if err := b.nc.Publish(b.subject, []byte(taskID)); err != nil {
		return fmt.Errorf("publish interrupt %s: %w", taskID, err)
	}
	return nil
}

// SubscribeInterrupts cancels local executions named on subject.
func SubscribeInterrupts(nc *nats.Conn, subject string, inflight *Inflight) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		id := string(msg.Data)
		if inflight.Cancel(id) {
			slog.Info("execution interrupted", slog.String("task_id", id))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}
