package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// JetStream publishes task ids to a work stream consumed by the miners.
type JetStream struct {
	js      nats.JetStreamContext
	subject string
}

func NewJetStream(js nats.JetStreamContext, subject string) *JetStream {
	return &JetStream{
		js:      js,
		subject: subject,
	}
}

func (q *JetStream) Enqueue(ctx context.Context, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("empty taskID")
	}

	msg := &nats.Msg{
		Subject: q.subject,
		Data:    []byte(taskID),
		Header:  nats.Header{},
	}

	// MsgId lets the stream drop a duplicate publish of the same task.
	ack, err := q.js.PublishMsg(msg, nats.MsgId(taskID), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("enqueue task %s: publish failed: %w", taskID, err)
	}

	slog.Debug("task enqueued",
		slog.String("task_id", taskID),
		slog.String("subject", q.subject),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
	)

	return nil
}
