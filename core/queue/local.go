package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	ErrQueueFull   = errors.New("task queue is full")
	ErrQueueClosed = errors.New("task queue is closed")
)

type Executor interface {
	Execute(ctx context.Context, taskID string) error
}

// Local is an in-process task queue: a bounded channel of ids drained by a
// fixed number of workers.
type Local struct {
	exec     Executor
	inflight *Inflight

	queue     chan string
	workerNum int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewLocal(exec Executor, queueSize, workerNum int) *Local {
	if queueSize <= 0 {
		queueSize = 100
	}
	if workerNum <= 0 {
		workerNum = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Local{
		exec:      exec,
		inflight:  NewInflight(),
		queue:     make(chan string, queueSize),
		workerNum: workerNum,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (q *Local) Start(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.mu.Unlock()

	q.wg.Add(q.workerNum)
	for i := range q.workerNum {
		go q.worker(i)
	}

	slog.Info("local task queue started", slog.Int("workers", q.workerNum), slog.Int("capacity", cap(q.queue)))
}

// Stop interrupts running executions and waits for the workers to return.
// Ids still queued are handed to the executor with the cancelled context so
// their records are closed as interrupted.
func (q *Local) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.cancel()
	close(q.queue)
	q.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		q.wg.Wait()
		q.drain()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-doneCh:
	}

	slog.Info("local task queue stopped")
	return nil
}

func (q *Local) Enqueue(ctx context.Context, taskID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.queue <- taskID:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Local) Interrupt(_ context.Context, taskID string) error {
	if q.inflight.Cancel(taskID) {
		slog.Debug("execution interrupted", slog.String("task_id", taskID))
	}
	return nil
}

func (q *Local) worker(n int) {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case id, ok := <-q.queue:
			if !ok {
				return
			}
			q.run(id, n)
		}
	}
}

func (q *Local) drain() {
	n := 0
	for id := range q.queue {
		q.run(id, -1)
		n++
	}
	if n > 0 {
		slog.Info("drained queued tasks", slog.Int("count", n))
	}
}

func (q *Local) run(id string, worker int) {
	ctx, done := q.inflight.Begin(q.ctx, id)
	defer done()

	if err := q.exec.Execute(ctx, id); err != nil {
		slog.Warn("execute task",
			slog.String("task_id", id),
			slog.Int("worker", worker),
			slog.String("error", err.Error()),
		)
	}
}
