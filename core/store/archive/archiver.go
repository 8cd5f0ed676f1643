package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type Storage interface {
	Put(ctx context.Context, taskID string, payload []byte) error
}

type job struct {
	taskID  string
	payload []byte
	retries int
}

// Archiver copies succeeded results to object storage in the background.
type Archiver struct {
	storage Storage

	queue      chan job
	workerNum  int
	maxRetries int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewArchiver(storage Storage, queueSize, workerNum, maxRetries int) *Archiver {
	if queueSize <= 0 {
		queueSize = 100
	}
	if workerNum <= 0 {
		workerNum = 1
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Archiver{
		storage:    storage,
		queue:      make(chan job, queueSize),
		workerNum:  workerNum,
		maxRetries: maxRetries,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (a *Archiver) Start(ctx context.Context) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	a.wg.Add(a.workerNum)
	for range a.workerNum {
		go a.worker()
	}
}

func (a *Archiver) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.cancel()
	close(a.queue)
	a.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		a.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-doneCh:
	}

	slog.Info("archiver: stopped")
	return nil
}

// Archive schedules payload for upload. It reports false when the archiver
// is closed or its queue is full.
func (a *Archiver) Archive(taskID string, payload []byte) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return false
	}

	select {
	case a.queue <- job{taskID: taskID, payload: payload}:
		return true
	default:
		return false
	}
}

func (a *Archiver) worker() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case j, ok := <-a.queue:
			if !ok {
				return
			}
			a.handle(a.ctx, j)
		}
	}
}

func (a *Archiver) handle(ctx context.Context, j job) {
	l := slog.With(
		slog.String("task_id", j.taskID),
		slog.Int("retries", j.retries),
	)

	err := a.storage.Put(ctx, j.taskID, j.payload)
	if err == nil {
		l.Debug("archiver: result archived", slog.Int("size", len(j.payload)))
		return
	}
	err = fmt.Errorf("archive result: %w", err)

	if j.retries >= a.maxRetries {
		l.Error("archive failed, max retries exceeded", slog.String("error", err.Error()))
		return
	}

	j.retries++
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- j:
		l.Warn("archive failed, job requeued",
			slog.String("error", err.Error()),
			slog.Int("next_retry", j.retries),
		)
	default:
		l.Error("archive failed and queue is full, dropping job", slog.String("error", err.Error()))
	}
}
