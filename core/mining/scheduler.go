package mining

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type TaskStore interface {
	Create(ctx context.Context, t Task) error
	Task(ctx context.Context, id string) (Task, error)
	// Finish writes a terminal status. It reports false, without error, when
	// the record is gone or no longer running.
	Finish(ctx context.Context, id string, status Status, comment string, result []byte) (bool, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Task, error)
	Result(ctx context.Context, id string) ([]byte, bool, error)
}

type TaskQueue interface {
	Enqueue(ctx context.Context, taskID string) error
}

// Interrupter signals a running execution to stop. Delivery is best-effort.
type Interrupter interface {
	Interrupt(ctx context.Context, taskID string) error
}

type ArchiveCleaner interface {
	Delete(ctx context.Context, taskID string) error
}

type SubmitRequest struct {
	Kind        Kind
	SourceLabel string
	Range       TimeRange
	Description string
}

type Scheduler struct {
	store       TaskStore
	registry    *Registry
	catalog     *Catalog
	queue       TaskQueue
	interrupter Interrupter
	archive     ArchiveCleaner

	now   func() time.Time
	newID func() string
}

type SchedulerOption func(*Scheduler)

func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

func WithIDGenerator(newID func() string) SchedulerOption {
	return func(s *Scheduler) { s.newID = newID }
}

func WithArchive(a ArchiveCleaner) SchedulerOption {
	return func(s *Scheduler) { s.archive = a }
}

func NewScheduler(
	store TaskStore,
	registry *Registry,
	catalog *Catalog,
	queue TaskQueue,
	interrupter Interrupter,
	opts ...SchedulerOption,
) *Scheduler {
	s := &Scheduler{
		store:       store,
		registry:    registry,
		catalog:     catalog,
		queue:       queue,
		interrupter: interrupter,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the request, stores a running record and hands the id to
// the queue. It never waits for the computation.
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (Task, error) {
	if _, err := s.registry.Resolve(req.Kind); err != nil {
		return Task{}, err
	}
	src, err := s.catalog.Lookup(req.SourceLabel)
	if err != nil {
		return Task{}, err
	}
	if err := req.Range.validate(); err != nil {
		return Task{}, err
	}

	t := Task{
		ID:          s.newID(),
		Kind:        req.Kind,
		SourceLabel: src.Label,
		Description: req.Description,
		CreatedAt:   s.now(),
		Status:      StatusRunning,
		Table:       src.Table,
		Range:       req.Range,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}

	slog.Debug("enqueue task", slog.String("task_id", t.ID), slog.String("kind", string(t.Kind)))
	if err := s.queue.Enqueue(ctx, t.ID); err != nil {
		slog.Error("enqueue failed",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()),
		)
		if _, ferr := s.store.Finish(context.WithoutCancel(ctx), t.ID, StatusFailed, CommentEnqueue, nil); ferr != nil {
			slog.Warn("mark task failed", slog.String("task_id", t.ID), slog.String("error", ferr.Error()))
		}
		return Task{}, fmt.Errorf("enqueue: %w", err)
	}

	return t, nil
}

// Cancel interrupts the execution of id if it is in flight and removes its
// record whatever state it is in. Unknown ids are not an error.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	if err := s.interrupter.Interrupt(ctx, id); err != nil {
		slog.Warn("interrupt task", slog.String("task_id", id), slog.String("error", err.Error()))
	}

	eg, eCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return s.store.Delete(eCtx, id)
	})
	if s.archive != nil {
		eg.Go(func() error {
			if err := s.archive.Delete(eCtx, id); err != nil {
				slog.Warn("delete archived result", slog.String("task_id", id), slog.String("error", err.Error()))
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	slog.Info("task canceled", slog.String("task_id", id))
	return nil
}

// List returns every record without its result, newest first.
func (s *Scheduler) List(ctx context.Context) ([]Task, error) {
	return s.store.List(ctx)
}

// Result returns the payload of a succeeded task. Running, failed and unknown
// tasks all report ok == false.
func (s *Scheduler) Result(ctx context.Context, id string) ([]byte, bool, error) {
	return s.store.Result(ctx, id)
}
