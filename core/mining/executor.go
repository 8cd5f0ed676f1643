package mining

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type ResultArchiver interface {
	Archive(taskID string, payload []byte) bool
}

// Executor runs the body of one task on a worker goroutine.
type Executor struct {
	store    TaskStore
	registry *Registry
	catalog  *Catalog
	rows     RowSource
	archiver ResultArchiver

	now          func() time.Time
	writeTimeout time.Duration
}

type ExecutorOption func(*Executor)

func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

func WithArchiver(a ResultArchiver) ExecutorOption {
	return func(e *Executor) { e.archiver = a }
}

func WithWriteTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.writeTimeout = d
		}
	}
}

func NewExecutor(
	store TaskStore,
	registry *Registry,
	catalog *Catalog,
	rows RowSource,
	opts ...ExecutorOption,
) *Executor {
	e := &Executor{
		store:        store,
		registry:     registry,
		catalog:      catalog,
		rows:         rows,
		now:          time.Now,
		writeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs task taskID to a terminal status. It returns ErrTaskNotFound
// when the record was removed before the worker picked it up, and an error
// when the terminal status could not be written.
func (e *Executor) Execute(ctx context.Context, taskID string) error {
	task, err := e.load(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return err
		}
		return e.abort(ctx, taskID, err)
	}
	if task.Status != StatusRunning {
		slog.Debug("skip finished task", slog.String("task_id", taskID), slog.String("status", string(task.Status)))
		return nil
	}

	l := slog.With(slog.String("task_id", taskID), slog.String("kind", string(task.Kind)))
	l.Info("process start")

	start := e.now()
	status := StatusSucceeded
	payload, err := e.run(ctx, task)
	comment := fmt.Sprintf("elapsed %.2fs", e.now().Sub(start).Seconds())
	if err != nil {
		status, comment, payload = StatusFailed, failureComment(err), nil
		l.Warn("process failed", slog.String("error", err.Error()))
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.writeTimeout)
	defer cancel()

	applied, err := e.store.Finish(wctx, taskID, status, comment, payload)
	if err != nil {
		return fmt.Errorf("finish task %s: %w", taskID, err)
	}
	if !applied {
		l.Info("task removed before completion, result dropped")
		return nil
	}

	if status == StatusSucceeded && e.archiver != nil {
		if !e.archiver.Archive(taskID, payload) {
			l.Warn("archive queue full, result kept only in task store")
		}
	}

	l.Info("process done", slog.String("status", string(status)), slog.String("comment", comment))
	return nil
}

// load reads the record even when ctx is already done, so a task taken off
// the queue during shutdown still reaches a terminal status.
func (e *Executor) load(ctx context.Context, taskID string) (Task, error) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.writeTimeout)
	defer cancel()
	return e.store.Task(lctx, taskID)
}

// abort marks a record that could not be loaded as failed. The write is a
// no-op when the record is gone or already terminal.
func (e *Executor) abort(ctx context.Context, taskID string, cause error) error {
	comment := failureComment(cause)
	if ctx.Err() != nil {
		comment = CommentInterrupted
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.writeTimeout)
	defer cancel()

	if _, err := e.store.Finish(wctx, taskID, StatusFailed, comment, nil); err != nil {
		return fmt.Errorf("load task %s: %w", taskID, errors.Join(cause, err))
	}
	slog.Warn("task load failed, marked failed",
		slog.String("task_id", taskID),
		slog.String("error", cause.Error()),
	)
	return nil
}

func (e *Executor) run(ctx context.Context, task Task) ([]byte, error) {
	alg, err := e.registry.Resolve(task.Kind)
	if err != nil {
		return nil, err
	}
	columns, err := e.catalog.Columns(task.Table, alg.Columns)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := e.rows.Fetch(ctx, task.Table, columns, task.Range)
	if err != nil {
		return nil, fmt.Errorf("fetch rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyResultSet
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := compute(alg.Compute, rows)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return payload, nil
}

func compute(fn ComputeFunc, rows []Row) (doc any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in algorithm",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("algorithm panic: %v", rec)
		}
	}()

	doc = fn(rows)
	if doc == nil {
		return nil, ErrNoDocument
	}
	return doc, nil
}

func failureComment(err error) string {
	switch {
	case errors.Is(err, ErrEmptyResultSet):
		return CommentNoData
	case errors.Is(err, ErrRowLimitExceeded):
		return CommentRowLimit
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CommentInterrupted
	case errors.Is(err, ErrDataAccess):
		return CommentDataAccess
	case errors.Is(err, ErrUnknownKind), errors.Is(err, ErrUnknownSource), errors.Is(err, ErrColumnNotAllowed):
		return CommentInvalid
	default:
		return CommentInternal
	}
}
