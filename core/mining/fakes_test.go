package mining_test

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/you-humble/ubattery/core/mining"
)

// memStore fails calls made with a done context, the way a network store
// does. taskErr, when set, is returned by the next Task call.
type memStore struct {
	mu      sync.Mutex
	tasks   map[string]mining.Task
	taskErr error
}

func newMemStore() *memStore {
	return &memStore{tasks: map[string]mining.Task{}}
}

func (s *memStore) Create(_ context.Context, t mining.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return nil
}

func (s *memStore) Task(ctx context.Context, id string) (mining.Task, error) {
	if err := ctx.Err(); err != nil {
		return mining.Task{}, fmt.Errorf("%w: %w", mining.ErrDataAccess, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.taskErr; err != nil {
		s.taskErr = nil
		return mining.Task{}, err
	}
	t, ok := s.tasks[id]
	if !ok {
		return mining.Task{}, mining.ErrTaskNotFound
	}
	return t, nil
}

func (s *memStore) Finish(ctx context.Context, id string, status mining.Status, comment string, result []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %w", mining.ErrDataAccess, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != mining.StatusRunning {
		return false, nil
	}
	t.Status, t.Comment, t.Result = status, comment, slices.Clone(result)
	s.tasks[id] = t
	return true, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

func (s *memStore) List(_ context.Context) ([]mining.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mining.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		t.Result = nil
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) Result(_ context.Context, id string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != mining.StatusSucceeded {
		return nil, false, nil
	}
	return t.Result, true, nil
}

func (s *memStore) DeleteFinishedBefore(_ context.Context, border time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, t := range s.tasks {
		if t.Status.Terminal() && t.CreatedAt.Before(border) {
			delete(s.tasks, id)
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memStore) get(id string) (mining.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// fakeQueue records enqueued ids; run, when set, is called on its own
// goroutine for every id.
type fakeQueue struct {
	mu  sync.Mutex
	ids []string
	err error
	run func(id string)
}

func (q *fakeQueue) Enqueue(_ context.Context, id string) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	q.ids = append(q.ids, id)
	q.mu.Unlock()
	if q.run != nil {
		go q.run(id)
	}
	return nil
}

func (q *fakeQueue) enqueued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.ids)
}

type fakeInterrupter struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeInterrupter) Interrupt(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return nil
}

type fakeArchive struct {
	mu       sync.Mutex
	deleted  []string
	archived map[string][]byte
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{archived: map[string][]byte{}}
}

func (a *fakeArchive) Delete(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, id)
	delete(a.archived, id)
	return nil
}

func (a *fakeArchive) Archive(id string, payload []byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived[id] = payload
	return true
}

// rowsFunc adapts a function to mining.RowSource.
type rowsFunc func(ctx context.Context, table mining.Table, columns []mining.Column, r mining.TimeRange) ([]mining.Row, error)

func (f rowsFunc) Fetch(ctx context.Context, table mining.Table, columns []mining.Column, r mining.TimeRange) ([]mining.Row, error) {
	return f(ctx, table, columns, r)
}

func staticRows(rows ...mining.Row) rowsFunc {
	return func(context.Context, mining.Table, []mining.Column, mining.TimeRange) ([]mining.Row, error) {
		return rows, nil
	}
}

func stubRegistry(fn mining.ComputeFunc) *mining.Registry {
	alg := mining.Algorithm{Columns: []mining.Column{"max_t_s_b_num", "min_t_s_b_num"}, Compute: fn}
	return mining.NewRegistry(map[mining.Kind]mining.Algorithm{
		mining.KindBatteryStatistic: alg,
		mining.KindChargingProcess:  {Columns: []mining.Column{"id", "battery_soc"}, Compute: fn},
	})
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("task-%d", n)
	}
}
