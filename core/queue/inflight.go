package queue

import (
	"context"
	"sync"
)

// Inflight tracks the cancel functions of executions running in this process.
type Inflight struct {
	mu      sync.Mutex
	cancels map[string]*entry
}

type entry struct {
	cancel context.CancelFunc
}

func NewInflight() *Inflight {
	return &Inflight{cancels: make(map[string]*entry)}
}

// Begin derives the execution context of id from parent. done must be called
// when the execution returns.
func (f *Inflight) Begin(parent context.Context, id string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	e := &entry{cancel: cancel}

	f.mu.Lock()
	f.cancels[id] = e
	f.mu.Unlock()

	return ctx, func() {
		f.mu.Lock()
		if f.cancels[id] == e {
			delete(f.cancels, id)
		}
		f.mu.Unlock()
		cancel()
	}
}

// Cancel interrupts the execution of id and reports whether one was running
// here.
func (f *Inflight) Cancel(id string) bool {
	f.mu.Lock()
	e, ok := f.cancels[id]
	f.mu.Unlock()

	if ok {
		e.cancel()
	}
	return ok
}

func (f *Inflight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancels)
}
