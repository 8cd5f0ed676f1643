package mining

import (
	"fmt"
	"slices"
)

// ComputeFunc turns fetched rows into a result document. It must be pure.
type ComputeFunc func(rows []Row) any

type Algorithm struct {
	Columns []Column
	Compute ComputeFunc
}

type Registry struct {
	algorithms map[Kind]Algorithm
}

func NewRegistry(algorithms map[Kind]Algorithm) *Registry {
	r := &Registry{algorithms: make(map[Kind]Algorithm, len(algorithms))}
	for k, a := range algorithms {
		a.Columns = slices.Clone(a.Columns)
		r.algorithms[k] = a
	}
	return r
}

func (r *Registry) Resolve(k Kind) (Algorithm, error) {
	if !k.Valid() {
		return Algorithm{}, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	a, ok := r.algorithms[k]
	if !ok || a.Compute == nil {
		return Algorithm{}, fmt.Errorf("%w: %q is not registered", ErrUnknownKind, k)
	}
	return a, nil
}
