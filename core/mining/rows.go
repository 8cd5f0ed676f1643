package mining

import (
	"context"
	"fmt"
	"time"
)

// Table and Column are tokens taken from a Catalog, never from user input.
type Table string

type Column string

type Row map[string]any

// TimeRange is the half-open interval [From, To). The zero value selects all rows.
type TimeRange struct {
	From time.Time
	To   time.Time
}

func NewTimeRange(from, to time.Time) (TimeRange, error) {
	if from.IsZero() || to.IsZero() || !from.Before(to) {
		return TimeRange{}, fmt.Errorf("%w: %s - %s", ErrInvalidRange, from, to)
	}
	return TimeRange{From: from, To: to}, nil
}

func (r TimeRange) IsAll() bool {
	return r.From.IsZero() && r.To.IsZero()
}

func (r TimeRange) Contains(t time.Time) bool {
	if r.IsAll() {
		return true
	}
	return !t.Before(r.From) && t.Before(r.To)
}

func (r TimeRange) validate() error {
	if r.IsAll() {
		return nil
	}
	_, err := NewTimeRange(r.From, r.To)
	return err
}

type RowSource interface {
	Fetch(ctx context.Context, table Table, columns []Column, r TimeRange) ([]Row, error)
}
