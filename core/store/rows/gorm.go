package rowstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/you-humble/ubattery/core/mining"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const timeColumn = "timestamp"

type gormRowSource struct {
	db    *gorm.DB
	limit int
}

// NewGormRowSource reads telemetry rows through db. With a positive limit a
// Fetch matching more rows fails with ErrRowLimitExceeded instead of
// computing over a truncated set.
func NewGormRowSource(db *gorm.DB, limit int) *gormRowSource {
	return &gormRowSource{db: db, limit: limit}
}

// Fetch selects columns of table ordered by timestamp. Table and column names
// must already be checked against the catalog; they are quoted, not escaped.
func (s *gormRowSource) Fetch(
	ctx context.Context,
	table mining.Table,
	columns []mining.Column,
	r mining.TimeRange,
) ([]mining.Row, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: empty projection for %s", mining.ErrColumnNotAllowed, table)
	}

	q := s.query(ctx, table, columns)
	if !r.IsAll() {
		ts := clause.Column{Name: timeColumn}
		q = q.Where(clause.Gte{Column: ts, Value: r.From}).
			Where(clause.Lt{Column: ts, Value: r.To})
	}
	if s.limit > 0 {
		q = q.Limit(s.limit + 1)
	}

	rows, err := find(q, table)
	if err != nil {
		return nil, err
	}
	if s.limit > 0 && len(rows) > s.limit {
		return nil, fmt.Errorf("%w: %s has more than %d rows in range", mining.ErrRowLimitExceeded, table, s.limit)
	}
	return rows, nil
}

// Sample returns at most n rows of table from since onwards, ordered by
// timestamp. The timestamp column is always part of the projection.
func (s *gormRowSource) Sample(
	ctx context.Context,
	table mining.Table,
	columns []mining.Column,
	since time.Time,
	n int,
) ([]mining.Row, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: empty projection for %s", mining.ErrColumnNotAllowed, table)
	}
	if n <= 0 {
		return []mining.Row{}, nil
	}
	if !slices.Contains(columns, timeColumn) {
		columns = append([]mining.Column{timeColumn}, columns...)
	}

	q := s.query(ctx, table, columns).
		Where(clause.Gte{Column: clause.Column{Name: timeColumn}, Value: since}).
		Limit(n)
	return find(q, table)
}

func (s *gormRowSource) query(ctx context.Context, table mining.Table, columns []mining.Column) *gorm.DB {
	selected := make([]clause.Column, 0, len(columns))
	for _, c := range columns {
		selected = append(selected, clause.Column{Name: string(c)})
	}

	return s.db.WithContext(ctx).
		Table(string(table)).
		Clauses(clause.Select{Columns: selected}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: timeColumn}})
}

func find(q *gorm.DB, table mining.Table) ([]mining.Row, error) {
	var raw []map[string]any
	if err := q.Find(&raw).Error; err != nil {
		return nil, fmt.Errorf("%w: select %s: %w", mining.ErrDataAccess, table, err)
	}

	rows := make([]mining.Row, len(raw))
	for i, m := range raw {
		rows[i] = mining.Row(m)
	}
	return rows, nil
}
