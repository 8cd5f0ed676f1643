package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/you-humble/ubattery/api/internal/domain"
	"github.com/you-humble/ubattery/core/cache"
	"github.com/you-humble/ubattery/core/mining"
	"github.com/you-humble/ubattery/core/store/archive"
)

type Scheduler interface {
	Submit(ctx context.Context, req mining.SubmitRequest) (mining.Task, error)
	Cancel(ctx context.Context, id string) error
	List(ctx context.Context) ([]mining.Task, error)
	Result(ctx context.Context, id string) ([]byte, bool, error)
}

type ResultCache interface {
	Load(ctx context.Context, id string, load cache.LoadFunc) (cache.Result, error)
	Invalidate(id string)
}

type Catalog interface {
	Sources() []mining.Source
	Lookup(label string) (mining.Source, error)
	Columns(table mining.Table, want []mining.Column) ([]mining.Column, error)
}

// Sampler reads raw telemetry for the data query.
type Sampler interface {
	Sample(ctx context.Context, table mining.Table, columns []mining.Column, since time.Time, n int) ([]mining.Row, error)
}

type Archive interface {
	Open(ctx context.Context, taskID string) (io.ReadCloser, int64, error)
}

type usecase struct {
	scheduler Scheduler
	cache     ResultCache
	catalog   Catalog
	archive   Archive
	sampler   Sampler
}

// New wires the api use cases. archive and sampler may be nil, which
// disables export and the raw data query.
func New(
	scheduler Scheduler,
	cache ResultCache,
	catalog Catalog,
	archive Archive,
	sampler Sampler,
) *usecase {
	return &usecase{
		scheduler: scheduler,
		cache:     cache,
		catalog:   catalog,
		archive:   archive,
		sampler:   sampler,
	}
}

func (uc *usecase) Submit(ctx context.Context, kind string, req domain.SubmitRequest) (domain.TaskSummary, error) {
	k, err := mining.ParseKind(kind)
	if err != nil {
		return domain.TaskSummary{}, err
	}

	r, params, err := requestRange(req)
	if err != nil {
		return domain.TaskSummary{}, err
	}

	task, err := uc.scheduler.Submit(ctx, mining.SubmitRequest{
		Kind:        k,
		SourceLabel: req.DataComeFrom,
		Range:       r,
		Description: params,
	})
	if err != nil {
		return domain.TaskSummary{}, err
	}

	return summary(task), nil
}

func (uc *usecase) Tasks(ctx context.Context) ([]domain.TaskSummary, error) {
	tasks, err := uc.scheduler.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	out := make([]domain.TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, summary(t))
	}
	return out, nil
}

// Result returns the stored document of a succeeded task.
func (uc *usecase) Result(ctx context.Context, id string) ([]byte, error) {
	res, err := uc.cache.Load(ctx, id, func(ctx context.Context) (cache.Result, error) {
		payload, ok, err := uc.scheduler.Result(ctx, id)
		if err != nil {
			return cache.Result{}, err
		}
		return cache.Result{Payload: payload, Found: ok}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}

	if !res.Found {
		return nil, domain.ErrNoResult
	}
	return res.Payload, nil
}

func (uc *usecase) Cancel(ctx context.Context, id string) error {
	defer uc.cache.Invalidate(id)

	if err := uc.scheduler.Cancel(ctx, id); err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	return nil
}

func (uc *usecase) Export(ctx context.Context, id string) (domain.Export, error) {
	if uc.archive == nil {
		return domain.Export{}, domain.ErrNoResult
	}

	rc, size, err := uc.archive.Open(ctx, id)
	if err != nil {
		if errors.Is(err, archive.ErrNotArchived) {
			return domain.Export{}, domain.ErrNoResult
		}
		return domain.Export{}, fmt.Errorf("open archive: %w", err)
	}

	return domain.Export{
		FileName: id + ".json",
		Size:     size,
		Content:  rc,
	}, nil
}

func (uc *usecase) Sources(ctx context.Context) []domain.SourceInfo {
	sources := uc.catalog.Sources()

	out := make([]domain.SourceInfo, 0, len(sources))
	for _, s := range sources {
		cols := make([]string, 0, len(s.Columns))
		for _, c := range s.Columns {
			cols = append(cols, string(c))
		}
		out = append(out, domain.SourceInfo{
			Label:   s.Label,
			Table:   string(s.Table),
			Columns: cols,
		})
	}
	return out
}

// Data returns raw rows of a catalog source. Time values are formatted with
// domain.TimeLayout.
func (uc *usecase) Data(ctx context.Context, q domain.DataQuery) ([]map[string]any, error) {
	if uc.sampler == nil {
		return nil, domain.ErrDataDisabled
	}

	src, err := uc.catalog.Lookup(q.DataComeFrom)
	if err != nil {
		return nil, err
	}
	since, err := parseDate("startDate", q.StartDate)
	if err != nil {
		return nil, err
	}
	if q.DataLimit <= 0 || q.DataLimit > domain.MaxDataLimit {
		return nil, fmt.Errorf("%w: dataLimit must be in 1..%d, got %d", domain.ErrInvalidQuery, domain.MaxDataLimit, q.DataLimit)
	}
	if len(q.NeedParams) == 0 {
		return nil, fmt.Errorf("%w: needParams is empty", domain.ErrInvalidQuery)
	}

	want := make([]mining.Column, 0, len(q.NeedParams))
	for _, p := range q.NeedParams {
		want = append(want, mining.Column(strings.TrimSpace(p)))
	}
	columns, err := uc.catalog.Columns(src.Table, want)
	if err != nil {
		return nil, err
	}

	rows, err := uc.sampler.Sample(ctx, src.Table, columns, since, q.DataLimit)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", src.Table, err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNoData
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]any, len(row))
		for k, v := range row {
			if t, ok := v.(time.Time); ok {
				v = t.In(time.Local).Format(domain.TimeLayout)
			}
			m[k] = v
		}
		out = append(out, m)
	}
	return out, nil
}

func requestRange(req domain.SubmitRequest) (mining.TimeRange, string, error) {
	if req.AllData {
		return mining.TimeRange{}, domain.AllData, nil
	}

	from, err := parseDate("startDate", req.StartDate)
	if err != nil {
		return mining.TimeRange{}, "", err
	}
	to, err := parseDate("endDate", req.EndDate)
	if err != nil {
		return mining.TimeRange{}, "", err
	}

	r, err := mining.NewTimeRange(from, to)
	if err != nil {
		return mining.TimeRange{}, "", err
	}
	return r, req.StartDate + " - " + req.EndDate, nil
}

func parseDate(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", domain.ErrInvalidDate, field)
	}

	for _, layout := range []string{domain.TimeLayout, domain.DateLayout} {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, nil
		}
	}

	slog.Debug("unparsable date", slog.String("field", field), slog.String("value", v))
	return time.Time{}, fmt.Errorf("%w: %s %q", domain.ErrInvalidDate, field, v)
}

func summary(t mining.Task) domain.TaskSummary {
	s := domain.TaskSummary{
		TaskID:        t.ID,
		Kind:          string(t.Kind),
		TaskName:      taskName(t.Kind),
		DataComeFrom:  t.SourceLabel,
		RequestParams: t.Description,
		CreateTime:    t.CreatedAt.Format(domain.TimeLayout),
		TaskStatus:    string(t.Status),
	}
	if t.Status.Terminal() {
		c := t.Comment
		s.Comment = &c
	}
	return s
}

func taskName(k mining.Kind) string {
	switch k {
	case mining.KindChargingProcess:
		return "Charging process"
	case mining.KindWorkingCondition:
		return "Working condition"
	case mining.KindBatteryStatistic:
		return "Battery statistic"
	default:
		return string(k)
	}
}
