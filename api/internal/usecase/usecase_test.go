package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/you-humble/ubattery/api/internal/domain"
	"github.com/you-humble/ubattery/core/cache"
	"github.com/you-humble/ubattery/core/mining"
	"github.com/you-humble/ubattery/core/store/archive"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) Submit(ctx context.Context, req mining.SubmitRequest) (mining.Task, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(mining.Task), args.Error(1)
}

func (m *mockScheduler) Cancel(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockScheduler) List(ctx context.Context) ([]mining.Task, error) {
	args := m.Called(ctx)
	tasks, _ := args.Get(0).([]mining.Task)
	return tasks, args.Error(1)
}

func (m *mockScheduler) Result(ctx context.Context, id string) ([]byte, bool, error) {
	args := m.Called(ctx, id)
	payload, _ := args.Get(0).([]byte)
	return payload, args.Bool(1), args.Error(2)
}

type archiveFunc func(ctx context.Context, id string) (io.ReadCloser, int64, error)

func (f archiveFunc) Open(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	return f(ctx, id)
}

type samplerFunc func(ctx context.Context, table mining.Table, columns []mining.Column, since time.Time, n int) ([]mining.Row, error)

func (f samplerFunc) Sample(ctx context.Context, table mining.Table, columns []mining.Column, since time.Time, n int) ([]mining.Row, error) {
	return f(ctx, table, columns, since, n)
}

func newTestUsecase(s Scheduler, a Archive) *usecase {
	return New(s, cache.NewResultCache(16, time.Minute), mining.DefaultCatalog(), a, nil)
}

func TestSubmit_DateRange(t *testing.T) {
	ctx := context.Background()
	s := new(mockScheduler)
	uc := newTestUsecase(s, nil)

	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local)
	s.On("Submit", ctx, mock.MatchedBy(func(req mining.SubmitRequest) bool {
		return req.Kind == mining.KindChargingProcess &&
			req.SourceLabel == "yutong-vehicle" &&
			req.Description == "2024-01-01 - 2024-01-02 12:00:00" &&
			req.Range.From.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)) &&
			req.Range.To.Equal(time.Date(2024, 1, 2, 12, 0, 0, 0, time.Local))
	})).Return(mining.Task{
		ID:          "t1",
		Kind:        mining.KindChargingProcess,
		SourceLabel: "yutong-vehicle",
		Description: "2024-01-01 - 2024-01-02 12:00:00",
		CreatedAt:   created,
		Status:      mining.StatusRunning,
	}, nil).Once()

	got, err := uc.Submit(ctx, "charging-process", domain.SubmitRequest{
		DataComeFrom: "yutong-vehicle",
		StartDate:    "2024-01-01",
		EndDate:      "2024-01-02 12:00:00",
	})
	require.NoError(t, err)

	assert.Equal(t, "t1", got.TaskID)
	assert.Equal(t, "charging-process", got.Kind)
	assert.Equal(t, "Charging process", got.TaskName)
	assert.Equal(t, "2024-03-01 09:30:00", got.CreateTime)
	assert.Equal(t, "running", got.TaskStatus)
	assert.Nil(t, got.Comment)
	s.AssertExpectations(t)
}

func TestSubmit_AllData(t *testing.T) {
	ctx := context.Background()
	s := new(mockScheduler)
	uc := newTestUsecase(s, nil)

	s.On("Submit", ctx, mock.MatchedBy(func(req mining.SubmitRequest) bool {
		return req.Range.IsAll() && req.Description == domain.AllData
	})).Return(mining.Task{ID: "t1", Status: mining.StatusRunning}, nil).Once()

	_, err := uc.Submit(ctx, "battery-statistic", domain.SubmitRequest{
		DataComeFrom: "beiqi-vehicle",
		AllData:      true,
		StartDate:    "garbage",
	})
	require.NoError(t, err)
	s.AssertExpectations(t)
}

func TestSubmit_Rejected(t *testing.T) {
	ctx := context.Background()
	s := new(mockScheduler)
	uc := newTestUsecase(s, nil)

	cases := []struct {
		name string
		kind string
		req  domain.SubmitRequest
		want error
	}{
		{
			name: "unknown kind",
			kind: "soc-prediction",
			req:  domain.SubmitRequest{AllData: true},
			want: mining.ErrUnknownKind,
		},
		{
			name: "missing start",
			kind: "charging-process",
			req:  domain.SubmitRequest{EndDate: "2024-01-01"},
			want: domain.ErrInvalidDate,
		},
		{
			name: "bad end",
			kind: "charging-process",
			req:  domain.SubmitRequest{StartDate: "2024-01-01", EndDate: "01/02/2024"},
			want: domain.ErrInvalidDate,
		},
		{
			name: "reversed",
			kind: "charging-process",
			req:  domain.SubmitRequest{StartDate: "2024-02-01", EndDate: "2024-01-01"},
			want: mining.ErrInvalidRange,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.Submit(ctx, tc.kind, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	s.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestTasks_Comment(t *testing.T) {
	ctx := context.Background()
	s := new(mockScheduler)
	uc := newTestUsecase(s, nil)

	s.On("List", ctx).Return([]mining.Task{
		{ID: "b", Kind: mining.KindWorkingCondition, Status: mining.StatusFailed, Comment: mining.CommentNoData},
		{ID: "a", Kind: mining.KindBatteryStatistic, Status: mining.StatusRunning},
	}, nil)

	got, err := uc.Tasks(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.NotNil(t, got[0].Comment)
	assert.Equal(t, mining.CommentNoData, *got[0].Comment)
	assert.Equal(t, "Working condition", got[0].TaskName)
	assert.Nil(t, got[1].Comment)
}

func TestResult_MissIsNotSticky(t *testing.T) {
	ctx := context.Background()
	s := new(mockScheduler)
	uc := newTestUsecase(s, nil)

	s.On("Result", mock.Anything, "t1").Return(nil, false, nil).Once()
	s.On("Result", mock.Anything, "t1").Return([]byte(`{"samples":3}`), true, nil).Once()

	_, err := uc.Result(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrNoResult)

	payload, err := uc.Result(ctx, "t1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"samples":3}`, string(payload))

	// served from cache
	payload, err = uc.Result(ctx, "t1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"samples":3}`, string(payload))
	s.AssertNumberOfCalls(t, "Result", 2)
}

func TestResult_CancelDuringLoad(t *testing.T) {
	ctx := context.Background()
	s := new(mockScheduler)
	uc := newTestUsecase(s, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	s.On("Result", mock.Anything, "t1").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return([]byte(`{"max":10}`), true, nil).Once()
	s.On("Cancel", ctx, "t1").Return(nil).Once()
	s.On("Result", mock.Anything, "t1").Return(nil, false, nil).Once()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := uc.Result(ctx, "t1")
		assert.NoError(t, err)
	}()

	<-entered
	require.NoError(t, uc.Cancel(ctx, "t1"))
	close(release)
	<-done

	_, err := uc.Result(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrNoResult)
	s.AssertExpectations(t)
}

func TestResult_StoreFault(t *testing.T) {
	s := new(mockScheduler)
	uc := newTestUsecase(s, nil)

	s.On("Result", mock.Anything, "t1").Return(nil, false, mining.ErrDataAccess)

	_, err := uc.Result(context.Background(), "t1")
	assert.ErrorIs(t, err, mining.ErrDataAccess)
	assert.NotErrorIs(t, err, domain.ErrNoResult)
}

func TestCancel_DropsCachedResult(t *testing.T) {
	ctx := context.Background()
	s := new(mockScheduler)
	uc := newTestUsecase(s, nil)

	s.On("Result", mock.Anything, "t1").Return([]byte(`{}`), true, nil).Once()
	s.On("Cancel", ctx, "t1").Return(nil).Once()
	s.On("Result", mock.Anything, "t1").Return(nil, false, nil).Once()

	_, err := uc.Result(ctx, "t1")
	require.NoError(t, err)

	require.NoError(t, uc.Cancel(ctx, "t1"))

	_, err = uc.Result(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrNoResult)
	s.AssertExpectations(t)
}

func TestExport(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		uc := newTestUsecase(new(mockScheduler), nil)
		_, err := uc.Export(ctx, "t1")
		assert.ErrorIs(t, err, domain.ErrNoResult)
	})

	t.Run("not archived", func(t *testing.T) {
		uc := newTestUsecase(new(mockScheduler), archiveFunc(func(context.Context, string) (io.ReadCloser, int64, error) {
			return nil, 0, archive.ErrNotArchived
		}))
		_, err := uc.Export(ctx, "t1")
		assert.ErrorIs(t, err, domain.ErrNoResult)
	})

	t.Run("storage fault", func(t *testing.T) {
		uc := newTestUsecase(new(mockScheduler), archiveFunc(func(context.Context, string) (io.ReadCloser, int64, error) {
			return nil, 0, errors.New("timeout")
		}))
		_, err := uc.Export(ctx, "t1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrNoResult)
	})

	t.Run("archived", func(t *testing.T) {
		uc := newTestUsecase(new(mockScheduler), archiveFunc(func(_ context.Context, id string) (io.ReadCloser, int64, error) {
			return io.NopCloser(strings.NewReader(`{"segments":[]}`)), 15, nil
		}))
		res, err := uc.Export(ctx, "t1")
		require.NoError(t, err)
		defer res.Content.Close()

		assert.Equal(t, "t1.json", res.FileName)
		assert.EqualValues(t, 15, res.Size)
		b, err := io.ReadAll(res.Content)
		require.NoError(t, err)
		assert.Equal(t, `{"segments":[]}`, string(b))
	})
}

func TestSources(t *testing.T) {
	uc := newTestUsecase(new(mockScheduler), nil)

	got := uc.Sources(context.Background())
	require.Len(t, got, 2)
	for _, s := range got {
		assert.Contains(t, s.Columns, "timestamp")
	}
}

func TestData(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2024, 1, 1, 8, 0, 0, 0, time.Local)

	var (
		gotTable   mining.Table
		gotColumns []mining.Column
		gotSince   time.Time
		gotN       int
	)
	sampler := samplerFunc(func(_ context.Context, table mining.Table, cols []mining.Column, since time.Time, n int) ([]mining.Row, error) {
		gotTable, gotColumns, gotSince, gotN = table, cols, since, n
		if since.Year() > 2030 {
			return []mining.Row{}, nil
		}
		return []mining.Row{{"timestamp": ts, "battery_soc": 51.5}}, nil
	})
	uc := New(new(mockScheduler), cache.NewResultCache(16, time.Minute), mining.DefaultCatalog(), nil, sampler)

	t.Run("rows", func(t *testing.T) {
		rows, err := uc.Data(ctx, domain.DataQuery{
			DataComeFrom: "beiqi-vehicle",
			StartDate:    "2024-01-01",
			DataLimit:    100,
			NeedParams:   []string{"battery_soc", " met_spd"},
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)

		assert.Equal(t, mining.Table("beiqi_vehicle"), gotTable)
		assert.Equal(t, []mining.Column{"battery_soc", "met_spd"}, gotColumns)
		assert.True(t, gotSince.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)))
		assert.Equal(t, 100, gotN)
		assert.Equal(t, "2024-01-01 08:00:00", rows[0]["timestamp"])
		assert.Equal(t, 51.5, rows[0]["battery_soc"])
	})

	t.Run("empty", func(t *testing.T) {
		_, err := uc.Data(ctx, domain.DataQuery{
			DataComeFrom: "beiqi-vehicle",
			StartDate:    "2031-01-01",
			DataLimit:    10,
			NeedParams:   []string{"battery_soc"},
		})
		assert.ErrorIs(t, err, domain.ErrNoData)
	})

	rejected := []struct {
		name string
		q    domain.DataQuery
		want error
	}{
		{
			name: "unknown source",
			q:    domain.DataQuery{DataComeFrom: "users", StartDate: "2024-01-01", DataLimit: 1, NeedParams: []string{"id"}},
			want: mining.ErrUnknownSource,
		},
		{
			name: "bad date",
			q:    domain.DataQuery{DataComeFrom: "beiqi-vehicle", StartDate: "yesterday", DataLimit: 1, NeedParams: []string{"id"}},
			want: domain.ErrInvalidDate,
		},
		{
			name: "limit too large",
			q:    domain.DataQuery{DataComeFrom: "beiqi-vehicle", StartDate: "2024-01-01", DataLimit: domain.MaxDataLimit + 1, NeedParams: []string{"id"}},
			want: domain.ErrInvalidQuery,
		},
		{
			name: "zero limit",
			q:    domain.DataQuery{DataComeFrom: "beiqi-vehicle", StartDate: "2024-01-01", NeedParams: []string{"id"}},
			want: domain.ErrInvalidQuery,
		},
		{
			name: "no params",
			q:    domain.DataQuery{DataComeFrom: "beiqi-vehicle", StartDate: "2024-01-01", DataLimit: 1},
			want: domain.ErrInvalidQuery,
		},
		{
			name: "column outside the whitelist",
			q:    domain.DataQuery{DataComeFrom: "beiqi-vehicle", StartDate: "2024-01-01", DataLimit: 1, NeedParams: []string{"id; drop table users"}},
			want: mining.ErrColumnNotAllowed,
		},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.Data(ctx, tc.q)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("disabled", func(t *testing.T) {
		_, err := newTestUsecase(new(mockScheduler), nil).Data(ctx, domain.DataQuery{})
		assert.ErrorIs(t, err, domain.ErrDataDisabled)
	})
}
