package algorithm

import (
	"testing"
	"time"

	"github.com/you-humble/ubattery/core/mining"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatteryStatistic(t *testing.T) {
	rows := []mining.Row{
		{"max_t_s_b_num": int64(3), "min_t_s_b_num": int64(1)},
		{"max_t_s_b_num": int64(3), "min_t_s_b_num": "2"},
		{"max_t_s_b_num": []byte("7"), "min_t_s_b_num": int64(1)},
	}

	res, ok := BatteryStatistic(rows).(BatteryStatisticResult)
	require.True(t, ok)
	assert.Equal(t, 3, res.Samples)
	assert.Equal(t, []CellCount{{Cell: 3, Count: 2}, {Cell: 7, Count: 1}}, res.MaxTempCells)
	assert.Equal(t, []CellCount{{Cell: 1, Count: 2}, {Cell: 2, Count: 1}}, res.MinTempCells)
}

func TestChargingProcess(t *testing.T) {
	row := func(id, state int, soc float64) mining.Row {
		return mining.Row{
			"id":               int64(id),
			"byt_ma_sys_state": int64(state),
			"battery_soc":      soc,
			"bty_t_vol":        500.0,
			"bty_t_curr":       -10.0,
		}
	}

	rows := []mining.Row{
		row(1, 3, 20), row(2, 3, 21), row(3, 3, 22), row(4, 3, 23.5),
		row(5, 1, 23.5),
		// too short to count
		row(6, 3, 23.5), row(7, 3, 24),
	}

	res, ok := ChargingProcess(rows).(ChargingProcessResult)
	require.True(t, ok)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, ChargingSegment{
		StartID:     1,
		EndID:       4,
		StartSoc:    20,
		EndSoc:      23.5,
		SocGain:     3.5,
		MeanVoltage: 500,
		MeanCurrent: -10,
		Samples:     4,
	}, res.Segments[0])

	empty, ok := ChargingProcess(nil).(ChargingProcessResult)
	require.True(t, ok)
	assert.NotNil(t, empty.Segments)
	assert.Empty(t, empty.Segments)
}

func TestWorkingCondition(t *testing.T) {
	start := time.Date(2023, 1, 1, 8, 0, 0, 0, time.Local)
	row := func(sec int, speed, current float64) mining.Row {
		return mining.Row{
			"timestamp":  start.Add(time.Duration(sec) * time.Second),
			"met_spd":    speed,
			"bty_t_curr": current,
		}
	}

	rows := []mining.Row{
		row(0, 0, 0),
		row(1, 10, 50),
		row(2, 10, 20),
		row(3, 10, 20),
		row(4, 5, -5),
	}

	res, ok := WorkingCondition(rows).(WorkingConditionResult)
	require.True(t, ok)
	assert.Equal(t, map[Condition]int{
		ConditionIdle:         1,
		ConditionAccelerating: 1,
		ConditionCruising:     2,
		ConditionBraking:      1,
	}, res.Counts)

	require.Len(t, res.Segments, 4)
	assert.Equal(t, ConditionCruising, res.Segments[2].Condition)
	assert.Equal(t, 2, res.Segments[2].Samples)
	assert.Equal(t, "2023-01-01 08:00:02", res.Segments[2].Start)
	assert.Equal(t, "2023-01-01 08:00:03", res.Segments[2].End)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ConditionIdle, classify(0.5, 3, 10))
	assert.Equal(t, ConditionBraking, classify(30, 0, -1))
	assert.Equal(t, ConditionBraking, classify(30, -2, 10))
	assert.Equal(t, ConditionAccelerating, classify(30, 2, 10))
	assert.Equal(t, ConditionCruising, classify(30, 0.1, 10))
}

func TestNumber(t *testing.T) {
	for _, v := range []any{int64(42), uint8(42), float32(42), "42", []byte(" 42 ")} {
		n, ok := number(v)
		assert.True(t, ok, "%T", v)
		assert.Equal(t, 42.0, n)
	}

	_, ok := number(nil)
	assert.False(t, ok)
	_, ok = number("n/a")
	assert.False(t, ok)
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	cat := mining.DefaultCatalog()

	for _, k := range mining.Kinds() {
		alg, err := reg.Resolve(k)
		require.NoError(t, err, k)
		_, err = cat.Columns("yutong_vehicle", alg.Columns)
		assert.NoError(t, err, k)
	}
}
