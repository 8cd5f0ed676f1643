package algorithm

import (
	"time"

	"github.com/you-humble/ubattery/core/mining"
)

var conditionColumns = []mining.Column{"timestamp", "bty_t_curr", "met_spd"}

type Condition string

const (
	ConditionIdle         Condition = "idle"
	ConditionAccelerating Condition = "accelerating"
	ConditionCruising     Condition = "cruising"
	ConditionBraking      Condition = "braking"
)

const (
	idleSpeed    = 1.0 // km/h
	accelerating = 0.5 // km/h per second
)

type ConditionSegment struct {
	Condition Condition `json:"condition"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	Samples   int       `json:"samples"`
}

type WorkingConditionResult struct {
	Counts   map[Condition]int  `json:"counts"`
	Segments []ConditionSegment `json:"segments"`
}

// WorkingCondition classifies each sample by speed, acceleration and pack
// current, then merges consecutive samples of the same class.
func WorkingCondition(rows []mining.Row) any {
	res := WorkingConditionResult{
		Counts: map[Condition]int{
			ConditionIdle:         0,
			ConditionAccelerating: 0,
			ConditionCruising:     0,
			ConditionBraking:      0,
		},
		Segments: []ConditionSegment{},
	}

	var (
		prevTime  time.Time
		prevSpeed float64
		havePrev  bool
		cur       *ConditionSegment
	)
	for _, row := range rows {
		speed, ok := number(row["met_spd"])
		if !ok {
			continue
		}
		current, _ := number(row["bty_t_curr"])
		ts, _ := timestamp(row["timestamp"])

		accel := 0.0
		if havePrev && !ts.IsZero() && !prevTime.IsZero() {
			if dt := ts.Sub(prevTime).Seconds(); dt > 0 {
				accel = (speed - prevSpeed) / dt
			}
		}
		prevTime, prevSpeed, havePrev = ts, speed, true

		c := classify(speed, accel, current)
		res.Counts[c]++

		if cur == nil || cur.Condition != c {
			res.Segments = append(res.Segments, ConditionSegment{Condition: c, Start: formatTime(ts)})
			cur = &res.Segments[len(res.Segments)-1]
		}
		cur.End = formatTime(ts)
		cur.Samples++
	}

	return res
}

func classify(speed, accel, current float64) Condition {
	switch {
	case speed < idleSpeed:
		return ConditionIdle
	case current < 0 || accel < -accelerating:
		return ConditionBraking
	case accel > accelerating:
		return ConditionAccelerating
	default:
		return ConditionCruising
	}
}
