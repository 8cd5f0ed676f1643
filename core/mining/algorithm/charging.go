package algorithm

import "github.com/you-humble/ubattery/core/mining"

var chargingColumns = []mining.Column{"bty_t_vol", "bty_t_curr", "battery_soc", "id", "byt_ma_sys_state"}

const (
	// BMS state code reported while the pack is on a charger.
	chargingState = 3
	// Shorter runs are treated as sensor noise.
	minChargingSamples = 3
)

type ChargingSegment struct {
	StartID     int     `json:"startId"`
	EndID       int     `json:"endId"`
	StartSoc    float64 `json:"startSoc"`
	EndSoc      float64 `json:"endSoc"`
	SocGain     float64 `json:"socGain"`
	MeanVoltage float64 `json:"meanVoltage"`
	MeanCurrent float64 `json:"meanCurrent"`
	Samples     int     `json:"samples"`
}

type ChargingProcessResult struct {
	Segments []ChargingSegment `json:"segments"`
}

type chargingAcc struct {
	seg      ChargingSegment
	voltSum  float64
	currSum  float64
	measured int
}

func (a *chargingAcc) add(row mining.Row, id int) {
	soc, _ := number(row["battery_soc"])
	if a.seg.Samples == 0 {
		a.seg.StartID = id
		a.seg.StartSoc = soc
	}
	a.seg.EndID = id
	a.seg.EndSoc = soc
	a.seg.Samples++

	vol, vok := number(row["bty_t_vol"])
	curr, cok := number(row["bty_t_curr"])
	if vok && cok {
		a.voltSum += vol
		a.currSum += curr
		a.measured++
	}
}

func (a *chargingAcc) flush(out []ChargingSegment) []ChargingSegment {
	defer func() { *a = chargingAcc{} }()
	if a.seg.Samples < minChargingSamples {
		return out
	}
	s := a.seg
	s.SocGain = round2(s.EndSoc - s.StartSoc)
	s.MeanVoltage = mean(a.voltSum, a.measured)
	s.MeanCurrent = mean(a.currSum, a.measured)
	return append(out, s)
}

// ChargingProcess extracts contiguous charging segments from rows ordered by
// time.
func ChargingProcess(rows []mining.Row) any {
	segments := []ChargingSegment{}
	var acc chargingAcc

	for _, row := range rows {
		state, ok := integer(row["byt_ma_sys_state"])
		id, idOK := integer(row["id"])
		if !ok || !idOK || state != chargingState {
			segments = acc.flush(segments)
			continue
		}
		acc.add(row, id)
	}
	segments = acc.flush(segments)

	return ChargingProcessResult{Segments: segments}
}
