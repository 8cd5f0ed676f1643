package algorithm

import (
	"sort"

	"github.com/you-humble/ubattery/core/mining"
)

var statisticColumns = []mining.Column{"max_t_s_b_num", "min_t_s_b_num"}

type CellCount struct {
	Cell  int `json:"cell"`
	Count int `json:"count"`
}

type BatteryStatisticResult struct {
	Samples      int         `json:"samples"`
	MaxTempCells []CellCount `json:"maxTempCells"`
	MinTempCells []CellCount `json:"minTempCells"`
}

// BatteryStatistic counts how often each cell was the hottest and the
// coolest one of the pack.
func BatteryStatistic(rows []mining.Row) any {
	maxCounts := map[int]int{}
	minCounts := map[int]int{}
	for _, row := range rows {
		if n, ok := integer(row["max_t_s_b_num"]); ok {
			maxCounts[n]++
		}
		if n, ok := integer(row["min_t_s_b_num"]); ok {
			minCounts[n]++
		}
	}

	return BatteryStatisticResult{
		Samples:      len(rows),
		MaxTempCells: cellCounts(maxCounts),
		MinTempCells: cellCounts(minCounts),
	}
}

func cellCounts(m map[int]int) []CellCount {
	out := make([]CellCount, 0, len(m))
	for cell, n := range m {
		out = append(out, CellCount{Cell: cell, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cell < out[j].Cell })
	return out
}
