package algorithm

import "github.com/you-humble/ubattery/core/mining"

// NewRegistry returns the registry with the three shipped algorithms.
func NewRegistry() *mining.Registry {
	return mining.NewRegistry(map[mining.Kind]mining.Algorithm{
		mining.KindChargingProcess: {
			Columns: chargingColumns,
			Compute: ChargingProcess,
		},
		mining.KindWorkingCondition: {
			Columns: conditionColumns,
			Compute: WorkingCondition,
		},
		mining.KindBatteryStatistic: {
			Columns: statisticColumns,
			Compute: BatteryStatistic,
		},
	})
}
