package mining

import "fmt"

// Kind identifies which algorithm a task runs. The set is closed.
type Kind string

const (
	KindChargingProcess  Kind = "charging-process"
	KindWorkingCondition Kind = "working-condition"
	KindBatteryStatistic Kind = "battery-statistic"
)

var kinds = []Kind{
	KindChargingProcess,
	KindWorkingCondition,
	KindBatteryStatistic,
}

// Kinds returns every supported kind in a stable order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

func ParseKind(s string) (Kind, error) {
	for _, k := range kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) Valid() bool {
	_, err := ParseKind(string(k))
	return err == nil
}
