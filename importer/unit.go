package importer

import "fmt"

// DefaultUnitThreshold is the kWh value below which a whole batch of
// readings looks like it was entered in MWh by mistake.
const DefaultUnitThreshold = 10.0

// UnitWarning signals that every non-zero value in a batch is implausibly
// small for kWh input. It is recoverable: the caller asks the user to
// confirm and retries with the check disabled.
type UnitWarning struct {
	MaxValue  float64
	Threshold float64
}

func (w *UnitWarning) Error() string {
	return fmt.Sprintf("values look too small for kWh (largest is %.3f, expected at least %.1f); confirm the unit",
		w.MaxValue, w.Threshold)
}

// CheckUnit inspects a batch of kWh values and returns a warning when the
// largest non-zero value falls below the threshold. Batches with no
// non-zero values pass, since all-zero hours are normal at night.
func CheckUnit(values []float64, threshold float64) *UnitWarning {
	if threshold <= 0 {
		threshold = DefaultUnitThreshold
	}

	max := 0.0
	seen := false
	for _, v := range values {
		if v == 0 {
			continue
		}
		seen = true
		if v > max {
			max = v
		}
	}
	if !seen || max >= threshold {
		return nil
	}
	return &UnitWarning{MaxValue: max, Threshold: threshold}
}

// RowValues collects the non-nil energy values of rows for unit checking.
func RowValues(rows []Row) []float64 {
	var values []float64
	for _, r := range rows {
		if r.Produced != nil {
			values = append(values, *r.Produced)
		}
		if r.Sold != nil {
			values = append(values, *r.Sold)
		}
	}
	return values
}
