// Package report reshapes hourly energy rows into hour-by-date summary
// tables and exports them as spreadsheets.
package report

import (
	"math"
	"sort"
	"time"

	"github.com/pvplanner/pvplanner/store"
)

// MWhDivisor converts kWh-scale stored values to MWh.
const MWhDivisor = 1000.0

// Table is an hour(1-24) by date matrix of energy values with a trailing
// column-wise total.
type Table struct {
	Dates []time.Time
	Cells [24][]float64
	Total []float64
}

// Empty reports whether the table has no date columns.
func (t *Table) Empty() bool {
	return len(t.Dates) == 0
}

// Hour returns the display label for a cell row, 1 through 24.
func (t *Table) Hour(row int) int {
	return row + 1
}

// Pivot builds the hour-by-date matrix from energy rows. Rows without a
// value are skipped, duplicate (date, hour) entries are summed, missing
// cells are filled with zero and every value is divided by unitDivisor and
// rounded to three decimals. The TOTAL row is the column-wise sum.
func Pivot(rows []store.EnergyRecord, unitDivisor float64) *Table {
	if unitDivisor == 0 {
		unitDivisor = 1
	}

	sums := make(map[time.Time][24]float64)
	for _, r := range rows {
		if r.Value == nil || r.Hour < 0 || r.Hour > 23 {
			continue
		}
		col := sums[r.Date]
		col[r.Hour] += *r.Value
		sums[r.Date] = col
	}

	t := &Table{}
	if len(sums) == 0 {
		return t
	}

	for date := range sums {
		t.Dates = append(t.Dates, date)
	}
	sort.Slice(t.Dates, func(i, j int) bool { return t.Dates[i].Before(t.Dates[j]) })

	t.Total = make([]float64, len(t.Dates))
	for h := 0; h < 24; h++ {
		t.Cells[h] = make([]float64, len(t.Dates))
		for c, date := range t.Dates {
			v := round3(sums[date][h] / unitDivisor)
			t.Cells[h][c] = v
			t.Total[c] += v
		}
	}
	for c := range t.Total {
		t.Total[c] = round3(t.Total[c])
	}
	return t
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
