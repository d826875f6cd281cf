// Package features turns stored weather and energy rows into the numeric
// vectors the regression models consume. Production and sales use different
// feature sets: production depends on weather, sales on the produced energy
// and the calendar.
package features

import (
	"fmt"

	"github.com/pvplanner/pvplanner/calendar"
	"github.com/pvplanner/pvplanner/store"
)

// Builder converts feature rows into vectors for one energy series.
type Builder struct {
	series store.Series
	cal    *calendar.Calendar
}

// NewBuilder creates a builder for the given series.
func NewBuilder(series store.Series, cal *calendar.Calendar) (*Builder, error) {
	if !series.Valid() {
		return nil, fmt.Errorf("unknown energy series: %s", series)
	}
	if cal == nil {
		cal = calendar.New()
	}
	return &Builder{series: series, cal: cal}, nil
}

// Series returns the series the builder produces vectors for.
func (b *Builder) Series() store.Series {
	return b.series
}

// Names returns the feature names in vector order.
func (b *Builder) Names() []string {
	switch b.series {
	case store.Produced:
		return []string{"temperature", "irradiance", "cloud_cover", "hour", "month"}
	case store.Sold:
		return []string{"produced_energy", "hour", "is_holiday", "day_of_week", "month"}
	}
	return nil
}

// Vector builds the feature vector for a single row. The second return
// value is false when the row cannot be vectorized, which for the sales
// series means the produced energy input is still missing.
func (b *Builder) Vector(row store.FeatureRow) ([]float64, bool) {
	switch b.series {
	case store.Produced:
		return []float64{
			row.Temp,
			row.Irradiance,
			row.Cloud,
			float64(row.Hour),
			float64(calendar.Month(row.Date)),
		}, true
	case store.Sold:
		if row.Produced == nil {
			return nil, false
		}
		return []float64{
			*row.Produced,
			float64(row.Hour),
			float64(b.cal.HolidayFlag(row.Date)),
			float64(calendar.DayOfWeek(row.Date)),
			float64(calendar.Month(row.Date)),
		}, true
	}
	return nil, false
}

// TrainingMatrix builds the design matrix and target vector from rows with
// a known target. Rows without a target or with missing inputs are skipped.
func (b *Builder) TrainingMatrix(rows []store.FeatureRow) ([][]float64, []float64) {
	x := make([][]float64, 0, len(rows))
	y := make([]float64, 0, len(rows))
	for _, row := range rows {
		if row.Target == nil {
			continue
		}
		vec, ok := b.Vector(row)
		if !ok {
			continue
		}
		x = append(x, vec)
		y = append(y, *row.Target)
	}
	return x, y
}

// PredictionMatrix builds vectors for rows awaiting a prediction and
// returns them alongside the rows they were built from, keeping the two
// aligned by index.
func (b *Builder) PredictionMatrix(rows []store.FeatureRow) ([][]float64, []store.FeatureRow) {
	x := make([][]float64, 0, len(rows))
	kept := make([]store.FeatureRow, 0, len(rows))
	for _, row := range rows {
		vec, ok := b.Vector(row)
		if !ok {
			continue
		}
		x = append(x, vec)
		kept = append(kept, row)
	}
	return x, kept
}
