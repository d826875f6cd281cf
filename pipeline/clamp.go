package pipeline

import (
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/pvplanner/pvplanner/store"
)

// ClampProduction zeroes production predictions for hours fully outside
// the daylight window of their date. The model learns near-zero output at
// night from the data, but small positive leakage from ensemble averaging
// would otherwise show up in the report.
func ClampProduction(rows []store.FeatureRow, lat, lon float64, loc *time.Location) []store.FeatureRow {
	if loc == nil {
		loc = time.UTC
	}

	out := make([]store.FeatureRow, len(rows))
	copy(out, rows)
	for i := range out {
		if out[i].Target == nil {
			continue
		}
		if !daylightHour(out[i].Date, out[i].Hour, lat, lon, loc) {
			out[i].Target = store.Float64Ptr(0)
		}
	}
	return out
}

// daylightHour reports whether any part of the hour [h, h+1) overlaps the
// sunrise-sunset window of the date.
func daylightHour(date time.Time, hour int, lat, lon float64, loc *time.Location) bool {
	noon := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, loc)
	sunTimes := suncalc.GetTimes(noon, lat, lon)
	sunrise := sunTimes["sunrise"].Value
	sunset := sunTimes["sunset"].Value

	start := time.Date(date.Year(), date.Month(), date.Day(), hour, 0, 0, 0, loc)
	end := start.Add(time.Hour)

	return end.After(sunrise) && start.Before(sunset)
}
