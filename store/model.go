package store

import "time"

// DataType distinguishes measured rows from model output.
type DataType string

const (
	// Real marks a record derived from actual measurement.
	Real DataType = "real"
	// Predicted marks a record produced by (or awaiting) the forecast model.
	Predicted DataType = "predicted"
)

// Series identifies one of the two forecasted energy series.
type Series string

const (
	// Produced is the photovoltaic production series.
	Produced Series = "produced"
	// Sold is the grid-sold energy series.
	Sold Series = "sold"
)

// Valid reports whether s names a known series.
func (s Series) Valid() bool {
	return s == Produced || s == Sold
}

// Table returns the energy table backing the series.
func (s Series) Table() string {
	if s == Sold {
		return "sold_energy"
	}
	return "produced_energy"
}

// Column returns the value column of the series table.
func (s Series) Column() string {
	if s == Sold {
		return "sold_energy"
	}
	return "produced_energy"
}

// WeatherRecord is one hourly weather observation or forecast.
// The natural key is (Date, Hour, Type).
type WeatherRecord struct {
	Date       time.Time // local calendar date at midnight
	Hour       int       // 0-23
	Temp       float64   // °C
	Cloud      float64   // cloud cover %
	Irradiance float64   // global tilted irradiance W/m²
	Type       DataType
}

// EnergyRecord is one hourly energy reading for a series.
// The natural key is (Date, Hour, Type, ObjectID); a nil Value marks a
// predicted slot still awaiting model output.
type EnergyRecord struct {
	Date     time.Time
	Hour     int
	Value    *float64 // kWh
	Type     DataType
	ObjectID int
}

// FeatureRow is one joined energy+weather row as used for training and
// prediction. Produced carries the upstream production value when the row
// belongs to the sold series; Target is the series' own value and is nil
// for rows awaiting prediction.
type FeatureRow struct {
	Date       time.Time
	Hour       int
	Temp       float64
	Cloud      float64
	Irradiance float64
	Produced   *float64
	Target     *float64
	Type       DataType
	ObjectID   int
}

// DateOnly truncates t to its calendar date, preserving the location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
