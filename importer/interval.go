package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pvplanner/pvplanner/store"
)

// IntervalReading is one 15-minute average power measurement. The
// timestamp marks the end of the interval, as grid operator exports label
// them.
type IntervalReading struct {
	Timestamp time.Time
	PowerMW   float64
}

// intervalTimeLayouts are accepted timestamp formats for interval exports.
var intervalTimeLayouts = []string{"02-01-2006 15:04", "2006-01-02 15:04"}

func parseIntervalTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range intervalTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseIntervalRecords(records [][]string) ([]IntervalReading, error) {
	if len(records) < 2 {
		return nil, fmt.Errorf("interval file has no data rows")
	}

	// Header names vary between exports; the layout does not: the first
	// column is the timestamp, the second the average power in MW.
	var readings []IntervalReading
	for i, record := range records[1:] {
		line := i + 2
		if len(record) < 2 {
			return nil, fmt.Errorf("line %d: expected timestamp and power columns", line)
		}

		ts, err := parseIntervalTimestamp(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		power, err := ParseNumber(record[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid power %q", line, record[1])
		}
		readings = append(readings, IntervalReading{Timestamp: ts, PowerMW: power})
	}
	return readings, nil
}

// ReadIntervalCSV parses 15-minute power readings from a CSV stream.
func ReadIntervalCSV(r io.Reader) ([]IntervalReading, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return parseIntervalRecords(records)
}

// ReadIntervalXLSX parses 15-minute power readings from the first sheet
// of an xlsx workbook.
func ReadIntervalXLSX(path string) ([]IntervalReading, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer book.Close()

	records, err := book.GetRows(book.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook rows: %w", err)
	}
	return parseIntervalRecords(records)
}

// HourlyEnergy converts interval power readings to hourly energy values.
// Each timestamp is shifted 15 minutes back so the interval belongs to the
// hour it started in, the interval energy is PowerMW * 0.25h in kWh, and
// intervals are summed per (date, hour).
type HourlyEnergy struct {
	Date time.Time
	Hour int
	KWh  float64
}

// Hourly aggregates interval readings into per-hour energy, sorted by
// date and hour.
func Hourly(readings []IntervalReading) []HourlyEnergy {
	type slot struct {
		date time.Time
		hour int
	}

	sums := make(map[slot]float64)
	for _, r := range readings {
		start := r.Timestamp.Add(-15 * time.Minute)
		key := slot{date: store.DateOnly(start), hour: start.Hour()}
		sums[key] += r.PowerMW * 0.25 * 1000
	}

	out := make([]HourlyEnergy, 0, len(sums))
	for key, kwh := range sums {
		out = append(out, HourlyEnergy{Date: key.date, Hour: key.hour, KWh: kwh})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Hour < out[j].Hour
	})
	return out
}

// HourlyRows converts aggregated hourly energy to import rows for the
// given series.
func HourlyRows(hourly []HourlyEnergy, series store.Series) ([]Row, error) {
	if !series.Valid() {
		return nil, fmt.Errorf("unknown energy series: %s", series)
	}
	rows := make([]Row, 0, len(hourly))
	for _, h := range hourly {
		kwh := h.KWh
		row := Row{Date: h.Date, Hour: h.Hour}
		if series == store.Produced {
			row.Produced = &kwh
		} else {
			row.Sold = &kwh
		}
		rows = append(rows, row)
	}
	return rows, nil
}
