// Package importer reads hourly energy files (CSV or xlsx) and loads them
// into the store as real readings. It also converts 15-minute power
// interval exports into hourly energy.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pvplanner/pvplanner/store"
)

// Row is one imported hourly reading. Energy columns are optional in the
// source file.
type Row struct {
	Date     time.Time
	Hour     int
	Produced *float64
	Sold     *float64
}

// Result summarizes an import run. Skipped counts rows already present in
// the store.
type Result struct {
	ProducedInserted int
	SoldInserted     int
	Skipped          int
}

// dateLayouts are accepted date formats, tried in order.
var dateLayouts = []string{"2006-01-02", "02-01-2006", "02.01.2006"}

// ParseNumber parses a decimal that may use a comma separator.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	return strconv.ParseFloat(s, 64)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return store.DateOnly(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// columnIndex maps the header row to column positions. Date and hour are
// required; the energy columns are optional.
func columnIndex(header []string) (date, hour, produced, sold int, err error) {
	date, hour, produced, sold = -1, -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date":
			date = i
		case "hour":
			hour = i
		case "produced_energy":
			produced = i
		case "sold_energy":
			sold = i
		}
	}
	if date < 0 || hour < 0 {
		err = fmt.Errorf("header must contain date and hour columns, got %v", header)
	}
	return date, hour, produced, sold, err
}

func parseRecords(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("file is empty")
	}

	dateCol, hourCol, producedCol, soldCol, err := columnIndex(records[0])
	if err != nil {
		return nil, err
	}

	cell := func(record []string, col int) string {
		if col < 0 || col >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[col])
	}

	var rows []Row
	for i, record := range records[1:] {
		line := i + 2

		date, err := parseDate(cell(record, dateCol))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		hour, err := strconv.Atoi(cell(record, hourCol))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid hour %q", line, cell(record, hourCol))
		}
		if hour < 0 || hour > 23 {
			return nil, fmt.Errorf("line %d: hour %d out of range", line, hour)
		}

		row := Row{Date: date, Hour: hour}
		if s := cell(record, producedCol); s != "" {
			v, err := ParseNumber(s)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid produced_energy %q", line, s)
			}
			row.Produced = &v
		}
		if s := cell(record, soldCol); s != "" {
			v, err := ParseNumber(s)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid sold_energy %q", line, s)
			}
			row.Sold = &v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadCSV parses hourly rows from a CSV stream with a header line.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return parseRecords(records)
}

// ReadXLSX parses hourly rows from the first sheet of an xlsx workbook.
func ReadXLSX(path string) ([]Row, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer book.Close()

	records, err := book.GetRows(book.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook rows: %w", err)
	}
	return parseRecords(records)
}

// ReadFile reads hourly rows from a CSV or xlsx file based on extension.
func ReadFile(path string) ([]Row, error) {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return ReadXLSX(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// Import loads rows into the store as real readings for the object.
// Duplicate keys are skipped by the store, so re-importing the same file
// is a no-op.
func Import(ctx context.Context, st *store.Store, rows []Row, objectID int, logger *log.Logger) (Result, error) {
	if logger == nil {
		logger = log.Default()
	}

	var produced, sold []store.EnergyRecord
	for _, row := range rows {
		if row.Produced != nil {
			produced = append(produced, store.EnergyRecord{
				Date: row.Date, Hour: row.Hour, Value: row.Produced,
				Type: store.Real, ObjectID: objectID,
			})
		}
		if row.Sold != nil {
			sold = append(sold, store.EnergyRecord{
				Date: row.Date, Hour: row.Hour, Value: row.Sold,
				Type: store.Real, ObjectID: objectID,
			})
		}
	}

	var result Result
	var err error
	if result.ProducedInserted, err = st.ImportRealEnergy(ctx, store.Produced, produced); err != nil {
		return result, fmt.Errorf("failed to import produced energy: %w", err)
	}
	if result.SoldInserted, err = st.ImportRealEnergy(ctx, store.Sold, sold); err != nil {
		return result, fmt.Errorf("failed to import sold energy: %w", err)
	}
	result.Skipped = len(produced) + len(sold) - result.ProducedInserted - result.SoldInserted

	logger.Printf("Import: %d produced, %d sold rows inserted, %d duplicates skipped",
		result.ProducedInserted, result.SoldInserted, result.Skipped)
	return result, nil
}
