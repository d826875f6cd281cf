package report

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/pvplanner/pvplanner/store"
)

func day(d int) time.Time {
	return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
}

func TestPivotEmptyInput(t *testing.T) {
	table := Pivot(nil, MWhDivisor)
	if !table.Empty() {
		t.Error("Expected empty table for no rows")
	}

	rows := []store.EnergyRecord{{Date: day(1), Hour: 10, Type: store.Predicted}}
	table = Pivot(rows, MWhDivisor)
	if !table.Empty() {
		t.Error("Expected empty table when every row lacks a value")
	}
}

func TestPivotShapeAndConversion(t *testing.T) {
	rows := []store.EnergyRecord{
		{Date: day(1), Hour: 10, Value: store.Float64Ptr(1500), Type: store.Predicted},
		{Date: day(1), Hour: 11, Value: store.Float64Ptr(2500), Type: store.Predicted},
		{Date: day(2), Hour: 10, Value: store.Float64Ptr(3000), Type: store.Predicted},
	}

	table := Pivot(rows, MWhDivisor)
	if table.Empty() {
		t.Fatal("Expected non-empty table")
	}
	if len(table.Dates) != 2 {
		t.Fatalf("Expected 2 date columns, got %d", len(table.Dates))
	}
	if !table.Dates[0].Equal(day(1)) || !table.Dates[1].Equal(day(2)) {
		t.Errorf("Dates not sorted: %v", table.Dates)
	}

	if table.Cells[10][0] != 1.5 {
		t.Errorf("Cell[10][0] = %f, expected 1.5", table.Cells[10][0])
	}
	if table.Cells[11][0] != 2.5 {
		t.Errorf("Cell[11][0] = %f, expected 2.5", table.Cells[11][0])
	}
	if table.Cells[10][1] != 3.0 {
		t.Errorf("Cell[10][1] = %f, expected 3.0", table.Cells[10][1])
	}
	// Missing cells fill with zero.
	if table.Cells[0][0] != 0 || table.Cells[23][1] != 0 {
		t.Error("Expected zero-filled cells for missing hours")
	}
}

func TestPivotSumsDuplicates(t *testing.T) {
	rows := []store.EnergyRecord{
		{Date: day(1), Hour: 10, Value: store.Float64Ptr(1000), Type: store.Predicted},
		{Date: day(1), Hour: 10, Value: store.Float64Ptr(500), Type: store.Real},
	}

	table := Pivot(rows, MWhDivisor)
	if table.Cells[10][0] != 1.5 {
		t.Errorf("Expected duplicate cells summed to 1.5, got %f", table.Cells[10][0])
	}
}

func TestPivotTotalMatchesColumnSums(t *testing.T) {
	var rows []store.EnergyRecord
	for d := 1; d <= 3; d++ {
		for h := 0; h < 24; h++ {
			v := float64(d*100+h) * 7.3
			rows = append(rows, store.EnergyRecord{
				Date: day(d), Hour: h, Value: store.Float64Ptr(v), Type: store.Predicted,
			})
		}
	}

	table := Pivot(rows, MWhDivisor)
	for c := range table.Dates {
		var sum float64
		for h := 0; h < 24; h++ {
			sum += table.Cells[h][c]
		}
		if math.Abs(table.Total[c]-sum) > 0.0005 {
			t.Errorf("Column %d total %f does not match cell sum %f", c, table.Total[c], sum)
		}
	}
}

func TestPivotRounding(t *testing.T) {
	rows := []store.EnergyRecord{
		{Date: day(1), Hour: 0, Value: store.Float64Ptr(1234.5678), Type: store.Predicted},
	}

	table := Pivot(rows, MWhDivisor)
	if table.Cells[0][0] != 1.235 {
		t.Errorf("Expected 1.235 after rounding, got %f", table.Cells[0][0])
	}
}

func TestHourLabels(t *testing.T) {
	table := &Table{}
	if table.Hour(0) != 1 || table.Hour(23) != 24 {
		t.Errorf("Hour labels should run 1-24, got %d and %d", table.Hour(0), table.Hour(23))
	}
}

func TestWriteCSV(t *testing.T) {
	rows := []store.EnergyRecord{
		{Date: day(1), Hour: 0, Value: store.Float64Ptr(1500), Type: store.Predicted},
		{Date: day(1), Hour: 23, Value: store.Float64Ptr(500), Type: store.Predicted},
	}
	table := Pivot(rows, MWhDivisor)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, table); err != nil {
		t.Fatalf("WriteCSV returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 26 {
		t.Fatalf("Expected 26 lines (header, 24 hours, total), got %d", len(lines))
	}
	if lines[0] != "Hour,2024-06-01" {
		t.Errorf("Unexpected header: %q", lines[0])
	}
	if lines[1] != "1,1.500" {
		t.Errorf("Unexpected first hour row: %q", lines[1])
	}
	if lines[24] != "24,0.500" {
		t.Errorf("Unexpected last hour row: %q", lines[24])
	}
	if lines[25] != "TOTAL,2.000" {
		t.Errorf("Unexpected total row: %q", lines[25])
	}
}

func TestWriteCSVEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, &Table{}); err == nil {
		t.Error("Expected error for empty table")
	}
}

func TestWriteXLSXSkipsEmptySheets(t *testing.T) {
	rows := []store.EnergyRecord{
		{Date: day(1), Hour: 12, Value: store.Float64Ptr(4200), Type: store.Predicted},
	}

	var buf bytes.Buffer
	err := WriteXLSXTo(&buf, []Sheet{
		{Name: "produced", Table: Pivot(rows, MWhDivisor)},
		{Name: "sold", Table: Pivot(nil, MWhDivisor)},
	})
	if err != nil {
		t.Fatalf("WriteXLSXTo returned error: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("Expected workbook bytes")
	}
}

func TestWriteXLSXAllEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := WriteXLSXTo(&buf, []Sheet{{Name: "produced", Table: &Table{}}})
	if err == nil {
		t.Error("Expected error when every sheet is empty")
	}
}
