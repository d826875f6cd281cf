package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// Sheet pairs a pivot table with its sheet name in the workbook.
type Sheet struct {
	Name  string
	Table *Table
}

const dateLayout = "2006-01-02"

// WriteXLSX writes the non-empty sheets to an xlsx workbook at path.
// Returns an error when every sheet is empty, so callers never produce a
// workbook with nothing in it.
func WriteXLSX(path string, sheets []Sheet) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := WriteXLSXTo(f, sheets); err != nil {
		return err
	}
	return f.Close()
}

// WriteXLSXTo writes the workbook to w. Empty sheets are skipped.
func WriteXLSXTo(w io.Writer, sheets []Sheet) error {
	book := excelize.NewFile()
	defer book.Close()

	written := 0
	for _, sheet := range sheets {
		if sheet.Table == nil || sheet.Table.Empty() {
			continue
		}

		if written == 0 {
			if err := book.SetSheetName("Sheet1", sheet.Name); err != nil {
				return fmt.Errorf("failed to name sheet %s: %w", sheet.Name, err)
			}
		} else {
			if _, err := book.NewSheet(sheet.Name); err != nil {
				return fmt.Errorf("failed to add sheet %s: %w", sheet.Name, err)
			}
		}
		if err := fillSheet(book, sheet.Name, sheet.Table); err != nil {
			return err
		}
		written++
	}

	if written == 0 {
		return fmt.Errorf("no data to export")
	}

	if err := book.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func fillSheet(book *excelize.File, name string, t *Table) error {
	setCell := func(col, row int, value interface{}) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return book.SetCellValue(name, cell, value)
	}

	if err := setCell(1, 1, "Hour"); err != nil {
		return err
	}
	for c, date := range t.Dates {
		if err := setCell(c+2, 1, date.Format(dateLayout)); err != nil {
			return err
		}
	}

	for h := 0; h < 24; h++ {
		row := h + 2
		if err := setCell(1, row, t.Hour(h)); err != nil {
			return err
		}
		for c, v := range t.Cells[h] {
			if err := setCell(c+2, row, v); err != nil {
				return err
			}
		}
	}

	totalRow := 26
	if err := setCell(1, totalRow, "TOTAL"); err != nil {
		return err
	}
	for c, v := range t.Total {
		if err := setCell(c+2, totalRow, v); err != nil {
			return err
		}
	}
	return nil
}

// WriteCSV writes a single pivot table as CSV to w.
func WriteCSV(w io.Writer, t *Table) error {
	if t == nil || t.Empty() {
		return fmt.Errorf("no data to export")
	}

	cw := csv.NewWriter(w)

	header := make([]string, 0, len(t.Dates)+1)
	header = append(header, "Hour")
	for _, date := range t.Dates {
		header = append(header, date.Format(dateLayout))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for h := 0; h < 24; h++ {
		row := make([]string, 0, len(t.Dates)+1)
		row = append(row, strconv.Itoa(t.Hour(h)))
		for _, v := range t.Cells[h] {
			row = append(row, strconv.FormatFloat(v, 'f', 3, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	total := make([]string, 0, len(t.Dates)+1)
	total = append(total, "TOTAL")
	for _, v := range t.Total {
		total = append(total, strconv.FormatFloat(v, 'f', 3, 64))
	}
	if err := cw.Write(total); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes a single pivot table as CSV at path.
func WriteCSVFile(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := WriteCSV(f, t); err != nil {
		return err
	}
	return f.Close()
}
