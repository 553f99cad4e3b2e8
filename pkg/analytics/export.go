package analytics

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"procodus.dev/vitals/pkg/vitals"
)

// ExportColumns is the fixed column order of every export.
var ExportColumns = []string{"device_id", "hr", "temp", "spo2", "bp_sys", "bp_dia", "created_at"}

const exportSheet = "wristband_data"

func exportRow(r vitals.Reading) []string {
	return []string{
		r.DeviceID,
		strconv.Itoa(r.HR),
		strconv.FormatFloat(r.Temp, 'f', -1, 64),
		strconv.Itoa(r.SpO2),
		strconv.Itoa(r.Systolic),
		strconv.Itoa(r.Diastolic),
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// WriteCSV writes a header line followed by one line per reading. Lines are joined with
// "\n" and there is no trailing newline, so N readings produce exactly N+1 lines. Values are
// numeric or timestamps and are never quoted.
func WriteCSV(w io.Writer, readings []vitals.Reading) error {
	lines := make([]string, 0, len(readings)+1)
	lines = append(lines, strings.Join(ExportColumns, ","))
	for _, r := range readings {
		lines = append(lines, strings.Join(exportRow(r), ","))
	}

	if _, err := io.WriteString(w, strings.Join(lines, "\n")); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// WriteXLSX writes the same columns as WriteCSV into a single-sheet workbook. Numeric
// columns are stored as numbers.
func WriteXLSX(w io.Writer, readings []vitals.Reading) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if _, err := f.NewSheet(exportSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	index, err := f.GetSheetIndex(exportSheet)
	if err != nil {
		return fmt.Errorf("failed to locate sheet: %w", err)
	}
	f.SetActiveSheet(index)

	header := make([]any, len(ExportColumns))
	for i, c := range ExportColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range readings {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			r.DeviceID,
			r.HR,
			r.Temp,
			r.SpO2,
			r.Systolic,
			r.Diastolic,
			r.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

// ExportFilename returns the download name used by the analytics export, e.g.
// wristband_data_1700000000000.csv.
func ExportFilename(now time.Time, ext string) string {
	return fmt.Sprintf("wristband_data_%d.%s", now.UnixMilli(), ext)
}
