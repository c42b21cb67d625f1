// Package export renders stored reports as spreadsheets.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/modreports/internal/report"
)

const (
	ReportsSheet = "Reports"
	InfoSheet    = "Info"

	// ContentType is the MIME type of an XLSX workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	columnWidth = 24
)

// Options describe the export for the Info sheet.
type Options struct {
	Table    string
	TargetID string // empty for a full export
	Now      func() time.Time
}

// WriteXLSX writes reports to w as a workbook with one row per report and
// a header row of column names. NULL and empty values both render as empty
// cells.
func WriteXLSX(w io.Writer, reports []report.Report, opts Options) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ReportsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	header := make([]any, len(report.Columns))
	for i, c := range report.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(ReportsSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	lastCol, err := excelize.ColumnNumberToName(len(report.Columns))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(ReportsSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(ReportsSheet, "A", lastCol, columnWidth); err != nil {
		return fmt.Errorf("column width: %w", err)
	}

	for i := range reports {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		vals := reports[i].Values()
		row := make([]any, len(vals))
		for j, v := range vals {
			if v != nil {
				row[j] = *v
			} else {
				row[j] = ""
			}
		}
		if err := f.SetSheetRow(ReportsSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(ReportsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := writeInfo(f, len(reports), opts); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeInfo(f *excelize.File, count int, opts Options) error {
	if _, err := f.NewSheet(InfoSheet); err != nil {
		return fmt.Errorf("info sheet: %w", err)
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	target := opts.TargetID
	if target == "" {
		target = "(all)"
	}
	table := opts.Table
	if table == "" {
		table = report.Table
	}

	rows := [][2]any{
		{"Generated", now().UTC().Format(time.RFC3339)},
		{"Table", table},
		{"Target", target},
		{"Reports", count},
	}
	for i, r := range rows {
		if err := f.SetCellValue(InfoSheet, fmt.Sprintf("A%d", i+1), r[0]); err != nil {
			return err
		}
		if err := f.SetCellValue(InfoSheet, fmt.Sprintf("B%d", i+1), r[1]); err != nil {
			return err
		}
	}
	return f.SetColWidth(InfoSheet, "A", "B", columnWidth)
}
