// Package export renders roster snapshots as spreadsheets and single students
// as printable progress reports.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
)

// SheetName is the only sheet of a roster spreadsheet.
const SheetName = "Attendance"

var identityHeaders = []string{"Admission Number", "Name", "Year", "Group", "Medium"}

// SpreadsheetHeaders returns the fixed column contract: five identity columns,
// three per month and the annual percentage.
func SpreadsheetHeaders() []string {
	headers := make([]string, 0, len(identityHeaders)+3*len(attendance.Months)+1)
	headers = append(headers, identityHeaders...)
	for _, m := range attendance.Months {
		headers = append(headers,
			m.Label()+" Present",
			m.Label()+" Working Days",
			m.Label()+" %",
		)
	}
	return append(headers, "Annual %")
}

// ExportSpreadsheet writes one row per entry, in entry order. Months that were
// not loaded are written as zeros. No entries yields a header-only sheet.
func ExportSpreadsheet(entries []attendance.StudentRosterEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, spreadsheetError("rename sheet", err)
	}

	headers := SpreadsheetHeaders()
	headerRow := make([]any, len(headers))
	for i, h := range headers {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &headerRow); err != nil {
		return nil, spreadsheetError("write header", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return nil, spreadsheetError("create header style", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return nil, spreadsheetError("resolve last column", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return nil, spreadsheetError("style header", err)
	}

	for i, e := range entries {
		row := spreadsheetRow(e)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, spreadsheetError("resolve row", err)
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, spreadsheetError(fmt.Sprintf("write row %d", i+2), err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, spreadsheetError("freeze header", err)
	}
	_ = f.SetColWidth(SheetName, "A", "A", 18)
	_ = f.SetColWidth(SheetName, "B", "B", 28)
	_ = f.SetColWidth(SheetName, "C", "E", 10)
	_ = f.SetColWidth(SheetName, "F", lastCol, 12)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, spreadsheetError("write workbook", err)
	}
	return buf.Bytes(), nil
}

func spreadsheetRow(e attendance.StudentRosterEntry) []any {
	s := e.Student
	row := make([]any, 0, len(identityHeaders)+3*len(attendance.Months)+1)
	row = append(row, s.AdmissionNumber, s.Name, s.Year, s.Group.Label(), s.Medium.Label())
	for _, m := range attendance.Months {
		r := e.Record(m)
		row = append(row, r.DaysPresent, r.WorkingDays, r.Percentage())
	}
	return append(row, e.Summary.RoundedPercentage())
}

func spreadsheetError(step string, err error) error {
	return shared.WrapError("export", "Spreadsheet", shared.ErrExport, step, err)
}
