// Package excel turns department rollups into xlsx workbooks. The package is
// pure: it builds documents in memory and never touches the database or the
// filer.
package excel

import (
	"bytes"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"otportal/period"
	"otportal/rollup"
)

// Workbook is one materialized artifact, ready for publishing.
type Workbook struct {
	FileName string
	File     *excelize.File
}

// Bytes serializes the workbook.
func (w *Workbook) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := w.File.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var detailHeader = []interface{}{"Emp ID", "Name", "Project", "Date", "Start", "End", "Break (min)", "Hours"}
var summaryHeader = []interface{}{"Emp ID", "Name", "Entries", "Hours"}

// BuildDaily renders one sheet per department with the day's rows. A nil or
// empty map yields no workbook at all, not a workbook with empty sheets.
func BuildDaily(groups map[string][]rollup.Row, d time.Time) (*Workbook, error) {
	return buildDetail(groups, period.DailyFileName(d))
}

// BuildMonthly renders the period-wide detail workbook.
func BuildMonthly(groups map[string][]rollup.Row, d time.Time) (*Workbook, error) {
	return buildDetail(groups, period.MonthlyFileName(d))
}

// BuildDailySummary aggregates the day's rows per (department, employee).
func BuildDailySummary(groups map[string][]rollup.Row, d time.Time) (*Workbook, error) {
	return buildSummary(groups, period.DailySummaryFileName(d))
}

// BuildMonthlySummary aggregates the period's rows per (department, employee).
func BuildMonthlySummary(groups map[string][]rollup.Row, d time.Time) (*Workbook, error) {
	return buildSummary(groups, period.MonthlySummaryFileName(d))
}

// BuildAll materializes the four workbooks for a date. Missing data in either
// map simply drops the corresponding pair.
func BuildAll(daily, monthly map[string][]rollup.Row, d time.Time) ([]*Workbook, error) {
	var books []*Workbook
	builders := []func() (*Workbook, error){
		func() (*Workbook, error) { return BuildDaily(daily, d) },
		func() (*Workbook, error) { return BuildDailySummary(daily, d) },
		func() (*Workbook, error) { return BuildMonthly(monthly, d) },
		func() (*Workbook, error) { return BuildMonthlySummary(monthly, d) },
	}
	for _, build := range builders {
		wb, err := build()
		if err != nil {
			return nil, err
		}
		if wb != nil {
			books = append(books, wb)
		}
	}
	return books, nil
}

func buildDetail(groups map[string][]rollup.Row, fileName string) (*Workbook, error) {
	if len(groups) == 0 {
		return nil, nil
	}

	f := excelize.NewFile()
	style, err := headerStyle(f)
	if err != nil {
		return nil, err
	}

	for i, code := range sortedCodes(groups) {
		if err := addSheet(f, code, i); err != nil {
			return nil, err
		}
		if err := writeHeader(f, code, detailHeader, style); err != nil {
			return nil, err
		}
		for rowIdx, row := range groups[code] {
			start, end := row.Start, row.End
			if row.ActualStart != nil && row.ActualEnd != nil {
				start, end = *row.ActualStart, *row.ActualEnd
			}
			cells := []interface{}{
				row.EmpID,
				row.EmployeeName,
				row.Project,
				row.RequestDate.Format("2006-01-02"),
				start.Format("15:04"),
				end.Format("15:04"),
				row.BreakMinutes,
				hoursCell(row.Hours),
			}
			if err := writeRow(f, code, rowIdx+2, cells); err != nil {
				return nil, err
			}
		}
	}

	return &Workbook{FileName: fileName, File: f}, nil
}

func buildSummary(groups map[string][]rollup.Row, fileName string) (*Workbook, error) {
	if len(groups) == 0 {
		return nil, nil
	}

	f := excelize.NewFile()
	style, err := headerStyle(f)
	if err != nil {
		return nil, err
	}

	for i, code := range sortedCodes(groups) {
		if err := addSheet(f, code, i); err != nil {
			return nil, err
		}
		if err := writeHeader(f, code, summaryHeader, style); err != nil {
			return nil, err
		}

		type agg struct {
			name    string
			entries int
			hours   decimal.Decimal
		}
		perEmployee := make(map[string]*agg)
		var order []string
		for _, row := range groups[code] {
			a, ok := perEmployee[row.EmpID]
			if !ok {
				a = &agg{name: row.EmployeeName}
				perEmployee[row.EmpID] = a
				order = append(order, row.EmpID)
			}
			a.entries++
			a.hours = a.hours.Add(row.Hours)
		}
		sort.Strings(order)

		for rowIdx, empID := range order {
			a := perEmployee[empID]
			cells := []interface{}{empID, a.name, a.entries, hoursCell(a.hours)}
			if err := writeRow(f, code, rowIdx+2, cells); err != nil {
				return nil, err
			}
		}
	}

	return &Workbook{FileName: fileName, File: f}, nil
}

// addSheet renames the default sheet for the first department and appends the
// rest, keeping alphabetical order.
func addSheet(f *excelize.File, code string, index int) error {
	if index == 0 {
		return f.SetSheetName("Sheet1", code)
	}
	_, err := f.NewSheet(code)
	return err
}

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
}

func writeHeader(f *excelize.File, sheet string, header []interface{}, style int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func writeRow(f *excelize.File, sheet string, rowNum int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &cells)
}

func hoursCell(h decimal.Decimal) string {
	return h.StringFixed(2)
}

func sortedCodes(groups map[string][]rollup.Row) []string {
	codes := make([]string, 0, len(groups))
	for code := range groups {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
