// Package period maps dates onto the payroll billing cycle: the 26th of month
// M through the 25th of month M+1. Everything here is pure.
package period

import (
	"fmt"
	"time"
)

// Period is one billing cycle, [Start, End] inclusive. Start is the 26th at
// 00:00:00, End the 25th of the following month at 23:59:59.
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) Contains(d time.Time) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

func (p Period) String() string {
	return p.Start.Format("2006-01-02") + ".." + p.End.Format("2006-01-02")
}

// Of returns the billing period containing d. A date on the 25th belongs to
// the period ending that day; the 26th opens a new period.
func Of(d time.Time) Period {
	year, month, day := d.Date()
	loc := d.Location()

	var start time.Time
	if day >= 26 {
		start = time.Date(year, month, 26, 0, 0, 0, 0, loc)
	} else {
		start = time.Date(year, month, 26, 0, 0, 0, 0, loc).AddDate(0, -1, 0)
	}
	end := start.AddDate(0, 1, -1)
	end = time.Date(end.Year(), end.Month(), 25, 23, 59, 59, 0, loc)
	return Period{Start: start, End: end}
}

// Week is an ISO week, Monday through Sunday, both at midnight.
type Week struct {
	Monday time.Time
	Sunday time.Time
}

func (w Week) Contains(d time.Time) bool {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	return !day.Before(w.Monday) && !day.After(w.Sunday)
}

// WeekOf returns the ISO week containing d.
func WeekOf(d time.Time) Week {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	monday := day.AddDate(0, 0, -offset)
	return Week{Monday: monday, Sunday: monday.AddDate(0, 0, 6)}
}

// FolderName renders the period folder on the filer: "YYYY-MM-DD_YYYY-MM-DD".
func FolderName(d time.Time) string {
	p := Of(d)
	return p.Start.Format("2006-01-02") + "_" + p.End.Format("2006-01-02")
}

// Artifact file names. Daily names carry the date as YYYYMMDD; monthly names
// carry the period bounds as YYYY_MM_DD.

func DailyFileName(d time.Time) string {
	return d.Format("20060102") + "OT.xlsx"
}

func DailySummaryFileName(d time.Time) string {
	return d.Format("20060102") + "OTSummary.xlsx"
}

func MonthlyFileName(d time.Time) string {
	p := Of(d)
	return fmt.Sprintf("~%s-%sOT.xlsx", p.Start.Format("2006_01_02"), p.End.Format("2006_01_02"))
}

func MonthlySummaryFileName(d time.Time) string {
	p := Of(d)
	return fmt.Sprintf("~%s-%sOTSummary.xlsx", p.Start.Format("2006_01_02"), p.End.Format("2006_01_02"))
}
