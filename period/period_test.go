package period_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otportal/period"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestOf_MidPeriod(t *testing.T) {
	p := period.Of(date(2025, time.February, 27))

	assert.Equal(t, date(2025, time.February, 26), p.Start)
	assert.Equal(t, time.Date(2025, time.March, 25, 23, 59, 59, 0, time.UTC), p.End)
}

func TestOf_The25thEndsThePeriod(t *testing.T) {
	p := period.Of(date(2025, time.March, 25))

	assert.Equal(t, date(2025, time.February, 26), p.Start)
	assert.Equal(t, 25, p.End.Day())
	assert.Equal(t, time.March, p.End.Month())
}

func TestOf_The26thStartsANewPeriod(t *testing.T) {
	p := period.Of(date(2025, time.March, 26))

	assert.Equal(t, date(2025, time.March, 26), p.Start)
	assert.Equal(t, time.April, p.End.Month())
}

func TestOf_YearBoundary(t *testing.T) {
	p := period.Of(date(2025, time.January, 3))

	assert.Equal(t, date(2024, time.December, 26), p.Start)
	assert.Equal(t, 2025, p.End.Year())
	assert.Equal(t, time.January, p.End.Month())
}

// Every date lands in a period starting on a 26th and ending on a 25th, and
// the period contains the date.
func TestOf_BoundsProperty(t *testing.T) {
	d := date(2024, time.January, 1)
	for i := 0; i < 800; i++ {
		p := period.Of(d)
		require.Equal(t, 26, p.Start.Day(), "start day for %s", d)
		require.Equal(t, 25, p.End.Day(), "end day for %s", d)
		require.True(t, p.Contains(d), "period %s must contain %s", p, d)
		d = d.AddDate(0, 0, 1)
	}
}

func TestWeekOf(t *testing.T) {
	// 2025-02-27 is a Thursday.
	w := period.WeekOf(date(2025, time.February, 27))

	assert.Equal(t, date(2025, time.February, 24), w.Monday)
	assert.Equal(t, date(2025, time.March, 2), w.Sunday)
	assert.Equal(t, time.Monday, w.Monday.Weekday())
	assert.Equal(t, time.Sunday, w.Sunday.Weekday())
}

func TestWeekOf_SundayBelongsToPrecedingMonday(t *testing.T) {
	w := period.WeekOf(date(2025, time.March, 2))

	assert.Equal(t, date(2025, time.February, 24), w.Monday)
}

func TestFolderName(t *testing.T) {
	assert.Equal(t, "2025-02-26_2025-03-25", period.FolderName(date(2025, time.February, 27)))
}

func TestFileNames(t *testing.T) {
	d := date(2025, time.February, 27)

	assert.Equal(t, "20250227OT.xlsx", period.DailyFileName(d))
	assert.Equal(t, "20250227OTSummary.xlsx", period.DailySummaryFileName(d))
	assert.Equal(t, "~2025_02_26-2025_03_25OT.xlsx", period.MonthlyFileName(d))
	assert.Equal(t, "~2025_02_26-2025_03_25OTSummary.xlsx", period.MonthlySummaryFileName(d))
}
