// Package rollup builds the department-grouped rows that feed the spreadsheet
// exports: one map of rows for a single day, one for the whole billing period.
package rollup

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"otportal/models"
	"otportal/period"
)

// Row is one exportable overtime entry. Actual times are zero until the
// request completes.
type Row struct {
	RequestID    uint
	RequestDate  time.Time
	EmpID        string
	EmployeeName string
	Project      string
	Start        time.Time
	End          time.Time
	ActualStart  *time.Time
	ActualEnd    *time.Time
	BreakMinutes int
	Hours        decimal.Decimal
	Status       models.RequestStatus
}

type Aggregator struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Aggregator {
	return &Aggregator{db: db}
}

// DailyByDepartment returns exportable rows for the given date grouped by
// department name, the label the export sheets carry. Departments with no
// rows are absent from the map.
func (a *Aggregator) DailyByDepartment(d time.Time) (map[string][]Row, error) {
	return a.grouped(dayStart(d), dayStart(d).AddDate(0, 0, 1))
}

// PeriodByDepartment returns exportable rows over the billing period
// containing d, grouped by department name.
func (a *Aggregator) PeriodByDepartment(d time.Time) (map[string][]Row, error) {
	p := period.Of(d)
	return a.grouped(p.Start, p.End)
}

// HasAny reports whether any exportable request exists on the given date.
func (a *Aggregator) HasAny(d time.Time) (bool, error) {
	var count int64
	err := a.db.Model(&models.OvertimeRequest{}).
		Scopes(models.Exportable).
		Where("request_date >= ? AND request_date < ?", dayStart(d), dayStart(d).AddDate(0, 0, 1)).
		Count(&count).Error
	return count > 0, err
}

// PeriodHasAny reports whether the billing period containing d has any
// exportable request, optionally ignoring one date (the one being cleaned up).
func (a *Aggregator) PeriodHasAny(d time.Time, excludeDate bool) (bool, error) {
	p := period.Of(d)
	q := a.db.Model(&models.OvertimeRequest{}).
		Scopes(models.Exportable).
		Where("request_date >= ? AND request_date < ?", p.Start, p.End)
	if excludeDate {
		q = q.Where("request_date < ? OR request_date >= ?", dayStart(d), dayStart(d).AddDate(0, 0, 1))
	}
	var count int64
	err := q.Count(&count).Error
	return count > 0, err
}

func (a *Aggregator) grouped(from, to time.Time) (map[string][]Row, error) {
	var requests []models.OvertimeRequest
	err := a.db.Scopes(models.Exportable).
		Preload("Employee").Preload("Project").Preload("Department").Preload("Breaks").
		Where("request_date >= ? AND request_date < ?", from, to).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]Row)
	for _, r := range requests {
		row := Row{
			RequestID:   r.ID,
			RequestDate: r.RequestDate,
			Start:       r.PlannedStart,
			End:         r.PlannedEnd,
			ActualStart: r.ActualStart,
			ActualEnd:   r.ActualEnd,
			Hours:       r.Hours,
			Status:      r.Status,
		}
		if r.Employee != nil {
			row.EmpID = r.Employee.EmpID
			row.EmployeeName = r.Employee.Name
		}
		if r.Project != nil {
			row.Project = r.Project.Name
		}
		for _, b := range r.Breaks {
			row.BreakMinutes += int(b.Duration().Minutes())
		}
		key := r.DepartmentCode
		if r.Department != nil && r.Department.Name != "" {
			key = r.Department.Name
		}
		groups[key] = append(groups[key], row)
	}

	// Rows within a department sort by emp_id, then start time. SliceStable
	// keeps insertion order for full ties.
	for name := range groups {
		rows := groups[name]
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].EmpID != rows[j].EmpID {
				return rows[i].EmpID < rows[j].EmpID
			}
			return rows[i].Start.Before(rows[j].Start)
		})
		groups[name] = rows
	}

	return groups, nil
}

func dayStart(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}
