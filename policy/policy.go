// Package policy evaluates candidate overtime against the weekly and monthly
// caps in the active OvertimeLimitConfig.
package policy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"otportal/models"
	"otportal/period"
)

type Category string

const (
	CategoryWeekly  Category = "weekly"
	CategoryMonthly Category = "monthly"
)

type Level int

const (
	LevelOK Level = iota
	LevelWarn
	LevelBlock
)

// Verdict is the outcome of one evaluation. Total includes the candidate
// hours. A Block verdict doubles as the error returned to the state machine.
type Verdict struct {
	Level     Level
	Category  Category
	Total     decimal.Decimal
	Threshold decimal.Decimal
}

func (v Verdict) OK() bool      { return v.Level == LevelOK }
func (v Verdict) Blocked() bool { return v.Level == LevelBlock }

// BlockError is returned when a transition must fail. It carries the offending
// category, total, and threshold for the 409 payload.
type BlockError struct {
	Verdict
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("overtime limit exceeded: %s total %s > max %s",
		e.Category, e.Total.StringFixed(2), e.Threshold.StringFixed(2))
}

type Engine struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// Evaluate sums approved and completed hours for the employee over the week
// and billing period containing the candidate date, adds the candidate hours,
// and compares against the active config. excludeRequestID removes the request
// being re-evaluated from the totals (zero means no exclusion).
func (e *Engine) Evaluate(c Candidate) (Verdict, error) {
	cfg, err := e.activeConfig()
	if err != nil {
		return Verdict{}, err
	}

	week := period.WeekOf(c.Date)
	weekly, err := e.sumHours(c, week.Monday, week.Sunday.AddDate(0, 0, 1))
	if err != nil {
		return Verdict{}, err
	}

	p := period.Of(c.Date)
	monthly, err := e.sumHours(c, p.Start, p.End)
	if err != nil {
		return Verdict{}, err
	}

	weekly = weekly.Add(c.Hours)
	monthly = monthly.Add(c.Hours)

	if weekly.GreaterThan(cfg.MaxWeeklyHours) {
		return Verdict{LevelBlock, CategoryWeekly, weekly, cfg.MaxWeeklyHours}, nil
	}
	if monthly.GreaterThan(cfg.MaxMonthlyHours) {
		return Verdict{LevelBlock, CategoryMonthly, monthly, cfg.MaxMonthlyHours}, nil
	}
	if weekly.GreaterThan(cfg.RecommendedWeeklyHours) {
		return Verdict{LevelWarn, CategoryWeekly, weekly, cfg.RecommendedWeeklyHours}, nil
	}
	if monthly.GreaterThan(cfg.RecommendedMonthlyHours) {
		return Verdict{LevelWarn, CategoryMonthly, monthly, cfg.RecommendedMonthlyHours}, nil
	}
	return Verdict{Level: LevelOK}, nil
}

type Candidate struct {
	EmployeeID       uint
	Date             time.Time
	Hours            decimal.Decimal
	ExcludeRequestID uint
}

func (e *Engine) activeConfig() (*models.OvertimeLimitConfig, error) {
	var cfg models.OvertimeLimitConfig
	err := e.db.Where("is_active = ?", true).First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		return nil, models.ErrNoActiveLimitConfig
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// sumHours totals countable hours in [from, to). Bounds are date-granular.
func (e *Engine) sumHours(c Candidate, from, to time.Time) (decimal.Decimal, error) {
	var rows []models.OvertimeRequest
	q := e.db.Scopes(models.CountsAgainstLimits).
		Where("employee_id = ?", c.EmployeeID).
		Where("request_date >= ? AND request_date < ?", from, to)
	if c.ExcludeRequestID != 0 {
		q = q.Where("id <> ?", c.ExcludeRequestID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Hours)
	}
	return total, nil
}
