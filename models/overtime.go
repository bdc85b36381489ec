package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RequestStatus string

const (
	StatusDraft     RequestStatus = "draft"
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCompleted RequestStatus = "completed"
	StatusCancelled RequestStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// OvertimeRequest is the central entity. Rows are never hard-deleted: IsDeleted
// hides them from every query that goes through the Alive scope.
type OvertimeRequest struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RequestDate time.Time `gorm:"not null;type:date;index" json:"request_date"`

	EmployeeID uint      `gorm:"not null;index" json:"employee_id"`
	Employee   *Employee `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`

	ProjectID uint     `gorm:"not null" json:"project_id"`
	Project   *Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`

	DepartmentID uint        `gorm:"not null" json:"department_id"`
	Department   *Department `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
	// Denormalized from Department.Code on every save for fast filtering.
	DepartmentCode string `gorm:"not null;size:20;index" json:"department_code"`

	PlannedStart time.Time  `gorm:"not null" json:"planned_start"`
	PlannedEnd   time.Time  `gorm:"not null" json:"planned_end"`
	ActualStart  *time.Time `json:"actual_start"`
	ActualEnd    *time.Time `json:"actual_end"`

	Hours  decimal.Decimal `gorm:"type:decimal(6,2);not null" json:"hours"`
	Status RequestStatus   `gorm:"not null;size:20;default:draft;index" json:"status"`
	Reason string          `gorm:"size:500" json:"reason"`

	Breaks []OvertimeBreak `gorm:"foreignKey:RequestID" json:"breaks,omitempty"`

	CreatedByID  uint          `gorm:"not null" json:"created_by_id"`
	CreatedBy    *ExternalUser `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	ApprovedByID *uint         `json:"approved_by_id"`
	ApprovedBy   *ExternalUser `gorm:"foreignKey:ApprovedByID" json:"approved_by,omitempty"`
	ApprovedAt   *time.Time    `json:"approved_at"`

	IsDeleted bool       `gorm:"default:false;index" json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at"`

	// Set when an export job for this date exhausted its retries; cleared on
	// the next successful run. Operator visibility only.
	LastExportError string `gorm:"size:500" json:"last_export_error,omitempty"`
}

// OvertimeBreak is a [Start, End) interval subtracted from the request's hours.
// Intervals within one request must not overlap.
type OvertimeBreak struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	RequestID uint      `gorm:"not null;index" json:"request_id"`
	Start     time.Time `gorm:"not null" json:"start"`
	End       time.Time `gorm:"not null" json:"end"`
}

func (b OvertimeBreak) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// Alive scopes a query to rows that are not soft-deleted. Every read path uses
// this; WithDeleted is the single explicit escape hatch.
func Alive(db *gorm.DB) *gorm.DB {
	return db.Where("is_deleted = ?", false)
}

func WithDeleted(db *gorm.DB) *gorm.DB {
	return db
}

// Exportable scopes to rows that appear in rollups and spreadsheets.
func Exportable(db *gorm.DB) *gorm.DB {
	return Alive(db).Where("status IN ?", []RequestStatus{StatusApproved, StatusCompleted})
}

// CountsAgainstLimits scopes to rows whose hours are charged against the
// weekly and monthly caps.
func CountsAgainstLimits(db *gorm.DB) *gorm.DB {
	return Alive(db).Where("status IN ?", []RequestStatus{StatusApproved, StatusCompleted})
}

// OvertimeLimitConfig holds the weekly/monthly caps. Exactly one row is active
// at a time; BeforeSave enforces threshold ordering.
type OvertimeLimitConfig struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	MaxWeeklyHours          decimal.Decimal `gorm:"type:decimal(6,2);not null" json:"max_weekly_hours"`
	MaxMonthlyHours         decimal.Decimal `gorm:"type:decimal(6,2);not null" json:"max_monthly_hours"`
	RecommendedWeeklyHours  decimal.Decimal `gorm:"type:decimal(6,2);not null" json:"recommended_weekly_hours"`
	RecommendedMonthlyHours decimal.Decimal `gorm:"type:decimal(6,2);not null" json:"recommended_monthly_hours"`
	IsActive                bool            `gorm:"default:false;index" json:"is_active"`
}

func (c *OvertimeLimitConfig) BeforeSave(tx *gorm.DB) error {
	if c.RecommendedWeeklyHours.GreaterThan(c.MaxWeeklyHours) {
		return ErrRecommendedAboveMax
	}
	if c.RecommendedMonthlyHours.GreaterThan(c.MaxMonthlyHours) {
		return ErrRecommendedAboveMax
	}
	return nil
}

// AfterSave deactivates every other config row when this one is active,
// preserving the single-active invariant.
func (c *OvertimeLimitConfig) AfterSave(tx *gorm.DB) error {
	if !c.IsActive {
		return nil
	}
	return tx.Model(&OvertimeLimitConfig{}).
		Where("id <> ? AND is_active = ?", c.ID, true).
		Update("is_active", false).Error
}
