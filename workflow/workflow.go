// Package workflow owns the overtime request lifecycle: creation, status
// transitions, and soft deletion. Every mutation goes through here so the
// invariants (limit policy, overlap, hours, department denormalization) hold
// at each commit boundary.
package workflow

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"otportal/models"
	"otportal/policy"
)

var (
	ErrNotAuthorized     = errors.New("actor is not authorized for this transition")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrOverlap           = errors.New("overlapping overtime request for this employee and date")
	ErrNotFound          = errors.New("overtime request not found")
)

// ValidationError marks caller input that violated an invariant.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Events is the export side-effect sink. The export orchestrator implements
// it; tests substitute a recorder.
type Events interface {
	EnqueueExport(d time.Time)
	EnqueueRegenerate(d time.Time)
}

type Service struct {
	db          *gorm.DB
	policy      *policy.Engine
	events      Events
	horizonDays int
}

func New(db *gorm.DB, engine *policy.Engine, events Events, horizonDays int) *Service {
	return &Service{db: db, policy: engine, events: events, horizonDays: horizonDays}
}

type BreakInput struct {
	Start time.Time
	End   time.Time
}

type CreateInput struct {
	RequestDate  time.Time
	EmployeeID   uint
	ProjectID    uint
	PlannedStart time.Time
	PlannedEnd   time.Time
	Breaks       []BreakInput
	Reason       string
}

// Create files a new draft request.
func (s *Service) Create(actor *models.ExternalUser, in CreateInput) (*models.OvertimeRequest, error) {
	if !in.PlannedEnd.After(in.PlannedStart) {
		return nil, invalid("planned_end", "must be after planned_start")
	}
	horizon := time.Now().AddDate(0, 0, -s.horizonDays)
	if in.RequestDate.Before(dayStart(horizon)) {
		return nil, invalid("request_date", "date is too far in the past")
	}
	if err := checkBreaks(in.Breaks, in.PlannedStart, in.PlannedEnd); err != nil {
		return nil, err
	}

	var employee models.Employee
	if err := s.db.Preload("Department").First(&employee, in.EmployeeID).Error; err != nil {
		return nil, invalid("employee_id", "unknown employee")
	}
	if !employee.IsEnabled {
		return nil, invalid("employee_id", "employee is disabled")
	}
	if employee.DepartmentID == nil || employee.Department == nil {
		return nil, invalid("employee_id", "employee has no department")
	}

	var project models.Project
	if err := s.db.First(&project, in.ProjectID).Error; err != nil {
		return nil, invalid("project_id", "unknown project")
	}
	if !project.IsEnabled {
		return nil, invalid("project_id", "project is disabled")
	}

	req := &models.OvertimeRequest{
		RequestDate:    dayStart(in.RequestDate),
		EmployeeID:     employee.ID,
		ProjectID:      project.ID,
		DepartmentID:   *employee.DepartmentID,
		DepartmentCode: employee.Department.Code,
		PlannedStart:   in.PlannedStart,
		PlannedEnd:     in.PlannedEnd,
		Status:         models.StatusDraft,
		Reason:         in.Reason,
		CreatedByID:    actor.ID,
	}
	for _, b := range in.Breaks {
		req.Breaks = append(req.Breaks, models.OvertimeBreak{Start: b.Start, End: b.End})
	}
	req.Hours = computeHours(req)

	if err := s.db.Create(req).Error; err != nil {
		return nil, err
	}
	return req, nil
}

// Submit moves a draft to pending. No export yet: nothing is visible to
// payroll until approval. The returned verdict is non-nil when the request
// pushed a total past a recommended threshold; it surfaces to the caller.
func (s *Service) Submit(actor *models.ExternalUser, id uint) (*models.OvertimeRequest, *policy.Verdict, error) {
	var warned *policy.Verdict
	req, err := s.transition(actor, id, models.StatusDraft, models.StatusPending,
		func(tx *gorm.DB, req *models.OvertimeRequest) error {
			if req.CreatedByID != actor.ID {
				return ErrNotAuthorized
			}
			if err := s.checkPolicy(req, &warned); err != nil {
				return err
			}
			return s.checkOverlap(tx, req)
		})
	if err != nil {
		return nil, nil, err
	}
	logWarn(warned, req)
	return req, warned, nil
}

// Approve moves a pending request to approved and schedules the export.
func (s *Service) Approve(actor *models.ExternalUser, id uint) (*models.OvertimeRequest, *policy.Verdict, error) {
	var warned *policy.Verdict
	req, err := s.transition(actor, id, models.StatusPending, models.StatusApproved,
		func(tx *gorm.DB, req *models.OvertimeRequest) error {
			if !actor.ApproverFor(req.DepartmentCode) {
				return ErrNotAuthorized
			}
			// Policy and overlap are re-evaluated: the week may have filled up
			// since submission.
			if err := s.checkPolicy(req, &warned); err != nil {
				return err
			}
			if err := s.checkOverlap(tx, req); err != nil {
				return err
			}
			now := time.Now()
			req.ApprovedByID = &actor.ID
			req.ApprovedAt = &now
			return nil
		})
	if err != nil {
		return nil, nil, err
	}
	logWarn(warned, req)
	s.events.EnqueueExport(req.RequestDate)
	return req, warned, nil
}

// Reject moves a pending request to rejected and regenerates the date's
// artifacts without it.
func (s *Service) Reject(actor *models.ExternalUser, id uint, reason string) (*models.OvertimeRequest, error) {
	req, err := s.transition(actor, id, models.StatusPending, models.StatusRejected,
		func(tx *gorm.DB, req *models.OvertimeRequest) error {
			if !actor.ApproverFor(req.DepartmentCode) {
				return ErrNotAuthorized
			}
			if reason != "" {
				req.Reason = reason
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	s.events.EnqueueExport(req.RequestDate)
	return req, nil
}

type CompleteInput struct {
	ActualStart time.Time
	ActualEnd   time.Time
}

// Complete records actual times on an approved request and recomputes hours.
func (s *Service) Complete(actor *models.ExternalUser, id uint, in CompleteInput) (*models.OvertimeRequest, error) {
	req, err := s.transition(actor, id, models.StatusApproved, models.StatusCompleted,
		func(tx *gorm.DB, req *models.OvertimeRequest) error {
			if req.CreatedByID != actor.ID && !actor.ApproverFor(req.DepartmentCode) {
				return ErrNotAuthorized
			}
			if !in.ActualEnd.After(in.ActualStart) {
				return invalid("actual_end", "must be after actual_start")
			}
			var breaks []BreakInput
			for _, b := range req.Breaks {
				breaks = append(breaks, BreakInput{Start: b.Start, End: b.End})
			}
			if err := checkBreaks(breaks, in.ActualStart, in.ActualEnd); err != nil {
				return err
			}
			req.ActualStart = &in.ActualStart
			req.ActualEnd = &in.ActualEnd
			req.Hours = computeHours(req)
			return nil
		})
	if err != nil {
		return nil, err
	}
	s.events.EnqueueExport(req.RequestDate)
	return req, nil
}

// Cancel withdraws a request. Draft and pending may be cancelled by their
// creator; approved only by an approver.
func (s *Service) Cancel(actor *models.ExternalUser, id uint) (*models.OvertimeRequest, error) {
	var req models.OvertimeRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.loadForUpdate(tx, &req, id); err != nil {
			return err
		}
		switch req.Status {
		case models.StatusDraft, models.StatusPending:
			if req.CreatedByID != actor.ID {
				return ErrNotAuthorized
			}
		case models.StatusApproved:
			if !actor.ApproverFor(req.DepartmentCode) {
				return ErrNotAuthorized
			}
		default:
			return ErrInvalidTransition
		}
		req.Status = models.StatusCancelled
		return tx.Save(&req).Error
	})
	if err != nil {
		return nil, err
	}
	s.events.EnqueueExport(req.RequestDate)
	return &req, nil
}

// SoftDelete hides a request and triggers regeneration or cleanup of its
// date. Deleting an already-deleted request is a no-op.
func (s *Service) SoftDelete(actor *models.ExternalUser, id uint) error {
	var req models.OvertimeRequest
	if err := s.db.First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if req.CreatedByID != actor.ID && !actor.ApproverFor(req.DepartmentCode) {
		return ErrNotAuthorized
	}
	if req.IsDeleted {
		return nil
	}

	now := time.Now()
	err := s.db.Model(&req).Updates(map[string]interface{}{
		"is_deleted": true,
		"deleted_at": now,
	}).Error
	if err != nil {
		return err
	}
	s.events.EnqueueRegenerate(req.RequestDate)
	return nil
}

// BulkSoftDelete hides many requests with a single UPDATE and emits one
// lifecycle event per affected date, not per row.
func (s *Service) BulkSoftDelete(actor *models.ExternalUser, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if !actor.IsSuperadmin() && !actor.IsDeveloper() {
		return ErrNotAuthorized
	}

	var dates []time.Time
	err := s.db.Model(&models.OvertimeRequest{}).
		Scopes(models.Alive).
		Where("id IN ?", ids).
		Distinct().Pluck("request_date", &dates).Error
	if err != nil {
		return err
	}

	now := time.Now()
	err = s.db.Model(&models.OvertimeRequest{}).
		Where("id IN ? AND is_deleted = ?", ids, false).
		Updates(map[string]interface{}{"is_deleted": true, "deleted_at": now}).Error
	if err != nil {
		return err
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	for _, d := range dates {
		s.events.EnqueueRegenerate(d)
	}
	return nil
}

// Get returns an alive request with its associations.
func (s *Service) Get(id uint) (*models.OvertimeRequest, error) {
	var req models.OvertimeRequest
	err := s.db.Scopes(models.Alive).
		Preload("Employee").Preload("Project").Preload("Breaks").
		First(&req, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// transition loads the request under lock, verifies the expected status, runs
// the guard, stamps the new status, and saves. Guards mutate req in place.
func (s *Service) transition(actor *models.ExternalUser, id uint,
	from, to models.RequestStatus,
	guard func(tx *gorm.DB, req *models.OvertimeRequest) error) (*models.OvertimeRequest, error) {

	var req models.OvertimeRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.loadForUpdate(tx, &req, id); err != nil {
			return err
		}
		if req.Status != from {
			return ErrInvalidTransition
		}
		if err := guard(tx, &req); err != nil {
			return err
		}
		req.Status = to
		// Keep the denormalized code honest even if the employee moved.
		var dept models.Department
		if err := tx.First(&dept, req.DepartmentID).Error; err == nil {
			req.DepartmentCode = dept.Code
		}
		return tx.Save(&req).Error
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Service) loadForUpdate(tx *gorm.DB, req *models.OvertimeRequest, id uint) error {
	q := tx.Scopes(models.Alive).Preload("Breaks")
	// sqlite (tests) has no FOR UPDATE; its transactions serialize anyway.
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.First(req, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Service) checkPolicy(req *models.OvertimeRequest, warned **policy.Verdict) error {
	verdict, err := s.policy.Evaluate(policy.Candidate{
		EmployeeID:       req.EmployeeID,
		Date:             req.RequestDate,
		Hours:            req.Hours,
		ExcludeRequestID: req.ID,
	})
	if err != nil {
		return err
	}
	if verdict.Blocked() {
		return &policy.BlockError{Verdict: verdict}
	}
	if verdict.Level == policy.LevelWarn {
		*warned = &verdict
	}
	return nil
}

// checkOverlap enforces pairwise-disjoint planned intervals (half-open) among
// the employee's live requests on the same date.
func (s *Service) checkOverlap(tx *gorm.DB, req *models.OvertimeRequest) error {
	var others []models.OvertimeRequest
	err := tx.Scopes(models.Alive).
		Where("employee_id = ? AND request_date = ?", req.EmployeeID, req.RequestDate).
		Where("status IN ?", []models.RequestStatus{models.StatusPending, models.StatusApproved, models.StatusCompleted}).
		Where("id <> ?", req.ID).
		Find(&others).Error
	if err != nil {
		return err
	}
	for _, o := range others {
		if req.PlannedStart.Before(o.PlannedEnd) && o.PlannedStart.Before(req.PlannedEnd) {
			return ErrOverlap
		}
	}
	return nil
}

// computeHours derives the request's hours: actual window minus breaks once
// completed, planned window minus breaks otherwise. Two decimal places.
func computeHours(req *models.OvertimeRequest) decimal.Decimal {
	start, end := req.PlannedStart, req.PlannedEnd
	if req.ActualStart != nil && req.ActualEnd != nil {
		start, end = *req.ActualStart, *req.ActualEnd
	}
	total := end.Sub(start)
	for _, b := range req.Breaks {
		total -= b.Duration()
	}
	if total < 0 {
		total = 0
	}
	return decimal.NewFromFloat(total.Hours()).Round(2)
}

// checkBreaks validates that breaks sit inside [start, end) and are pairwise
// disjoint (half-open).
func checkBreaks(breaks []BreakInput, start, end time.Time) error {
	for i, b := range breaks {
		if !b.End.After(b.Start) {
			return invalid("breaks", "break end must be after break start")
		}
		if b.Start.Before(start) || b.End.After(end) {
			return invalid("breaks", "break must lie within the overtime window")
		}
		for j := 0; j < i; j++ {
			o := breaks[j]
			if b.Start.Before(o.End) && o.Start.Before(b.End) {
				return invalid("breaks", "breaks must not overlap")
			}
		}
	}
	return nil
}

func logWarn(v *policy.Verdict, req *models.OvertimeRequest) {
	if v == nil {
		return
	}
	log.Printf("[workflow] request %d: %s total %s exceeds recommended %s",
		req.ID, v.Category, v.Total.StringFixed(2), v.Threshold.StringFixed(2))
}

func dayStart(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}
