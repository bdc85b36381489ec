package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"otportal/middleware"
	"otportal/models"
	"otportal/policy"
	"otportal/workflow"
)

type OvertimeHandler struct {
	db       *gorm.DB
	svc      *workflow.Service
	validate *validator.Validate
}

func NewOvertimeHandler(db *gorm.DB, svc *workflow.Service) *OvertimeHandler {
	return &OvertimeHandler{db: db, svc: svc, validate: validator.New()}
}

type breakDTO struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

type createRequestDTO struct {
	RequestDate  string     `json:"request_date" validate:"required"`
	EmployeeID   uint       `json:"employee_id" validate:"required"`
	ProjectID    uint       `json:"project_id" validate:"required"`
	PlannedStart string     `json:"planned_start" validate:"required"`
	PlannedEnd   string     `json:"planned_end" validate:"required"`
	Breaks       []breakDTO `json:"breaks"`
	Reason       string     `json:"reason" validate:"max=500"`
}

// transitionResponse carries the request plus any recommended-threshold
// warning the policy engine raised.
type transitionResponse struct {
	Request *models.OvertimeRequest `json:"request"`
	Warning *warningDTO             `json:"warning,omitempty"`
}

type warningDTO struct {
	Category  string `json:"category"`
	Total     string `json:"total"`
	Threshold string `json:"threshold"`
}

func warningFrom(v *policy.Verdict) *warningDTO {
	if v == nil {
		return nil
	}
	return &warningDTO{
		Category:  string(v.Category),
		Total:     v.Total.StringFixed(2),
		Threshold: v.Threshold.StringFixed(2),
	}
}

func (h *OvertimeHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	var dto createRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErrorPayload(w, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(&dto); err != nil {
		WriteError(w, r, err)
		return
	}

	in, err := dto.toInput()
	if err != nil {
		WriteError(w, r, err)
		return
	}

	req, err := h.svc.Create(user, in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (dto createRequestDTO) toInput() (workflow.CreateInput, error) {
	var in workflow.CreateInput

	date, err := time.Parse("2006-01-02", dto.RequestDate)
	if err != nil {
		return in, &workflow.ValidationError{Field: "request_date", Message: "expected YYYY-MM-DD"}
	}
	start, err := time.Parse(time.RFC3339, dto.PlannedStart)
	if err != nil {
		return in, &workflow.ValidationError{Field: "planned_start", Message: "expected RFC 3339 timestamp"}
	}
	end, err := time.Parse(time.RFC3339, dto.PlannedEnd)
	if err != nil {
		return in, &workflow.ValidationError{Field: "planned_end", Message: "expected RFC 3339 timestamp"}
	}

	in = workflow.CreateInput{
		RequestDate:  date,
		EmployeeID:   dto.EmployeeID,
		ProjectID:    dto.ProjectID,
		PlannedStart: start,
		PlannedEnd:   end,
		Reason:       dto.Reason,
	}
	for _, b := range dto.Breaks {
		bs, err := time.Parse(time.RFC3339, b.Start)
		if err != nil {
			return in, &workflow.ValidationError{Field: "breaks", Message: "expected RFC 3339 timestamp"}
		}
		be, err := time.Parse(time.RFC3339, b.End)
		if err != nil {
			return in, &workflow.ValidationError{Field: "breaks", Message: "expected RFC 3339 timestamp"}
		}
		in.Breaks = append(in.Breaks, workflow.BreakInput{Start: bs, End: be})
	}
	return in, nil
}

func (h *OvertimeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	req, err := h.svc.Get(id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// List returns alive requests, filterable by date, department, and status.
// The v2 payload wraps rows with paging metadata; v1 returns a bare array.
func (h *OvertimeHandler) List(w http.ResponseWriter, r *http.Request) {
	q := h.db.Scopes(models.Alive).
		Preload("Employee").Preload("Project").Preload("Breaks")

	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			WriteError(w, r, &workflow.ValidationError{Field: "date", Message: "expected YYYY-MM-DD"})
			return
		}
		q = q.Where("request_date = ?", date)
	}
	if dept := r.URL.Query().Get("department"); dept != "" {
		q = q.Where("department_code = ?", dept)
	}
	if status := r.URL.Query().Get("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var requests []models.OvertimeRequest
	if err := q.Order("request_date desc, id asc").Limit(200).Find(&requests).Error; err != nil {
		WriteError(w, r, err)
		return
	}

	if middleware.GetVersionFromContext(r.Context()) == middleware.VersionV2 {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"items": requests,
			"count": len(requests),
		})
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *OvertimeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.transitionWithWarning(w, r, h.svc.Submit)
}

func (h *OvertimeHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transitionWithWarning(w, r, h.svc.Approve)
}

func (h *OvertimeHandler) transitionWithWarning(w http.ResponseWriter, r *http.Request,
	fn func(actor *models.ExternalUser, id uint) (*models.OvertimeRequest, *policy.Verdict, error)) {

	user := middleware.GetUserFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	req, warn, err := fn(user, id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transitionResponse{Request: req, Warning: warningFrom(warn)})
}

type rejectDTO struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *OvertimeHandler) Reject(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	var dto rejectDTO
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&dto)
	}
	req, err := h.svc.Reject(user, id, dto.Reason)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type completeDTO struct {
	ActualStart string `json:"actual_start" validate:"required"`
	ActualEnd   string `json:"actual_end" validate:"required"`
}

func (h *OvertimeHandler) Complete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var dto completeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErrorPayload(w, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(&dto); err != nil {
		WriteError(w, r, err)
		return
	}
	start, err := time.Parse(time.RFC3339, dto.ActualStart)
	if err != nil {
		WriteError(w, r, &workflow.ValidationError{Field: "actual_start", Message: "expected RFC 3339 timestamp"})
		return
	}
	end, err := time.Parse(time.RFC3339, dto.ActualEnd)
	if err != nil {
		WriteError(w, r, &workflow.ValidationError{Field: "actual_end", Message: "expected RFC 3339 timestamp"})
		return
	}

	req, err := h.svc.Complete(user, id, workflow.CompleteInput{ActualStart: start, ActualEnd: end})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *OvertimeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	req, err := h.svc.Cancel(user, id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *OvertimeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if err := h.svc.SoftDelete(user, id); err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type bulkDeleteDTO struct {
	IDs []uint `json:"ids" validate:"required,min=1"`
}

func (h *OvertimeHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	var dto bulkDeleteDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErrorPayload(w, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(&dto); err != nil {
		WriteError(w, r, err)
		return
	}
	if err := h.svc.BulkSoftDelete(user, dto.IDs); err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// LimitConfig returns the active limit configuration.
func (h *OvertimeHandler) LimitConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.OvertimeLimitConfig
	if err := h.db.Where("is_active = ?", true).First(&cfg).Error; err != nil {
		WriteError(w, r, models.ErrNoActiveLimitConfig)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type limitConfigDTO struct {
	MaxWeeklyHours          string `json:"max_weekly_hours" validate:"required"`
	MaxMonthlyHours         string `json:"max_monthly_hours" validate:"required"`
	RecommendedWeeklyHours  string `json:"recommended_weekly_hours" validate:"required"`
	RecommendedMonthlyHours string `json:"recommended_monthly_hours" validate:"required"`
}

// UpdateLimitConfig installs a new active configuration row.
func (h *OvertimeHandler) UpdateLimitConfig(w http.ResponseWriter, r *http.Request) {
	var dto limitConfigDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErrorPayload(w, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(&dto); err != nil {
		WriteError(w, r, err)
		return
	}

	cfg := models.OvertimeLimitConfig{IsActive: true}
	var err error
	if cfg.MaxWeeklyHours, err = parseHours(dto.MaxWeeklyHours, "max_weekly_hours"); err != nil {
		WriteError(w, r, err)
		return
	}
	if cfg.MaxMonthlyHours, err = parseHours(dto.MaxMonthlyHours, "max_monthly_hours"); err != nil {
		WriteError(w, r, err)
		return
	}
	if cfg.RecommendedWeeklyHours, err = parseHours(dto.RecommendedWeeklyHours, "recommended_weekly_hours"); err != nil {
		WriteError(w, r, err)
		return
	}
	if cfg.RecommendedMonthlyHours, err = parseHours(dto.RecommendedMonthlyHours, "recommended_monthly_hours"); err != nil {
		WriteError(w, r, err)
		return
	}

	if err := h.db.Create(&cfg).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func parseHours(s, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, &workflow.ValidationError{Field: field, Message: "expected a non-negative decimal"}
	}
	return d, nil
}

func pathID(r *http.Request) (uint, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, &workflow.ValidationError{Field: "id", Message: "expected a positive integer"}
	}
	return uint(id), nil
}
