package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"otportal/middleware"
	"otportal/models"
	"otportal/reminder"
	"otportal/workflow"
)

type CalendarHandler struct {
	db        *gorm.DB
	reminders *reminder.Service
	validate  *validator.Validate
}

func NewCalendarHandler(db *gorm.DB, reminders *reminder.Service) *CalendarHandler {
	return &CalendarHandler{db: db, reminders: reminders, validate: validator.New()}
}

type eventDTO struct {
	Title      string   `json:"title" validate:"required,max=200"`
	Body       string   `json:"body" validate:"max=2000"`
	Start      string   `json:"start" validate:"required"`
	End        string   `json:"end" validate:"required"`
	Recurrence string   `json:"recurrence" validate:"max=200"`
	Priority   string   `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Labels     []string `json:"labels"`
	LeaveType  *string  `json:"leave_type" validate:"omitempty,oneof=personal legal official"`
}

func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	var dto eventDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErrorPayload(w, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(&dto); err != nil {
		WriteError(w, r, err)
		return
	}

	start, err := time.Parse(time.RFC3339, dto.Start)
	if err != nil {
		WriteError(w, r, &workflow.ValidationError{Field: "start", Message: "expected RFC 3339 timestamp"})
		return
	}
	end, err := time.Parse(time.RFC3339, dto.End)
	if err != nil || !end.After(start) {
		WriteError(w, r, &workflow.ValidationError{Field: "end", Message: "must be a timestamp after start"})
		return
	}

	event := models.CalendarEvent{
		Title:       dto.Title,
		Body:        dto.Body,
		Start:       start,
		End:         end,
		Recurrence:  dto.Recurrence,
		Priority:    models.PriorityMedium,
		Labels:      dto.Labels,
		CreatedByID: user.ID,
	}
	if dto.Priority != "" {
		event.Priority = models.EventPriority(dto.Priority)
	}
	if dto.LeaveType != nil {
		lt := models.LeaveType(*dto.LeaveType)
		event.LeaveType = &lt
	}

	if err := h.db.Create(&event).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// List returns events overlapping [from, to); defaults to the next 30 days.
func (h *CalendarHandler) List(w http.ResponseWriter, r *http.Request) {
	from := time.Now()
	to := from.AddDate(0, 0, 30)

	if s := r.URL.Query().Get("from"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			WriteError(w, r, &workflow.ValidationError{Field: "from", Message: "expected YYYY-MM-DD"})
			return
		}
		from = parsed
	}
	if s := r.URL.Query().Get("to"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			WriteError(w, r, &workflow.ValidationError{Field: "to", Message: "expected YYYY-MM-DD"})
			return
		}
		to = parsed
	}

	var events []models.CalendarEvent
	err := h.db.Where("start < ? AND \"end\" >= ?", to, from).
		Order("start asc").Find(&events).Error
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *CalendarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var event models.CalendarEvent
	if err := h.db.First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteError(w, r, errNotFound)
			return
		}
		WriteError(w, r, err)
		return
	}
	if event.CreatedByID != user.ID && !user.IsSuperadmin() && !user.IsDeveloper() {
		WriteError(w, r, workflow.ErrNotAuthorized)
		return
	}

	if err := h.db.Delete(&event).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// MyReminders returns the pending reminders visible to the caller.
func (h *CalendarHandler) MyReminders(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	all, err := h.reminders.Upcoming(time.Now())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	var mine []models.CalendarEvent
	for _, rem := range all {
		if rem.User.ID == user.ID {
			mine = append(mine, rem.Event)
		}
	}
	writeJSON(w, http.StatusOK, mine)
}

type reminderSettingsDTO struct {
	GloballyDisabled *bool    `json:"globally_disabled"`
	DisabledRoles    []string `json:"disabled_roles" validate:"omitempty,dive,oneof=developer superadmin user"`
	DisabledUserIDs  []uint   `json:"disabled_user_ids"`
}

func (h *CalendarHandler) UpdateReminderSettings(w http.ResponseWriter, r *http.Request) {
	var dto reminderSettingsDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErrorPayload(w, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(&dto); err != nil {
		WriteError(w, r, err)
		return
	}

	var settings models.ReminderSettings
	if err := h.db.First(&settings).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	if dto.GloballyDisabled != nil {
		settings.GloballyDisabled = *dto.GloballyDisabled
	}
	if dto.DisabledRoles != nil {
		settings.DisabledRoles = dto.DisabledRoles
	}
	if dto.DisabledUserIDs != nil {
		settings.DisabledUserIDs = dto.DisabledUserIDs
	}
	if err := h.db.Save(&settings).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
