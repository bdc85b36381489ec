package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"otportal/middleware"
	"otportal/models"
	"otportal/session"
)

type UserHandler struct {
	db       *gorm.DB
	validate *validator.Validate
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db, validate: validator.New()}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	var users []models.ExternalUser
	if err := h.db.Order("username asc").Find(&users).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	target, err := h.load(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, target)
}

type updateUserDTO struct {
	FullName              *string `json:"full_name" validate:"omitempty,max=200"`
	Role                  *string `json:"role" validate:"omitempty,oneof=developer superadmin user"`
	IsActive              *bool   `json:"is_active"`
	Language              *string `json:"language" validate:"omitempty,max=10"`
	EventRemindersEnabled *bool   `json:"event_reminders_enabled"`
}

// Update patches a user record. Developer protection applies before any field
// is considered, and only a developer may grant the developer role.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetUserFromContext(r.Context())
	target, err := h.load(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if err := session.GuardModify(actor, target); err != nil {
		WriteError(w, r, err)
		return
	}

	var dto updateUserDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErrorPayload(w, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(&dto); err != nil {
		WriteError(w, r, err)
		return
	}

	if dto.FullName != nil {
		target.FullName = *dto.FullName
	}
	if dto.Role != nil {
		role := models.Role(*dto.Role)
		if role == models.RoleDeveloper && !actor.IsDeveloper() {
			WriteError(w, r, session.ErrDeveloperProtected)
			return
		}
		target.Role = role
	}
	if dto.IsActive != nil {
		target.IsActive = *dto.IsActive
	}
	if dto.Language != nil {
		target.Language = *dto.Language
	}
	if dto.EventRemindersEnabled != nil {
		target.EventRemindersEnabled = *dto.EventRemindersEnabled
	}

	if err := h.db.Save(target).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, target)
}

func (h *UserHandler) load(r *http.Request) (*models.ExternalUser, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	var user models.ExternalUser
	if err := h.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound
		}
		return nil, err
	}
	return &user, nil
}
