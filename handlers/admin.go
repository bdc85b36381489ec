package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"otportal/filer"
	"otportal/middleware"
	"otportal/models"
)

// AdminHandler covers the operational surface: reference data, SMB
// configuration, user reports, and release notes.
type AdminHandler struct {
	db       *gorm.DB
	smbKey   [32]byte
	validate *validator.Validate
}

func NewAdminHandler(db *gorm.DB, smbKey [32]byte) *AdminHandler {
	return &AdminHandler{db: db, smbKey: smbKey, validate: validator.New()}
}

type departmentDTO struct {
	Code string `json:"code" validate:"required,max=20"`
	Name string `json:"name" validate:"required,max=100"`
}

func (h *AdminHandler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	var dto departmentDTO
	if !h.decode(w, r, &dto) {
		return
	}
	dept := models.Department{Code: dto.Code, Name: dto.Name, IsEnabled: true}
	if err := h.db.Create(&dept).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dept)
}

func (h *AdminHandler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	var departments []models.Department
	if err := h.db.Order("code asc").Find(&departments).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, departments)
}

// DisableDepartment flips is_enabled off; departments are never hard-deleted.
func (h *AdminHandler) DisableDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	res := h.db.Model(&models.Department{}).Where("id = ?", id).Update("is_enabled", false)
	if res.Error != nil {
		WriteError(w, r, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		WriteError(w, r, errNotFound)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type employeeDTO struct {
	EmpID        string `json:"emp_id" validate:"required,max=20"`
	Name         string `json:"name" validate:"required,max=200"`
	DepartmentID uint   `json:"department_id" validate:"required"`
}

func (h *AdminHandler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var dto employeeDTO
	if !h.decode(w, r, &dto) {
		return
	}
	emp := models.Employee{
		EmpID:        dto.EmpID,
		Name:         dto.Name,
		DepartmentID: &dto.DepartmentID,
		IsEnabled:    true,
	}
	if err := h.db.Create(&emp).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, emp)
}

func (h *AdminHandler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	var employees []models.Employee
	q := h.db.Preload("Department").Order("emp_id asc")
	if dept := r.URL.Query().Get("department"); dept != "" {
		q = q.Joins("JOIN departments ON departments.id = employees.department_id").
			Where("departments.code = ?", dept)
	}
	if err := q.Find(&employees).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, employees)
}

type projectDTO struct {
	Code string `json:"code" validate:"required,max=20"`
	Name string `json:"name" validate:"required,max=100"`
}

func (h *AdminHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var dto projectDTO
	if !h.decode(w, r, &dto) {
		return
	}
	project := models.Project{Code: dto.Code, Name: dto.Name, IsEnabled: true}
	if err := h.db.Create(&project).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (h *AdminHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	var projects []models.Project
	if err := h.db.Order("code asc").Find(&projects).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

type smbConfigDTO struct {
	Hostname   string `json:"hostname" validate:"required,max=255"`
	Port       int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Share      string `json:"share" validate:"required,max=100"`
	Domain     string `json:"domain" validate:"max=100"`
	Username   string `json:"username" validate:"required,max=100"`
	Password   string `json:"password" validate:"required"`
	PathPrefix string `json:"path_prefix" validate:"max=255"`
	IsActive   bool   `json:"is_active"`
}

// CreateSMBConfig stores a destination with the password sealed under the
// out-of-database key. The password never leaves this handler in plain form.
func (h *AdminHandler) CreateSMBConfig(w http.ResponseWriter, r *http.Request) {
	var dto smbConfigDTO
	if !h.decode(w, r, &dto) {
		return
	}

	sealed, err := filer.SealPassword(dto.Password, h.smbKey)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	cfg := models.SMBConfiguration{
		Hostname:       dto.Hostname,
		Port:           dto.Port,
		Share:          dto.Share,
		Domain:         dto.Domain,
		Username:       dto.Username,
		PasswordSealed: sealed,
		PathPrefix:     dto.PathPrefix,
		IsActive:       dto.IsActive,
	}
	if cfg.Port == 0 {
		cfg.Port = 445
	}
	if err := h.db.Create(&cfg).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (h *AdminHandler) ListSMBConfigs(w http.ResponseWriter, r *http.Request) {
	var configs []models.SMBConfiguration
	if err := h.db.Order("id asc").Find(&configs).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

type userReportDTO struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body" validate:"max=4000"`
}

func (h *AdminHandler) CreateUserReport(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	var dto userReportDTO
	if !h.decode(w, r, &dto) {
		return
	}
	report := models.UserReport{
		Reference:    uuid.NewString(),
		Title:        dto.Title,
		Body:         dto.Body,
		Status:       models.ReportOpen,
		ReportedByID: user.ID,
	}
	if err := h.db.Create(&report).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (h *AdminHandler) ListUserReports(w http.ResponseWriter, r *http.Request) {
	var reports []models.UserReport
	if err := h.db.Preload("ReportedBy").Order("created_at desc").Find(&reports).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *AdminHandler) ListReleaseNotes(w http.ResponseWriter, r *http.Request) {
	var notes []models.ReleaseNote
	if err := h.db.Order("published_at desc").Find(&notes).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request, dto interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dto); err != nil {
		writeErrorPayload(w, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return false
	}
	if err := h.validate.Struct(dto); err != nil {
		WriteError(w, r, err)
		return false
	}
	return true
}
