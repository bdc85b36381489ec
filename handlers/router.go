package handlers

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"otportal/middleware"
	"otportal/models"
	"otportal/session"
)

// Deps collects everything the router mounts.
type Deps struct {
	Sessions *session.Service
	Auth     *AuthHandler
	Overtime *OvertimeHandler
	Users    *UserHandler
	Calendar *CalendarHandler
	Admin    *AdminHandler
}

// NewRouter assembles the REST surface. All JSON, versioned through the
// Accept header, admin subtree gated to superadmin/developer.
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	r.Use(middleware.Version)

	r.Post("/api/auth/login", d.Auth.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(d.Sessions, WriteError))

		r.Post("/api/auth/logout", d.Auth.Logout)

		r.Route("/api/overtime", func(r chi.Router) {
			r.Get("/", d.Overtime.List)
			r.Post("/", d.Overtime.Create)
			r.Get("/{id}", d.Overtime.Get)
			r.Post("/{id}/submit", d.Overtime.Submit)
			r.Post("/{id}/approve", d.Overtime.Approve)
			r.Post("/{id}/reject", d.Overtime.Reject)
			r.Post("/{id}/complete", d.Overtime.Complete)
			r.Post("/{id}/cancel", d.Overtime.Cancel)
			r.Delete("/{id}", d.Overtime.Delete)
			r.Post("/bulk-delete", d.Overtime.BulkDelete)
		})

		r.Get("/api/limits", d.Overtime.LimitConfig)

		r.Route("/api/events", func(r chi.Router) {
			r.Get("/", d.Calendar.List)
			r.Post("/", d.Calendar.Create)
			r.Delete("/{id}", d.Calendar.Delete)
		})
		r.Get("/api/reminders", d.Calendar.MyReminders)

		r.Get("/api/users", d.Users.List)
		r.Get("/api/users/{id}", d.Users.Get)
		r.Patch("/api/users/{id}", d.Users.Update)

		r.Post("/api/reports", d.Admin.CreateUserReport)
		r.Get("/api/release-notes", d.Admin.ListReleaseNotes)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(WriteError, models.RoleSuperadmin, models.RoleDeveloper))

			r.Post("/api/limits", d.Overtime.UpdateLimitConfig)
			r.Patch("/api/reminder-settings", d.Calendar.UpdateReminderSettings)

			r.Get("/api/departments", d.Admin.ListDepartments)
			r.Post("/api/departments", d.Admin.CreateDepartment)
			r.Delete("/api/departments/{id}", d.Admin.DisableDepartment)
			r.Get("/api/employees", d.Admin.ListEmployees)
			r.Post("/api/employees", d.Admin.CreateEmployee)
			r.Get("/api/projects", d.Admin.ListProjects)
			r.Post("/api/projects", d.Admin.CreateProject)

			r.Get("/api/smb-configs", d.Admin.ListSMBConfigs)
			r.Post("/api/smb-configs", d.Admin.CreateSMBConfig)
			r.Get("/api/reports", d.Admin.ListUserReports)
		})
	})

	return r
}
