package models

import (
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleDeveloper  Role = "developer"
	RoleSuperadmin Role = "superadmin"
	RoleUser       Role = "user"
)

// ExternalUser mirrors an identity owned by the external IdP. The service never
// creates identities of its own; rows appear on first login and are refreshed
// from the IdP afterwards.
type ExternalUser struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ExternalID int64  `gorm:"uniqueIndex;not null" json:"external_id"`
	Username   string `gorm:"uniqueIndex;not null;size:150" json:"username"`
	FullName   string `gorm:"size:200" json:"full_name"`
	Email      string `gorm:"size:254" json:"email"`
	Role       Role   `gorm:"not null;size:20;default:user" json:"role"`
	IsActive   bool   `gorm:"default:true" json:"is_active"`

	// Snapshots from the IdP, refreshed when CacheUpdatedAt is older than the
	// configured TTL.
	PermissionsCache StringList `gorm:"serializer:json" json:"permissions_cache"`
	GroupsCache      StringList `gorm:"serializer:json" json:"groups_cache"`
	ModelsPermCache  StringList `gorm:"serializer:json" json:"models_perm_cache"`
	CacheUpdatedAt   *time.Time `json:"cache_updated_at"`

	// Preferences.
	Language              string `gorm:"size:10;default:en" json:"language"`
	EventRemindersEnabled bool   `gorm:"default:true" json:"event_reminders_enabled"`

	Sessions []UserSession `gorm:"foreignKey:UserID" json:"sessions,omitempty"`
}

// StringList is stored as a JSON array column.
type StringList []string

func (u *ExternalUser) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

func (u *ExternalUser) IsDeveloper() bool {
	return u.Role == RoleDeveloper
}

func (u *ExternalUser) IsSuperadmin() bool {
	return u.Role == RoleSuperadmin
}

func (u *ExternalUser) HasPermission(perm string) bool {
	for _, p := range u.PermissionsCache {
		if p == perm {
			return true
		}
	}
	return false
}

func (u *ExternalUser) InGroup(group string) bool {
	for _, g := range u.GroupsCache {
		if g == group {
			return true
		}
	}
	return false
}

// CanModifyUser implements developer protection: a developer record may only be
// modified by a developer (in practice, by themselves).
func (u *ExternalUser) CanModifyUser(target *ExternalUser) bool {
	if target.IsDeveloper() {
		return u.IsDeveloper()
	}
	return u.IsDeveloper() || u.IsSuperadmin() || u.ID == target.ID
}

// ApproverFor reports whether the user may approve or reject requests filed
// against the given department.
func (u *ExternalUser) ApproverFor(departmentCode string) bool {
	if u.IsDeveloper() || u.IsSuperadmin() {
		return true
	}
	return u.HasPermission("approve:" + departmentCode)
}

type UserSession struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint          `gorm:"not null;index" json:"user_id"`
	User   *ExternalUser `gorm:"foreignKey:UserID" json:"user,omitempty"`

	AccessToken    string    `gorm:"uniqueIndex;not null;size:64" json:"-"`
	TokenExpiresAt time.Time `gorm:"not null;index" json:"token_expires_at"`
	LastActivity   time.Time `json:"last_activity"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`

	IPAddress string `gorm:"size:45" json:"ip_address"`
	UserAgent string `gorm:"size:500" json:"user_agent"`
}

func (s *UserSession) Expired(now time.Time) bool {
	return !s.TokenExpiresAt.After(now)
}

// ExpiredSessions scopes a query to sessions past their expiry.
func ExpiredSessions(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("token_expires_at < ?", now)
	}
}
