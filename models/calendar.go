package models

import (
	"time"
)

type EventPriority string

const (
	PriorityLow    EventPriority = "low"
	PriorityMedium EventPriority = "medium"
	PriorityHigh   EventPriority = "high"
	PriorityUrgent EventPriority = "urgent"
)

type LeaveType string

const (
	LeavePersonal LeaveType = "personal"
	LeaveLegal    LeaveType = "legal"
	LeaveOfficial LeaveType = "official"
)

type CalendarEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title string `gorm:"not null;size:200" json:"title"`
	Body  string `gorm:"size:2000" json:"body"`

	Start time.Time `gorm:"not null;index" json:"start"`
	End   time.Time `gorm:"not null" json:"end"`

	// RFC 5545 RRULE fragment, empty for one-off events.
	Recurrence string        `gorm:"size:200" json:"recurrence"`
	Priority   EventPriority `gorm:"not null;size:10;default:medium" json:"priority"`
	Labels     StringList    `gorm:"serializer:json" json:"labels"`
	LeaveType  *LeaveType    `gorm:"size:20" json:"leave_type"`

	CreatedByID uint          `gorm:"not null;index" json:"created_by_id"`
	CreatedBy   *ExternalUser `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
}

// ReminderSettings is a singleton controlling event reminder fan-out.
type ReminderSettings struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UpdatedAt time.Time `json:"updated_at"`

	GloballyDisabled bool       `gorm:"default:false" json:"globally_disabled"`
	DisabledRoles    StringList `gorm:"serializer:json" json:"disabled_roles"`
	DisabledUserIDs  []uint     `gorm:"serializer:json" json:"disabled_user_ids"`
}

func (s *ReminderSettings) RoleDisabled(role Role) bool {
	for _, r := range s.DisabledRoles {
		if Role(r) == role {
			return true
		}
	}
	return false
}

func (s *ReminderSettings) UserDisabled(userID uint) bool {
	for _, id := range s.DisabledUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
