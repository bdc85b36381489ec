package models

import (
	"time"
)

type ReportStatus string

const (
	ReportOpen     ReportStatus = "open"
	ReportTriaged  ReportStatus = "triaged"
	ReportResolved ReportStatus = "resolved"
)

// UserReport is a bug report or feedback entry filed from the UI.
type UserReport struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Reference string       `gorm:"uniqueIndex;not null;size:36" json:"reference"`
	Title     string       `gorm:"not null;size:200" json:"title"`
	Body      string       `gorm:"size:4000" json:"body"`
	Status    ReportStatus `gorm:"not null;size:20;default:open" json:"status"`

	ReportedByID uint          `gorm:"not null;index" json:"reported_by_id"`
	ReportedBy   *ExternalUser `gorm:"foreignKey:ReportedByID" json:"reported_by,omitempty"`
}

type ReleaseNote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Version     string    `gorm:"uniqueIndex;not null;size:20" json:"version"`
	Title       string    `gorm:"not null;size:200" json:"title"`
	Body        string    `gorm:"size:8000" json:"body"`
	PublishedAt time.Time `json:"published_at"`
}
