package models

import (
	"time"
)

// Department is referenced by employees and overtime requests. Departments are
// disabled rather than removed once anything points at them.
type Department struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Code      string `gorm:"uniqueIndex;not null;size:20" json:"code"`
	Name      string `gorm:"not null;size:100" json:"name"`
	IsEnabled bool   `gorm:"default:true" json:"is_enabled"`

	Employees []Employee `gorm:"foreignKey:DepartmentID;constraint:OnDelete:RESTRICT" json:"employees,omitempty"`
}

type Employee struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	EmpID     string `gorm:"uniqueIndex;not null;size:20" json:"emp_id"`
	Name      string `gorm:"not null;size:200" json:"name"`
	IsEnabled bool   `gorm:"default:true" json:"is_enabled"`

	DepartmentID *uint       `gorm:"index" json:"department_id"`
	Department   *Department `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
}

type Project struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Code      string `gorm:"uniqueIndex;not null;size:20" json:"code"`
	Name      string `gorm:"not null;size:100" json:"name"`
	IsEnabled bool   `gorm:"default:true" json:"is_enabled"`
}
