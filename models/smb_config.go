package models

import (
	"time"

	"gorm.io/gorm"
)

// SMBConfiguration points the exporter at the payroll filer. PasswordSealed is
// secretbox-encrypted with a key held outside the database; the filer package
// owns seal/open. Multiple rows may exist but at most one is active.
type SMBConfiguration struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Hostname       string `gorm:"not null;size:255" json:"hostname"`
	Port           int    `gorm:"default:445" json:"port"`
	Share          string `gorm:"not null;size:100" json:"share"`
	Domain         string `gorm:"size:100" json:"domain"`
	Username       string `gorm:"not null;size:100" json:"username"`
	PasswordSealed []byte `gorm:"not null" json:"-"`
	PathPrefix     string `gorm:"size:255" json:"path_prefix"`
	IsActive       bool   `gorm:"default:false;index" json:"is_active"`
}

// AfterSave keeps at most one row active.
func (c *SMBConfiguration) AfterSave(tx *gorm.DB) error {
	if !c.IsActive {
		return nil
	}
	return tx.Model(&SMBConfiguration{}).
		Where("id <> ? AND is_active = ?", c.ID, true).
		Update("is_active", false).Error
}

// ActiveSMBConfig loads the single active row.
func ActiveSMBConfig(db *gorm.DB) (*SMBConfiguration, error) {
	var cfg SMBConfiguration
	err := db.Where("is_active = ?", true).First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNoActiveSMBConfig
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
