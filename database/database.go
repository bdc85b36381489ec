package database

import (
	"log"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"otportal/models"
)

var DB *gorm.DB

func Init(dsn string) error {
	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return err
	}

	if err := Migrate(DB); err != nil {
		return err
	}

	return Seed(DB)
}

// Migrate runs schema migration for every entity. Tests call this against an
// in-memory sqlite handle.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Department{},
		&models.Employee{},
		&models.Project{},
		&models.ExternalUser{},
		&models.UserSession{},
		&models.OvertimeRequest{},
		&models.OvertimeBreak{},
		&models.OvertimeLimitConfig{},
		&models.CalendarEvent{},
		&models.ReminderSettings{},
		&models.SMBConfiguration{},
		&models.UserReport{},
		&models.ReleaseNote{},
	)
}

// Seed creates the default limit configuration and reminder settings when the
// database is empty.
func Seed(db *gorm.DB) error {
	var count int64
	db.Model(&models.OvertimeLimitConfig{}).Count(&count)
	if count == 0 {
		cfg := models.OvertimeLimitConfig{
			MaxWeeklyHours:          decimal.NewFromInt(18),
			MaxMonthlyHours:         decimal.NewFromInt(54),
			RecommendedWeeklyHours:  decimal.NewFromInt(12),
			RecommendedMonthlyHours: decimal.NewFromInt(36),
			IsActive:                true,
		}
		if err := db.Create(&cfg).Error; err != nil {
			return err
		}
		log.Println("[database] seeded default overtime limit config")
	}

	db.Model(&models.ReminderSettings{}).Count(&count)
	if count == 0 {
		if err := db.Create(&models.ReminderSettings{}).Error; err != nil {
			return err
		}
	}

	return nil
}

func GetDB() *gorm.DB {
	return DB
}
