// Package reminder decides which users see which calendar-event reminders.
package reminder

import (
	"log"
	"time"

	"gorm.io/gorm"

	"otportal/models"
)

// ShouldRemind applies the disable chain: global switch, role disable, user
// disable, then the user's own opt-in. All four must permit.
func ShouldRemind(settings *models.ReminderSettings, user *models.ExternalUser, event *models.CalendarEvent) bool {
	if settings.GloballyDisabled {
		return false
	}
	if settings.RoleDisabled(user.Role) {
		return false
	}
	if settings.UserDisabled(user.ID) {
		return false
	}
	return user.EventRemindersEnabled
}

// FanOut filters candidates down to the users that should see the event.
func FanOut(settings *models.ReminderSettings, event *models.CalendarEvent, candidates []models.ExternalUser) []models.ExternalUser {
	var out []models.ExternalUser
	for i := range candidates {
		if ShouldRemind(settings, &candidates[i], event) {
			out = append(out, candidates[i])
		}
	}
	return out
}

// Reminder pairs an upcoming event with one recipient.
type Reminder struct {
	Event models.CalendarEvent
	User  models.ExternalUser
}

type Service struct {
	db        *gorm.DB
	lookahead time.Duration
}

func NewService(db *gorm.DB, lookahead time.Duration) *Service {
	return &Service{db: db, lookahead: lookahead}
}

// Upcoming computes the fan-out for every event starting within the
// lookahead window. Runs on the cron tick.
func (s *Service) Upcoming(now time.Time) ([]Reminder, error) {
	var settings models.ReminderSettings
	if err := s.db.First(&settings).Error; err != nil {
		return nil, err
	}
	if settings.GloballyDisabled {
		return nil, nil
	}

	var events []models.CalendarEvent
	err := s.db.Where("start >= ? AND start < ?", now, now.Add(s.lookahead)).
		Order("start asc").Find(&events).Error
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	var users []models.ExternalUser
	if err := s.db.Where("is_active = ?", true).Find(&users).Error; err != nil {
		return nil, err
	}

	var reminders []Reminder
	for _, ev := range events {
		for _, u := range FanOut(&settings, &ev, users) {
			reminders = append(reminders, Reminder{Event: ev, User: u})
		}
	}
	log.Printf("[reminder] %d events, %d reminders in next %s", len(events), len(reminders), s.lookahead)
	return reminders, nil
}
