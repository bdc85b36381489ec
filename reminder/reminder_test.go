package reminder_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"otportal/database"
	"otportal/models"
	"otportal/reminder"
)

func TestShouldRemind_DisableChain(t *testing.T) {
	event := &models.CalendarEvent{Title: "Payroll cutoff"}

	tests := []struct {
		name     string
		settings models.ReminderSettings
		user     models.ExternalUser
		want     bool
	}{
		{
			name: "all switches permit",
			user: models.ExternalUser{ID: 1, Role: models.RoleUser, EventRemindersEnabled: true},
			want: true,
		},
		{
			name:     "global kill switch wins over everything",
			settings: models.ReminderSettings{GloballyDisabled: true},
			user:     models.ExternalUser{ID: 1, Role: models.RoleUser, EventRemindersEnabled: true},
			want:     false,
		},
		{
			name:     "role disabled",
			settings: models.ReminderSettings{DisabledRoles: models.StringList{"superadmin"}},
			user:     models.ExternalUser{ID: 1, Role: models.RoleSuperadmin, EventRemindersEnabled: true},
			want:     false,
		},
		{
			name:     "other role unaffected by role disable",
			settings: models.ReminderSettings{DisabledRoles: models.StringList{"superadmin"}},
			user:     models.ExternalUser{ID: 1, Role: models.RoleUser, EventRemindersEnabled: true},
			want:     true,
		},
		{
			name:     "user pinned off by admin",
			settings: models.ReminderSettings{DisabledUserIDs: []uint{7}},
			user:     models.ExternalUser{ID: 7, Role: models.RoleUser, EventRemindersEnabled: true},
			want:     false,
		},
		{
			name: "user opted out themselves",
			user: models.ExternalUser{ID: 1, Role: models.RoleUser, EventRemindersEnabled: false},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reminder.ShouldRemind(&tt.settings, &tt.user, event))
		})
	}
}

func TestFanOut_FiltersCandidates(t *testing.T) {
	settings := &models.ReminderSettings{DisabledUserIDs: []uint{2}}
	event := &models.CalendarEvent{Title: "Payroll cutoff"}
	candidates := []models.ExternalUser{
		{ID: 1, Username: "ada", Role: models.RoleUser, EventRemindersEnabled: true},
		{ID: 2, Username: "ben", Role: models.RoleUser, EventRemindersEnabled: true},
		{ID: 3, Username: "cleo", Role: models.RoleUser, EventRemindersEnabled: false},
	}

	got := reminder.FanOut(settings, event, candidates)
	require.Len(t, got, 1)
	assert.Equal(t, "ada", got[0].Username)
}

func TestUpcoming_WindowAndFanOut(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Seed(db))

	ada := models.ExternalUser{ExternalID: 1001, Username: "ada", Role: models.RoleUser,
		IsActive: true, EventRemindersEnabled: true}
	ben := models.ExternalUser{ExternalID: 1002, Username: "ben", Role: models.RoleUser,
		IsActive: true, EventRemindersEnabled: false}
	gone := models.ExternalUser{ExternalID: 1003, Username: "gone", Role: models.RoleUser,
		IsActive: false, EventRemindersEnabled: true}
	for _, u := range []*models.ExternalUser{&ada, &ben, &gone} {
		require.NoError(t, db.Create(u).Error)
	}

	now := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)
	soon := models.CalendarEvent{Title: "Payroll cutoff", Start: now.Add(2 * time.Hour),
		End: now.Add(3 * time.Hour), Priority: models.PriorityHigh, CreatedByID: ada.ID}
	farOff := models.CalendarEvent{Title: "Audit", Start: now.Add(90 * 24 * time.Hour),
		End: now.Add(91 * 24 * time.Hour), Priority: models.PriorityLow, CreatedByID: ada.ID}
	past := models.CalendarEvent{Title: "Kickoff", Start: now.Add(-time.Hour),
		End: now, Priority: models.PriorityLow, CreatedByID: ada.ID}
	for _, ev := range []*models.CalendarEvent{&soon, &farOff, &past} {
		require.NoError(t, db.Create(ev).Error)
	}

	svc := reminder.NewService(db, 24*time.Hour)
	got, err := svc.Upcoming(now)
	require.NoError(t, err)

	require.Len(t, got, 1, "one in-window event, one opted-in active user")
	assert.Equal(t, "Payroll cutoff", got[0].Event.Title)
	assert.Equal(t, "ada", got[0].User.Username)
}

func TestUpcoming_GlobalDisableShortCircuits(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, db.Create(&models.ReminderSettings{GloballyDisabled: true}).Error)

	ada := models.ExternalUser{ExternalID: 1001, Username: "ada", Role: models.RoleUser,
		IsActive: true, EventRemindersEnabled: true}
	require.NoError(t, db.Create(&ada).Error)

	now := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)
	ev := models.CalendarEvent{Title: "Payroll cutoff", Start: now.Add(time.Hour),
		End: now.Add(2 * time.Hour), CreatedByID: ada.ID}
	require.NoError(t, db.Create(&ev).Error)

	got, err := reminder.NewService(db, 24*time.Hour).Upcoming(now)
	require.NoError(t, err)
	assert.Empty(t, got)
}
