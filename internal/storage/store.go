package storage

import (
	"github.com/obralink/obrabot-backend/internal/models"
)

// Store defines the interface for the relational repositories this core
// depends on: the contact directory and the broadcast schedule registry.
type Store interface {
	// Contact directory operations
	CreateContactEntry(entry *models.ContactEntry) (*models.ContactEntry, error)
	ListContactEntries() ([]*models.ContactEntry, error)
	GetContactByPhone(phone string) (*models.ContactEntry, error)
	UpdateContactEntry(entry *models.ContactEntry) error
	DeleteContactEntry(phone string) error

	// Broadcast schedule operations
	CreateSchedule(schedule *models.BroadcastSchedule) (*models.BroadcastSchedule, error)
	GetSchedule(scheduleID string) (*models.BroadcastSchedule, error)
	GetAllSchedules() ([]*models.BroadcastSchedule, error)
	GetEnabledSchedules() ([]*models.BroadcastSchedule, error)
	UpdateSchedule(schedule *models.BroadcastSchedule) error
	SetScheduleEnabled(scheduleID string, enabled bool) error
	DeleteSchedule(scheduleID string) error
}
