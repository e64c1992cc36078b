package storage

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/obralink/obrabot-backend/internal/models"
)

// DatabaseStore implements Store on top of PostgreSQL via GORM.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a database-backed store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Contact directory operations

func (d *DatabaseStore) CreateContactEntry(entry *models.ContactEntry) (*models.ContactEntry, error) {
	if err := d.db.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}
	return entry, nil
}

func (d *DatabaseStore) ListContactEntries() ([]*models.ContactEntry, error) {
	var entries []*models.ContactEntry
	if err := d.db.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return entries, nil
}

func (d *DatabaseStore) GetContactByPhone(phone string) (*models.ContactEntry, error) {
	var entry models.ContactEntry
	err := d.db.Where("phone = ?", models.NormalizePhone(phone)).First(&entry).Error
	if err != nil {
		return nil, fmt.Errorf("contact not found")
	}
	return &entry, nil
}

func (d *DatabaseStore) UpdateContactEntry(entry *models.ContactEntry) error {
	return d.db.Save(entry).Error
}

func (d *DatabaseStore) DeleteContactEntry(phone string) error {
	result := d.db.Where("phone = ?", models.NormalizePhone(phone)).Delete(&models.ContactEntry{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("contact not found")
	}
	return nil
}

// Broadcast schedule operations

func (d *DatabaseStore) CreateSchedule(schedule *models.BroadcastSchedule) (*models.BroadcastSchedule, error) {
	if err := d.db.Create(schedule).Error; err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}
	return schedule, nil
}

func (d *DatabaseStore) GetSchedule(scheduleID string) (*models.BroadcastSchedule, error) {
	var schedule models.BroadcastSchedule
	err := d.db.Where("schedule_id = ?", scheduleID).First(&schedule).Error
	if err != nil {
		return nil, fmt.Errorf("schedule not found")
	}
	return &schedule, nil
}

func (d *DatabaseStore) GetAllSchedules() ([]*models.BroadcastSchedule, error) {
	var schedules []*models.BroadcastSchedule
	if err := d.db.Order("created_at").Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return schedules, nil
}

func (d *DatabaseStore) GetEnabledSchedules() ([]*models.BroadcastSchedule, error) {
	var schedules []*models.BroadcastSchedule
	if err := d.db.Where("enabled = ?", true).Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("failed to list enabled schedules: %w", err)
	}
	return schedules, nil
}

func (d *DatabaseStore) UpdateSchedule(schedule *models.BroadcastSchedule) error {
	return d.db.Save(schedule).Error
}

func (d *DatabaseStore) SetScheduleEnabled(scheduleID string, enabled bool) error {
	result := d.db.Model(&models.BroadcastSchedule{}).
		Where("schedule_id = ?", scheduleID).
		Update("enabled", enabled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("schedule not found")
	}
	return nil
}

func (d *DatabaseStore) DeleteSchedule(scheduleID string) error {
	result := d.db.Where("schedule_id = ?", scheduleID).Delete(&models.BroadcastSchedule{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("schedule not found")
	}
	return nil
}
