package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/obralink/obrabot-backend/internal/models"
)

// MemoryStore holds all data in memory. Used for tests and for running the
// bot without a database (USE_MEMORY_STORE=true).
type MemoryStore struct {
	contacts  map[string]*models.ContactEntry      // keyed by normalized phone
	schedules map[string]*models.BroadcastSchedule // keyed by ScheduleID

	contactMu  sync.RWMutex
	scheduleMu sync.RWMutex
}

// NewMemoryStore creates a new in-memory storage.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contacts:  make(map[string]*models.ContactEntry),
		schedules: make(map[string]*models.BroadcastSchedule),
	}
}

// Contact directory operations

func (m *MemoryStore) CreateContactEntry(entry *models.ContactEntry) (*models.ContactEntry, error) {
	m.contactMu.Lock()
	defer m.contactMu.Unlock()

	entry.Phone = models.NormalizePhone(entry.Phone)
	if entry.Phone == "" {
		return nil, fmt.Errorf("contact phone is required")
	}
	if _, exists := m.contacts[entry.Phone]; exists {
		return nil, fmt.Errorf("contact phone already registered")
	}

	entry.CreatedAt = time.Now()
	entry.UpdatedAt = time.Now()
	m.contacts[entry.Phone] = entry
	return entry, nil
}

func (m *MemoryStore) ListContactEntries() ([]*models.ContactEntry, error) {
	m.contactMu.RLock()
	defer m.contactMu.RUnlock()

	entries := make([]*models.ContactEntry, 0, len(m.contacts))
	for _, entry := range m.contacts {
		entries = append(entries, entry)
	}
	return entries, nil
}

func (m *MemoryStore) GetContactByPhone(phone string) (*models.ContactEntry, error) {
	m.contactMu.RLock()
	defer m.contactMu.RUnlock()

	entry, exists := m.contacts[models.NormalizePhone(phone)]
	if !exists {
		return nil, fmt.Errorf("contact not found")
	}
	return entry, nil
}

func (m *MemoryStore) UpdateContactEntry(entry *models.ContactEntry) error {
	m.contactMu.Lock()
	defer m.contactMu.Unlock()

	phone := models.NormalizePhone(entry.Phone)
	if _, exists := m.contacts[phone]; !exists {
		return fmt.Errorf("contact not found")
	}
	entry.UpdatedAt = time.Now()
	m.contacts[phone] = entry
	return nil
}

func (m *MemoryStore) DeleteContactEntry(phone string) error {
	m.contactMu.Lock()
	defer m.contactMu.Unlock()

	phone = models.NormalizePhone(phone)
	if _, exists := m.contacts[phone]; !exists {
		return fmt.Errorf("contact not found")
	}
	delete(m.contacts, phone)
	return nil
}

// Broadcast schedule operations

func (m *MemoryStore) CreateSchedule(schedule *models.BroadcastSchedule) (*models.BroadcastSchedule, error) {
	m.scheduleMu.Lock()
	defer m.scheduleMu.Unlock()

	if schedule.ScheduleID == "" {
		// Mirror the gorm BeforeCreate hook, which does not run here.
		if err := schedule.BeforeCreate(nil); err != nil {
			return nil, err
		}
	}
	if _, exists := m.schedules[schedule.ScheduleID]; exists {
		return nil, fmt.Errorf("schedule already exists")
	}

	schedule.CreatedAt = time.Now()
	schedule.UpdatedAt = time.Now()
	m.schedules[schedule.ScheduleID] = schedule
	return schedule, nil
}

func (m *MemoryStore) GetSchedule(scheduleID string) (*models.BroadcastSchedule, error) {
	m.scheduleMu.RLock()
	defer m.scheduleMu.RUnlock()

	schedule, exists := m.schedules[scheduleID]
	if !exists {
		return nil, fmt.Errorf("schedule not found")
	}
	return schedule, nil
}

func (m *MemoryStore) GetAllSchedules() ([]*models.BroadcastSchedule, error) {
	m.scheduleMu.RLock()
	defer m.scheduleMu.RUnlock()

	schedules := make([]*models.BroadcastSchedule, 0, len(m.schedules))
	for _, schedule := range m.schedules {
		schedules = append(schedules, schedule)
	}
	return schedules, nil
}

func (m *MemoryStore) GetEnabledSchedules() ([]*models.BroadcastSchedule, error) {
	m.scheduleMu.RLock()
	defer m.scheduleMu.RUnlock()

	var schedules []*models.BroadcastSchedule
	for _, schedule := range m.schedules {
		if schedule.Enabled {
			schedules = append(schedules, schedule)
		}
	}
	return schedules, nil
}

func (m *MemoryStore) UpdateSchedule(schedule *models.BroadcastSchedule) error {
	m.scheduleMu.Lock()
	defer m.scheduleMu.Unlock()

	if _, exists := m.schedules[schedule.ScheduleID]; !exists {
		return fmt.Errorf("schedule not found")
	}
	schedule.UpdatedAt = time.Now()
	m.schedules[schedule.ScheduleID] = schedule
	return nil
}

func (m *MemoryStore) SetScheduleEnabled(scheduleID string, enabled bool) error {
	m.scheduleMu.Lock()
	defer m.scheduleMu.Unlock()

	schedule, exists := m.schedules[scheduleID]
	if !exists {
		return fmt.Errorf("schedule not found")
	}
	schedule.Enabled = enabled
	schedule.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DeleteSchedule(scheduleID string) error {
	m.scheduleMu.Lock()
	defer m.scheduleMu.Unlock()

	if _, exists := m.schedules[scheduleID]; !exists {
		return fmt.Errorf("schedule not found")
	}
	delete(m.schedules, scheduleID)
	return nil
}
