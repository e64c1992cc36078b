package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Frequency kinds for broadcast schedules.
const (
	FrequencyDaily      = "daily"
	FrequencyWeekly     = "weekly"
	FrequencyMonthly    = "monthly"
	FrequencyCustomDays = "custom-days"
	FrequencyTest       = "test"
)

// Priority tags. The glyph is prepended to every outgoing broadcast.
const (
	PriorityNormal  = "normal"
	PriorityUrgent  = "urgent"
	PriorityInfo    = "info"
	PriorityWarning = "warning"
)

// PriorityGlyph maps a priority tag to its message prefix.
func PriorityGlyph(priority string) string {
	switch priority {
	case PriorityUrgent:
		return "🚨 *URGENTE*\n\n"
	case PriorityWarning:
		return "⚠️ *AVISO*\n\n"
	case PriorityInfo:
		return "ℹ️ "
	default:
		return ""
	}
}

// Recipient is one name+phone pair of a schedule's frozen recipient list.
type Recipient struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// BroadcastSchedule is a recurring-message definition. The recipient list is
// captured at creation time and never re-resolved against the directory.
type BroadcastSchedule struct {
	gorm.Model

	ScheduleID string     `json:"schedule_id" gorm:"uniqueIndex"`
	Message    string     `json:"message" gorm:"type:text"`
	Recipients string     `json:"recipients" gorm:"type:text"` // JSON array of Recipient
	Frequency  string     `json:"frequency"`                   // daily, weekly, monthly, custom-days, test
	TimeOfDay  string     `json:"time_of_day"`                 // "HH:MM" in the configured civil timezone
	Weekdays   string     `json:"weekdays"`                    // JSON array of int, 0=Sunday..6=Saturday
	StartDate  *time.Time `json:"start_date"`
	Enabled    bool       `json:"enabled" gorm:"default:true"`
	Priority   string     `json:"priority" gorm:"default:'normal'"`

	// Mutated only by the dispatch job.
	LastSentDate string `json:"last_sent_date"` // "2006-01-02", idempotency guard
	TotalSent    int    `json:"total_sent" gorm:"default:0"`
}

// BeforeCreate assigns the public id and defaults.
func (s *BroadcastSchedule) BeforeCreate(tx *gorm.DB) error {
	if s.ScheduleID == "" {
		s.ScheduleID = fmt.Sprintf("SCH-%s", uuid.NewString()[:8])
	}
	if s.Priority == "" {
		s.Priority = PriorityNormal
	}
	return nil
}

// RecipientList decodes the frozen recipient list.
func (s *BroadcastSchedule) RecipientList() []Recipient {
	if s.Recipients == "" {
		return nil
	}
	var recipients []Recipient
	if err := json.Unmarshal([]byte(s.Recipients), &recipients); err != nil {
		return nil
	}
	return recipients
}

// SetRecipientList freezes the recipient list.
func (s *BroadcastSchedule) SetRecipientList(recipients []Recipient) {
	data, _ := json.Marshal(recipients)
	s.Recipients = string(data)
}

// WeekdaySet decodes the explicit weekday set used by weekly and
// custom-days frequencies.
func (s *BroadcastSchedule) WeekdaySet() []int {
	if s.Weekdays == "" {
		return nil
	}
	var days []int
	if err := json.Unmarshal([]byte(s.Weekdays), &days); err != nil {
		return nil
	}
	return days
}

// SetWeekdaySet encodes the weekday set.
func (s *BroadcastSchedule) SetWeekdaySet(days []int) {
	data, _ := json.Marshal(days)
	s.Weekdays = string(data)
}

// ValidFrequency reports whether kind is one of the known frequency kinds.
func ValidFrequency(kind string) bool {
	switch kind {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyCustomDays, FrequencyTest:
		return true
	}
	return false
}
