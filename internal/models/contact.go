package models

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ContactEntry is one row of the contact directory. The bot only ever reads
// these; they are maintained by the back office through the admin API or a
// directory import.
type ContactEntry struct {
	gorm.Model

	Name             string     `json:"name"`
	Phone            string     `json:"phone" gorm:"uniqueIndex"`
	CanCreateTickets bool       `json:"can_create_tickets" gorm:"default:false"`
	CanRegisterClock bool       `json:"can_register_clock" gorm:"default:false"`
	InternalUserID   string     `json:"internal_user_id"`
	AuthorizedSites  string     `json:"authorized_sites" gorm:"type:text"` // JSON array of work-site ids
	StartDate        *time.Time `json:"start_date"`
	EndDate          *time.Time `json:"end_date"`
}

// BeforeCreate normalizes the phone so directory imports with mixed
// formatting all land in one canonical shape.
func (c *ContactEntry) BeforeCreate(tx *gorm.DB) error {
	c.Phone = NormalizePhone(c.Phone)
	return nil
}

// SiteIDs decodes the authorized work-site list. An empty or malformed
// column reads as no sites.
func (c *ContactEntry) SiteIDs() []string {
	if c.AuthorizedSites == "" {
		return nil
	}
	var sites []string
	if err := json.Unmarshal([]byte(c.AuthorizedSites), &sites); err != nil {
		return nil
	}
	return sites
}

// SetSiteIDs encodes the authorized work-site list.
func (c *ContactEntry) SetSiteIDs(sites []string) {
	data, _ := json.Marshal(sites)
	c.AuthorizedSites = string(data)
}

// NormalizePhone strips the channel prefix and every non-digit except a
// leading plus, so "whatsapp:+351 912 345 678" and "912345678" compare
// on equal terms.
func NormalizePhone(phone string) string {
	phone = strings.TrimPrefix(phone, "whatsapp:")
	phone = strings.TrimSpace(phone)

	var b strings.Builder
	for i, r := range phone {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneSuffix returns the last 9 digits of a normalized phone number, the
// key the directory is matched on. Numbers shorter than 9 digits are
// returned whole.
func PhoneSuffix(phone string) string {
	digits := strings.TrimPrefix(NormalizePhone(phone), "+")
	if len(digits) <= 9 {
		return digits
	}
	return digits[len(digits)-9:]
}
