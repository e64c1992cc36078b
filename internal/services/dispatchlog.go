package services

import (
	"sync"
	"time"

	"github.com/obralink/obrabot-backend/internal/models"
)

// DefaultDispatchLogSize bounds the in-memory dispatch history.
const DefaultDispatchLogSize = 500

// DispatchLog is a bounded, append-only ring of broadcast execution
// entries. Oldest entries are dropped first.
type DispatchLog struct {
	mu      sync.Mutex
	entries []models.DispatchLogEntry
	max     int
}

// NewDispatchLog creates a ring holding at most max entries.
func NewDispatchLog(max int) *DispatchLog {
	if max <= 0 {
		max = DefaultDispatchLogSize
	}
	return &DispatchLog{max: max}
}

// Append adds an entry, evicting the oldest when full.
func (l *DispatchLog) Append(scheduleID, severity, message string, detail map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, models.DispatchLogEntry{
		ScheduleID: scheduleID,
		Severity:   severity,
		Message:    message,
		Detail:     detail,
		Timestamp:  time.Now(),
	})
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// Recent returns up to limit entries, newest first, optionally filtered by
// schedule id and severity. limit <= 0 means no limit.
func (l *DispatchLog) Recent(scheduleID, severity string, limit int) []models.DispatchLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []models.DispatchLogEntry
	for i := len(l.entries) - 1; i >= 0; i-- {
		entry := l.entries[i]
		if scheduleID != "" && entry.ScheduleID != scheduleID {
			continue
		}
		if severity != "" && entry.Severity != severity {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
