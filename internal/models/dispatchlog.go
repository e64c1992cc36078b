package models

import (
	"time"
)

// Dispatch log severities.
const (
	LogSeverityInfo    = "info"
	LogSeverityWarning = "warning"
	LogSeverityError   = "error"
)

// DispatchLogEntry is one append-only line of broadcast execution history.
// Entries live in a bounded in-memory ring; oldest are dropped first.
type DispatchLogEntry struct {
	ScheduleID string            `json:"schedule_id"`
	Severity   string            `json:"severity"`
	Message    string            `json:"message"`
	Detail     map[string]string `json:"detail,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}
