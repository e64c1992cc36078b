package models

import (
	"time"
)

// Conversation states for the service-request flow.
const (
	StateInitial             = "INITIAL"
	StateWaitingClient       = "WAITING_CLIENT"
	StateWaitingContract     = "WAITING_CONTRACT"
	StateWaitingProblem      = "WAITING_PROBLEM"
	StateWaitingPriority     = "WAITING_PRIORITY"
	StateWaitingConfirmation = "WAITING_CONFIRMATION"
)

// Conversation states for the clock-registration flow.
const (
	StatePontoWaitingObra         = "PONTO_WAITING_OBRA"
	StatePontoWaitingConfirmation = "PONTO_WAITING_CONFIRMATION"
)

// Registration directions.
const (
	DirectionEntry = "entrada"
	DirectionExit  = "saida"
)

// SessionTTL is how long a conversation may sit idle before it is purged.
const SessionTTL = 30 * time.Minute

// ConversationSession is the in-memory record of one in-progress multi-step
// dialogue, keyed by normalized channel address. At most one live session
// exists per address.
type ConversationSession struct {
	Address      string            `json:"address"`
	State        string            `json:"state"`
	Data         map[string]string `json:"data"`
	LastActivity time.Time         `json:"last_activity"`
}

// NewConversationSession creates a session in the given state.
func NewConversationSession(address, state string) *ConversationSession {
	return &ConversationSession{
		Address:      address,
		State:        state,
		Data:         make(map[string]string),
		LastActivity: time.Now(),
	}
}

// Expired reports whether the session's last activity is older than the TTL.
func (s *ConversationSession) Expired(now time.Time) bool {
	return now.Sub(s.LastActivity) > SessionTTL
}

// Touch refreshes the activity timestamp.
func (s *ConversationSession) Touch(now time.Time) {
	s.LastActivity = now
}

// PendingLocationRequest is the lighter secondary session held while a
// clock registration waits for a coordinate. It is mutually exclusive with
// an active ConversationSession for the same address.
type PendingLocationRequest struct {
	Address        string    `json:"address"`
	InternalUserID string    `json:"internal_user_id"`
	SiteID         string    `json:"site_id"` // empty when no specific site applies
	Direction      string    `json:"direction"`
	AutoExit       bool      `json:"auto_exit"` // an exit from PreviousSiteID must be recorded first
	PreviousSiteID string    `json:"previous_site_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Expired reports whether the pending request outlived the session TTL.
func (p *PendingLocationRequest) Expired(now time.Time) bool {
	return now.Sub(p.CreatedAt) > SessionTTL
}

// Coordinate is a validated GPS fix.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
