package models

import (
	"time"
)

// Ticket priorities as the ERP expects them.
const (
	TicketPriorityLow    = "Baixa"
	TicketPriorityMedium = "Média"
	TicketPriorityHigh   = "Alta"
)

// Client is the ERP's view of a customer, as returned by client validation.
type Client struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Contract is one service contract of a client. Only active contracts reach
// the conversation flow.
type Contract struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

// TicketRequest is the payload of a "create ticket" command.
type TicketRequest struct {
	ClientID    string `json:"client_id"`
	ClientName  string `json:"client_name"`
	ContractID  string `json:"contract_id,omitempty"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	ReportedBy  string `json:"reported_by"` // channel address of the reporter
}

// TicketResult is what the ERP returns for a created ticket.
type TicketResult struct {
	TicketID   string `json:"ticket_id"`
	Technician string `json:"technician,omitempty"`
}

// ClockRecordRequest is the payload of a "create clock record" command.
type ClockRecordRequest struct {
	InternalUserID string     `json:"internal_user_id"`
	SiteID         string     `json:"site_id,omitempty"`
	Direction      string     `json:"direction"`
	Coordinate     Coordinate `json:"coordinate"`
	AutomaticExit  bool       `json:"automatic_exit"`
	RecordedAt     time.Time  `json:"recorded_at"`
}

// LastClockState is the ERP's answer to a last-clock-state lookup: whether
// the user has an open entry and, if so, at which work-site.
type LastClockState struct {
	HasOpenEntry bool   `json:"has_open_entry"`
	SiteID       string `json:"site_id,omitempty"`
}
