package services

import (
	"strings"

	"github.com/obralink/obrabot-backend/internal/models"
)

// Flow trigger keywords.
const (
	KeywordTicket = "pedido"
	KeywordClock  = "ponto"
)

// Transition is the outcome of feeding one inbound message to a workflow
// machine. Machines are pure: they never call collaborators, they describe
// what should happen through Commands and leave execution to the
// orchestrator.
type Transition struct {
	// Session is the session to store; nil means delete it.
	Session *models.ConversationSession

	// Pending, when set, replaces the session with a pending location
	// request for the same address.
	Pending *models.PendingLocationRequest

	// DeletePending removes the address's pending location request.
	DeletePending bool

	// Replies are outbound messages for the sender, in order.
	Replies []string

	// Commands are declarative requests to collaborators.
	Commands []Command
}

// Command is a declarative request to a collaborator, emitted by a machine
// and executed by the orchestrator.
type Command interface {
	CommandKind() string
}

// CmdValidateClient asks the ERP to resolve a client by code or name and
// fetch its active contracts.
type CmdValidateClient struct {
	Address string
	Query   string
}

// CmdCreateTicket asks the ERP to open a service ticket.
type CmdCreateTicket struct {
	Address string
	Request models.TicketRequest
}

// CmdResolveClockState asks the ERP for the user's most recent clock state
// so the registration direction can be decided.
type CmdResolveClockState struct {
	Address        string
	InternalUserID string
	SiteID         string
}

// CmdCreateClockRecord asks the ERP to record a clock event.
type CmdCreateClockRecord struct {
	Address string
	Request models.ClockRecordRequest
}

func (CmdValidateClient) CommandKind() string    { return "validate-client" }
func (CmdCreateTicket) CommandKind() string      { return "create-ticket" }
func (CmdResolveClockState) CommandKind() string { return "resolve-clock-state" }
func (CmdCreateClockRecord) CommandKind() string { return "create-clock-record" }

// IsCancellation reports whether the text carries the cancellation
// vocabulary. This check takes precedence over state-specific parsing at
// every state of every flow.
func IsCancellation(text string) bool {
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if word == "cancelar" || word == "sair" {
			return true
		}
	}
	return false
}

// TriggerKeyword returns the workflow keyword the text carries, if any.
func TriggerKeyword(text string) string {
	for _, word := range strings.Fields(strings.ToLower(text)) {
		switch word {
		case KeywordTicket, KeywordClock:
			return word
		}
	}
	return ""
}

// Interruptible reports whether a session in the given state may be
// displaced by a new trigger keyword. Mid-flow sessions are protected from
// accidental restarts by unrelated keyword mentions.
func Interruptible(state string) bool {
	switch state {
	case models.StateInitial, models.StateWaitingConfirmation, models.StatePontoWaitingConfirmation:
		return true
	}
	return false
}

// ParseConfirmation maps a reply onto the affirmative/negative vocabulary.
// recognized is false for anything outside it, which re-prompts.
func ParseConfirmation(text string) (confirmed, recognized bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "sim", "s", "yes", "1":
		return true, true
	case "não", "nao", "n", "no", "0":
		return false, true
	}
	return false, false
}

// ParsePriority maps free text or a digit onto a ticket priority. Anything
// unrecognized resolves to medium instead of erroring so the flow never
// deadlocks on a reply the user considers obvious.
func ParsePriority(text string) string {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "1", "baixa", "low":
		return models.TicketPriorityLow
	case "2", "media", "média", "medium", "normal":
		return models.TicketPriorityMedium
	case "3", "alta", "high", "urgente":
		return models.TicketPriorityHigh
	}
	return models.TicketPriorityMedium
}
