package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/obralink/obrabot-backend/internal/models"
	"github.com/obralink/obrabot-backend/internal/storage"
)

// AuthorizationGateway answers capability questions against a snapshot of
// the contact directory. It is the only place phone matching happens, so a
// stricter strategy can be swapped in without touching the flows.
type AuthorizationGateway struct {
	store storage.Store

	mu       sync.RWMutex
	snapshot []*models.ContactEntry
}

// TicketAuthorization is the result of an AuthorizeTicket check.
type TicketAuthorization struct {
	Granted bool
	Contact *models.ContactEntry
}

// ClockAuthorization is the result of an AuthorizeClock check. When Granted
// is false, Reason carries a specific user-facing explanation.
type ClockAuthorization struct {
	Granted bool
	Contact *models.ContactEntry
	Reason  string
}

// NewAuthorizationGateway creates a gateway and loads the initial snapshot.
func NewAuthorizationGateway(store storage.Store) *AuthorizationGateway {
	g := &AuthorizationGateway{store: store}
	if err := g.Refresh(); err != nil {
		log.Printf("⚠️  Failed to load contact directory: %v", err)
	}
	return g
}

// Refresh reloads the directory snapshot from the store.
func (g *AuthorizationGateway) Refresh() error {
	entries, err := g.store.ListContactEntries()
	if err != nil {
		return fmt.Errorf("failed to refresh contact directory: %w", err)
	}

	g.mu.Lock()
	g.snapshot = entries
	g.mu.Unlock()
	return nil
}

// AuthorizeTicket checks whether the address may open service tickets.
func (g *AuthorizationGateway) AuthorizeTicket(address string) TicketAuthorization {
	contact := g.resolve(address)
	if contact == nil || !contact.CanCreateTickets {
		return TicketAuthorization{Granted: false}
	}
	return TicketAuthorization{Granted: true, Contact: contact}
}

// AuthorizeClock checks whether the address may register clock events. It
// requires the capability flag, a resolvable internal user id and, when a
// validity window is set, that today falls inside it (date-only, inclusive).
func (g *AuthorizationGateway) AuthorizeClock(address string, now time.Time) ClockAuthorization {
	contact := g.resolve(address)
	if contact == nil {
		return ClockAuthorization{Reason: "O seu número não está registado no sistema."}
	}
	if !contact.CanRegisterClock {
		return ClockAuthorization{Contact: contact, Reason: "Não tem permissão para registar ponto."}
	}
	if contact.InternalUserID == "" {
		return ClockAuthorization{Contact: contact, Reason: "O seu contacto não tem utilizador interno associado. Contacte o escritório."}
	}

	today := dateOnly(now)
	if contact.StartDate != nil && today.Before(dateOnly(*contact.StartDate)) {
		return ClockAuthorization{
			Contact: contact,
			Reason:  fmt.Sprintf("A sua autorização só é válida a partir de %s.", contact.StartDate.Format("02/01/2006")),
		}
	}
	if contact.EndDate != nil && today.After(dateOnly(*contact.EndDate)) {
		return ClockAuthorization{
			Contact: contact,
			Reason:  fmt.Sprintf("A sua autorização expirou em %s.", contact.EndDate.Format("02/01/2006")),
		}
	}

	return ClockAuthorization{Granted: true, Contact: contact}
}

// resolve finds zero-or-one directory entry for a channel address by
// comparing the last 9 digits. The loose match tolerates country-code
// formatting differences; whether it is too loose for similar numbers is an
// open question inherited from the original directory data.
func (g *AuthorizationGateway) resolve(address string) *models.ContactEntry {
	suffix := models.PhoneSuffix(address)
	if suffix == "" {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, entry := range g.snapshot {
		if models.PhoneSuffix(entry.Phone) == suffix {
			return entry
		}
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
