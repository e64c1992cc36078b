package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/obralink/obrabot-backend/internal/models"
)

// Clock-registration flow: INITIAL → PONTO_WAITING_OBRA* →
// PONTO_WAITING_CONFIRMATION → pending location request → registered or
// cancelled. PONTO_WAITING_OBRA only exists when the user has more than one
// authorized work-site.

const clockCancelledReply = "❌ Registo de ponto cancelado. Envie *ponto* quando quiser começar de novo."

const shareLocationReply = "📍 Partilhe a sua localização para concluir o registo.\n\nUse o clipe 📎 > Localização, ou envie as coordenadas (ex.: 38.7223, -9.1393)."

// StartClockFlow opens a new clock-registration conversation for an
// already-authorized contact. With zero or one authorized site the site
// question is skipped and the direction lookup is emitted immediately.
func StartClockFlow(address string, contact *models.ContactEntry) Transition {
	session := models.NewConversationSession(address, models.StatePontoWaitingObra)
	session.Data["user_id"] = contact.InternalUserID

	sites := contact.SiteIDs()
	switch len(sites) {
	case 0:
		// No specific site: the record carries an empty site id.
		session.Data["site_id"] = ""
		return Transition{
			Session: session,
			Commands: []Command{CmdResolveClockState{
				Address:        address,
				InternalUserID: contact.InternalUserID,
			}},
		}
	case 1:
		session.Data["site_id"] = sites[0]
		return Transition{
			Session: session,
			Commands: []Command{CmdResolveClockState{
				Address:        address,
				InternalUserID: contact.InternalUserID,
				SiteID:         sites[0],
			}},
		}
	}

	session.Data["site_options"] = strings.Join(sites, "|")
	var list strings.Builder
	list.WriteString("🕐 *Registo de ponto*\n\nEm que obra está? Escolha uma:\n")
	for i, site := range sites {
		fmt.Fprintf(&list, "\n%d. %s", i+1, site)
	}
	return Transition{Session: session, Replies: []string{list.String()}}
}

// HandleClockMessage advances a clock-registration session with one inbound
// message.
func HandleClockMessage(session *models.ConversationSession, text string) Transition {
	if IsCancellation(text) {
		return Transition{Replies: []string{clockCancelledReply}}
	}

	switch session.State {
	case models.StatePontoWaitingObra:
		options := strings.Split(session.Data["site_options"], "|")
		choice, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil || choice < 1 || choice > len(options) {
			return reprompt(session, fmt.Sprintf("Escolha uma obra entre 1 e %d.", len(options)))
		}
		session.Data["site_id"] = options[choice-1]
		delete(session.Data, "site_options")
		return Transition{
			Session: session,
			Commands: []Command{CmdResolveClockState{
				Address:        session.Address,
				InternalUserID: session.Data["user_id"],
				SiteID:         session.Data["site_id"],
			}},
		}

	case models.StatePontoWaitingConfirmation:
		confirmed, recognized := ParseConfirmation(text)
		if !recognized {
			return reprompt(session, "Responda *sim* para confirmar ou *não* para cancelar.")
		}
		if !confirmed {
			return Transition{Replies: []string{clockCancelledReply}}
		}
		return Transition{
			Pending: &models.PendingLocationRequest{
				Address:        session.Address,
				InternalUserID: session.Data["user_id"],
				SiteID:         session.Data["site_id"],
				Direction:      session.Data["direction"],
				AutoExit:       session.Data["auto_exit"] == "true",
				PreviousSiteID: session.Data["previous_site_id"],
			},
			Replies: []string{shareLocationReply},
		}
	}

	return Transition{Replies: []string{clockCancelledReply}}
}

// ResolveDirection decides the registration direction from the user's most
// recent clock state. An open entry at a different site forces an automatic
// exit there before the new entry; an open entry at the same site means
// this registration is the exit; otherwise it is an entry.
func ResolveDirection(last models.LastClockState, siteID string) (direction string, autoExit bool, previousSiteID string) {
	if last.HasOpenEntry && last.SiteID != siteID {
		return models.DirectionEntry, true, last.SiteID
	}
	if last.HasOpenEntry {
		return models.DirectionExit, false, ""
	}
	return models.DirectionEntry, false, ""
}

// ApplyClockState feeds the last-clock-state lookup back into the session
// and asks for confirmation.
func ApplyClockState(session *models.ConversationSession, last models.LastClockState) Transition {
	direction, autoExit, previousSiteID := ResolveDirection(last, session.Data["site_id"])
	session.Data["direction"] = direction
	session.Data["auto_exit"] = strconv.FormatBool(autoExit)
	session.Data["previous_site_id"] = previousSiteID
	session.State = models.StatePontoWaitingConfirmation

	var b strings.Builder
	b.WriteString("🕐 *Registo de ponto*\n")
	fmt.Fprintf(&b, "\nTipo: *%s*", directionLabel(direction))
	if session.Data["site_id"] != "" {
		fmt.Fprintf(&b, "\nObra: *%s*", session.Data["site_id"])
	} else {
		b.WriteString("\nObra: sem obra específica")
	}
	if autoExit {
		fmt.Fprintf(&b, "\n\n⚠️ Tem uma entrada aberta na obra *%s*. A saída será registada automaticamente.", previousSiteID)
	}
	b.WriteString("\n\nConfirma? (*sim* / *não*)")

	return Transition{Session: session, Replies: []string{b.String()}}
}

// CompleteClockRegistration turns an arrived coordinate into the clock
// record command set: the automatic exit from the previous site first, when
// needed, then the registration itself. The pending request dies with it.
func CompleteClockRegistration(pending *models.PendingLocationRequest, coord models.Coordinate, now time.Time) Transition {
	var commands []Command
	if pending.AutoExit {
		commands = append(commands, CmdCreateClockRecord{
			Address: pending.Address,
			Request: models.ClockRecordRequest{
				InternalUserID: pending.InternalUserID,
				SiteID:         pending.PreviousSiteID,
				Direction:      models.DirectionExit,
				Coordinate:     coord,
				AutomaticExit:  true,
				RecordedAt:     now,
			},
		})
	}
	commands = append(commands, CmdCreateClockRecord{
		Address: pending.Address,
		Request: models.ClockRecordRequest{
			InternalUserID: pending.InternalUserID,
			SiteID:         pending.SiteID,
			Direction:      pending.Direction,
			Coordinate:     coord,
			RecordedAt:     now,
		},
	})

	return Transition{DeletePending: true, Commands: commands}
}

func directionLabel(direction string) string {
	if direction == models.DirectionExit {
		return "Saída"
	}
	return "Entrada"
}
