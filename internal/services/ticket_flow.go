package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/obralink/obrabot-backend/internal/models"
)

// Service-request flow: INITIAL → WAITING_CLIENT → WAITING_CONTRACT* →
// WAITING_PROBLEM → WAITING_PRIORITY → WAITING_CONFIRMATION → submitted or
// cancelled. WAITING_CONTRACT only exists when the client has more than one
// active contract.

const ticketCancelledReply = "❌ Pedido cancelado. Envie *pedido* quando quiser começar de novo."

// StartTicketFlow opens a new service-request conversation.
func StartTicketFlow(address string) Transition {
	session := models.NewConversationSession(address, models.StateWaitingClient)
	return Transition{
		Session: session,
		Replies: []string{
			"🛠️ *Novo pedido de assistência*\n\nIndique o código ou o nome do cliente.",
		},
	}
}

// HandleTicketMessage advances a service-request session with one inbound
// message. Cancellation vocabulary wins over state parsing at every state.
func HandleTicketMessage(session *models.ConversationSession, text string) Transition {
	if IsCancellation(text) {
		return Transition{Replies: []string{ticketCancelledReply}}
	}

	switch session.State {
	case models.StateWaitingClient:
		query := strings.TrimSpace(text)
		if query == "" {
			return reprompt(session, "Indique o código ou o nome do cliente.")
		}
		// Stay put until the orchestrator feeds the lookup result back
		// through ApplyClientResolution.
		return Transition{
			Session:  session,
			Commands: []Command{CmdValidateClient{Address: session.Address, Query: query}},
		}

	case models.StateWaitingContract:
		return handleContractChoice(session, text)

	case models.StateWaitingProblem:
		problem := strings.TrimSpace(text)
		if problem == "" {
			return reprompt(session, "Descreva o problema, por favor.")
		}
		session.Data["problem"] = problem
		session.State = models.StateWaitingPriority
		return Transition{
			Session: session,
			Replies: []string{
				"Qual é a prioridade do pedido?\n\n1️⃣ Baixa\n2️⃣ Média\n3️⃣ Alta",
			},
		}

	case models.StateWaitingPriority:
		session.Data["priority"] = ParsePriority(text)
		session.State = models.StateWaitingConfirmation
		return Transition{
			Session: session,
			Replies: []string{ticketSummary(session)},
		}

	case models.StateWaitingConfirmation:
		confirmed, recognized := ParseConfirmation(text)
		if !recognized {
			return reprompt(session, "Responda *sim* para confirmar ou *não* para cancelar.")
		}
		if !confirmed {
			return Transition{Replies: []string{ticketCancelledReply}}
		}
		// The session dies here no matter what the ERP says later: the
		// submit is fail-open by design.
		return Transition{
			Commands: []Command{CmdCreateTicket{
				Address: session.Address,
				Request: models.TicketRequest{
					ClientID:    session.Data["client_id"],
					ClientName:  session.Data["client_name"],
					ContractID:  session.Data["contract_id"],
					Description: session.Data["problem"],
					Priority:    session.Data["priority"],
					ReportedBy:  session.Address,
				},
			}},
		}
	}

	// Undefined state: tear the session down rather than trap the user.
	return Transition{Replies: []string{ticketCancelledReply}}
}

// ApplyClientResolution feeds the client lookup result back into a session
// waiting in WAITING_CLIENT. A client with zero or one active contract
// skips WAITING_CONTRACT entirely.
func ApplyClientResolution(session *models.ConversationSession, client *models.Client, contracts []models.Contract) Transition {
	if client == nil {
		return reprompt(session, "❌ Cliente não encontrado. Verifique o código ou o nome e tente novamente.")
	}

	session.Data["client_id"] = client.ID
	session.Data["client_name"] = client.Name

	var active []models.Contract
	for _, contract := range contracts {
		if contract.Active {
			active = append(active, contract)
		}
	}

	switch len(active) {
	case 0:
		session.State = models.StateWaitingProblem
		return Transition{
			Session: session,
			Replies: []string{fmt.Sprintf("Cliente *%s* identificado.\n\nDescreva o problema, por favor.", client.Name)},
		}
	case 1:
		session.Data["contract_id"] = active[0].ID
		session.State = models.StateWaitingProblem
		return Transition{
			Session: session,
			Replies: []string{fmt.Sprintf(
				"Cliente *%s* identificado (contrato: %s).\n\nDescreva o problema, por favor.",
				client.Name, active[0].Description,
			)},
		}
	}

	ids := make([]string, len(active))
	labels := make([]string, len(active))
	var list strings.Builder
	fmt.Fprintf(&list, "Cliente *%s* tem %d contratos ativos. Escolha um:\n", client.Name, len(active))
	for i, contract := range active {
		ids[i] = contract.ID
		labels[i] = contract.Description
		fmt.Fprintf(&list, "\n%d. %s", i+1, contract.Description)
	}
	session.Data["contract_options"] = strings.Join(ids, "|")
	session.Data["contract_labels"] = strings.Join(labels, "|")
	session.State = models.StateWaitingContract

	return Transition{Session: session, Replies: []string{list.String()}}
}

// handleContractChoice expects a number 1..N against the stored options;
// anything else re-prompts without a state change.
func handleContractChoice(session *models.ConversationSession, text string) Transition {
	options := strings.Split(session.Data["contract_options"], "|")

	choice, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || choice < 1 || choice > len(options) {
		return reprompt(session, fmt.Sprintf("Escolha um contrato entre 1 e %d.", len(options)))
	}

	session.Data["contract_id"] = options[choice-1]
	delete(session.Data, "contract_options")
	delete(session.Data, "contract_labels")
	session.State = models.StateWaitingProblem

	return Transition{
		Session: session,
		Replies: []string{"Descreva o problema, por favor."},
	}
}

func ticketSummary(session *models.ConversationSession) string {
	var b strings.Builder
	b.WriteString("📋 *Resumo do pedido:*\n")
	fmt.Fprintf(&b, "\n👤 Cliente: %s", session.Data["client_name"])
	if session.Data["contract_id"] != "" {
		fmt.Fprintf(&b, "\n📄 Contrato: %s", session.Data["contract_id"])
	}
	fmt.Fprintf(&b, "\n🔧 Problema: %s", session.Data["problem"])
	fmt.Fprintf(&b, "\n⚡ Prioridade: %s", session.Data["priority"])
	b.WriteString("\n\nConfirma a criação do pedido? (*sim* / *não*)")
	return b.String()
}

func reprompt(session *models.ConversationSession, message string) Transition {
	return Transition{Session: session, Replies: []string{message}}
}
