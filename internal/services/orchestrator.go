package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/obralink/obrabot-backend/internal/models"
)

const unknownCommandReply = "👋 Olá! Envie *pedido* para abrir um pedido de assistência ou *ponto* para registar o ponto.\n\nPode escrever *cancelar* a qualquer momento."

// Submitted is the result of a final submit step. Confirmed is false when
// the downstream call failed but the user was acknowledged anyway; the
// fail-open policy is deliberate and callers can observe it here.
type Submitted struct {
	Confirmed bool
	Reference string
}

// Orchestrator wires inbound messages to authorization, the workflow
// machines and the session store, executes the commands the machines emit,
// and owns the expiry-sweep timer and transport reconnection.
type Orchestrator struct {
	sessions  *SessionStore
	gateway   *AuthorizationGateway
	erp       ERPService
	sink      NotificationSink
	transport Transport

	sweepInterval time.Duration
	reconnectBase time.Duration
	now           func() time.Time

	mu           sync.Mutex
	stop         chan struct{}
	reconnecting bool
}

// NewOrchestrator builds the orchestrator over explicitly owned stores;
// nothing here is a process-wide singleton.
func NewOrchestrator(sessions *SessionStore, gateway *AuthorizationGateway, erp ERPService, sink NotificationSink, transport Transport) *Orchestrator {
	o := &Orchestrator{
		sessions:      sessions,
		gateway:       gateway,
		erp:           erp,
		sink:          sink,
		transport:     transport,
		sweepInterval: SweepInterval,
		reconnectBase: time.Second,
		now:           time.Now,
	}
	transport.OnMessage(o.HandleMessage)
	transport.OnConnectionState(o.handleConnectionState)
	return o
}

// Start launches the expiry sweep timer.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stop != nil {
		return
	}
	o.stop = make(chan struct{})
	go o.sweepLoop(o.stop)
}

// Stop cancels the sweep timer and any in-flight reconnection loop.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stop == nil {
		return
	}
	close(o.stop)
	o.stop = nil
}

func (o *Orchestrator) sweepLoop(stop chan struct{}) {
	ticker := time.NewTicker(o.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			o.sessions.SweepExpired()
		}
	}
}

// handleConnectionState reconnects with exponential backoff when the
// channel drops on a failure. A ConnectionClosed event is an operator's
// decision and is left alone. At most one reconnection loop runs at a
// time, and Stop cancels it. In-flight sessions live in memory and resume
// untouched.
func (o *Orchestrator) handleConnectionState(state ConnectionState) {
	if state != ConnectionDisconnected {
		return
	}

	o.mu.Lock()
	if o.reconnecting || o.stop == nil {
		o.mu.Unlock()
		return
	}
	o.reconnecting = true
	stop := o.stop
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			o.reconnecting = false
			o.mu.Unlock()
		}()

		backoff := o.reconnectBase
		for !o.transport.Connected() {
			log.Printf("🔄 Transport disconnected, reconnecting in %v", backoff)
			select {
			case <-stop:
				return
			case <-time.After(backoff):
			}
			if err := o.transport.Connect(); err == nil {
				return
			}
			if backoff < time.Minute {
				backoff *= 2
			}
		}
	}()
}

// HandleMessage processes one inbound message. All work for a given
// address runs under that address's lock; other addresses are unaffected.
func (o *Orchestrator) HandleMessage(msg InboundMessage) {
	address := models.NormalizePhone(msg.From)
	if address == "" {
		return
	}

	o.sessions.WithAddressLock(address, func() {
		o.process(address, msg)
	})
}

func (o *Orchestrator) process(address string, msg InboundMessage) {
	text := effectiveText(msg)

	// A pending location request owns the conversation until a coordinate
	// arrives, it is cancelled, or it expires.
	if pending := o.sessions.GetPending(address); pending != nil {
		o.processPendingLocation(address, pending, msg, text)
		return
	}

	session := o.sessions.Get(address)
	keyword := TriggerKeyword(text)

	if session != nil {
		if IsCancellation(text) {
			o.apply(address, Transition{Replies: []string{sessionCancelledReply(session.State)}})
			return
		}
		if keyword != "" && Interruptible(session.State) {
			o.sessions.Delete(address)
			o.startFlow(address, keyword)
			return
		}
		o.apply(address, o.advance(session, text))
		return
	}

	if keyword != "" {
		o.startFlow(address, keyword)
		return
	}
	if IsCancellation(text) {
		// Nothing to cancel; stay quiet rather than confuse the user.
		return
	}
	o.send(address, unknownCommandReply)
}

// effectiveText is what the machines parse. An interactive button reply
// carries its canonical value in the payload while the body holds the
// display label, so the payload wins when present.
func effectiveText(msg InboundMessage) string {
	if msg.ButtonPayload != "" {
		return msg.ButtonPayload
	}
	return msg.Body
}

func (o *Orchestrator) advance(session *models.ConversationSession, text string) Transition {
	switch session.State {
	case models.StatePontoWaitingObra, models.StatePontoWaitingConfirmation:
		return HandleClockMessage(session, text)
	default:
		return HandleTicketMessage(session, text)
	}
}

func (o *Orchestrator) startFlow(address, keyword string) {
	switch keyword {
	case KeywordTicket:
		auth := o.gateway.AuthorizeTicket(address)
		if !auth.Granted {
			o.send(address, "❌ O seu número não tem permissão para criar pedidos de assistência.")
			return
		}
		o.apply(address, StartTicketFlow(address))

	case KeywordClock:
		auth := o.gateway.AuthorizeClock(address, o.now())
		if !auth.Granted {
			o.send(address, "❌ "+auth.Reason)
			return
		}
		o.apply(address, StartClockFlow(address, auth.Contact))
	}
}

func (o *Orchestrator) processPendingLocation(address string, pending *models.PendingLocationRequest, msg InboundMessage, text string) {
	if IsCancellation(text) {
		o.sessions.DeletePending(address)
		o.send(address, clockCancelledReply)
		return
	}

	coord, ok := ExtractLocation(LocationInput{
		Latitude:  msg.Latitude,
		Longitude: msg.Longitude,
		Text:      msg.Body,
	})
	if !ok {
		o.send(address, "❌ Não consegui ler a localização. "+shareLocationReply)
		return
	}

	o.apply(address, CompleteClockRegistration(pending, coord, o.now()))
}

// apply commits a transition: session mutations first, then replies, then
// command execution. Commands may yield follow-up transitions, which
// recurse through here.
func (o *Orchestrator) apply(address string, tr Transition) {
	switch {
	case tr.Pending != nil:
		o.sessions.PutPending(tr.Pending)
	case tr.Session != nil:
		o.sessions.Put(tr.Session)
	default:
		o.sessions.Delete(address)
	}
	if tr.DeletePending {
		o.sessions.DeletePending(address)
	}

	for _, reply := range tr.Replies {
		o.send(address, reply)
	}

	o.execute(address, tr.Commands)
}

func (o *Orchestrator) execute(address string, commands []Command) {
	var clockRecords []CmdCreateClockRecord

	for _, command := range commands {
		switch cmd := command.(type) {
		case CmdValidateClient:
			o.executeValidateClient(address, cmd)
		case CmdResolveClockState:
			o.executeResolveClockState(address, cmd)
		case CmdCreateTicket:
			o.executeCreateTicket(address, cmd)
		case CmdCreateClockRecord:
			clockRecords = append(clockRecords, cmd)
		default:
			log.Printf("⚠️  Unknown command %s for %s", command.CommandKind(), address)
		}
	}

	if len(clockRecords) > 0 {
		o.executeClockRecords(address, clockRecords)
	}
}

func (o *Orchestrator) executeValidateClient(address string, cmd CmdValidateClient) {
	session := o.sessions.Get(address)
	if session == nil {
		// Session vanished while the lookup was pending; discard.
		return
	}

	client, err := o.erp.ValidateClient(cmd.Query)
	if err != nil {
		log.Printf("Client validation failed for %s: %v", address, err)
		o.send(address, "❌ Não foi possível consultar o sistema. Tente novamente.")
		return
	}

	var contracts []models.Contract
	if client != nil {
		contracts, err = o.erp.FetchActiveContracts(client.ID)
		if err != nil {
			log.Printf("Contract fetch failed for client %s: %v", client.ID, err)
			contracts = nil
		}
	}

	o.apply(address, ApplyClientResolution(session, client, contracts))
}

func (o *Orchestrator) executeResolveClockState(address string, cmd CmdResolveClockState) {
	session := o.sessions.Get(address)
	if session == nil {
		return
	}

	last, err := o.erp.ResolveLastClockState(cmd.InternalUserID, cmd.SiteID)
	if err != nil {
		// Degrade to a plain entry rather than blocking the registration.
		log.Printf("Last clock state lookup failed for %s: %v", cmd.InternalUserID, err)
		last = models.LastClockState{}
	}

	o.apply(address, ApplyClockState(session, last))
}

func (o *Orchestrator) executeCreateTicket(address string, cmd CmdCreateTicket) {
	result := o.submitTicket(cmd.Request)
	if result.Confirmed {
		o.send(address, fmt.Sprintf("✅ *Pedido registado com sucesso!*\n\nNúmero: *%s*\nPrioridade: %s\n\nA nossa equipa entrará em contacto.",
			result.Reference, cmd.Request.Priority))
	} else {
		// Fail-open: the ticket will be recovered out-of-band, the user is
		// not left hanging on the chat.
		o.send(address, "✅ *Pedido registado!*\n\nReceberá a confirmação em breve.")
	}
}

// submitTicket performs the fail-open final submit of the service-request
// flow and returns the observable outcome.
func (o *Orchestrator) submitTicket(req models.TicketRequest) Submitted {
	result, err := o.erp.CreateTicket(req)
	if err != nil {
		log.Printf("❌ Ticket creation failed (fail-open, user acked): %v", err)
		return Submitted{Confirmed: false}
	}

	if result.Technician != "" && o.sink != nil {
		notice := fmt.Sprintf("Novo pedido %s (%s) para o cliente %s", result.TicketID, req.Priority, req.ClientName)
		if err := o.sink.NotifyTechnician(result.Technician, notice); err != nil {
			log.Printf("Technician notification failed for %s: %v", result.TicketID, err)
		}
	}
	return Submitted{Confirmed: true, Reference: result.TicketID}
}

func (o *Orchestrator) executeClockRecords(address string, cmds []CmdCreateClockRecord) {
	result := o.submitClockRecords(cmds)

	last := cmds[len(cmds)-1].Request
	ack := fmt.Sprintf("✅ *%s registada com sucesso!*", clockAckLabel(last.Direction))
	if last.SiteID != "" {
		ack += fmt.Sprintf("\nObra: %s", last.SiteID)
	}
	if len(cmds) > 1 {
		ack += fmt.Sprintf("\n\nℹ️ Saída da obra %s registada automaticamente.", cmds[0].Request.SiteID)
	}
	if !result.Confirmed {
		ack = fmt.Sprintf("✅ *%s registada!*\n\nO registo será confirmado em breve.", clockAckLabel(last.Direction))
	}
	o.send(address, ack)
}

// submitClockRecords performs the fail-open final submit of the clock flow.
func (o *Orchestrator) submitClockRecords(cmds []CmdCreateClockRecord) Submitted {
	confirmed := true
	for _, cmd := range cmds {
		if err := o.erp.CreateClockRecord(cmd.Request); err != nil {
			log.Printf("❌ Clock record failed (fail-open, user acked): %v", err)
			confirmed = false
		}
	}
	return Submitted{Confirmed: confirmed}
}

func (o *Orchestrator) send(address, text string) {
	if _, err := o.transport.Send(address, text); err != nil {
		log.Printf("Failed to send message to %s: %v", address, err)
	}
}

func sessionCancelledReply(state string) string {
	switch state {
	case models.StatePontoWaitingObra, models.StatePontoWaitingConfirmation:
		return clockCancelledReply
	}
	return ticketCancelledReply
}

func clockAckLabel(direction string) string {
	if direction == models.DirectionExit {
		return "Saída"
	}
	return "Entrada"
}
