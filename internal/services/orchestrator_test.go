package services

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/obralink/obrabot-backend/internal/models"
	"github.com/obralink/obrabot-backend/internal/storage"
)

// fakeTransport records outbound messages and lets tests inject inbound ones.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	sent      []sentMessage
	sendErr   error

	unregistered map[string]bool
	lookupErr    map[string]error

	onMessage func(InboundMessage)
	onState   func(ConnectionState)
}

type sentMessage struct {
	To   string
	Text string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connected:    true,
		unregistered: make(map[string]bool),
		lookupErr:    make(map[string]error),
	}
}

func (f *fakeTransport) Connect() error {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

// Disconnect mirrors the real transport: a deliberate close, announced as
// such.
func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	f.connected = false
	handler := f.onState
	f.mu.Unlock()

	if handler != nil {
		handler(ConnectionClosed)
	}
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// dropConnection simulates a failure-sourced channel drop.
func (f *fakeTransport) dropConnection() {
	f.mu.Lock()
	f.connected = false
	handler := f.onState
	f.mu.Unlock()

	if handler != nil {
		handler(ConnectionDisconnected)
	}
}

func (f *fakeTransport) Send(to, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, sentMessage{To: to, Text: text})
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func (f *fakeTransport) IsRegisteredAddress(address string) (bool, error) {
	if err := f.lookupErr[address]; err != nil {
		return false, err
	}
	return !f.unregistered[address], nil
}

func (f *fakeTransport) OnMessage(handler func(InboundMessage)) { f.onMessage = handler }

func (f *fakeTransport) OnConnectionState(handler func(ConnectionState)) { f.onState = handler }

func (f *fakeTransport) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts := make([]string, len(f.sent))
	for i, m := range f.sent {
		texts[i] = m.Text
	}
	return texts
}

func (f *fakeTransport) lastSent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].Text
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// fakeERP returns scripted answers and records submits.
type fakeERP struct {
	client    *models.Client
	contracts []models.Contract
	clientErr error

	lastState    models.LastClockState
	lastStateErr error

	ticketResult *models.TicketResult
	ticketErr    error
	tickets      []models.TicketRequest

	clockErr     error
	clockRecords []models.ClockRecordRequest
}

func (f *fakeERP) ValidateClient(query string) (*models.Client, error) {
	return f.client, f.clientErr
}

func (f *fakeERP) FetchActiveContracts(clientID string) ([]models.Contract, error) {
	return f.contracts, nil
}

func (f *fakeERP) CreateTicket(req models.TicketRequest) (*models.TicketResult, error) {
	f.tickets = append(f.tickets, req)
	if f.ticketErr != nil {
		return nil, f.ticketErr
	}
	if f.ticketResult != nil {
		return f.ticketResult, nil
	}
	return &models.TicketResult{TicketID: "TKT-001"}, nil
}

func (f *fakeERP) CreateClockRecord(req models.ClockRecordRequest) error {
	f.clockRecords = append(f.clockRecords, req)
	return f.clockErr
}

func (f *fakeERP) ResolveLastClockState(internalUserID, siteID string) (models.LastClockState, error) {
	return f.lastState, f.lastStateErr
}

type fakeSink struct {
	notices []string
}

func (f *fakeSink) NotifyTechnician(technician, message string) error {
	f.notices = append(f.notices, technician+": "+message)
	return nil
}

func newTestOrchestrator(t *testing.T, erp *fakeERP, contacts ...*models.ContactEntry) (*Orchestrator, *fakeTransport) {
	t.Helper()

	store := storage.NewMemoryStore()
	for _, contact := range contacts {
		if _, err := store.CreateContactEntry(contact); err != nil {
			t.Fatalf("seeding contact: %v", err)
		}
	}

	transport := newFakeTransport()
	sessions := NewSessionStore(transport)
	gateway := NewAuthorizationGateway(store)
	return NewOrchestrator(sessions, gateway, erp, &fakeSink{}, transport), transport
}

func inbound(from, body string) InboundMessage {
	return InboundMessage{From: from, Body: body}
}

func TestTicketConversationEndToEnd(t *testing.T) {
	erp := &fakeERP{
		client:       &models.Client{ID: "C1", Code: "ACME", Name: "ACME Lda"},
		contracts:    []models.Contract{{ID: "CT1", Description: "Manutenção anual", Active: true}},
		ticketResult: &models.TicketResult{TicketID: "TKT-042", Technician: "tech-9"},
	}
	o, transport := newTestOrchestrator(t, erp, &models.ContactEntry{
		Name:             "João",
		Phone:            "+351912345678",
		CanCreateTickets: true,
	})

	addr := "whatsapp:+351912345678"

	o.HandleMessage(inbound(addr, "pedido"))
	if got := transport.lastSent(); !strings.Contains(got, "código ou o nome do cliente") {
		t.Fatalf("expected client prompt, got %q", got)
	}

	o.HandleMessage(inbound(addr, "ACME"))
	if got := transport.lastSent(); !strings.Contains(got, "Descreva o problema") {
		t.Fatalf("expected problem prompt after single-contract auto-select, got %q", got)
	}

	o.HandleMessage(inbound(addr, "impressora avariada"))
	if got := transport.lastSent(); !strings.Contains(got, "prioridade") {
		t.Fatalf("expected priority prompt, got %q", got)
	}

	o.HandleMessage(inbound(addr, "3"))
	summary := transport.lastSent()
	if !strings.Contains(summary, "Alta") || !strings.Contains(summary, "impressora avariada") {
		t.Fatalf("summary missing priority or problem: %q", summary)
	}

	o.HandleMessage(inbound(addr, "sim"))
	if got := transport.lastSent(); !strings.Contains(got, "TKT-042") {
		t.Fatalf("expected confirmed ack with ticket number, got %q", got)
	}

	if len(erp.tickets) != 1 {
		t.Fatalf("expected 1 ticket submitted, got %d", len(erp.tickets))
	}
	ticket := erp.tickets[0]
	if ticket.ClientID != "C1" || ticket.ContractID != "CT1" || ticket.Priority != models.TicketPriorityHigh {
		t.Fatalf("submitted ticket fields wrong: %+v", ticket)
	}

	// Session is gone after submit.
	if o.sessions.Get("+351912345678") != nil {
		t.Fatal("session should be deleted after submit")
	}
}

func TestTicketFailOpenAck(t *testing.T) {
	erp := &fakeERP{
		client:    &models.Client{ID: "C1", Name: "ACME Lda"},
		ticketErr: fmt.Errorf("erp down"),
	}
	o, transport := newTestOrchestrator(t, erp, &models.ContactEntry{
		Phone: "912345678", CanCreateTickets: true,
	})

	addr := "912345678"
	o.HandleMessage(inbound(addr, "pedido"))
	o.HandleMessage(inbound(addr, "ACME"))
	o.HandleMessage(inbound(addr, "avaria no servidor"))
	o.HandleMessage(inbound(addr, "1"))
	o.HandleMessage(inbound(addr, "sim"))

	got := transport.lastSent()
	if !strings.Contains(got, "Pedido registado") {
		t.Fatalf("expected fail-open ack, got %q", got)
	}
	if strings.Contains(got, "Número") {
		t.Fatalf("fail-open ack must not carry a ticket number: %q", got)
	}
	if o.sessions.Get(addr) != nil {
		t.Fatal("session must be deleted even when the submit fails")
	}
}

func TestUnauthorizedTicketKeyword(t *testing.T) {
	o, transport := newTestOrchestrator(t, &fakeERP{}, &models.ContactEntry{
		Phone: "912345678", CanCreateTickets: false,
	})

	o.HandleMessage(inbound("912345678", "pedido"))
	if got := transport.lastSent(); !strings.Contains(got, "não tem permissão") {
		t.Fatalf("expected denial, got %q", got)
	}
	if o.sessions.Get("912345678") != nil {
		t.Fatal("no session should exist after a denied start")
	}
}

func TestUnknownMessageGetsHint(t *testing.T) {
	o, transport := newTestOrchestrator(t, &fakeERP{})

	o.HandleMessage(inbound("912345678", "bom dia"))
	if got := transport.lastSent(); !strings.Contains(got, "*pedido*") || !strings.Contains(got, "*ponto*") {
		t.Fatalf("expected keyword hint, got %q", got)
	}

	// Cancellation with nothing to cancel stays quiet.
	transport.reset()
	o.HandleMessage(inbound("912345678", "cancelar"))
	if len(transport.sentTexts()) != 0 {
		t.Fatalf("expected silence, got %v", transport.sentTexts())
	}
}

func TestKeywordInterruptsConfirmationState(t *testing.T) {
	erp := &fakeERP{client: &models.Client{ID: "C1", Name: "ACME"}}
	o, transport := newTestOrchestrator(t, erp, &models.ContactEntry{
		Phone: "912345678", CanCreateTickets: true,
	})

	addr := "912345678"
	o.HandleMessage(inbound(addr, "pedido"))
	o.HandleMessage(inbound(addr, "ACME"))
	o.HandleMessage(inbound(addr, "sem rede"))
	o.HandleMessage(inbound(addr, "2"))

	// WAITING_CONFIRMATION is interruptible: a fresh keyword restarts.
	o.HandleMessage(inbound(addr, "pedido"))
	if got := transport.lastSent(); !strings.Contains(got, "código ou o nome do cliente") {
		t.Fatalf("expected restart prompt, got %q", got)
	}

	// Mid-flow states are not: the keyword is treated as flow input.
	o.HandleMessage(inbound(addr, "ACME"))
	o.HandleMessage(inbound(addr, "ponto"))
	session := o.sessions.Get(addr)
	if session == nil || session.State != models.StateWaitingPriority {
		t.Fatalf("keyword must not interrupt WAITING_PROBLEM; session: %+v", session)
	}
}

func TestClockConversationEndToEnd(t *testing.T) {
	erp := &fakeERP{
		lastState: models.LastClockState{HasOpenEntry: true, SiteID: "obra-A"},
	}
	contact := &models.ContactEntry{
		Phone:            "912345678",
		CanRegisterClock: true,
		InternalUserID:   "U7",
	}
	contact.SetSiteIDs([]string{"obra-A", "obra-B"})
	o, transport := newTestOrchestrator(t, erp, contact)

	addr := "912345678"
	o.HandleMessage(inbound(addr, "ponto"))
	if got := transport.lastSent(); !strings.Contains(got, "Em que obra está") {
		t.Fatalf("expected site prompt, got %q", got)
	}

	// Pick obra-B while an entry is open at obra-A: auto-exit warned.
	o.HandleMessage(inbound(addr, "2"))
	got := transport.lastSent()
	if !strings.Contains(got, "Entrada") || !strings.Contains(got, "obra-A") {
		t.Fatalf("expected entry confirmation with auto-exit warning, got %q", got)
	}

	o.HandleMessage(inbound(addr, "sim"))
	if got := transport.lastSent(); !strings.Contains(got, "Partilhe a sua localização") {
		t.Fatalf("expected location request, got %q", got)
	}
	if o.sessions.Get(addr) != nil {
		t.Fatal("session must be displaced by the pending location request")
	}
	if o.sessions.GetPending(addr) == nil {
		t.Fatal("pending location request should exist")
	}

	lat, lng := 38.7223, -9.1393
	o.HandleMessage(InboundMessage{From: addr, Latitude: &lat, Longitude: &lng})

	if len(erp.clockRecords) != 2 {
		t.Fatalf("expected auto-exit plus entry, got %d records", len(erp.clockRecords))
	}
	exit, entry := erp.clockRecords[0], erp.clockRecords[1]
	if exit.Direction != models.DirectionExit || exit.SiteID != "obra-A" || !exit.AutomaticExit {
		t.Fatalf("first record should be the automatic exit from obra-A: %+v", exit)
	}
	if entry.Direction != models.DirectionEntry || entry.SiteID != "obra-B" || entry.AutomaticExit {
		t.Fatalf("second record should be the entry at obra-B: %+v", entry)
	}
	if entry.Coordinate.Latitude != lat || entry.Coordinate.Longitude != lng {
		t.Fatalf("coordinate not carried through: %+v", entry.Coordinate)
	}

	ack := transport.lastSent()
	if !strings.Contains(ack, "Entrada") || !strings.Contains(ack, "automaticamente") {
		t.Fatalf("ack should mention entry and the automatic exit, got %q", ack)
	}
	if o.sessions.GetPending(addr) != nil {
		t.Fatal("pending request must be gone after completion")
	}
}

func TestClockLocationRejectedThenCancelled(t *testing.T) {
	erp := &fakeERP{}
	contact := &models.ContactEntry{
		Phone:            "912345678",
		CanRegisterClock: true,
		InternalUserID:   "U7",
	}
	contact.SetSiteIDs([]string{"obra-A"})
	o, transport := newTestOrchestrator(t, erp, contact)

	addr := "912345678"
	o.HandleMessage(inbound(addr, "ponto"))
	o.HandleMessage(inbound(addr, "sim"))

	// Unusable text keeps the pending request alive and re-prompts.
	o.HandleMessage(inbound(addr, "estou na obra"))
	if got := transport.lastSent(); !strings.Contains(got, "Não consegui ler a localização") {
		t.Fatalf("expected location re-prompt, got %q", got)
	}
	if o.sessions.GetPending(addr) == nil {
		t.Fatal("pending request must survive an unreadable location")
	}

	o.HandleMessage(inbound(addr, "cancelar"))
	if o.sessions.GetPending(addr) != nil {
		t.Fatal("pending request must be cancelled")
	}
	if len(erp.clockRecords) != 0 {
		t.Fatalf("no records should be submitted, got %d", len(erp.clockRecords))
	}
}

func TestClockDeniedOutsideValidityWindow(t *testing.T) {
	past := time.Now().AddDate(0, -2, 0)
	end := time.Now().AddDate(0, -1, 0)
	o, transport := newTestOrchestrator(t, &fakeERP{}, &models.ContactEntry{
		Phone:            "912345678",
		CanRegisterClock: true,
		InternalUserID:   "U7",
		StartDate:        &past,
		EndDate:          &end,
	})

	o.HandleMessage(inbound("912345678", "ponto"))
	if got := transport.lastSent(); !strings.Contains(got, "expirou") {
		t.Fatalf("expected expiry denial, got %q", got)
	}
}

func TestERPLookupFailureDegradesToEntry(t *testing.T) {
	erp := &fakeERP{lastStateErr: fmt.Errorf("erp timeout")}
	contact := &models.ContactEntry{
		Phone:            "912345678",
		CanRegisterClock: true,
		InternalUserID:   "U7",
	}
	contact.SetSiteIDs([]string{"obra-A"})
	o, transport := newTestOrchestrator(t, erp, contact)

	o.HandleMessage(inbound("912345678", "ponto"))
	got := transport.lastSent()
	if !strings.Contains(got, "Entrada") {
		t.Fatalf("lookup failure should fall back to an entry, got %q", got)
	}
}

func TestDeliberateDisconnectStaysDown(t *testing.T) {
	o, transport := newTestOrchestrator(t, &fakeERP{})
	o.reconnectBase = time.Millisecond
	o.Start()
	defer o.Stop()

	if err := transport.Disconnect(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if transport.Connected() {
		t.Fatal("operator disconnect was undone by the reconnect loop")
	}
}

func TestFailureDropReconnects(t *testing.T) {
	o, transport := newTestOrchestrator(t, &fakeERP{})
	o.reconnectBase = time.Millisecond
	o.Start()
	defer o.Stop()

	transport.dropConnection()

	deadline := time.Now().Add(time.Second)
	for !transport.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("failure-sourced drop was never reconnected")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestNoReconnectBeforeStart(t *testing.T) {
	o, transport := newTestOrchestrator(t, &fakeERP{})
	o.reconnectBase = time.Millisecond

	transport.dropConnection()
	time.Sleep(20 * time.Millisecond)
	if transport.Connected() {
		t.Fatal("reconnect loop ran without Start")
	}
}

func TestButtonPayloadDrivesConfirmation(t *testing.T) {
	erp := &fakeERP{client: &models.Client{ID: "C1", Name: "ACME Lda"}}
	o, transport := newTestOrchestrator(t, erp, &models.ContactEntry{
		Phone: "912345678", CanCreateTickets: true,
	})

	addr := "912345678"
	o.HandleMessage(inbound(addr, "pedido"))
	o.HandleMessage(inbound(addr, "ACME"))
	o.HandleMessage(inbound(addr, "sem rede no escritório"))
	o.HandleMessage(inbound(addr, "2"))

	// The body carries the button label; the payload carries the value the
	// vocabulary understands.
	o.HandleMessage(InboundMessage{From: addr, Body: "Sim ✅", ButtonPayload: "sim"})

	if len(erp.tickets) != 1 {
		t.Fatalf("expected the button reply to confirm the ticket, got %d submits", len(erp.tickets))
	}
	if got := transport.lastSent(); !strings.Contains(got, "Pedido registado") {
		t.Fatalf("expected submit ack, got %q", got)
	}
}
