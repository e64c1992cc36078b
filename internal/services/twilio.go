package services

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	twilioLookups "github.com/twilio/twilio-go/rest/lookups/v2"

	"github.com/obralink/obrabot-backend/internal/models"
)

// TwilioTransport implements Transport over the Twilio WhatsApp API.
type TwilioTransport struct {
	client *twilio.RestClient
	from   string // Twilio WhatsApp number, "whatsapp:+..." format

	mu           sync.RWMutex
	connected    bool
	onMessage    func(InboundMessage)
	onConnection func(ConnectionState)
}

// NewTwilioTransport creates a Twilio-backed transport from environment
// credentials.
func NewTwilioTransport() (*TwilioTransport, error) {
	accountSid := os.Getenv("TWILIO_ACCOUNT_SID")
	authToken := os.Getenv("TWILIO_AUTH_TOKEN")
	from := os.Getenv("TWILIO_WHATSAPP_FROM") // Format: "whatsapp:+14155238886"

	if accountSid == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("missing Twilio credentials in environment variables")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})

	return &TwilioTransport{
		client: client,
		from:   from,
	}, nil
}

// Connect marks the channel ready. Twilio is HTTP-based, so there is no
// long-lived connection to establish; this only gates sending.
func (t *TwilioTransport) Connect() error {
	t.mu.Lock()
	t.connected = true
	handler := t.onConnection
	t.mu.Unlock()

	if handler != nil {
		handler(ConnectionReady)
	}
	log.Println("✅ WhatsApp transport connected")
	return nil
}

// Disconnect stops outbound sending. The emitted state marks the close as
// deliberate so nothing tries to bring the channel back up.
func (t *TwilioTransport) Disconnect() error {
	t.mu.Lock()
	t.connected = false
	handler := t.onConnection
	t.mu.Unlock()

	if handler != nil {
		handler(ConnectionClosed)
	}
	log.Println("⏹️  WhatsApp transport disconnected")
	return nil
}

func (t *TwilioTransport) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// Send delivers a WhatsApp message and returns the Twilio message SID.
func (t *TwilioTransport) Send(to, text string) (string, error) {
	if !t.Connected() {
		return "", fmt.Errorf("transport not connected")
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(fmt.Sprintf("whatsapp:%s", models.NormalizePhone(to)))
	params.SetBody(text)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		log.Printf("❌ Failed to send WhatsApp message: %v", err)
		return "", err
	}

	return *resp.Sid, nil
}

// IsRegisteredAddress checks the address against the Twilio Lookup API.
func (t *TwilioTransport) IsRegisteredAddress(address string) (bool, error) {
	phone := models.NormalizePhone(address)
	if phone == "" {
		return false, nil
	}

	params := &twilioLookups.FetchPhoneNumberParams{}
	resp, err := t.client.LookupsV2.FetchPhoneNumber(phone, params)
	if err != nil {
		return false, fmt.Errorf("lookup failed for %s: %w", phone, err)
	}
	if resp.Valid == nil {
		return false, nil
	}
	return *resp.Valid, nil
}

// OnMessage registers the inbound handler. The webhook handler feeds it via
// HandleInbound.
func (t *TwilioTransport) OnMessage(handler func(InboundMessage)) {
	t.mu.Lock()
	t.onMessage = handler
	t.mu.Unlock()
}

// OnConnectionState registers the connection-state handler.
func (t *TwilioTransport) OnConnectionState(handler func(ConnectionState)) {
	t.mu.Lock()
	t.onConnection = handler
	t.mu.Unlock()
}

// HandleInbound dispatches a webhook-parsed message to the registered
// handler.
func (t *TwilioTransport) HandleInbound(msg InboundMessage) {
	t.mu.RLock()
	handler := t.onMessage
	t.mu.RUnlock()

	if handler == nil {
		log.Printf("⚠️  Inbound message from %s dropped - no handler registered", msg.From)
		return
	}
	handler(msg)
}
