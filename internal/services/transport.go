package services

// ConnectionState is a transport lifecycle event.
type ConnectionState string

const (
	ConnectionReady   ConnectionState = "ready"
	ConnectionPairing ConnectionState = "pairing"

	// ConnectionDisconnected is a failure-sourced drop; the orchestrator
	// reconnects with backoff.
	ConnectionDisconnected ConnectionState = "disconnected"

	// ConnectionClosed is an operator-initiated disconnect. It is never
	// reconnected automatically.
	ConnectionClosed ConnectionState = "closed"
)

// InboundMessage is one message received on the chat channel.
type InboundMessage struct {
	From          string   // channel address, normalized by the transport
	Body          string   // message text
	ButtonPayload string   // interactive reply payload, if any
	Latitude      *float64 // structured location share, if any
	Longitude     *float64
}

// Transport is the messaging channel this core talks through. Pairing,
// encryption and session persistence belong to the implementation; the core
// only sends, receives and watches connection state.
type Transport interface {
	Connect() error
	Disconnect() error
	Connected() bool

	// Send delivers text to an address and returns the delivery id.
	Send(to, text string) (string, error)

	// IsRegisteredAddress reports whether the address can receive messages
	// on this channel.
	IsRegisteredAddress(address string) (bool, error)

	OnMessage(handler func(InboundMessage))
	OnConnectionState(handler func(ConnectionState))
}
