package handlers

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/obralink/obrabot-backend/internal/services"
)

// WhatsAppHandler feeds Twilio webhook payloads into the transport.
type WhatsAppHandler struct {
	transport *services.TwilioTransport
}

// NewWhatsAppHandler creates a new WhatsApp webhook handler.
func NewWhatsAppHandler(transport *services.TwilioTransport) *WhatsAppHandler {
	return &WhatsAppHandler{transport: transport}
}

// TwilioWebhookPayload represents an incoming WhatsApp message from Twilio.
type TwilioWebhookPayload struct {
	MessageSid    string `form:"MessageSid"`
	AccountSid    string `form:"AccountSid"`
	From          string `form:"From"` // WhatsApp number (whatsapp:+351912345678)
	To            string `form:"To"`
	Body          string `form:"Body"`
	ButtonPayload string `form:"ButtonPayload"`
	Latitude      string `form:"Latitude"` // set for location shares
	Longitude     string `form:"Longitude"`
	NumMedia      string `form:"NumMedia"`
}

// HandleWebhook processes incoming WhatsApp messages.
func (h *WhatsAppHandler) HandleWebhook(c *fiber.Ctx) error {
	var payload TwilioWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		log.Printf("Error parsing webhook: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	// Status callbacks arrive on the same URL with no sender; ignore them.
	if payload.From == "" {
		return c.SendStatus(fiber.StatusOK)
	}

	log.Printf("📱 WhatsApp message from %s: %s", payload.From, payload.Body)

	msg := services.InboundMessage{
		From:          payload.From,
		Body:          payload.Body,
		ButtonPayload: payload.ButtonPayload,
	}
	if lat, err := strconv.ParseFloat(payload.Latitude, 64); err == nil {
		if lng, err := strconv.ParseFloat(payload.Longitude, 64); err == nil {
			msg.Latitude = &lat
			msg.Longitude = &lng
		}
	}

	h.transport.HandleInbound(msg)

	return c.SendStatus(fiber.StatusOK)
}

// TestWebhookPayload is the JSON shape of the development test endpoint.
type TestWebhookPayload struct {
	From      string   `json:"from"`
	Message   string   `json:"message"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// HandleTestWebhook processes test messages without Twilio (development).
func (h *WhatsAppHandler) HandleTestWebhook(c *fiber.Ctx) error {
	var payload TestWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid test payload",
		})
	}

	log.Printf("🧪 Test webhook received from %s: %s", payload.From, payload.Message)

	h.transport.HandleInbound(services.InboundMessage{
		From:      payload.From,
		Body:      payload.Message,
		Latitude:  payload.Latitude,
		Longitude: payload.Longitude,
	})

	return c.JSON(fiber.Map{"success": true})
}
