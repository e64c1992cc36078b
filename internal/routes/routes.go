package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/obralink/obrabot-backend/internal/handlers"
	"github.com/obralink/obrabot-backend/internal/middleware"
)

// SetupRoutes configures all API routes.
func SetupRoutes(app *fiber.App, whatsapp *handlers.WhatsAppHandler, admin *handlers.AdminHandler) {
	health := handlers.NewHealthHandler("1.0.0")
	app.Get("/health", health.Check)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")

	// WhatsApp webhook - signature validation is env-gated for local ngrok
	// development.
	if os.Getenv("ENVIRONMENT") == "development" || os.Getenv("DISABLE_WEBHOOK_VALIDATION") == "true" {
		webhooks.Post("/whatsapp", whatsapp.HandleWebhook)
		if os.Getenv("ENVIRONMENT") == "development" {
			log.Println("⚠️  WhatsApp webhook validation DISABLED for development")
		}
	} else {
		webhooks.Post("/whatsapp", middleware.ValidateTwilioSignature(), whatsapp.HandleWebhook)
	}

	// ========== TEST ROUTES (Development Only) ==========
	if os.Getenv("ENVIRONMENT") == "development" {
		app.Post("/test/whatsapp", whatsapp.HandleTestWebhook)
	}

	// ========== ADMIN ROUTES ==========
	adminGroup := app.Group("/admin", middleware.RequireAdminJWT(os.Getenv("ADMIN_JWT_SECRET")))

	adminGroup.Get("/status", admin.Status)
	adminGroup.Post("/messages", admin.SendMessage)
	adminGroup.Post("/transport/connect", admin.ConnectTransport)
	adminGroup.Post("/transport/disconnect", admin.DisconnectTransport)

	adminGroup.Get("/sessions", admin.ListSessions)
	adminGroup.Delete("/sessions/:address", admin.CancelSession)

	adminGroup.Post("/schedules", admin.CreateSchedule)
	adminGroup.Get("/schedules", admin.ListSchedules)
	adminGroup.Patch("/schedules/:scheduleID/enabled", admin.SetScheduleEnabled)
	adminGroup.Delete("/schedules/:scheduleID", admin.DeleteSchedule)

	adminGroup.Get("/dispatch-logs", admin.GetDispatchLogs)

	adminGroup.Post("/contacts", admin.CreateContact)
	adminGroup.Get("/contacts", admin.ListContacts)
}
