package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/obralink/obrabot-backend/database"
	"github.com/obralink/obrabot-backend/internal/handlers"
	"github.com/obralink/obrabot-backend/internal/jobs"
	"github.com/obralink/obrabot-backend/internal/models"
	"github.com/obralink/obrabot-backend/internal/routes"
	"github.com/obralink/obrabot-backend/internal/services"
	"github.com/obralink/obrabot-backend/internal/storage"
)

func main() {
	// Load .env file for local development
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		err := godotenv.Load(".env")
		if err != nil {
			err = godotenv.Load("environments/.env.development")
			if err != nil {
				log.Println("⚠️  No .env file found - checking environment variables")
			}
		}
	}

	// Initialize storage
	var store storage.Store
	if os.Getenv("USE_MEMORY_STORE") == "true" {
		log.Println("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		log.Println("📦 Connecting to PostgreSQL database...")
		database.Connect()

		log.Println("🔄 Running database migrations...")
		err := database.DB.AutoMigrate(
			&models.ContactEntry{},
			&models.BroadcastSchedule{},
		)
		if err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(database.DB)
	}

	// Initialize the WhatsApp transport
	transport, err := services.NewTwilioTransport()
	if err != nil {
		log.Fatal("Failed to initialize WhatsApp transport:", err)
	}
	if err := transport.Connect(); err != nil {
		log.Fatal("Failed to connect WhatsApp transport:", err)
	}

	// Initialize the ERP client and notification sink
	erp, err := services.NewHTTPERPService()
	if err != nil {
		log.Fatal("Failed to initialize ERP client:", err)
	}
	sink := services.NewHTTPNotificationSink(erp)

	// Civil timezone for broadcast schedules
	tzName := os.Getenv("SCHEDULE_TIMEZONE")
	if tzName == "" {
		tzName = "Europe/Lisbon"
	}
	location, err := time.LoadLocation(tzName)
	if err != nil {
		log.Fatal("Invalid SCHEDULE_TIMEZONE:", err)
	}

	// Wire the core: owned stores into the orchestrator, no singletons
	sessions := services.NewSessionStore(transport)
	gateway := services.NewAuthorizationGateway(store)
	dispatchLog := services.NewDispatchLog(services.DefaultDispatchLogSize)

	orchestrator := services.NewOrchestrator(sessions, gateway, erp, sink, transport)
	orchestrator.Start()

	dispatchJob := jobs.NewDispatchJob(store, transport, dispatchLog, location)
	dispatchJob.Start()

	log.Println("✅ All services initialized and scheduled jobs started")

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName: "ObraBot Backend v1.0.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))

	// Service summary endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		schedules, _ := store.GetAllSchedules()
		return c.JSON(fiber.Map{
			"service":     "ObraBot Backend API",
			"version":     "1.0.0",
			"status":      "healthy",
			"environment": getEnvironment(),
			"storage":     getStorageType(),
			"whatsapp": fiber.Map{
				"connected": transport.Connected(),
			},
			"services": fiber.Map{
				"sessions":  len(sessions.ActiveSessions()),
				"schedules": len(schedules),
				"dispatch":  dispatchJob.Running(),
			},
		})
	})

	// Setup routes
	whatsappHandler := handlers.NewWhatsAppHandler(transport)
	adminHandler := handlers.NewAdminHandler(store, sessions, dispatchLog, transport, dispatchJob, gateway)
	routes.SetupRoutes(app, whatsappHandler, adminHandler)

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		log.Println("⏹️  Stopping dispatch job and sweeps...")
		dispatchJob.Stop()
		orchestrator.Stop()
		log.Println("⏹️  Shutting down server...")
		_ = app.Shutdown()
	}()

	// Start server
	log.Println("========================================")
	log.Printf("🚀 ObraBot Backend starting on port %s", port)
	log.Printf("📊 Storage: %s", getStorageType())
	log.Printf("🌍 Environment: %s", getEnvironment())
	log.Printf("🕐 Schedule timezone: %s", tzName)
	log.Println("========================================")

	log.Fatal(app.Listen(":" + port))
}

func getEnvironment() string {
	if os.Getenv("INSTANCE_CONNECTION_NAME") != "" {
		return "Production (Cloud Run)"
	}
	return "Development (Local)"
}

func getStorageType() string {
	if os.Getenv("USE_MEMORY_STORE") == "true" {
		return "In-Memory (Testing)"
	}
	return "PostgreSQL Database"
}
