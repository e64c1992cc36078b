package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/obralink/obrabot-backend/internal/jobs"
	"github.com/obralink/obrabot-backend/internal/models"
	"github.com/obralink/obrabot-backend/internal/services"
	"github.com/obralink/obrabot-backend/internal/storage"
)

// AdminHandler exposes the operational surface: sessions, schedules,
// dispatch logs, ad-hoc sends and transport control.
type AdminHandler struct {
	store     storage.Store
	sessions  *services.SessionStore
	logs      *services.DispatchLog
	transport services.Transport
	dispatch  *jobs.DispatchJob
	gateway   *services.AuthorizationGateway
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(
	store storage.Store,
	sessions *services.SessionStore,
	logs *services.DispatchLog,
	transport services.Transport,
	dispatch *jobs.DispatchJob,
	gateway *services.AuthorizationGateway,
) *AdminHandler {
	return &AdminHandler{
		store:     store,
		sessions:  sessions,
		logs:      logs,
		transport: transport,
		dispatch:  dispatch,
		gateway:   gateway,
	}
}

// ListSessions returns every active conversation session.
func (h *AdminHandler) ListSessions(c *fiber.Ctx) error {
	sessions := h.sessions.ActiveSessions()
	return c.JSON(fiber.Map{
		"success":  true,
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// CancelSession tears down the session for an address.
func (h *AdminHandler) CancelSession(c *fiber.Ctx) error {
	address := models.NormalizePhone(c.Params("address"))
	if address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid address",
		})
	}

	h.sessions.Delete(address)
	h.sessions.DeletePending(address)
	return c.JSON(fiber.Map{"success": true})
}

// CreateScheduleRequest is the admin payload for a new broadcast schedule.
type CreateScheduleRequest struct {
	Message    string             `json:"message"`
	Recipients []models.Recipient `json:"recipients"`
	Frequency  string             `json:"frequency"`
	TimeOfDay  string             `json:"time_of_day"`
	Weekdays   []int              `json:"weekdays"`
	StartDate  *time.Time         `json:"start_date"`
	Priority   string             `json:"priority"`
}

// CreateSchedule registers a new broadcast schedule with a frozen
// recipient list.
func (h *AdminHandler) CreateSchedule(c *fiber.Ctx) error {
	var req CreateScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Message == "" || len(req.Recipients) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message and recipients are required",
		})
	}
	if !models.ValidFrequency(req.Frequency) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown frequency",
		})
	}
	if _, err := time.Parse("15:04", req.TimeOfDay); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "time_of_day must be HH:MM",
		})
	}

	schedule := &models.BroadcastSchedule{
		Message:   req.Message,
		Frequency: req.Frequency,
		TimeOfDay: req.TimeOfDay,
		StartDate: req.StartDate,
		Priority:  req.Priority,
		Enabled:   true,
	}
	schedule.SetRecipientList(req.Recipients)
	schedule.SetWeekdaySet(req.Weekdays)

	created, err := h.store.CreateSchedule(schedule)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create schedule",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":  true,
		"schedule": created,
	})
}

// ListSchedules returns every broadcast schedule.
func (h *AdminHandler) ListSchedules(c *fiber.Ctx) error {
	schedules, err := h.store.GetAllSchedules()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list schedules",
		})
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"schedules": schedules,
		"count":     len(schedules),
	})
}

// SetScheduleEnabled flips the enabled flag of a schedule.
func (h *AdminHandler) SetScheduleEnabled(c *fiber.Ctx) error {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.store.SetScheduleEnabled(c.Params("scheduleID"), req.Enabled); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Schedule not found",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// DeleteSchedule removes a schedule permanently.
func (h *AdminHandler) DeleteSchedule(c *fiber.Ctx) error {
	if err := h.store.DeleteSchedule(c.Params("scheduleID")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Schedule not found",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// GetDispatchLogs returns recent dispatch log entries, filtered by
// schedule id, severity and limit.
func (h *AdminHandler) GetDispatchLogs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	entries := h.logs.Recent(c.Query("schedule_id"), c.Query("severity"), limit)
	return c.JSON(fiber.Map{
		"success": true,
		"logs":    entries,
		"count":   len(entries),
	})
}

// SendMessage delivers an ad-hoc message on the channel.
func (h *AdminHandler) SendMessage(c *fiber.Ctx) error {
	var req struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.To == "" || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "to and message are required",
		})
	}

	deliveryID, err := h.transport.Send(req.To, req.Message)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"delivery_id": deliveryID,
	})
}

// ConnectTransport brings the channel up.
func (h *AdminHandler) ConnectTransport(c *fiber.Ctx) error {
	if err := h.transport.Connect(); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"success": true, "connected": true})
}

// DisconnectTransport takes the channel down.
func (h *AdminHandler) DisconnectTransport(c *fiber.Ctx) error {
	if err := h.transport.Disconnect(); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"success": true, "connected": false})
}

// Status summarizes the running services for monitoring.
func (h *AdminHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success":          true,
		"transport":        h.transport.Connected(),
		"dispatch_running": h.dispatch.Running(),
		"active_sessions":  len(h.sessions.ActiveSessions()),
	})
}

// CreateContact registers a directory entry and refreshes the
// authorization snapshot.
func (h *AdminHandler) CreateContact(c *fiber.Ctx) error {
	var req struct {
		Name             string     `json:"name"`
		Phone            string     `json:"phone"`
		CanCreateTickets bool       `json:"can_create_tickets"`
		CanRegisterClock bool       `json:"can_register_clock"`
		InternalUserID   string     `json:"internal_user_id"`
		SiteIDs          []string   `json:"site_ids"`
		StartDate        *time.Time `json:"start_date"`
		EndDate          *time.Time `json:"end_date"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	entry := &models.ContactEntry{
		Name:             req.Name,
		Phone:            req.Phone,
		CanCreateTickets: req.CanCreateTickets,
		CanRegisterClock: req.CanRegisterClock,
		InternalUserID:   req.InternalUserID,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
	}
	entry.SetSiteIDs(req.SiteIDs)

	created, err := h.store.CreateContactEntry(entry)
	if err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := h.gateway.Refresh(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Contact saved but directory refresh failed",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"contact": created,
	})
}

// ListContacts returns the contact directory.
func (h *AdminHandler) ListContacts(c *fiber.Ctx) error {
	entries, err := h.store.ListContactEntries()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list contacts",
		})
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"contacts": entries,
		"count":    len(entries),
	})
}
