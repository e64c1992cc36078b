package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/obralink/obrabot-backend/internal/models"
)

// ERPService is the remote ERP this core submits work to. All calls are
// request/response over HTTP; from the conversation's standpoint the submit
// steps are fire-and-forget.
type ERPService interface {
	ValidateClient(query string) (*models.Client, error)
	FetchActiveContracts(clientID string) ([]models.Contract, error)
	CreateTicket(req models.TicketRequest) (*models.TicketResult, error)
	CreateClockRecord(req models.ClockRecordRequest) error
	ResolveLastClockState(internalUserID, siteID string) (models.LastClockState, error)
}

// NotificationSink delivers best-effort notifications outside the chat
// channel, e.g. to the technician a ticket was assigned to.
type NotificationSink interface {
	NotifyTechnician(technician, message string) error
}

// HTTPERPService talks to the ERP API with a bearer token and tenant
// header.
type HTTPERPService struct {
	baseURL string
	token   string
	tenant  string
	client  *http.Client
}

// NewHTTPERPService builds the ERP client from environment configuration.
func NewHTTPERPService() (*HTTPERPService, error) {
	baseURL := os.Getenv("ERP_BASE_URL")
	token := os.Getenv("ERP_API_TOKEN")
	tenant := os.Getenv("ERP_TENANT")

	if baseURL == "" || token == "" {
		return nil, fmt.Errorf("missing ERP credentials in environment variables")
	}

	return &HTTPERPService{
		baseURL: baseURL,
		token:   token,
		tenant:  tenant,
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (e *HTTPERPService) ValidateClient(query string) (*models.Client, error) {
	var client models.Client
	path := fmt.Sprintf("/api/clients/validate?q=%s", url.QueryEscape(query))
	if err := e.do(http.MethodGet, path, nil, &client); err != nil {
		return nil, err
	}
	if client.ID == "" {
		return nil, nil
	}
	return &client, nil
}

func (e *HTTPERPService) FetchActiveContracts(clientID string) ([]models.Contract, error) {
	var contracts []models.Contract
	path := fmt.Sprintf("/api/clients/%s/contracts?active=true", url.PathEscape(clientID))
	if err := e.do(http.MethodGet, path, nil, &contracts); err != nil {
		return nil, err
	}
	return contracts, nil
}

func (e *HTTPERPService) CreateTicket(req models.TicketRequest) (*models.TicketResult, error) {
	var result models.TicketResult
	if err := e.do(http.MethodPost, "/api/tickets", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (e *HTTPERPService) CreateClockRecord(req models.ClockRecordRequest) error {
	return e.do(http.MethodPost, "/api/clock-records", req, nil)
}

func (e *HTTPERPService) ResolveLastClockState(internalUserID, siteID string) (models.LastClockState, error) {
	var state models.LastClockState
	path := fmt.Sprintf("/api/clock-records/last?user=%s&site=%s",
		url.QueryEscape(internalUserID), url.QueryEscape(siteID))
	if err := e.do(http.MethodGet, path, nil, &state); err != nil {
		return models.LastClockState{}, err
	}
	return state, nil
}

func (e *HTTPERPService) do(method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode ERP request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build ERP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("Content-Type", "application/json")
	if e.tenant != "" {
		req.Header.Set("X-Tenant", e.tenant)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("ERP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Lookups treat not-found as an empty result, not a failure.
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ERP returned status %d for %s %s", resp.StatusCode, method, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode ERP response: %w", err)
		}
	}
	return nil
}

// HTTPNotificationSink posts technician notifications to the ERP's
// notification endpoint. Failures are the caller's to log and ignore.
type HTTPNotificationSink struct {
	erp *HTTPERPService
}

// NewHTTPNotificationSink reuses the ERP client's credentials.
func NewHTTPNotificationSink(erp *HTTPERPService) *HTTPNotificationSink {
	return &HTTPNotificationSink{erp: erp}
}

func (n *HTTPNotificationSink) NotifyTechnician(technician, message string) error {
	payload := map[string]string{
		"technician": technician,
		"message":    message,
	}
	return n.erp.do(http.MethodPost, "/api/notifications/technician", payload, nil)
}
