package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/israelwong/promediamx-sub002/pkg/logging"
)

// SessionRequest describes the payment to collect.
type SessionRequest struct {
	BusinessID  uuid.UUID `json:"negocioId"`
	LeadID      uuid.UUID `json:"leadId"`
	Concept     string    `json:"concepto"`
	AmountCents int64     `json:"montoCentavos"`
	Currency    string    `json:"moneda"`
	Reference   string    `json:"referencia,omitempty"`
	SuccessURL  string    `json:"urlExito,omitempty"`
	CancelURL   string    `json:"urlCancelacion,omitempty"`
}

// Session is a created checkout session the user can be sent to.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CheckoutClient creates hosted checkout sessions with the payment
// provider. Webhook handling for completed payments lives in a separate
// service; this client only opens the session.
type CheckoutClient interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// CheckoutConfig carries the gateway settings for HTTPCheckoutClient.
type CheckoutConfig struct {
	Endpoint   string
	APIKey     string
	SuccessURL string
	CancelURL  string
}

// HTTPCheckoutClient talks to the internal checkout gateway over HTTP.
type HTTPCheckoutClient struct {
	cfg    CheckoutConfig
	client *http.Client
	logger *logging.Logger
}

// NewHTTPCheckoutClient creates a checkout client. Returns nil when no
// endpoint is configured so callers can treat payments as optional.
func NewHTTPCheckoutClient(cfg CheckoutConfig, logger *logging.Logger) *HTTPCheckoutClient {
	if cfg.Endpoint == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &HTTPCheckoutClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 20 * time.Second},
		logger: logger,
	}
}

// CreateSession opens a hosted checkout session and returns its URL.
func (c *HTTPCheckoutClient) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if c == nil {
		return nil, fmt.Errorf("payments: checkout client not configured")
	}
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("payments: amount must be positive, got %d", req.AmountCents)
	}
	if req.SuccessURL == "" {
		req.SuccessURL = c.cfg.SuccessURL
	}
	if req.CancelURL == "" {
		req.CancelURL = c.cfg.CancelURL
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("payments: encode session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("payments: build session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payments: session request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("payments: checkout gateway returned status %d", resp.StatusCode)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("payments: decode session response: %w", err)
	}
	if session.URL == "" {
		return nil, fmt.Errorf("payments: checkout gateway returned empty session url")
	}

	c.logger.Info("checkout session created", "session_id", session.ID, "lead_id", req.LeadID)
	return &session, nil
}
