package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/israelwong/promediamx-sub002/pkg/logging"
)

// MediaItem is one attachment of an outbound message.
type MediaItem struct {
	Type    string `json:"tipo"`
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// OutboundMessage is the channel-agnostic payload handed to the delivery
// collaborator. UIPayload is only meaningful to channels that can render
// rich components; plain-text channels ignore it.
type OutboundMessage struct {
	ConversationID string         `json:"conversacionId"`
	Channel        string         `json:"canalNombre"`
	Destination    string         `json:"destinatarioId"`
	Content        string         `json:"contenido,omitempty"`
	Media          []MediaItem    `json:"media,omitempty"`
	UIPayload      map[string]any `json:"uiComponentePayload,omitempty"`
}

// Empty reports whether there is nothing to deliver.
func (m OutboundMessage) Empty() bool {
	return m.Content == "" && len(m.Media) == 0 && len(m.UIPayload) == 0
}

// Sender delivers outbound messages to the user-facing channel. The wire
// transport behind it is an external collaborator.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// WebhookSender posts outbound messages to the channel delivery endpoint.
type WebhookSender struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *logging.Logger
}

// NewWebhookSender creates a sender for the given delivery endpoint.
func NewWebhookSender(endpoint, token string, logger *logging.Logger) *WebhookSender {
	if endpoint == "" {
		panic("messaging: delivery endpoint required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookSender{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

// Send posts the message as JSON to the delivery endpoint.
func (s *WebhookSender) Send(ctx context.Context, msg OutboundMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("messaging: encode outbound message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("messaging: build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("messaging: delivery request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("messaging: delivery endpoint returned status %d", resp.StatusCode)
	}

	s.logger.Debug("outbound message delivered",
		"conversation_id", msg.ConversationID,
		"channel", msg.Channel,
		"has_media", len(msg.Media) > 0)
	return nil
}
