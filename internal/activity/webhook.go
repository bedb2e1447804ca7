package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/pricebook/internal/domain"
)

// WebhookConfig holds configuration for the webhook sink.
type WebhookConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Webhook posts entries as JSON to an external activity feed.
type Webhook struct {
	client *resty.Client
	url    string
}

type webhookPayload struct {
	OrganizationID string    `json:"organization_id"`
	Actor          string    `json:"actor,omitempty"`
	EntityType     string    `json:"entity_type"`
	EntityID       string    `json:"entity_id"`
	Action         string    `json:"action"`
	Description    string    `json:"description"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewWebhook creates a webhook sink.
// Parameters:
//   - cfg: endpoint, bearer token and request timeout.
// Returns:
//   - *Webhook: initialized sink.
func NewWebhook(cfg *WebhookConfig) *Webhook {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client.SetTimeout(timeout)

	return &Webhook{client: client, url: cfg.URL}
}

// Log implements Logger.
func (w *Webhook) Log(ctx context.Context, entry domain.ActivityEntry) error {
	occurred := entry.CreatedAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(webhookPayload{
			OrganizationID: entry.OrganizationID,
			Actor:          entry.Actor,
			EntityType:     entry.EntityType,
			EntityID:       entry.EntityID,
			Action:         entry.Action,
			Description:    entry.Description,
			OccurredAt:     occurred,
		}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("activity webhook request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("activity webhook returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
