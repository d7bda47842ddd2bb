package notify

import (
	"context"
	"fmt"
	"time"

	"cohort-extractor/internal/models"

	"github.com/go-resty/resty/v2"
)

// Webhook POSTs run summaries as JSON. A 4xx or 5xx response is an error and
// is not retried.
type Webhook struct {
	httpClient *resty.Client
	url        string
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Webhook{httpClient: client, url: url}
}

func (n *Webhook) Publish(ctx context.Context, summary *models.RunSummary) error {
	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(summary).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}
