package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ashureev/maturity-report/internal/domain"
)

// Trigger starts the external analysis for a freshly created job.
type Trigger interface {
	Trigger(ctx context.Context, job *domain.Job) error
}

// WebhookTrigger posts the job profile to an automation webhook.
type WebhookTrigger struct {
	url    string
	client *http.Client
}

// NewWebhookTrigger returns a trigger posting to url.
func NewWebhookTrigger(url string, timeout time.Duration) *WebhookTrigger {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebhookTrigger{url: url, client: &http.Client{Timeout: timeout}}
}

type webhookPayload struct {
	JobID       string `json:"jobId"`
	CompanyName string `json:"companyName"`
	Website     string `json:"website"`
	Sector      string `json:"sector"`
	Email       string `json:"email"`
	Notes       string `json:"notes"`
}

// Trigger posts the job. Any 2xx response counts as accepted; the body is
// ignored.
func (w *WebhookTrigger) Trigger(ctx context.Context, job *domain.Job) error {
	body, err := json.Marshal(webhookPayload{
		JobID:       job.ID,
		CompanyName: job.Company.CompanyName,
		Website:     job.Company.Website,
		Sector:      job.Company.Sector,
		Email:       job.Company.Email,
		Notes:       job.Company.Notes,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("call webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("call webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
