// Package notify posts job completion messages to a chat webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/vrsandeep/collections-go/internal/models"
)

// Webhook sends Slack-compatible {"text": ...} payloads.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

// JobFinished posts a summary of a terminal job. Delivery runs in the
// background and failures are only logged.
func (w *Webhook) JobFinished(ctx context.Context, job models.Job) {
	if w == nil || w.url == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := w.Send(ctx, Message(job)); err != nil {
			log.Printf("Webhook notification for job %s failed: %v", job.ID, err)
		}
	}()
}

// Send posts text to the webhook.
func (w *Webhook) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Message renders the notification text for a job.
func Message(job models.Job) string {
	switch job.State {
	case models.JobCompleted:
		return fmt.Sprintf("✅ %s completed: %d/%d companies processed", job.Name, job.Done, job.Total)
	case models.JobCancelled:
		return fmt.Sprintf("⏹️ %s cancelled at %d/%d companies", job.Name, job.Done, job.Total)
	case models.JobFailed:
		return fmt.Sprintf("❌ %s failed after %d/%d companies: %s", job.Name, job.Done, job.Total, job.ErrorMessage)
	default:
		return fmt.Sprintf("%s is %s (%d/%d)", job.Name, job.State, job.Done, job.Total)
	}
}
