package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/scribepipe/scribepipe/pkg/job"
	"github.com/scribepipe/scribepipe/pkg/logger"
	"github.com/scribepipe/scribepipe/pkg/store"
)

// WebhookNotifier delivers a one-shot callback when a job reaches a
// terminal status. Delivery is best effort: a failed POST is logged, not
// retried, and never affects the job outcome.
type WebhookNotifier struct {
	store  store.Store
	client *http.Client
}

// NewWebhookNotifier creates a notifier.
func NewWebhookNotifier(st store.Store) *WebhookNotifier {
	return &WebhookNotifier{
		store:  st,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	JobID           string  `json:"job_id"`
	Status          string  `json:"status"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	ResultKey       string  `json:"result_key,omitempty"`
	ErrorCode       string  `json:"error_code,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	CompletedAt     string  `json:"completed_at,omitempty"`
}

// Notify posts the job's terminal state to its webhook URL, if one was
// registered and not already notified.
func (n *WebhookNotifier) Notify(ctx context.Context, j *job.Job) {
	if j.WebhookURL == "" || j.WebhookSent {
		return
	}
	log := logger.WithJob("webhook", j.ID)

	payload := webhookPayload{
		JobID:           j.ID,
		Status:          string(j.Status),
		DurationSeconds: j.DurationSeconds,
		ResultKey:       j.ResultKey,
		ErrorCode:       j.ErrorCode,
		ErrorMessage:    j.ErrorMessage,
	}
	if j.CompletedAt != nil {
		payload.CompletedAt = j.CompletedAt.UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal webhook payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.WebhookURL, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("Failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Webhook delivery failed")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Msg("Webhook rejected")
		return
	}

	if _, err := n.store.UpdateJob(ctx, j.ID, func(cur *job.Job) error {
		cur.WebhookSent = true
		return nil
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to record webhook delivery")
		return
	}
	log.Info().Msg("Webhook delivered")
}
