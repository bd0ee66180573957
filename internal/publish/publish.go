// Package publish holds the uploader and enrichment collaborators the agent
// delegates to. Real platform integrations are out of tree; the webhook
// uploader lets an external worker perform the actual publish.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"uploadqueue/internal/task"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBodyBytes  = 512
)

type ctxKey int

const (
	ctxKeyHTTPTimeout ctxKey = iota
)

// WithHTTPTimeout returns a child context that carries the HTTP client timeout
func WithHTTPTimeout(parent context.Context, timeout time.Duration) context.Context {
	return context.WithValue(parent, ctxKeyHTTPTimeout, timeout)
}

func httpTimeoutFromContext(ctx context.Context) time.Duration {
	v := ctx.Value(ctxKeyHTTPTimeout)
	if d, ok := v.(time.Duration); ok && d > 0 {
		return d
	}
	return defaultHTTPTimeout
}

// SimulatedUploader accepts every task without contacting a platform.
type SimulatedUploader struct{}

func (SimulatedUploader) Upload(ctx context.Context, t *task.VideoTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Info().
		Str("task_id", t.ID).
		Str("title", t.Title).
		Str("visibility", string(t.Visibility)).
		Str("source_url", t.SourceURL).
		Int("playlists", len(t.PlaylistIDs)).
		Msg("simulated upload accepted")
	return nil
}

// WebhookUploader posts the task as JSON to an endpoint that performs the publish.
// Any non-2xx response is reported as a failed upload.
type WebhookUploader struct {
	endpoint string
	client   *http.Client
}

func NewWebhookUploader(endpoint string, timeout time.Duration) (*WebhookUploader, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("webhook endpoint is required")
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &WebhookUploader{endpoint: endpoint, client: &http.Client{Timeout: timeout}}, nil
}

func (w *WebhookUploader) Upload(ctx context.Context, t *task.VideoTask) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	client := w.client
	if _, ok := ctx.Value(ctxKeyHTTPTimeout).(time.Duration); ok {
		client = &http.Client{Timeout: httpTimeoutFromContext(ctx), Transport: w.client.Transport}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Task-ID", t.ID)

	httpResponse, err := client.Do(req)
	if err != nil {
		log.Warn().Str("task_id", t.ID).Str("endpoint", w.endpoint).Err(err).Msg("webhook request failed")
		return fmt.Errorf("webhook request: %w", err)
	}
	defer func() { _ = httpResponse.Body.Close() }()

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(httpResponse.Body, maxErrorBodyBytes))
		log.Warn().Str("task_id", t.ID).Int("status", httpResponse.StatusCode).Msg("unexpected webhook status code")
		if msg := strings.TrimSpace(string(snippet)); msg != "" {
			return fmt.Errorf("webhook http %d: %s", httpResponse.StatusCode, msg)
		}
		return fmt.Errorf("webhook http %d", httpResponse.StatusCode)
	}
	_, _ = io.Copy(io.Discard, httpResponse.Body)
	return nil
}
