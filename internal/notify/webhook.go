package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

const webhookUsername = "FlashForge Notifier"

// SnapshotFilename names the image attached to notifications
const SnapshotFilename = "snapshot.jpg"

type webhookImage struct {
	URL string `json:"url"`
}

type webhookEmbed struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Timestamp   string        `json:"timestamp,omitempty"`
	Image       *webhookImage `json:"image,omitempty"`
}

type webhookPayload struct {
	Username string         `json:"username"`
	Embeds   []webhookEmbed `json:"embeds"`
}

// Webhook posts a Discord style JSON message to a URL
type Webhook struct {
	URL        string
	Client     *http.Client
	MaxRetries int
	Backoff    time.Duration
}

// NewWebhook returns a webhook destination with default retry settings
func NewWebhook(url string) *Webhook {
	return &Webhook{
		URL:        url,
		Client:     &http.Client{Timeout: 10 * time.Second},
		MaxRetries: 3,
		Backoff:    200 * time.Millisecond,
	}
}

func (w *Webhook) Name() string {
	return "webhook:" + w.URL
}

// Send posts the message. With a snapshot the request is multipart/form-data
// carrying payload_json and the image as files[0].
func (w *Webhook) Send(ctx context.Context, msg Message, event models.NotificationEvent) error {
	embed := webhookEmbed{
		Title:       msg.Subject,
		Description: msg.Body,
		Timestamp:   event.FinishedAt.UTC().Format(time.RFC3339),
	}
	if event.HasSnapshot() {
		embed.Image = &webhookImage{URL: "attachment://" + SnapshotFilename}
	}
	payload, err := json.Marshal(webhookPayload{
		Username: webhookUsername,
		Embeds:   []webhookEmbed{embed},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	body, contentType := payload, "application/json"
	if event.HasSnapshot() {
		body, contentType, err = multipartBody(payload, event.Snapshot)
		if err != nil {
			return fmt.Errorf("failed to build webhook body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := w.doWithRetry(ctx, req, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// doWithRetry retries transport errors and 5xx/429 answers with exponential backoff
func (w *Webhook) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}

	var lastErr error
	for attempt := 0; attempt <= w.MaxRetries; attempt++ {
		attemptReq := req.Clone(ctx)
		attemptReq.Body = io.NopCloser(bytes.NewReader(body))

		resp, err := client.Do(attemptReq)
		if err == nil && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode)
			resp.Body.Close()
		}
		if attempt == w.MaxRetries {
			break
		}

		delay := w.Backoff * time.Duration(1<<uint(attempt))
		if delay > 5*time.Second {
			delay = 5 * time.Second
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("webhook cancelled during backoff: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("webhook failed after %d attempts: %w", w.MaxRetries+1, lastErr)
}

func multipartBody(payload, snapshot []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("payload_json", string(payload)); err != nil {
		return nil, "", err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files[0]"; filename="%s"`, SnapshotFilename))
	header.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(snapshot); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
