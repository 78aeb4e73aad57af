// Package notify escalates operational problems to the administrator
// through an Apprise-compatible notification endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fediwatch/mentiond/internal/domain"
)

const requestTimeout = 15 * time.Second

// AppriseSink delivers notifications by POSTing to an Apprise API
// endpoint. Which services actually receive the message (mail,
// Telegram, Signal, ...) is the endpoint's configuration, not ours.
type AppriseSink struct {
	url    string
	client *http.Client
}

// NewAppriseSink creates a sink for the given endpoint URL.
func NewAppriseSink(url string) *AppriseSink {
	return &AppriseSink{
		url:    url,
		client: &http.Client{Timeout: requestTimeout},
	}
}

type apprisePayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Notify sends msg to the administrator. A failure here cannot be
// escalated through the sink itself; callers log it locally instead.
func (s *AppriseSink) Notify(ctx context.Context, msg string) error {
	payload, err := json.Marshal(apprisePayload{Title: "mentiond", Body: msg})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Ensure AppriseSink implements domain.AlertSink.
var _ domain.AlertSink = (*AppriseSink)(nil)
