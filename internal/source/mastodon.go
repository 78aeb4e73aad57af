// Package source implements the mention source against the Mastodon
// REST API.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/fediwatch/mentiond/internal/domain"
)

const (
	requestTimeout = 15 * time.Second
	fetchLimit     = 40
)

// Client talks to a single Mastodon instance with one account's token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Mastodon API client.
func NewClient(baseURL, accessToken string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   accessToken,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

type apiAccount struct {
	ID   string `json:"id"`
	Acct string `json:"acct"`
}

type apiStatus struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type apiNotification struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	CreatedAt time.Time  `json:"created_at"`
	Account   apiAccount `json:"account"`
	Status    *apiStatus `json:"status"`
}

// VerifyCredentials resolves the bot's own account. A failure here is
// fatal: without valid credentials nothing else can work.
func (c *Client) VerifyCredentials(ctx context.Context) (domain.Account, error) {
	var acct apiAccount
	if err := c.get(ctx, "/api/v1/accounts/verify_credentials", nil, &acct); err != nil {
		return domain.Account{}, err
	}
	return domain.Account{ID: acct.ID, Acct: acct.Acct}, nil
}

// FetchMentions returns mention notifications newer than sinceID
// (exclusive), oldest first. The API returns newest first and may
// overlap across polls; dedup is the engine's job, ordering is ours.
func (c *Client) FetchMentions(ctx context.Context, sinceID string) ([]domain.Mention, error) {
	query := url.Values{}
	query.Set("types[]", "mention")
	query.Set("limit", fmt.Sprintf("%d", fetchLimit))
	if sinceID != "" {
		query.Set("since_id", sinceID)
	}

	var notifications []apiNotification
	if err := c.get(ctx, "/api/v1/notifications", query, &notifications); err != nil {
		return nil, err
	}

	mentions := make([]domain.Mention, 0, len(notifications))
	// Reverse to oldest-first for dispatch ordering.
	for i := len(notifications) - 1; i >= 0; i-- {
		n := notifications[i]
		if n.Type != "mention" || n.Status == nil {
			continue
		}
		mentions = append(mentions, domain.Mention{
			ID:        n.ID,
			StatusID:  n.Status.ID,
			AuthorID:  n.Account.ID,
			Author:    n.Account.Acct,
			Content:   stripHTML(n.Status.Content),
			CreatedAt: n.CreatedAt,
		})
	}
	return mentions, nil
}

// PostReply posts text as a direct-visibility reply to the mention's
// status.
func (c *Client) PostReply(ctx context.Context, m domain.Mention, text string) error {
	form := url.Values{}
	form.Set("status", text)
	form.Set("in_reply_to_id", m.StatusID)
	form.Set("visibility", "direct")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/statuses", strings.NewReader(form.Encode()))
	if err != nil {
		return &domain.SourceError{Op: "post reply", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.SourceError{Op: "post reply", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError("post reply", resp.StatusCode)
	}
	return nil
}

// get performs an authenticated GET and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &domain.SourceError{Op: path, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		// Network errors, timeouts: transient, retried next tick.
		return &domain.SourceError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return c.statusError(path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.SourceError{Op: path, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// statusError classifies a non-2xx response. Rate limits and server
// errors are transient; client errors (bad token above all) are fatal.
func (c *Client) statusError(op string, status int) error {
	fatal := status >= 400 && status < 500 && status != http.StatusTooManyRequests
	return &domain.SourceError{
		Op:         op,
		StatusCode: status,
		Fatal:      fatal,
		Err:        fmt.Errorf("%s", http.StatusText(status)),
	}
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	breakPattern = regexp.MustCompile(`<br\s*/?>|</p>`)
)

// stripHTML flattens Mastodon's HTML status content to plain text.
func stripHTML(s string) string {
	s = breakPattern.ReplaceAllString(s, "\n")
	s = tagPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")
	return strings.TrimSpace(s)
}

// Ensure Client implements domain.MentionSource.
var _ domain.MentionSource = (*Client)(nil)
