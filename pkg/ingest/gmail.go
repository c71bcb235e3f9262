package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const gmailBaseURL = "https://gmail.googleapis.com/gmail/v1"

// GmailClient implements MailClient over the Gmail REST API. The access
// token is read from a credentials file at construction; refreshing it is
// the operator's concern (a sidecar or cron re-writes the file and the
// process is restarted).
type GmailClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userID     string
}

// NewGmailClient reads the bearer token from tokenFile and returns a
// client for the authorized user's mailbox.
func NewGmailClient(tokenFile string) (*GmailClient, error) {
	data, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read gmail credentials: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return nil, fmt.Errorf("gmail credentials file %s is empty", tokenFile)
	}
	return &GmailClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    gmailBaseURL,
		token:      token,
		userID:     "me",
	}, nil
}

// ListMessageIDs returns the IDs of messages matching the query, newest
// first.
func (c *GmailClient) ListMessageIDs(ctx context.Context, query string, maxResults int) ([]string, error) {
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	if maxResults > 0 {
		params.Set("maxResults", strconv.Itoa(maxResults))
	}

	var resp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	path := fmt.Sprintf("/users/%s/messages?%s", c.userID, params.Encode())
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// GetRawMessage fetches one message in RFC 5322 form.
func (c *GmailClient) GetRawMessage(ctx context.Context, id string) ([]byte, error) {
	var resp struct {
		Raw string `json:"raw"`
	}
	path := fmt.Sprintf("/users/%s/messages/%s?format=raw", c.userID, url.PathEscape(id))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(resp.Raw, "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode message %s: %w", id, err)
	}
	return raw, nil
}

func (c *GmailClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gmail request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gmail request returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
