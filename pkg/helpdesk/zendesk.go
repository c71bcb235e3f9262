// Package helpdesk mirrors tickets into an external help desk (Zendesk).
// Failures here never block the pipeline; the local ticket row is the
// source of truth and the external ID is best-effort.
package helpdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Config holds help desk settings.
type Config struct {
	// Sandbox short-circuits all calls with stub responses. On by default.
	Sandbox   bool   `yaml:"sandbox"`
	Subdomain string `yaml:"subdomain"`
	Email     string `yaml:"email"`
	APIToken  string `yaml:"api_token"`
}

// Ticket is the external ticket shape.
type Ticket struct {
	Subject string `json:"subject"`
	Comment struct {
		Body string `json:"body"`
	} `json:"comment"`
	Priority string   `json:"priority,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Client creates tickets and posts public comments.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient builds a help desk client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) baseURL() string {
	return fmt.Sprintf("https://%s.zendesk.com/api/v2", c.cfg.Subdomain)
}

func (c *Client) configured() bool {
	return c.cfg.Subdomain != "" && c.cfg.Email != "" && c.cfg.APIToken != ""
}

// CreateTicket returns the external ticket ID, or "" when the help desk is
// unreachable or unconfigured. Callers treat "" as "no external mirror".
func (c *Client) CreateTicket(ctx context.Context, ticket Ticket) string {
	if c.cfg.Sandbox {
		subject := ticket.Subject
		if subject == "" {
			subject = "ticket"
		}
		return "zd_stub_" + subject
	}
	if !c.configured() {
		return ""
	}

	var out struct {
		Ticket struct {
			ID json.Number `json:"id"`
		} `json:"ticket"`
	}
	err := c.do(ctx, http.MethodPost, "/tickets.json", map[string]any{"ticket": ticket}, &out)
	if err != nil {
		slog.Warn("Help desk ticket creation failed", "error", err)
		return ""
	}
	return out.Ticket.ID.String()
}

// AddPublicComment posts an operator reply to an external ticket.
func (c *Client) AddPublicComment(ctx context.Context, ticketID, body string) bool {
	if c.cfg.Sandbox {
		return true
	}
	if !c.configured() {
		return false
	}

	payload := map[string]any{
		"ticket": map[string]any{
			"comment": map[string]any{"body": body, "public": true},
		},
	}
	err := c.do(ctx, http.MethodPut, "/tickets/"+ticketID+".json", payload, nil)
	if err != nil {
		slog.Warn("Help desk comment failed", "ticket_id", ticketID, "error", err)
		return false
	}
	return true
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal help desk request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL()+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build help desk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.Email+"/token", c.cfg.APIToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("help desk request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("help desk returned %d: %s", resp.StatusCode, snippet)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode help desk response: %w", err)
		}
	}
	return nil
}
