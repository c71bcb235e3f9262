package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopdesk-io/shopdesk/pkg/broker"
	"github.com/shopdesk-io/shopdesk/pkg/models"
)

// TaskPollMail is the beat-scheduled mailbox poll.
const TaskPollMail = "ingest.poll_mail"

// MailClient lists and fetches raw mailbox messages. Implementations wrap
// a provider API (Gmail-shaped: opaque message IDs, RFC 5322 raw bodies).
type MailClient interface {
	ListMessageIDs(ctx context.Context, query string, maxResults int) ([]string, error)
	GetRawMessage(ctx context.Context, id string) ([]byte, error)
}

// PollerConfig tunes one mailbox poller.
type PollerConfig struct {
	Source     string
	Query      string
	MaxResults int
}

// DefaultPollerConfig returns the production mailbox settings.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Source:     "gmail",
		Query:      "newer_than:1d",
		MaxResults: 25,
	}
}

// Poller drains recent mailbox messages into the ingestion service.
type Poller struct {
	client  MailClient
	service *Service
	cfg     PollerConfig
}

// NewPoller wires a mailbox poller.
func NewPoller(client MailClient, service *Service, cfg PollerConfig) *Poller {
	if cfg.Source == "" {
		cfg.Source = "gmail"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 25
	}
	return &Poller{client: client, service: service, cfg: cfg}
}

// Register binds the poll task onto the broker registry.
func (p *Poller) Register(registry *broker.Registry) {
	registry.Register(TaskPollMail, func(ctx context.Context, _ broker.Task) error {
		return p.Poll(ctx)
	})
}

// Poll lists recent mailbox messages and ingests the new ones. A failure
// on one message is logged and does not block the rest; the poll fails
// only when listing does.
func (p *Poller) Poll(ctx context.Context) error {
	ids, err := p.client.ListMessageIDs(ctx, p.cfg.Query, p.cfg.MaxResults)
	if err != nil {
		return fmt.Errorf("failed to list mailbox messages: %w", err)
	}
	slog.Info("Mailbox poll", "source", p.cfg.Source, "messages", len(ids))

	ingested := 0
	for _, id := range ids {
		result, err := p.pollOne(ctx, id)
		if err != nil {
			slog.Error("Failed to ingest mailbox message",
				"source", p.cfg.Source, "external_id", id, "error", err)
			continue
		}
		if result.Created {
			ingested++
		}
	}
	slog.Info("Mailbox poll finished", "source", p.cfg.Source, "ingested", ingested)
	return nil
}

func (p *Poller) pollOne(ctx context.Context, id string) (*Result, error) {
	raw, err := p.client.GetRawMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}

	parsed, err := ParseEmail(raw)
	if err != nil {
		return nil, err
	}

	externalID := parsed.MessageID
	if externalID == "" {
		externalID = id
	}

	input := mailUpsertInput(p.cfg.Source, externalID, parsed)
	return p.service.Ingest(ctx, input, parsed.Attachments)
}

func mailUpsertInput(source, externalID string, parsed *ParsedEmail) models.UpsertMessageInput {
	input := models.UpsertMessageInput{
		Source:     source,
		ExternalID: &externalID,
		Timestamp:  parsed.Date,
	}
	if parsed.Subject != "" {
		input.Subject = &parsed.Subject
	}
	if parsed.From != "" {
		input.FromAddr = &parsed.From
	}
	if parsed.BodyText != "" {
		input.BodyText = &parsed.BodyText
	}
	return input
}
