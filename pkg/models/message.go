package models

import "time"

// Message is the canonical inbound artifact: one email or one direct upload.
// Messages are immutable once created; enrichment results live in the event log.
type Message struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	ExternalID *string        `json:"external_id,omitempty"`
	Subject    *string        `json:"subject,omitempty"`
	FromAddr   *string        `json:"from_addr,omitempty"`
	Timestamp  time.Time      `json:"ts"`
	BodyText   *string        `json:"body_text,omitempty"`
	SourceMeta map[string]any `json:"source_meta,omitempty"`
}

// Body returns the message body text, or "" when absent.
func (m *Message) Body() string {
	if m.BodyText == nil {
		return ""
	}
	return *m.BodyText
}

// UpsertMessageInput contains the fields for idempotent message ingestion.
// When ExternalID is set, re-ingesting the same (Source, ExternalID) pair
// returns the existing row instead of creating a duplicate.
type UpsertMessageInput struct {
	Source     string
	ExternalID *string
	Subject    *string
	FromAddr   *string
	Timestamp  time.Time
	BodyText   *string
	SourceMeta map[string]any
}
