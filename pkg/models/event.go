package models

import (
	"encoding/json"
	"time"
)

// EventType identifies one kind of pipeline event. The set is closed;
// stage completion events are the only inter-stage communication channel.
type EventType string

// Pipeline event types.
const (
	EventIngested       EventType = "INGESTED"
	EventIngestedFanout EventType = "INGESTED_FANOUT"
	EventASRDone        EventType = "ASR_DONE"
	EventDocQADone      EventType = "DOCQA_DONE"
	EventVQADone        EventType = "VQA_DONE"
	EventClassifyDone   EventType = "CLASSIFY_DONE"
	EventSummaryDone    EventType = "SUMMARY_DONE"
	EventDocQASelected  EventType = "DOCQA_SELECTED"
	EventNormalizeDone  EventType = "NORMALIZE_DONE"
	EventTicketCreated  EventType = "TICKET_CREATED"
	EventReplyApproved  EventType = "REPLY_APPROVED"
)

// Event is one row of the append-only log. Events are never updated or
// deleted; the most recent event of a (message, type) pair is the
// effective stage result.
type Event struct {
	ID        int64           `json:"id"`
	TicketID  *string         `json:"ticket_id,omitempty"`
	MessageID *string         `json:"message_id,omitempty"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"ts"`
}

// IngestedPayload marks a freshly created message.
type IngestedPayload struct {
	MessageID string `json:"message_id"`
}

// FanoutDispatch records one task dispatched by the fan-out planner.
type FanoutDispatch struct {
	Task         string `json:"task"`
	AttachmentID string `json:"attachment_id"`
	TaskID       string `json:"task_id"`
}

// FanoutPayload is the INGESTED_FANOUT completion payload.
type FanoutPayload struct {
	MessageID  string           `json:"message_id"`
	Dispatched []FanoutDispatch `json:"dispatched"`
}

// ASRPayload is the ASR_DONE completion payload.
type ASRPayload struct {
	AttachmentID string  `json:"attachment_id"`
	MessageID    string  `json:"message_id"`
	Text         string  `json:"text"`
	Confidence   float64 `json:"confidence"`
}

// DocQAPayload is the DOCQA_DONE completion payload.
type DocQAPayload struct {
	AttachmentID string    `json:"attachment_id"`
	MessageID    string    `json:"message_id"`
	Fields       DocFields `json:"fields"`
}

// VQA terminal reasons for attachments the detector cannot process.
const (
	VQAReasonPDFNotSupported = "pdf_not_supported"
	VQAReasonUnsupportedMime = "unsupported_mime"
)

// VQAPayload is the VQA_DONE completion payload. IsDamaged is null with a
// Reason when the attachment could not be inspected; downstream
// aggregation still sees a terminal signal.
type VQAPayload struct {
	AttachmentID string `json:"attachment_id"`
	MessageID    string `json:"message_id"`
	IsDamaged    *bool  `json:"is_damaged"`
	Reason       string `json:"reason,omitempty"`
	Mime         string `json:"mime"`
}

// ClassifyPayload is the CLASSIFY_DONE completion payload.
type ClassifyPayload struct {
	MessageID string             `json:"message_id"`
	Label     string             `json:"label"`
	Scores    map[string]float64 `json:"scores"`
}

// SummaryPayload is the SUMMARY_DONE completion payload.
type SummaryPayload struct {
	MessageID string `json:"message_id"`
	Summary   string `json:"summary"`
}

// DocQASelectedPayload is the DOCQA_SELECTED completion payload: the best
// DocQA result among all attachments of the message.
type DocQASelectedPayload struct {
	MessageID    string    `json:"message_id"`
	AttachmentID string    `json:"attachment_id"`
	Fields       DocFields `json:"fields"`
}

// NormalizePayload is the NORMALIZE_DONE completion payload.
type NormalizePayload struct {
	MessageID  string           `json:"message_id"`
	Normalized NormalizedFields `json:"normalized"`
}

// TicketCreatedPayload is the TICKET_CREATED completion payload.
// Route, Summary, Normalized and DocFields reflect whatever enrichment
// was present in the log when the ticket was built; any may be null.
type TicketCreatedPayload struct {
	MessageID  string            `json:"message_id"`
	TicketID   string            `json:"ticket_id"`
	Route      *string           `json:"route"`
	Summary    *string           `json:"summary"`
	Normalized *NormalizedFields `json:"normalized"`
	DocFields  *DocFields        `json:"doc_fields"`
}

// ReplyApprovedPayload records an operator-approved public reply.
type ReplyApprovedPayload struct {
	TicketID  string `json:"ticket_id"`
	MessageID string `json:"message_id,omitempty"`
	Reply     string `json:"reply"`
}
