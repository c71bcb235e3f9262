package models

import "time"

// Ticket statuses.
const (
	TicketStatusNew = "new"
)

// Ticket is the materialized help-desk ticket for one message.
// At most one ticket exists per message.
type Ticket struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id"`
	ExternalID *string   `json:"external_id,omitempty"`
	Status     string    `json:"status"`
	Route      *string   `json:"route,omitempty"`
	Priority   *string   `json:"priority,omitempty"`
	Summary    *string   `json:"summary,omitempty"`
	DraftReply *string   `json:"draft_reply,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateTicketInput contains the fields for materializing a ticket.
// EventPayload is appended as the TICKET_CREATED event in the same
// transaction as the ticket row.
type CreateTicketInput struct {
	MessageID  string
	ExternalID *string
	Status     string
	Route      *string
	Priority   *string
	Summary    *string
	DraftReply *string
}

// TicketFilter narrows ticket listings.
type TicketFilter struct {
	Route  string
	Status string
	Limit  int
}
