package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shopdesk-io/shopdesk/pkg/models"
)

// TicketService manages materialized tickets.
type TicketService struct {
	db     *sql.DB
	events *EventService
}

// NewTicketService creates a new TicketService
func NewTicketService(db *sql.DB, events *EventService) *TicketService {
	return &TicketService{db: db, events: events}
}

// CreateWithEvent materializes a ticket and appends the TICKET_CREATED event
// in the same transaction. When a ticket already exists for the message, the
// existing row is returned and no event is written.
func (s *TicketService) CreateWithEvent(ctx context.Context, input models.CreateTicketInput, payload models.TicketCreatedPayload) (*models.Ticket, bool, error) {
	if input.MessageID == "" {
		return nil, false, NewValidationError("message_id", "must not be empty")
	}

	status := input.Status
	if status == "" {
		status = models.TicketStatusNew
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(writeCtx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.NewString()
	row := tx.QueryRowContext(writeCtx,
		`INSERT INTO tickets (id, message_id, external_id, status, route, priority, summary, draft_reply)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (message_id) DO NOTHING
		 RETURNING id`,
		id, input.MessageID, input.ExternalID, status, input.Route, input.Priority, input.Summary, input.DraftReply,
	)

	var insertedID string
	err = row.Scan(&insertedID)
	if errors.Is(err, sql.ErrNoRows) {
		// A ticket already exists for this message.
		_ = tx.Rollback()
		ticket, err := s.GetByMessageID(ctx, input.MessageID)
		return ticket, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create ticket: %w", err)
	}

	payload.TicketID = insertedID
	payload.MessageID = input.MessageID
	if _, err := s.events.AppendTx(writeCtx, tx, &insertedID, &input.MessageID, models.EventTicketCreated, payload); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit ticket transaction: %w", err)
	}

	ticket, err := s.Get(ctx, insertedID)
	return ticket, true, err
}

// Get retrieves a ticket by ID.
func (s *TicketService) Get(ctx context.Context, id string) (*models.Ticket, error) {
	row := s.db.QueryRowContext(ctx, ticketSelect+` WHERE id = $1`, id)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return ticket, nil
}

// GetByMessageID retrieves the ticket materialized for a message.
func (s *TicketService) GetByMessageID(ctx context.Context, messageID string) (*models.Ticket, error) {
	row := s.db.QueryRowContext(ctx, ticketSelect+` WHERE message_id = $1`, messageID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ticket by message: %w", err)
	}
	return ticket, nil
}

// List returns tickets matching the filter, newest first.
func (s *TicketService) List(ctx context.Context, filter models.TicketFilter) ([]*models.Ticket, error) {
	query := ticketSelect + ` WHERE 1=1`
	args := []any{}

	if filter.Route != "" {
		args = append(args, filter.Route)
		query += fmt.Sprintf(" AND route = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY created_at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tickets []*models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tickets: %w", err)
	}
	return tickets, nil
}

// ApproveReply records an operator-approved public reply as a
// REPLY_APPROVED event and bumps the ticket's updated_at.
func (s *TicketService) ApproveReply(ctx context.Context, ticketID, reply string) (*models.Event, error) {
	if reply == "" {
		return nil, NewValidationError("reply", "must not be empty")
	}

	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(writeCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(writeCtx,
		`UPDATE tickets SET updated_at = now() WHERE id = $1`, ticketID,
	); err != nil {
		return nil, fmt.Errorf("failed to touch ticket: %w", err)
	}

	evt, err := s.events.AppendTx(writeCtx, tx, &ticket.ID, &ticket.MessageID, models.EventReplyApproved, models.ReplyApprovedPayload{
		TicketID:  ticket.ID,
		MessageID: ticket.MessageID,
		Reply:     reply,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reply approval: %w", err)
	}
	return evt, nil
}

const ticketSelect = `SELECT id, message_id, external_id, status, route, priority, summary, draft_reply, created_at, updated_at FROM tickets`

func scanTicket(row rowScanner) (*models.Ticket, error) {
	var t models.Ticket
	if err := row.Scan(&t.ID, &t.MessageID, &t.ExternalID, &t.Status, &t.Route, &t.Priority, &t.Summary, &t.DraftReply, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
