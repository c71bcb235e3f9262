// Package services implements the persistence layer: messages, attachments,
// the append-only event log, and tickets.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopdesk-io/shopdesk/pkg/models"
)

// EventService manages the append-only pipeline event log.
type EventService struct {
	db *sql.DB
}

// NewEventService creates a new EventService
func NewEventService(db *sql.DB) *EventService {
	return &EventService{db: db}
}

// Append writes one event. The returned event carries the generated ID
// and the database timestamp.
func (s *EventService) Append(ctx context.Context, ticketID, messageID *string, eventType models.EventType, payload any) (*models.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	evt := &models.Event{
		TicketID:  ticketID,
		MessageID: messageID,
		Type:      eventType,
		Payload:   raw,
	}
	err = s.db.QueryRowContext(writeCtx,
		`INSERT INTO events (ticket_id, message_id, type, payload)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, ts`,
		ticketID, messageID, string(eventType), raw,
	).Scan(&evt.ID, &evt.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	return evt, nil
}

// AppendTx writes one event inside an existing transaction.
func (s *EventService) AppendTx(ctx context.Context, tx *sql.Tx, ticketID, messageID *string, eventType models.EventType, payload any) (*models.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	evt := &models.Event{
		TicketID:  ticketID,
		MessageID: messageID,
		Type:      eventType,
		Payload:   raw,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO events (ticket_id, message_id, type, payload)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, ts`,
		ticketID, messageID, string(eventType), raw,
	).Scan(&evt.ID, &evt.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	return evt, nil
}

// Latest returns the most recent event of the given type for a message,
// or ErrNotFound when no such event exists. Ties on the timestamp are
// broken by the insertion order.
func (s *EventService) Latest(ctx context.Context, messageID string, eventType models.EventType) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, ticket_id, message_id, type, payload, ts
		 FROM events
		 WHERE message_id = $1 AND type = $2
		 ORDER BY ts DESC, id DESC
		 LIMIT 1`,
		messageID, string(eventType),
	)

	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest event: %w", err)
	}
	return evt, nil
}

// ListByMessage returns all events for a message in append order.
func (s *EventService) ListByMessage(ctx context.Context, messageID string) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ticket_id, message_id, type, payload, ts
		 FROM events
		 WHERE message_id = $1
		 ORDER BY ts ASC, id ASC`,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectEvents(rows)
}

// ListByTicket returns all events for a ticket in append order.
func (s *EventService) ListByTicket(ctx context.Context, ticketID string) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ticket_id, message_id, type, payload, ts
		 FROM events
		 WHERE ticket_id = $1
		 ORDER BY ts ASC, id ASC`,
		ticketID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectEvents(rows)
}

// HasEvent reports whether a (message, type) pair already has at least one
// event. Stage handlers use it as the dedupe gate before doing any work.
func (s *EventService) HasEvent(ctx context.Context, messageID string, eventType models.EventType) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM events WHERE message_id = $1 AND type = $2)`,
		messageID, string(eventType),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check event existence: %w", err)
	}
	return exists, nil
}

// HasAttachmentEvent reports whether an attachment-level stage already
// recorded its completion event. The payload's attachment_id is matched
// so parallel attachments of one message dedupe independently.
func (s *EventService) HasAttachmentEvent(ctx context.Context, messageID, attachmentID string, eventType models.EventType) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM events
		   WHERE message_id = $1 AND type = $2 AND payload->>'attachment_id' = $3
		 )`,
		messageID, string(eventType), attachmentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check attachment event existence: %w", err)
	}
	return exists, nil
}

// ListAttachmentEvents returns, for each attachment of the message, its most
// recent event of the given type. Used by fan-in stages that aggregate
// per-attachment results.
func (s *EventService) ListAttachmentEvents(ctx context.Context, messageID string, eventType models.EventType) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT ON (payload->>'attachment_id')
		        id, ticket_id, message_id, type, payload, ts
		 FROM events
		 WHERE message_id = $1 AND type = $2
		 ORDER BY payload->>'attachment_id', ts DESC, id DESC`,
		messageID, string(eventType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachment events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectEvents(rows)
}

// LatestPayload unmarshals the most recent event of the given type into dst.
// Returns ErrNotFound when the stage has not completed.
func (s *EventService) LatestPayload(ctx context.Context, messageID string, eventType models.EventType, dst any) error {
	evt, err := s.Latest(ctx, messageID, eventType)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(evt.Payload, dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", eventType, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var evt models.Event
	var typ string
	if err := row.Scan(&evt.ID, &evt.TicketID, &evt.MessageID, &typ, &evt.Payload, &evt.Timestamp); err != nil {
		return nil, err
	}
	evt.Type = models.EventType(typ)
	return &evt, nil
}

func collectEvents(rows *sql.Rows) ([]*models.Event, error) {
	var events []*models.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}
