package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shopdesk-io/shopdesk/pkg/models"
)

// MessageService manages messages and their attachments.
type MessageService struct {
	db *sql.DB
}

// NewMessageService creates a new MessageService
func NewMessageService(db *sql.DB) *MessageService {
	return &MessageService{db: db}
}

// UpsertMessage creates a message, or returns the existing one when the
// (source, external_id) pair was already ingested. The bool result is true
// when a new row was created.
func (s *MessageService) UpsertMessage(ctx context.Context, input models.UpsertMessageInput) (*models.Message, bool, error) {
	if input.Source == "" {
		return nil, false, NewValidationError("source", "must not be empty")
	}

	meta, err := marshalMeta(input.SourceMeta)
	if err != nil {
		return nil, false, err
	}

	ts := input.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	id := uuid.NewString()
	row := s.db.QueryRowContext(writeCtx,
		`INSERT INTO messages (id, source, external_id, subject, from_addr, ts, body_text, source_meta)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (source, external_id) WHERE external_id IS NOT NULL DO NOTHING
		 RETURNING id`,
		id, input.Source, input.ExternalID, input.Subject, input.FromAddr, ts, input.BodyText, meta,
	)

	var insertedID string
	err = row.Scan(&insertedID)
	switch {
	case err == nil:
		msg, err := s.GetMessage(ctx, insertedID)
		return msg, true, err
	case errors.Is(err, sql.ErrNoRows):
		// Conflict: the message was already ingested.
		msg, err := s.getBySourceExternalID(ctx, input.Source, *input.ExternalID)
		return msg, false, err
	default:
		return nil, false, fmt.Errorf("failed to upsert message: %w", err)
	}
}

// GetMessage retrieves a message by ID.
func (s *MessageService) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, external_id, subject, from_addr, ts, body_text, source_meta
		 FROM messages WHERE id = $1`,
		id,
	)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

func (s *MessageService) getBySourceExternalID(ctx context.Context, source, externalID string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, external_id, subject, from_addr, ts, body_text, source_meta
		 FROM messages WHERE source = $1 AND external_id = $2`,
		source, externalID,
	)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message by external id: %w", err)
	}
	return msg, nil
}

// CreateAttachment persists one attachment. Re-attaching the same content
// hash to the same message returns the existing row.
func (s *MessageService) CreateAttachment(ctx context.Context, input models.CreateAttachmentInput) (*models.Attachment, error) {
	if input.MessageID == "" {
		return nil, NewValidationError("message_id", "must not be empty")
	}
	if input.StorageKey == "" {
		return nil, NewValidationError("storage_key", "must not be empty")
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	id := uuid.NewString()
	row := s.db.QueryRowContext(writeCtx,
		`INSERT INTO attachments (id, message_id, storage_key, mime, filename, size_bytes, content_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (message_id, content_hash) WHERE content_hash IS NOT NULL DO NOTHING
		 RETURNING id`,
		id, input.MessageID, input.StorageKey, input.Mime, input.Filename, input.SizeBytes, input.ContentHash,
	)

	var insertedID string
	err := row.Scan(&insertedID)
	switch {
	case err == nil:
		return s.GetAttachment(ctx, insertedID)
	case errors.Is(err, sql.ErrNoRows):
		return s.getAttachmentByHash(ctx, input.MessageID, *input.ContentHash)
	default:
		return nil, fmt.Errorf("failed to create attachment: %w", err)
	}
}

// GetAttachment retrieves an attachment by ID.
func (s *MessageService) GetAttachment(ctx context.Context, id string) (*models.Attachment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, message_id, storage_key, mime, filename, size_bytes, content_hash, created_at
		 FROM attachments WHERE id = $1`,
		id,
	)
	att, err := scanAttachment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return att, nil
}

func (s *MessageService) getAttachmentByHash(ctx context.Context, messageID, contentHash string) (*models.Attachment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, message_id, storage_key, mime, filename, size_bytes, content_hash, created_at
		 FROM attachments WHERE message_id = $1 AND content_hash = $2`,
		messageID, contentHash,
	)
	att, err := scanAttachment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attachment by hash: %w", err)
	}
	return att, nil
}

// ListAttachments returns all attachments of a message in creation order.
func (s *MessageService) ListAttachments(ctx context.Context, messageID string) ([]*models.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_id, storage_key, mime, filename, size_bytes, content_hash, created_at
		 FROM attachments WHERE message_id = $1
		 ORDER BY created_at ASC, id ASC`,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var atts []*models.Attachment
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		atts = append(atts, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachments: %w", err)
	}
	return atts, nil
}

func marshalMeta(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal source_meta: %w", err)
	}
	return raw, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var meta []byte
	if err := row.Scan(&msg.ID, &msg.Source, &msg.ExternalID, &msg.Subject, &msg.FromAddr, &msg.Timestamp, &msg.BodyText, &meta); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &msg.SourceMeta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal source_meta: %w", err)
		}
	}
	return &msg, nil
}

func scanAttachment(row rowScanner) (*models.Attachment, error) {
	var att models.Attachment
	if err := row.Scan(&att.ID, &att.MessageID, &att.StorageKey, &att.Mime, &att.Filename, &att.SizeBytes, &att.ContentHash, &att.CreatedAt); err != nil {
		return nil, err
	}
	return &att, nil
}
