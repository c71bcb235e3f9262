// Package ingest brings messages into the system: direct uploads through
// the API and mailbox polling. Every accepted message gets an INGESTED
// event and a pipeline.run dispatch; re-ingesting a known (source,
// external_id) pair is a no-op.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopdesk-io/shopdesk/pkg/models"
	"github.com/shopdesk-io/shopdesk/pkg/pipeline"
	"github.com/shopdesk-io/shopdesk/pkg/services"
	"github.com/shopdesk-io/shopdesk/pkg/storage"
)

// File is one attachment handed to ingestion, already read into memory.
type File struct {
	Filename string
	Mime     string
	Data     []byte
}

// MessageWriter persists messages and attachments.
type MessageWriter interface {
	UpsertMessage(ctx context.Context, input models.UpsertMessageInput) (*models.Message, bool, error)
	CreateAttachment(ctx context.Context, input models.CreateAttachmentInput) (*models.Attachment, error)
}

// EventAppender records pipeline events.
type EventAppender interface {
	Append(ctx context.Context, ticketID, messageID *string, eventType models.EventType, payload any) (*models.Event, error)
}

// BlobStore writes attachment bytes.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Service is the single ingestion path shared by the upload endpoint and
// the mail poller.
type Service struct {
	messages   MessageWriter
	events     EventAppender
	objects    BlobStore
	dispatcher pipeline.Dispatcher
}

// NewService wires an ingestion service.
func NewService(messages MessageWriter, events EventAppender, objects BlobStore, dispatcher pipeline.Dispatcher) *Service {
	return &Service{
		messages:   messages,
		events:     events,
		objects:    objects,
		dispatcher: dispatcher,
	}
}

// AttachmentResult describes one stored attachment.
type AttachmentResult struct {
	ID         string  `json:"id"`
	Filename   *string `json:"filename"`
	Mime       string  `json:"mime"`
	SizeBytes  int64   `json:"size_bytes"`
	StorageKey string  `json:"storage_key"`
}

// Result is the outcome of one ingestion.
type Result struct {
	MessageID   string             `json:"message_id"`
	Created     bool               `json:"created"`
	Attachments []AttachmentResult `json:"attachments"`
}

// Upload ingests a direct API upload: an optional body plus one or more
// files, source "upload". Uploads carry no external ID, so each call
// creates a new message.
func (s *Service) Upload(ctx context.Context, body *string, files []File) (*Result, error) {
	if len(files) == 0 {
		return nil, services.NewValidationError("files", "at least one file is required")
	}
	return s.Ingest(ctx, models.UpsertMessageInput{
		Source:   "upload",
		BodyText: body,
	}, files)
}

// Ingest persists the message and its files, appends INGESTED, and
// dispatches the pipeline. When the message was already ingested, nothing
// is stored or dispatched and Result.Created is false.
func (s *Service) Ingest(ctx context.Context, input models.UpsertMessageInput, files []File) (*Result, error) {
	msg, created, err := s.messages.UpsertMessage(ctx, input)
	if err != nil {
		return nil, err
	}
	if !created {
		slog.Info("Skipping already ingested message",
			"source", input.Source, "message_id", msg.ID)
		return &Result{MessageID: msg.ID, Created: false}, nil
	}

	result := &Result{MessageID: msg.ID, Created: true}
	for _, file := range files {
		att, err := s.storeFile(ctx, msg.ID, file)
		if err != nil {
			return nil, err
		}
		result.Attachments = append(result.Attachments, AttachmentResult{
			ID:         att.ID,
			Filename:   att.Filename,
			Mime:       att.Mime,
			SizeBytes:  att.SizeBytes,
			StorageKey: att.StorageKey,
		})
	}

	mid := msg.ID
	if _, err := s.events.Append(ctx, nil, &mid, models.EventIngested, models.IngestedPayload{MessageID: msg.ID}); err != nil {
		return nil, err
	}

	if _, err := s.dispatcher.Dispatch(ctx, pipeline.TaskRun, msg.ID+":run", pipeline.MessageArgs{MessageID: msg.ID}, 0); err != nil {
		return nil, err
	}

	slog.Info("Message ingested",
		"source", input.Source, "message_id", msg.ID, "attachments", len(files))
	return result, nil
}

func (s *Service) storeFile(ctx context.Context, messageID string, file File) (*models.Attachment, error) {
	filename := file.Filename
	if filename == "" {
		filename = "upload.bin"
	}

	key, contentHash := storage.ObjectKey(filename, file.Data)
	if err := s.objects.Put(ctx, key, file.Data, file.Mime); err != nil {
		return nil, fmt.Errorf("failed to store attachment %s: %w", filename, err)
	}

	return s.messages.CreateAttachment(ctx, models.CreateAttachmentInput{
		MessageID:   messageID,
		StorageKey:  key,
		Mime:        file.Mime,
		Filename:    &filename,
		SizeBytes:   int64(len(file.Data)),
		ContentHash: &contentHash,
	})
}
