package models

import (
	"strings"
	"time"
)

// Attachment is a stored file owned by exactly one message.
// StorageKey addresses the bytes in object storage; ContentHash is the
// sha256 of the bytes and makes re-uploads idempotent per message.
type Attachment struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"message_id"`
	StorageKey  string    `json:"storage_key"`
	Mime        string    `json:"mime"`
	Filename    *string   `json:"filename,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentHash *string   `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MimeType returns the attachment MIME type, defaulting to
// application/octet-stream when the stored value is empty.
func (a *Attachment) MimeType() string {
	if a.Mime == "" {
		return "application/octet-stream"
	}
	return a.Mime
}

// IsAudio reports whether the attachment is an audio file.
func (a *Attachment) IsAudio() bool {
	return strings.HasPrefix(a.MimeType(), "audio/")
}

// IsImage reports whether the attachment is an image.
func (a *Attachment) IsImage() bool {
	return strings.HasPrefix(a.MimeType(), "image/")
}

// IsPDF reports whether the attachment is a PDF document.
func (a *Attachment) IsPDF() bool {
	return strings.HasPrefix(a.MimeType(), "application/pdf")
}

// IsDocument reports whether the attachment is DocQA-eligible (PDF or image).
func (a *Attachment) IsDocument() bool {
	return a.IsPDF() || a.IsImage()
}

// CreateAttachmentInput contains the fields for persisting one attachment.
type CreateAttachmentInput struct {
	MessageID   string
	StorageKey  string
	Mime        string
	Filename    *string
	SizeBytes   int64
	ContentHash *string
}
