package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopdesk-io/shopdesk/pkg/models"
	"github.com/shopdesk-io/shopdesk/pkg/services"
)

// loadAttachment resolves the attachment for a stage invocation. A missing
// row is a silent skip (nil, nil): no event, no retry.
func (p *Pipeline) loadAttachment(ctx context.Context, attachmentID string) (*models.Attachment, error) {
	att, err := p.messages.GetAttachment(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			slog.Warn("Stage input attachment missing, skipping", "attachment_id", attachmentID)
			return nil, nil
		}
		return nil, err
	}
	return att, nil
}

// runASR transcribes one audio attachment.
func (p *Pipeline) runASR(ctx context.Context, messageID, attachmentID string) error {
	att, err := p.loadAttachment(ctx, attachmentID)
	if err != nil || att == nil {
		return err
	}

	done, err := p.events.HasAttachmentEvent(ctx, messageID, attachmentID, models.EventASRDone)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	// MIME gate before any object fetch.
	if !att.IsAudio() {
		return nil
	}

	audio, err := p.objects.Get(ctx, att.StorageKey)
	if err != nil {
		return err
	}

	transcript, err := p.suite.Transcriber.Transcribe(ctx, audio, att.MimeType())
	if err != nil {
		return err
	}

	mid := messageID
	_, err = p.events.Append(ctx, nil, &mid, models.EventASRDone, models.ASRPayload{
		AttachmentID: attachmentID,
		MessageID:    messageID,
		Text:         transcript.Text,
		Confidence:   transcript.Confidence,
	})
	if err != nil {
		return err
	}
	p.countEvent(models.EventASRDone)
	return nil
}

// runDocQA extracts structured fields from one document attachment.
func (p *Pipeline) runDocQA(ctx context.Context, messageID, attachmentID string) error {
	att, err := p.loadAttachment(ctx, attachmentID)
	if err != nil || att == nil {
		return err
	}

	done, err := p.events.HasAttachmentEvent(ctx, messageID, attachmentID, models.EventDocQADone)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	if !att.IsDocument() {
		return nil
	}

	doc, err := p.objects.Get(ctx, att.StorageKey)
	if err != nil {
		return err
	}

	fields, err := p.suite.FieldExtractor.ExtractFields(ctx, doc, att.MimeType())
	if err != nil {
		return err
	}

	mid := messageID
	_, err = p.events.Append(ctx, nil, &mid, models.EventDocQADone, models.DocQAPayload{
		AttachmentID: attachmentID,
		MessageID:    messageID,
		Fields:       fields,
	})
	if err != nil {
		return err
	}
	p.countEvent(models.EventDocQADone)
	return nil
}

// runVQA answers the damage question over a photo. Non-image attachments
// still get a terminal VQA_DONE with a null verdict and a reason, so
// fan-in sees a result for every dispatched attachment.
func (p *Pipeline) runVQA(ctx context.Context, messageID, attachmentID string) error {
	att, err := p.loadAttachment(ctx, attachmentID)
	if err != nil || att == nil {
		return err
	}

	done, err := p.events.HasAttachmentEvent(ctx, messageID, attachmentID, models.EventVQADone)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	payload := models.VQAPayload{
		AttachmentID: attachmentID,
		MessageID:    messageID,
		Mime:         att.MimeType(),
	}

	switch {
	case att.IsPDF():
		payload.Reason = models.VQAReasonPDFNotSupported
	case !att.IsImage():
		payload.Reason = models.VQAReasonUnsupportedMime
	default:
		image, err := p.objects.Get(ctx, att.StorageKey)
		if err != nil {
			return err
		}
		damaged, err := p.suite.DamageDetector.IsDamaged(ctx, image)
		if err != nil {
			return err
		}
		payload.IsDamaged = &damaged
	}

	mid := messageID
	if _, err := p.events.Append(ctx, nil, &mid, models.EventVQADone, payload); err != nil {
		return err
	}
	p.countEvent(models.EventVQADone)
	return nil
}
