package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopdesk-io/shopdesk/pkg/models"
	"github.com/shopdesk-io/shopdesk/pkg/services"
)

// runFanout inspects the message's attachments and dispatches the
// attachment-level stages their MIME types qualify for. Fan-out is
// advisory: duplicates are absorbed by task-ID dedup and stage
// idempotence, and downstream aggregation tolerates gaps.
func (p *Pipeline) runFanout(ctx context.Context, messageID string) error {
	if _, err := p.messages.GetMessage(ctx, messageID); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			slog.Warn("Fan-out for unknown message, skipping", "message_id", messageID)
			return nil
		}
		return err
	}

	if _, err := p.events.Latest(ctx, messageID, models.EventIngestedFanout); err == nil {
		return nil
	} else if !errors.Is(err, services.ErrNotFound) {
		return err
	}

	attachments, err := p.messages.ListAttachments(ctx, messageID)
	if err != nil {
		return err
	}

	var dispatched []models.FanoutDispatch
	for _, att := range attachments {
		for _, plan := range fanoutPlan(att) {
			taskID := messageID + ":" + plan.suffix + ":" + att.ID
			args := AttachmentArgs{MessageID: messageID, AttachmentID: att.ID}
			if _, err := p.dispatcher.Dispatch(ctx, plan.task, taskID, args, 0); err != nil {
				return err
			}
			dispatched = append(dispatched, models.FanoutDispatch{
				Task:         plan.task,
				AttachmentID: att.ID,
				TaskID:       taskID,
			})
		}
	}

	mid := messageID
	_, err = p.events.Append(ctx, nil, &mid, models.EventIngestedFanout, models.FanoutPayload{
		MessageID:  messageID,
		Dispatched: dispatched,
	})
	if err != nil {
		return err
	}
	p.countEvent(models.EventIngestedFanout)

	slog.Info("Fan-out complete", "message_id", messageID, "dispatched", len(dispatched))
	return nil
}

type fanoutStep struct {
	task   string
	suffix string
}

// fanoutPlan lists the attachment stages an attachment qualifies for.
// VQA is dispatched for images only; PDFs get their terminal "not
// supported" event from the VQA stage itself when dispatched, so they are
// not planned here.
func fanoutPlan(att *models.Attachment) []fanoutStep {
	var steps []fanoutStep
	if att.IsAudio() {
		steps = append(steps, fanoutStep{TaskASR, "asr"})
	}
	if att.IsDocument() {
		steps = append(steps, fanoutStep{TaskDocQA, "docqa"})
	}
	if att.IsImage() {
		steps = append(steps, fanoutStep{TaskVQA, "vqa"})
	}
	return steps
}
