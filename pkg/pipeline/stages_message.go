package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/shopdesk-io/shopdesk/pkg/models"
	"github.com/shopdesk-io/shopdesk/pkg/norm"
	"github.com/shopdesk-io/shopdesk/pkg/services"
)

// loadMessage resolves the message for a stage invocation. A missing row
// is a silent skip (nil, nil): no event, no retry.
func (p *Pipeline) loadMessage(ctx context.Context, messageID string) (*models.Message, error) {
	msg, err := p.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			slog.Warn("Stage input message missing, skipping", "message_id", messageID)
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// stageDone reports whether a message-level stage already recorded its
// completion event.
func (p *Pipeline) stageDone(ctx context.Context, messageID string, eventType models.EventType) (bool, error) {
	_, err := p.events.Latest(ctx, messageID, eventType)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, services.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// latestTranscript returns the most recent ASR text, or "".
func (p *Pipeline) latestTranscript(ctx context.Context, messageID string) (string, error) {
	var asr models.ASRPayload
	err := p.events.LatestPayload(ctx, messageID, models.EventASRDone, &asr)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return asr.Text, nil
}

// runClassify routes the message over the closed label set, using body
// text plus the latest transcript when one exists.
func (p *Pipeline) runClassify(ctx context.Context, messageID string) error {
	msg, err := p.loadMessage(ctx, messageID)
	if err != nil || msg == nil {
		return err
	}

	done, err := p.stageDone(ctx, messageID, models.EventClassifyDone)
	if err != nil || done {
		return err
	}

	transcript, err := p.latestTranscript(ctx, messageID)
	if err != nil {
		return err
	}

	text := msg.Body()
	if transcript != "" {
		text = text + "\n" + transcript
	}
	text = strings.TrimSpace(text)

	classification, err := p.suite.Classifier.Classify(ctx, text)
	if err != nil {
		return err
	}

	mid := messageID
	_, err = p.events.Append(ctx, nil, &mid, models.EventClassifyDone, models.ClassifyPayload{
		MessageID: messageID,
		Label:     classification.Label,
		Scores:    classification.Scores,
	})
	if err != nil {
		return err
	}
	p.countEvent(models.EventClassifyDone)
	return nil
}

// runSummarize produces the operator-facing summary of the message body.
func (p *Pipeline) runSummarize(ctx context.Context, messageID string) error {
	msg, err := p.loadMessage(ctx, messageID)
	if err != nil || msg == nil {
		return err
	}

	done, err := p.stageDone(ctx, messageID, models.EventSummaryDone)
	if err != nil || done {
		return err
	}

	summary, err := p.suite.Summarizer.Summarize(ctx, msg.Body())
	if err != nil {
		return err
	}

	mid := messageID
	_, err = p.events.Append(ctx, nil, &mid, models.EventSummaryDone, models.SummaryPayload{
		MessageID: messageID,
		Summary:   summary.Text,
	})
	if err != nil {
		return err
	}
	p.countEvent(models.EventSummaryDone)
	return nil
}

// runDocQASelect picks the best DocQA result among all attachments of the
// message by (has_order_id, confidence.order_id, confidence.amount); ties
// break on the most recent event. With no DocQA results, the stage records
// nothing.
func (p *Pipeline) runDocQASelect(ctx context.Context, messageID string) error {
	done, err := p.stageDone(ctx, messageID, models.EventDocQASelected)
	if err != nil || done {
		return err
	}

	events, err := p.events.ListAttachmentEvents(ctx, messageID, models.EventDocQADone)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	type candidate struct {
		payload models.DocQAPayload
		eventID int64
	}
	var best *candidate
	for _, evt := range events {
		var payload models.DocQAPayload
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			slog.Warn("Skipping malformed DocQA payload", "message_id", messageID, "event_id", evt.ID, "error", err)
			continue
		}
		cand := candidate{payload: payload, eventID: evt.ID}
		if best == nil || docqaKeyLess(best.payload.Fields, cand.payload.Fields) ||
			(!docqaKeyLess(cand.payload.Fields, best.payload.Fields) && cand.eventID > best.eventID) {
			best = &cand
		}
	}
	if best == nil {
		return nil
	}

	mid := messageID
	_, err = p.events.Append(ctx, nil, &mid, models.EventDocQASelected, models.DocQASelectedPayload{
		MessageID:    messageID,
		AttachmentID: best.payload.AttachmentID,
		Fields:       best.payload.Fields,
	})
	if err != nil {
		return err
	}
	p.countEvent(models.EventDocQASelected)
	return nil
}

// docqaKeyLess reports whether a ranks strictly below b.
func docqaKeyLess(a, b models.DocFields) bool {
	aHas, bHas := a.OrderID != nil, b.OrderID != nil
	if aHas != bHas {
		return bHas
	}
	if ac, bc := a.FieldConfidence("order_id"), b.FieldConfidence("order_id"); ac != bc {
		return ac < bc
	}
	return a.FieldConfidence("amount") < b.FieldConfidence("amount")
}

// runNormalize merges the latest DocQA fields with regex extraction over
// body text and transcript. Missing upstream results degrade to empty
// inputs rather than blocking.
func (p *Pipeline) runNormalize(ctx context.Context, messageID string) error {
	msg, err := p.loadMessage(ctx, messageID)
	if err != nil || msg == nil {
		return err
	}

	done, err := p.stageDone(ctx, messageID, models.EventNormalizeDone)
	if err != nil || done {
		return err
	}

	doc := models.EmptyDocFields()
	var docqa models.DocQAPayload
	err = p.events.LatestPayload(ctx, messageID, models.EventDocQADone, &docqa)
	switch {
	case err == nil:
		doc = docqa.Fields
	case errors.Is(err, services.ErrNotFound):
	default:
		return err
	}

	transcript, err := p.latestTranscript(ctx, messageID)
	if err != nil {
		return err
	}

	normalized := norm.Merge(doc, msg.Body(), transcript)

	mid := messageID
	_, err = p.events.Append(ctx, nil, &mid, models.EventNormalizeDone, models.NormalizePayload{
		MessageID:  messageID,
		Normalized: normalized,
	})
	if err != nil {
		return err
	}
	p.countEvent(models.EventNormalizeDone)
	return nil
}
