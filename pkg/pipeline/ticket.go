package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopdesk-io/shopdesk/pkg/clients"
	"github.com/shopdesk-io/shopdesk/pkg/helpdesk"
	"github.com/shopdesk-io/shopdesk/pkg/models"
	"github.com/shopdesk-io/shopdesk/pkg/services"
)

// runCreateTicket joins the terminal events into one ticket. Any upstream
// result may be absent; the ticket is created with whatever enrichment the
// log holds (partial enrichment is intentional).
func (p *Pipeline) runCreateTicket(ctx context.Context, messageID string) error {
	msg, err := p.loadMessage(ctx, messageID)
	if err != nil || msg == nil {
		return err
	}

	done, err := p.stageDone(ctx, messageID, models.EventTicketCreated)
	if err != nil || done {
		return err
	}

	// A ticket row without a log event can exist if a prior run crashed
	// between commit and observation, or rows were backfilled. Record the
	// event and stop.
	existing, err := p.tickets.GetByMessageID(ctx, messageID)
	if err == nil {
		mid := messageID
		_, err = p.events.Append(ctx, &existing.ID, &mid, models.EventTicketCreated, models.TicketCreatedPayload{
			MessageID: messageID,
			TicketID:  existing.ID,
			Route:     existing.Route,
			Summary:   existing.Summary,
		})
		if err == nil {
			p.countEvent(models.EventTicketCreated)
		}
		return err
	}
	if !errors.Is(err, services.ErrNotFound) {
		return err
	}

	var route, summary *string
	var classify models.ClassifyPayload
	if err := p.events.LatestPayload(ctx, messageID, models.EventClassifyDone, &classify); err == nil {
		route = &classify.Label
	} else if !errors.Is(err, services.ErrNotFound) {
		return err
	}

	var summaryPayload models.SummaryPayload
	if err := p.events.LatestPayload(ctx, messageID, models.EventSummaryDone, &summaryPayload); err == nil {
		summary = &summaryPayload.Summary
	} else if !errors.Is(err, services.ErrNotFound) {
		return err
	}

	var normalized *models.NormalizedFields
	var normalizePayload models.NormalizePayload
	if err := p.events.LatestPayload(ctx, messageID, models.EventNormalizeDone, &normalizePayload); err == nil {
		normalized = &normalizePayload.Normalized
	} else if !errors.Is(err, services.ErrNotFound) {
		return err
	}

	var docFields *models.DocFields
	var selected models.DocQASelectedPayload
	if err := p.events.LatestPayload(ctx, messageID, models.EventDocQASelected, &selected); err == nil {
		docFields = &selected.Fields
	} else if !errors.Is(err, services.ErrNotFound) {
		return err
	}

	draftReply := p.draftReply(ctx, msg, route, normalized)

	var externalID *string
	if p.helpDesk != nil {
		subject := ""
		if msg.Subject != nil {
			subject = *msg.Subject
		}
		ticket := helpdesk.Ticket{Subject: subject}
		if summary != nil {
			ticket.Comment.Body = *summary
		}
		if id := p.helpDesk.CreateTicket(ctx, ticket); id != "" {
			externalID = &id
		}
	}

	input := models.CreateTicketInput{
		MessageID:  messageID,
		ExternalID: externalID,
		Status:     models.TicketStatusNew,
		Route:      route,
		Summary:    summary,
		DraftReply: draftReply,
	}
	payload := models.TicketCreatedPayload{
		MessageID:  messageID,
		Route:      route,
		Summary:    summary,
		Normalized: normalized,
		DocFields:  docFields,
	}

	ticket, created, err := p.tickets.CreateWithEvent(ctx, input, payload)
	if err != nil {
		return err
	}
	if created {
		p.countEvent(models.EventTicketCreated)
		slog.Info("Ticket created", "message_id", messageID, "ticket_id", ticket.ID, "route", input.Route)
	}
	return nil
}

// draftReply composes a suggested reply from the normalized fields and
// the commerce backends. Returns nil when there is nothing useful to say.
func (p *Pipeline) draftReply(ctx context.Context, msg *models.Message, route *string, normalized *models.NormalizedFields) *string {
	if normalized == nil || normalized.OrderID == nil {
		return nil
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Thanks for reaching out about order %s.", *normalized.OrderID))

	if p.orders != nil {
		if order := p.orders.GetOrder(ctx, *normalized.OrderID); order != nil {
			if order.FulfillmentStatus != "" {
				lines = append(lines, fmt.Sprintf("Our records show the shipment is %s.", strings.ReplaceAll(order.FulfillmentStatus, "_", " ")))
			}
			if len(order.TrackingURLs) > 0 {
				lines = append(lines, "Tracking: "+order.TrackingURLs[0])
			}
		}
	}

	if p.charges != nil && route != nil && *route == models.RouteRefund {
		query := clients.ChargeQuery{OrderID: *normalized.OrderID, Amount: normalized.Amount}
		if msg.FromAddr != nil {
			query.Email = *msg.FromAddr
		}
		if charge := p.charges.FindCharge(ctx, query); charge != nil && charge.Amount != nil {
			currency := charge.Currency
			if currency == "" && normalized.Currency != nil {
				currency = *normalized.Currency
			}
			lines = append(lines, fmt.Sprintf("We have located your payment of %s %s and can issue a refund to the original method.", charge.Amount.String(), currency))
		}
	}

	reply := strings.Join(lines, " ")
	return &reply
}
