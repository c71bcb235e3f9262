package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopdesk-io/shopdesk/pkg/models"
	"github.com/shopdesk-io/shopdesk/pkg/services"
	testdb "github.com/shopdesk-io/shopdesk/test/database"
)

func strPtr(s string) *string { return &s }

func newServices(t *testing.T) (*services.MessageService, *services.EventService, *services.TicketService) {
	client := testdb.NewTestClient(t)
	events := services.NewEventService(client.DB())
	return services.NewMessageService(client.DB()), events, services.NewTicketService(client.DB(), events)
}

func TestUpsertMessageIdempotent(t *testing.T) {
	msgs, _, _ := newServices(t)
	ctx := context.Background()

	input := models.UpsertMessageInput{
		Source:     "gmail",
		ExternalID: strPtr("msg-abc-123"),
		Subject:    strPtr("Refund request"),
		FromAddr:   strPtr("jo@example.com"),
		Timestamp:  time.Now().UTC(),
		BodyText:   strPtr("My package never arrived."),
		SourceMeta: map[string]any{"thread_id": "t-1"},
	}

	first, created, err := msgs.UpsertMessage(ctx, input)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := msgs.UpsertMessage(ctx, input)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Refund request", *second.Subject)
}

func TestUpsertMessageWithoutExternalIDAlwaysCreates(t *testing.T) {
	msgs, _, _ := newServices(t)
	ctx := context.Background()

	input := models.UpsertMessageInput{Source: "upload", BodyText: strPtr("hello")}

	first, created, err := msgs.UpsertMessage(ctx, input)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := msgs.UpsertMessage(ctx, input)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestUpsertMessageValidation(t *testing.T) {
	msgs, _, _ := newServices(t)

	_, _, err := msgs.UpsertMessage(context.Background(), models.UpsertMessageInput{})
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestCreateAttachmentDedupesByHash(t *testing.T) {
	msgs, _, _ := newServices(t)
	ctx := context.Background()

	msg, _, err := msgs.UpsertMessage(ctx, models.UpsertMessageInput{Source: "upload"})
	require.NoError(t, err)

	input := models.CreateAttachmentInput{
		MessageID:   msg.ID,
		StorageKey:  "ab12cd34/receipt.pdf",
		Mime:        "application/pdf",
		Filename:    strPtr("receipt.pdf"),
		SizeBytes:   2048,
		ContentHash: strPtr("ab12cd34ef56"),
	}

	first, err := msgs.CreateAttachment(ctx, input)
	require.NoError(t, err)

	second, err := msgs.CreateAttachment(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	atts, err := msgs.ListAttachments(ctx, msg.ID)
	require.NoError(t, err)
	assert.Len(t, atts, 1)
	assert.True(t, atts[0].IsPDF())
	assert.True(t, atts[0].IsDocument())
}

func TestEventAppendAndLatest(t *testing.T) {
	msgs, events, _ := newServices(t)
	ctx := context.Background()

	msg, _, err := msgs.UpsertMessage(ctx, models.UpsertMessageInput{Source: "upload"})
	require.NoError(t, err)

	_, err = events.Append(ctx, nil, &msg.ID, models.EventClassifyDone, models.ClassifyPayload{
		MessageID: msg.ID,
		Label:     models.RouteRefund,
		Scores:    map[string]float64{models.RouteRefund: 0.9},
	})
	require.NoError(t, err)

	_, err = events.Append(ctx, nil, &msg.ID, models.EventClassifyDone, models.ClassifyPayload{
		MessageID: msg.ID,
		Label:     models.RouteWarranty,
		Scores:    map[string]float64{models.RouteWarranty: 0.8},
	})
	require.NoError(t, err)

	// Latest returns the most recent append, even within the same clock tick.
	var payload models.ClassifyPayload
	err = events.LatestPayload(ctx, msg.ID, models.EventClassifyDone, &payload)
	require.NoError(t, err)
	assert.Equal(t, models.RouteWarranty, payload.Label)

	all, err := events.ListByMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, models.EventClassifyDone, all[0].Type)
}

func TestEventLatestNotFound(t *testing.T) {
	_, events, _ := newServices(t)

	_, err := events.Latest(context.Background(), "no-such-message", models.EventASRDone)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestHasAttachmentEvent(t *testing.T) {
	msgs, events, _ := newServices(t)
	ctx := context.Background()

	msg, _, err := msgs.UpsertMessage(ctx, models.UpsertMessageInput{Source: "upload"})
	require.NoError(t, err)

	_, err = events.Append(ctx, nil, &msg.ID, models.EventDocQADone, models.DocQAPayload{
		AttachmentID: "att-1",
		MessageID:    msg.ID,
		Fields:       models.EmptyDocFields(),
	})
	require.NoError(t, err)

	has, err := events.HasAttachmentEvent(ctx, msg.ID, "att-1", models.EventDocQADone)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = events.HasAttachmentEvent(ctx, msg.ID, "att-2", models.EventDocQADone)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestListAttachmentEventsReturnsLatestPerAttachment(t *testing.T) {
	msgs, events, _ := newServices(t)
	ctx := context.Background()

	msg, _, err := msgs.UpsertMessage(ctx, models.UpsertMessageInput{Source: "upload"})
	require.NoError(t, err)

	for _, p := range []models.DocQAPayload{
		{AttachmentID: "att-1", MessageID: msg.ID, Fields: models.DocFields{OrderID: strPtr("OLD-1")}},
		{AttachmentID: "att-1", MessageID: msg.ID, Fields: models.DocFields{OrderID: strPtr("NEW-1")}},
		{AttachmentID: "att-2", MessageID: msg.ID, Fields: models.DocFields{OrderID: strPtr("A-2")}},
	} {
		_, err = events.Append(ctx, nil, &msg.ID, models.EventDocQADone, p)
		require.NoError(t, err)
	}

	got, err := events.ListAttachmentEvents(ctx, msg.ID, models.EventDocQADone)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestCreateTicketWithEventOncePerMessage(t *testing.T) {
	msgs, events, tickets := newServices(t)
	ctx := context.Background()

	msg, _, err := msgs.UpsertMessage(ctx, models.UpsertMessageInput{Source: "upload"})
	require.NoError(t, err)

	input := models.CreateTicketInput{
		MessageID: msg.ID,
		Route:     strPtr(models.RouteRefund),
		Summary:   strPtr("Package never arrived"),
	}

	first, created, err := tickets.CreateWithEvent(ctx, input, models.TicketCreatedPayload{})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.TicketStatusNew, first.Status)

	second, created, err := tickets.CreateWithEvent(ctx, input, models.TicketCreatedPayload{})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// Exactly one TICKET_CREATED event despite the duplicate call.
	evts, err := events.ListByTicket(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, models.EventTicketCreated, evts[0].Type)
}

func TestListTicketsByRouteAndStatus(t *testing.T) {
	msgs, _, tickets := newServices(t)
	ctx := context.Background()

	for _, route := range []string{models.RouteRefund, models.RouteWarranty} {
		msg, _, err := msgs.UpsertMessage(ctx, models.UpsertMessageInput{Source: "upload"})
		require.NoError(t, err)
		_, _, err = tickets.CreateWithEvent(ctx, models.CreateTicketInput{
			MessageID: msg.ID,
			Route:     strPtr(route),
		}, models.TicketCreatedPayload{})
		require.NoError(t, err)
	}

	refunds, err := tickets.List(ctx, models.TicketFilter{Route: models.RouteRefund})
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, models.RouteRefund, *refunds[0].Route)

	all, err := tickets.List(ctx, models.TicketFilter{Status: models.TicketStatusNew})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestApproveReplyAppendsEvent(t *testing.T) {
	msgs, events, tickets := newServices(t)
	ctx := context.Background()

	msg, _, err := msgs.UpsertMessage(ctx, models.UpsertMessageInput{Source: "upload"})
	require.NoError(t, err)
	ticket, _, err := tickets.CreateWithEvent(ctx, models.CreateTicketInput{MessageID: msg.ID}, models.TicketCreatedPayload{})
	require.NoError(t, err)

	evt, err := tickets.ApproveReply(ctx, ticket.ID, "Your refund is on its way.")
	require.NoError(t, err)
	assert.Equal(t, models.EventReplyApproved, evt.Type)

	evts, err := events.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, evts, 2)

	_, err = tickets.ApproveReply(ctx, "no-such-ticket", "hi")
	assert.ErrorIs(t, err, services.ErrNotFound)
}
