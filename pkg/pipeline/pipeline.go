// Package pipeline implements the per-message enrichment job graph:
// fan-out over attachments, the seven inference stages, and the fan-in
// into a ticket. The event log is the only inter-stage channel; every
// stage checks it before doing work, so re-runs are no-ops.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopdesk-io/shopdesk/pkg/broker"
	"github.com/shopdesk-io/shopdesk/pkg/clients"
	"github.com/shopdesk-io/shopdesk/pkg/helpdesk"
	"github.com/shopdesk-io/shopdesk/pkg/metrics"
	"github.com/shopdesk-io/shopdesk/pkg/ml"
	"github.com/shopdesk-io/shopdesk/pkg/models"
)

// Task names registered on the broker.
const (
	TaskRun          = "pipeline.run"
	TaskIngested     = "pipeline.ingested"
	TaskASR          = "pipeline.asr"
	TaskDocQA        = "pipeline.docqa"
	TaskVQA          = "pipeline.vqa"
	TaskClassify     = "pipeline.zeroshot"
	TaskSummarize    = "pipeline.summarize"
	TaskDocQASelect  = "pipeline.docqa_select"
	TaskNormalize    = "pipeline.normalized"
	TaskCreateTicket = "pipeline.create_ticket"
)

// EventLog is the append-only log contract the stages depend on.
// Latest and LatestPayload return services.ErrNotFound when the stage has
// not completed.
type EventLog interface {
	Append(ctx context.Context, ticketID, messageID *string, eventType models.EventType, payload any) (*models.Event, error)
	Latest(ctx context.Context, messageID string, eventType models.EventType) (*models.Event, error)
	LatestPayload(ctx context.Context, messageID string, eventType models.EventType, dst any) error
	HasAttachmentEvent(ctx context.Context, messageID, attachmentID string, eventType models.EventType) (bool, error)
	ListAttachmentEvents(ctx context.Context, messageID string, eventType models.EventType) ([]*models.Event, error)
}

// MessageStore loads messages and attachments.
// Lookups return services.ErrNotFound for missing rows.
type MessageStore interface {
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	GetAttachment(ctx context.Context, id string) (*models.Attachment, error)
	ListAttachments(ctx context.Context, messageID string) ([]*models.Attachment, error)
}

// TicketStore materializes tickets.
type TicketStore interface {
	GetByMessageID(ctx context.Context, messageID string) (*models.Ticket, error)
	CreateWithEvent(ctx context.Context, input models.CreateTicketInput, payload models.TicketCreatedPayload) (*models.Ticket, bool, error)
}

// ObjectStore fetches attachment bytes.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Dispatcher enqueues tasks with task-ID dedup.
type Dispatcher interface {
	Dispatch(ctx context.Context, name, taskID string, args any, delay time.Duration) (bool, error)
}

// HelpDesk mirrors tickets externally. CreateTicket returns "" on failure;
// the pipeline proceeds without an external ID.
type HelpDesk interface {
	CreateTicket(ctx context.Context, ticket helpdesk.Ticket) string
}

// OrderLookup resolves commerce orders for reply drafting.
type OrderLookup interface {
	GetOrder(ctx context.Context, orderID string) *clients.Order
}

// ChargeLookup resolves payment charges for reply drafting.
type ChargeLookup interface {
	FindCharge(ctx context.Context, query clients.ChargeQuery) *clients.Charge
}

// Delays are the soft barriers between the message-level stages. They do
// not guarantee upstream completion; later stages read whatever the log
// holds and degrade gracefully.
type Delays struct {
	Classify     time.Duration
	Summarize    time.Duration
	DocQASelect  time.Duration
	Normalize    time.Duration
	CreateTicket time.Duration
}

// DefaultDelays returns the production schedule.
func DefaultDelays() Delays {
	return Delays{
		Classify:     5 * time.Second,
		Summarize:    5 * time.Second,
		DocQASelect:  15 * time.Second,
		Normalize:    20 * time.Second,
		CreateTicket: 25 * time.Second,
	}
}

// Pipeline owns the stage handlers and the orchestration entry point.
type Pipeline struct {
	events     EventLog
	messages   MessageStore
	tickets    TicketStore
	objects    ObjectStore
	dispatcher Dispatcher
	suite      *ml.Suite
	helpDesk   HelpDesk
	orders     OrderLookup
	charges    ChargeLookup
	metrics    *metrics.Metrics
	delays     Delays
}

// New wires a pipeline. helpDesk, orders and charges may be nil; ticket
// creation then skips the external mirror and reply drafting.
func New(events EventLog, messages MessageStore, tickets TicketStore, objects ObjectStore,
	dispatcher Dispatcher, suite *ml.Suite, helpDesk HelpDesk, orders OrderLookup, charges ChargeLookup,
	m *metrics.Metrics, delays Delays) *Pipeline {
	return &Pipeline{
		events:     events,
		messages:   messages,
		tickets:    tickets,
		objects:    objects,
		dispatcher: dispatcher,
		suite:      suite,
		helpDesk:   helpDesk,
		orders:     orders,
		charges:    charges,
		metrics:    m,
		delays:     delays,
	}
}

// MessageArgs is the payload for message-level tasks.
type MessageArgs struct {
	MessageID string `json:"message_id"`
}

// AttachmentArgs is the payload for attachment-level tasks.
type AttachmentArgs struct {
	MessageID    string `json:"message_id"`
	AttachmentID string `json:"attachment_id"`
}

// Register binds every stage handler onto the broker registry.
func (p *Pipeline) Register(registry *broker.Registry) {
	registry.Register(TaskRun, p.messageHandler(func(ctx context.Context, messageID string) error {
		return p.Run(ctx, messageID)
	}))
	registry.Register(TaskIngested, p.messageHandler(p.runFanout))
	registry.Register(TaskASR, p.attachmentHandler(p.runASR))
	registry.Register(TaskDocQA, p.attachmentHandler(p.runDocQA))
	registry.Register(TaskVQA, p.attachmentHandler(p.runVQA))
	registry.Register(TaskClassify, p.messageHandler(p.runClassify))
	registry.Register(TaskSummarize, p.messageHandler(p.runSummarize))
	registry.Register(TaskDocQASelect, p.messageHandler(p.runDocQASelect))
	registry.Register(TaskNormalize, p.messageHandler(p.runNormalize))
	registry.Register(TaskCreateTicket, p.messageHandler(p.runCreateTicket))
}

func (p *Pipeline) messageHandler(fn func(ctx context.Context, messageID string) error) broker.HandlerFunc {
	return func(ctx context.Context, task broker.Task) error {
		var args MessageArgs
		if err := broker.UnmarshalArgs(task, &args); err != nil {
			return err
		}
		return fn(ctx, args.MessageID)
	}
}

func (p *Pipeline) attachmentHandler(fn func(ctx context.Context, messageID, attachmentID string) error) broker.HandlerFunc {
	return func(ctx context.Context, task broker.Task) error {
		var args AttachmentArgs
		if err := broker.UnmarshalArgs(task, &args); err != nil {
			return err
		}
		return fn(ctx, args.MessageID, args.AttachmentID)
	}
}

// Run dispatches the per-message task chain. Task IDs are deterministic,
// so calling Run twice schedules the identical set and the broker drops
// the duplicates.
func (p *Pipeline) Run(ctx context.Context, messageID string) error {
	chain := []struct {
		task  string
		idSuf string
		delay time.Duration
	}{
		{TaskIngested, ":ingested", 0},
		{TaskClassify, ":classify", p.delays.Classify},
		{TaskSummarize, ":summarize", p.delays.Summarize},
		{TaskDocQASelect, ":docqa_select", p.delays.DocQASelect},
		{TaskNormalize, ":normalize", p.delays.Normalize},
		{TaskCreateTicket, ":ticket", p.delays.CreateTicket},
	}

	args := MessageArgs{MessageID: messageID}
	for _, step := range chain {
		if _, err := p.dispatcher.Dispatch(ctx, step.task, messageID+step.idSuf, args, step.delay); err != nil {
			return err
		}
	}

	slog.Info("Pipeline dispatched", "message_id", messageID)
	return nil
}

func (p *Pipeline) countEvent(eventType models.EventType) {
	if p.metrics != nil {
		p.metrics.EventsWritten.WithLabelValues(string(eventType)).Inc()
	}
}
