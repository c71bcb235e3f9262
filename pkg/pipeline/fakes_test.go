package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shopdesk-io/shopdesk/pkg/helpdesk"
	"github.com/shopdesk-io/shopdesk/pkg/models"
	"github.com/shopdesk-io/shopdesk/pkg/services"
)

// fakeEventLog is an in-memory EventLog with append-order IDs.
type fakeEventLog struct {
	mu     sync.Mutex
	nextID int64
	events []*models.Event
}

func (f *fakeEventLog) Append(_ context.Context, ticketID, messageID *string, eventType models.EventType, payload any) (*models.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	evt := &models.Event{
		ID:        f.nextID,
		TicketID:  ticketID,
		MessageID: messageID,
		Type:      eventType,
		Payload:   raw,
		Timestamp: time.Now(),
	}
	f.events = append(f.events, evt)
	return evt, nil
}

func (f *fakeEventLog) Latest(_ context.Context, messageID string, eventType models.EventType) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		evt := f.events[i]
		if evt.Type == eventType && evt.MessageID != nil && *evt.MessageID == messageID {
			return evt, nil
		}
	}
	return nil, services.ErrNotFound
}

func (f *fakeEventLog) LatestPayload(ctx context.Context, messageID string, eventType models.EventType, dst any) error {
	evt, err := f.Latest(ctx, messageID, eventType)
	if err != nil {
		return err
	}
	return json.Unmarshal(evt.Payload, dst)
}

func (f *fakeEventLog) attachmentID(evt *models.Event) string {
	var probe struct {
		AttachmentID string `json:"attachment_id"`
	}
	_ = json.Unmarshal(evt.Payload, &probe)
	return probe.AttachmentID
}

func (f *fakeEventLog) HasAttachmentEvent(_ context.Context, messageID, attachmentID string, eventType models.EventType) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, evt := range f.events {
		if evt.Type == eventType && evt.MessageID != nil && *evt.MessageID == messageID && f.attachmentID(evt) == attachmentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEventLog) ListAttachmentEvents(_ context.Context, messageID string, eventType models.EventType) ([]*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	latest := map[string]*models.Event{}
	for _, evt := range f.events {
		if evt.Type == eventType && evt.MessageID != nil && *evt.MessageID == messageID {
			latest[f.attachmentID(evt)] = evt
		}
	}
	out := make([]*models.Event, 0, len(latest))
	for _, evt := range latest {
		out = append(out, evt)
	}
	return out, nil
}

func (f *fakeEventLog) countByType(eventType models.EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, evt := range f.events {
		if evt.Type == eventType {
			n++
		}
	}
	return n
}

// fakeStore is an in-memory MessageStore and TicketStore.
type fakeStore struct {
	mu          sync.Mutex
	messages    map[string]*models.Message
	attachments map[string]*models.Attachment
	tickets     map[string]*models.Ticket // keyed by message ID
	log         *fakeEventLog
}

func newFakeStore(log *fakeEventLog) *fakeStore {
	return &fakeStore{
		messages:    map[string]*models.Message{},
		attachments: map[string]*models.Attachment{},
		tickets:     map[string]*models.Ticket{},
		log:         log,
	}
}

func (f *fakeStore) addMessage(body string) *models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := &models.Message{ID: uuid.NewString(), Source: "upload", BodyText: &body, Timestamp: time.Now()}
	f.messages[msg.ID] = msg
	return msg
}

func (f *fakeStore) addAttachment(messageID, mime string) *models.Attachment {
	f.mu.Lock()
	defer f.mu.Unlock()
	att := &models.Attachment{
		ID:         uuid.NewString(),
		MessageID:  messageID,
		Mime:       mime,
		StorageKey: "key/" + uuid.NewString(),
		CreatedAt:  time.Now(),
	}
	f.attachments[att.ID] = att
	return att
}

func (f *fakeStore) GetMessage(_ context.Context, id string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.messages[id]; ok {
		return msg, nil
	}
	return nil, services.ErrNotFound
}

func (f *fakeStore) GetAttachment(_ context.Context, id string) (*models.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if att, ok := f.attachments[id]; ok {
		return att, nil
	}
	return nil, services.ErrNotFound
}

func (f *fakeStore) ListAttachments(_ context.Context, messageID string) ([]*models.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Attachment
	for _, att := range f.attachments {
		if att.MessageID == messageID {
			out = append(out, att)
		}
	}
	return out, nil
}

func (f *fakeStore) GetByMessageID(_ context.Context, messageID string) (*models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tickets[messageID]; ok {
		return t, nil
	}
	return nil, services.ErrNotFound
}

func (f *fakeStore) CreateWithEvent(ctx context.Context, input models.CreateTicketInput, payload models.TicketCreatedPayload) (*models.Ticket, bool, error) {
	f.mu.Lock()
	if t, ok := f.tickets[input.MessageID]; ok {
		f.mu.Unlock()
		return t, false, nil
	}
	ticket := &models.Ticket{
		ID:         uuid.NewString(),
		MessageID:  input.MessageID,
		ExternalID: input.ExternalID,
		Status:     input.Status,
		Route:      input.Route,
		Summary:    input.Summary,
		DraftReply: input.DraftReply,
		CreatedAt:  time.Now(),
	}
	f.tickets[input.MessageID] = ticket
	f.mu.Unlock()

	payload.TicketID = ticket.ID
	payload.MessageID = input.MessageID
	if _, err := f.log.Append(ctx, &ticket.ID, &input.MessageID, models.EventTicketCreated, payload); err != nil {
		return nil, false, err
	}
	return ticket, true, nil
}

// fakeObjects serves attachment bytes by storage key.
type fakeObjects struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{data: map[string][]byte{}}
}

func (f *fakeObjects) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = data
}

func (f *fakeObjects) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.data[key]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("object %s not found", key)
}

// dispatchRecord is one dispatcher call.
type dispatchRecord struct {
	Task   string
	TaskID string
	Delay  time.Duration
}

// fakeDispatcher records dispatches and dedupes on task ID like the real
// broker.
type fakeDispatcher struct {
	mu       sync.Mutex
	seen     map[string]bool
	Records  []dispatchRecord
	Enqueued []dispatchRecord
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{seen: map[string]bool{}}
}

func (f *fakeDispatcher) Dispatch(_ context.Context, name, taskID string, _ any, delay time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := dispatchRecord{Task: name, TaskID: taskID, Delay: delay}
	f.Records = append(f.Records, rec)
	if f.seen[taskID] {
		return false, nil
	}
	f.seen[taskID] = true
	f.Enqueued = append(f.Enqueued, rec)
	return true, nil
}

// fakeHelpDesk mirrors the sandbox help desk.
type fakeHelpDesk struct {
	mu      sync.Mutex
	created []helpdesk.Ticket
}

func (f *fakeHelpDesk) CreateTicket(_ context.Context, ticket helpdesk.Ticket) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, ticket)
	subject := ticket.Subject
	if subject == "" {
		subject = "ticket"
	}
	return "zd_stub_" + subject
}
