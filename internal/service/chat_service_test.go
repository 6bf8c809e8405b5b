package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/events"
	"github.com/spec-kit/support-chat-service/internal/repository"
	apperrors "github.com/spec-kit/support-chat-service/pkg/util"
)

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.ChatSession
	messages map[string][]domain.ChatMessage
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*domain.ChatSession),
		messages: make(map[string][]domain.ChatMessage),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

type fakeSessionRepo struct{ store *fakeStore }

func (r *fakeSessionRepo) Create(_ context.Context, session *domain.ChatSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.sessions {
		if existing.OrderID == session.OrderID &&
			existing.CustomerID == session.CustomerID &&
			existing.Status == domain.SessionStatusActive {
			return repository.ErrDuplicateActiveSession
		}
	}
	session.ID = r.store.id("sess")
	session.CreatedAt = time.Now()
	session.LastMessageAt = session.CreatedAt
	clone := *session
	r.store.sessions[session.ID] = &clone
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id string) (*domain.ChatSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	session, ok := r.store.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *session
	return &clone, nil
}

func (r *fakeSessionRepo) UpdateStatus(_ context.Context, session *domain.ChatSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.sessions[session.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *session
	r.store.sessions[session.ID] = &clone
	return nil
}

func (r *fakeSessionRepo) List(_ context.Context, filter repository.SessionFilter) ([]domain.ChatSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.ChatSession
	for _, session := range r.store.sessions {
		if filter.CustomerID != nil && session.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.OrderID != nil && session.OrderID != *filter.OrderID {
			continue
		}
		out = append(out, *session)
	}
	return out, nil
}

type fakeMessageRepo struct{ store *fakeStore }

func (r *fakeMessageRepo) Append(_ context.Context, msg *domain.ChatMessage) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	session, ok := r.store.sessions[msg.SessionID]
	if !ok {
		return pgx.ErrNoRows
	}
	if session.Status != domain.SessionStatusActive {
		return repository.ErrSessionNotActive
	}
	msg.ID = r.store.id("msg")
	msg.Seq = int64(len(r.store.messages[msg.SessionID]) + 1)
	msg.Timestamp = time.Now()
	r.store.messages[msg.SessionID] = append(r.store.messages[msg.SessionID], *msg)
	session.LastMessageAt = msg.Timestamp
	return nil
}

func (r *fakeMessageRepo) ListBySession(_ context.Context, sessionID string) ([]domain.ChatMessage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return append([]domain.ChatMessage{}, r.store.messages[sessionID]...), nil
}

func (r *fakeMessageRepo) MarkRead(_ context.Context, sessionID, readerID string) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.sessions[sessionID]; !ok {
		return 0, pgx.ErrNoRows
	}
	var updated int64
	msgs := r.store.messages[sessionID]
	for i := range msgs {
		if msgs[i].SenderID != readerID && !msgs[i].Read {
			msgs[i].Read = true
			updated++
		}
	}
	return updated, nil
}

type fakeCustomerRepo struct{ customers map[string]*domain.Customer }

func (r *fakeCustomerRepo) GetByID(_ context.Context, id string) (*domain.Customer, error) {
	customer, ok := r.customers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return customer, nil
}

type fakeOrderRepo struct{ orders map[string]*domain.Order }

func (r *fakeOrderRepo) GetByID(_ context.Context, id string) (*domain.Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return order, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) SubscribeAll(events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, 0, len(d.events))
	for _, event := range d.events {
		out = append(out, event.Type)
	}
	return out
}

func newTestService() (*ChatService, *fakeStore, *recordingDispatcher) {
	store := newFakeStore()
	dispatcher := &recordingDispatcher{}
	svc := NewChatService(ChatDependencies{
		SessionRepo: &fakeSessionRepo{store: store},
		MessageRepo: &fakeMessageRepo{store: store},
		CustomerRepo: &fakeCustomerRepo{customers: map[string]*domain.Customer{
			"cust-1": {ID: "cust-1", Name: "Dana", Email: "dana@example.com", Phone: "555-0001"},
		}},
		OrderRepo: &fakeOrderRepo{orders: map[string]*domain.Order{
			"ORD123456": {ID: "ORD123456", CustomerID: "cust-1", TotalAmount: 4200, Status: "shipped"},
		}},
		Dispatcher: dispatcher,
	})
	return svc, store, dispatcher
}

func TestCreateSessionConflict(t *testing.T) {
	svc, _, dispatcher := newTestService()
	ctx := context.Background()

	input := SessionCreateInput{OrderID: "ORD123456", CustomerID: "cust-1", Issue: "late delivery", Category: "shipping"}
	first, err := svc.CreateSession(ctx, input)
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Equal(t, domain.SessionStatusActive, first.Status)

	_, err = svc.CreateSession(ctx, input)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))

	// only the successful creation made it onto the change feed
	assert.Equal(t, []events.EventType{events.EventChatStarted}, dispatcher.types())
}

func TestCreateSessionAfterResolveAllowed(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	input := SessionCreateInput{OrderID: "ORD123456", CustomerID: "cust-1", Issue: "late delivery", Category: "shipping"}
	first, err := svc.CreateSession(ctx, input)
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, first.ID, domain.SessionStatusResolved, domain.SubjectTypeStaff, "staff-1")
	require.NoError(t, err)

	second, err := svc.CreateSession(ctx, input)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreateSessionValidation(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreateSession(context.Background(), SessionCreateInput{OrderID: " ", CustomerID: "cust-1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestAppendMessageValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, SessionCreateInput{OrderID: "ORD123456", CustomerID: "cust-1", Issue: "x", Category: "y"})
	require.NoError(t, err)

	long := make([]byte, domain.MaxMessageLength+1)
	for i := range long {
		long[i] = 'a'
	}

	cases := []struct {
		name  string
		input MessageInput
	}{
		{"empty content", MessageInput{SessionID: session.ID, Sender: domain.SenderCustomer, SenderID: "cust-1", Content: "   "}},
		{"too long", MessageInput{SessionID: session.ID, Sender: domain.SenderCustomer, SenderID: "cust-1", Content: string(long)}},
		{"bad sender", MessageInput{SessionID: session.ID, Sender: "bot", SenderID: "cust-1", Content: "hi"}},
		{"missing sender id", MessageInput{SessionID: session.ID, Sender: domain.SenderCustomer, Content: "hi"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AppendMessage(ctx, tc.input)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
		})
	}
}

func TestAppendMessageOnResolvedSession(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, SessionCreateInput{OrderID: "ORD123456", CustomerID: "cust-1", Issue: "x", Category: "y"})
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, session.ID, domain.SessionStatusResolved, domain.SubjectTypeStaff, "staff-1")
	require.NoError(t, err)

	_, err = svc.AppendMessage(ctx, MessageInput{
		SessionID: session.ID, Sender: domain.SenderCustomer, SenderID: "cust-1", Content: "still broken",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "INVALID_STATE"))
	assert.Empty(t, store.messages[session.ID])
}

func TestAppendMessageUnknownSession(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.AppendMessage(context.Background(), MessageInput{
		SessionID: "missing", Sender: domain.SenderCustomer, SenderID: "cust-1", Content: "hello",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}

func TestMarkReadSkipsOwnAndIsIdempotent(t *testing.T) {
	svc, _, dispatcher := newTestService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, SessionCreateInput{OrderID: "ORD123456", CustomerID: "cust-1", Issue: "x", Category: "y"})
	require.NoError(t, err)

	_, err = svc.AppendMessage(ctx, MessageInput{SessionID: session.ID, Sender: domain.SenderCustomer, SenderID: "cust-1", Content: "hi"})
	require.NoError(t, err)
	_, err = svc.AppendMessage(ctx, MessageInput{SessionID: session.ID, Sender: domain.SenderStaff, SenderID: "staff-1", Content: "hello"})
	require.NoError(t, err)
	_, err = svc.AppendMessage(ctx, MessageInput{SessionID: session.ID, Sender: domain.SenderStaff, SenderID: "staff-1", Content: "checking now"})
	require.NoError(t, err)

	updated, err := svc.MarkRead(ctx, session.ID, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	_, msgs, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	for _, msg := range msgs {
		if msg.SenderID == "cust-1" {
			assert.False(t, msg.Read, "reader's own message must stay unread")
		} else {
			assert.True(t, msg.Read)
		}
	}

	// second pass finds nothing and emits no read event
	before := len(dispatcher.types())
	updated, err = svc.MarkRead(ctx, session.ID, "cust-1")
	require.NoError(t, err)
	assert.Zero(t, updated)
	assert.Len(t, dispatcher.types(), before)
}

func TestMarkReadUnknownSession(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.MarkRead(context.Background(), "missing", "cust-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}

func TestSetStatusTransitions(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, SessionCreateInput{OrderID: "ORD123456", CustomerID: "cust-1", Issue: "x", Category: "y"})
	require.NoError(t, err)

	resolved, err := svc.SetStatus(ctx, session.ID, domain.SessionStatusResolved, domain.SubjectTypeStaff, "staff-1")
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "staff-1", *resolved.ResolvedBy)

	reopened, err := svc.SetStatus(ctx, session.ID, domain.SessionStatusActive, domain.SubjectTypeStaff, "staff-1")
	require.NoError(t, err)
	assert.Nil(t, reopened.ResolvedAt)
	assert.Nil(t, reopened.ResolvedBy)

	closed, err := svc.SetStatus(ctx, session.ID, domain.SessionStatusClosed, domain.SubjectTypeStaff, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusClosed, closed.Status)

	_, err = svc.SetStatus(ctx, session.ID, domain.SessionStatusActive, domain.SubjectTypeStaff, "staff-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "INVALID_STATE"))
}

func TestSetStatusSameStatusIsNoOp(t *testing.T) {
	svc, _, dispatcher := newTestService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, SessionCreateInput{OrderID: "ORD123456", CustomerID: "cust-1", Issue: "x", Category: "y"})
	require.NoError(t, err)

	before := len(dispatcher.types())
	same, err := svc.SetStatus(ctx, session.ID, domain.SessionStatusActive, domain.SubjectTypeStaff, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusActive, same.Status)
	assert.Len(t, dispatcher.types(), before)
}

func TestListSessionsEnrichment(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, SessionCreateInput{OrderID: "ORD123456", CustomerID: "cust-1", Issue: "x", Category: "y"})
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, SessionCreateInput{OrderID: "ghost-order", CustomerID: "ghost-customer", Issue: "x", Category: "y"})
	require.NoError(t, err)

	listed, err := svc.ListSessions(ctx, SessionListFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 2)

	byOrder := map[string]EnrichedSession{}
	for _, entry := range listed {
		byOrder[entry.Session.OrderID] = entry
	}

	known := byOrder["ORD123456"]
	assert.Equal(t, "Dana", known.Customer.Name)
	assert.Equal(t, "123456", known.Order.OrderNumber)
	assert.Equal(t, int64(4200), known.Order.TotalAmount)

	ghost := byOrder["ghost-order"]
	assert.Equal(t, "Unknown", ghost.Customer.Name)
	assert.Equal(t, "Unknown", ghost.Order.Status)
	assert.Equal(t, "-order", ghost.Order.OrderNumber)
}

func TestAuthorizeParticipant(t *testing.T) {
	session := &domain.ChatSession{ID: "sess-1", CustomerID: "cust-1"}

	assert.NoError(t, AuthorizeParticipant(session, domain.SubjectTypeStaff, "staff-9"))
	assert.NoError(t, AuthorizeParticipant(session, domain.SubjectTypeCustomer, "cust-1"))

	err := AuthorizeParticipant(session, domain.SubjectTypeCustomer, "cust-2")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
}

func TestEventOrderMatchesCommitOrder(t *testing.T) {
	svc, _, dispatcher := newTestService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, SessionCreateInput{OrderID: "ORD123456", CustomerID: "cust-1", Issue: "x", Category: "y"})
	require.NoError(t, err)
	_, err = svc.AppendMessage(ctx, MessageInput{SessionID: session.ID, Sender: domain.SenderCustomer, SenderID: "cust-1", Content: "first"})
	require.NoError(t, err)
	_, err = svc.AppendMessage(ctx, MessageInput{SessionID: session.ID, Sender: domain.SenderStaff, SenderID: "staff-1", Content: "second"})
	require.NoError(t, err)
	_, err = svc.MarkRead(ctx, session.ID, "cust-1")
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, session.ID, domain.SessionStatusResolved, domain.SubjectTypeStaff, "staff-1")
	require.NoError(t, err)

	assert.Equal(t, []events.EventType{
		events.EventChatStarted,
		events.EventChatMessageAdded,
		events.EventChatMessageAdded,
		events.EventChatRead,
		events.EventChatUpdated,
	}, dispatcher.types())

	// every event carries an id for consumer-side deduplication
	for _, event := range dispatcher.events {
		assert.NotEmpty(t, event.ID)
		assert.False(t, event.Timestamp.IsZero())
	}

	// timestamps never run backwards within the seq order
	_, msgs, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].Seq, msgs[i-1].Seq)
		assert.False(t, msgs[i].Timestamp.Before(msgs[i-1].Timestamp))
	}
}
