// ABOUTME: Tests for the conversation session orchestrator
// ABOUTME: Covers switch discipline, history ordering, gating, and reconnect restore

package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ycyw/support-chat/internal/auth"
	"github.com/ycyw/support-chat/internal/chat"
	"github.com/ycyw/support-chat/internal/subscription"
	"github.com/ycyw/support-chat/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testContext is a stand-in for testing.T.Context (Go 1.24+): a context
// canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

type fakeConn struct {
	mu       sync.Mutex
	state    transport.State
	connects []string
	stateCh  chan transport.State
	torndown bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{stateCh: make(chan transport.State, 16)}
}

func (c *fakeConn) Connect(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects = append(c.connects, token)
	c.state = transport.StateConnected
}

func (c *fakeConn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.torndown = true
	c.state = transport.StateDisconnected
}

func (c *fakeConn) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) StateChanges(ctx context.Context) <-chan transport.State {
	return c.stateCh
}

type fakeSubs struct {
	mu      sync.Mutex
	ops     []string
	handler subscription.Handler
	err     error
}

func (f *fakeSubs) Subscribe(conversationID int64, handler subscription.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ops = append(f.ops, "sub:"+itoa(conversationID))
	f.handler = handler
	return nil
}

func (f *fakeSubs) Unsubscribe(conversationID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "unsub:"+itoa(conversationID))
}

func (f *fakeSubs) operations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeSubs) deliver(msg chat.Message) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

// fakeSender mirrors the delivery controller: it records sends and its
// inbound handler drops the viewer's own messages.
type fakeSender struct {
	viewerID int64
	sent     []string
	next     *chat.Message
	err      error
}

func (f *fakeSender) Send(ctx context.Context, conversationID int64, content string) (*chat.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, content)
	if f.next != nil {
		return f.next, nil
	}
	return &chat.Message{
		ID:             -1,
		ConversationID: conversationID,
		SenderID:       f.viewerID,
		Content:        content,
		SentAt:         time.Now(),
	}, nil
}

func (f *fakeSender) InboundHandler(next func(chat.Message)) subscription.Handler {
	return func(msg chat.Message) {
		if msg.SenderID == f.viewerID {
			return
		}
		next(msg)
	}
}

type fakeBackend struct {
	conversations []chat.Conversation
	unassigned    []chat.Conversation
	messages      map[int64][]chat.Message
	readCalls     []int64
	getErr        error
}

func (b *fakeBackend) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	return b.conversations, nil
}

func (b *fakeBackend) ListUnassigned(ctx context.Context) ([]chat.Conversation, error) {
	return b.unassigned, nil
}

func (b *fakeBackend) GetConversation(ctx context.Context, id int64) (*chat.Conversation, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	for _, c := range b.conversations {
		if c.ID == id {
			copied := c
			return &copied, nil
		}
	}
	return nil, errors.New("conversation not found")
}

func (b *fakeBackend) CreateConversation(ctx context.Context, subject string) (*chat.Conversation, error) {
	conv := chat.Conversation{ID: int64(len(b.conversations) + 100), Subject: subject, Status: chat.StatusOpen}
	b.conversations = append(b.conversations, conv)
	return &conv, nil
}

func (b *fakeBackend) ListMessages(ctx context.Context, id int64) ([]chat.Message, error) {
	return b.messages[id], nil
}

func (b *fakeBackend) MarkConversationRead(ctx context.Context, id int64) error {
	b.readCalls = append(b.readCalls, id)
	return nil
}

func (b *fakeBackend) AssignConversation(ctx context.Context, id int64) (*chat.Conversation, error) {
	conv, err := b.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Status = chat.StatusPending
	return conv, nil
}

func (b *fakeBackend) CloseConversation(ctx context.Context, id int64) (*chat.Conversation, error) {
	conv, err := b.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Status = chat.StatusClosed
	return conv, nil
}

func customer() *auth.Identity {
	return &auth.Identity{UserID: 7, Email: "alice@example.com", Role: auth.RoleUser}
}

func employee() *auth.Identity {
	return &auth.Identity{UserID: 3, Email: "bob@ycyw.example", Role: auth.RoleEmployee}
}

type fixture struct {
	conn    *fakeConn
	subs    *fakeSubs
	sender  *fakeSender
	backend *fakeBackend
	session *Session
}

func newFixture(t *testing.T, viewer *auth.Identity) *fixture {
	t.Helper()
	conn := newFakeConn()
	subs := &fakeSubs{}
	sender := &fakeSender{viewerID: viewer.UserID}
	backend := &fakeBackend{
		conversations: []chat.Conversation{
			{ID: 1, Subject: "billing", Status: chat.StatusOpen, UnreadCount: 2},
			{ID: 2, Subject: "lost item", Status: chat.StatusPending},
			{ID: 3, Subject: "old issue", Status: chat.StatusClosed},
		},
		messages: map[int64][]chat.Message{},
	}
	return &fixture{
		conn:    conn,
		subs:    subs,
		sender:  sender,
		backend: backend,
		session: New(conn, subs, sender, backend, viewer, testLogger()),
	}
}

func TestStart_ConnectsWithToken(t *testing.T) {
	f := newFixture(t, customer())
	f.session.Start(testContext(t), "tok-abc")
	assert.Equal(t, []string{"tok-abc"}, f.conn.connects)

	f.session.Stop()
	assert.True(t, f.conn.torndown)
}

func TestStart_WithoutTokenSkipsConnect(t *testing.T) {
	f := newFixture(t, customer())
	f.session.Start(testContext(t), "")
	assert.Empty(t, f.conn.connects)
}

func TestSelect_LoadsSortedHistoryAndMarksRead(t *testing.T) {
	f := newFixture(t, customer())
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	f.backend.messages[1] = []chat.Message{
		{ID: 3, ConversationID: 1, Content: "third", SentAt: base.Add(2 * time.Minute)},
		{ID: 1, ConversationID: 1, Content: "first", SentAt: base},
		{ID: 2, ConversationID: 1, Content: "second", SentAt: base.Add(time.Minute)},
	}

	conv, messages, err := f.session.Select(testContext(t), 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), conv.ID)
	assert.Zero(t, conv.UnreadCount)
	assert.Equal(t, []int64{1}, f.backend.readCalls)

	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
	assert.Equal(t, "third", messages[2].Content)

	assert.Equal(t, []string{"sub:1"}, f.subs.operations())
}

func TestSelect_SwitchUnsubscribesPreviousFirst(t *testing.T) {
	f := newFixture(t, customer())

	_, _, err := f.session.Select(testContext(t), 1)
	require.NoError(t, err)
	_, _, err = f.session.Select(testContext(t), 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"sub:1", "unsub:1", "sub:2"}, f.subs.operations())
}

func TestSelect_ReselectingCurrentKeepsHandle(t *testing.T) {
	f := newFixture(t, customer())

	_, _, err := f.session.Select(testContext(t), 2)
	require.NoError(t, err)
	_, _, err = f.session.Select(testContext(t), 2)
	require.NoError(t, err)

	// No unsubscribe between the two: the registry replaces the handle.
	assert.Equal(t, []string{"sub:2", "sub:2"}, f.subs.operations())
}

func TestSelect_SubscribeFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, customer())
	f.subs.err = subscription.ErrNotConnected

	conv, _, err := f.session.Select(testContext(t), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), conv.ID)
}

func TestSelect_NoReadCallWhenNothingUnread(t *testing.T) {
	f := newFixture(t, customer())

	_, _, err := f.session.Select(testContext(t), 2)
	require.NoError(t, err)
	assert.Empty(t, f.backend.readCalls)
}

func TestSend_RequiresSelection(t *testing.T) {
	f := newFixture(t, customer())
	_, err := f.session.Send(testContext(t), "hello")
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestSend_RejectsClosedConversation(t *testing.T) {
	f := newFixture(t, customer())
	_, _, err := f.session.Select(testContext(t), 3)
	require.NoError(t, err)

	_, err = f.session.Send(testContext(t), "hello?")
	assert.ErrorIs(t, err, ErrConversationClosed)
	assert.Empty(t, f.sender.sent)
}

func TestSend_AppendsToMessageList(t *testing.T) {
	f := newFixture(t, customer())
	_, _, err := f.session.Select(testContext(t), 1)
	require.NoError(t, err)

	msg, err := f.session.Send(testContext(t), "any update?")
	require.NoError(t, err)
	assert.True(t, msg.IsLocal())
	assert.Equal(t, "alice@example.com", msg.SenderName)

	messages := f.session.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "any update?", messages[0].Content)
}

func TestIncomingMessage_AppendedAndEmitted(t *testing.T) {
	f := newFixture(t, customer())
	_, _, err := f.session.Select(testContext(t), 1)
	require.NoError(t, err)

	inbound := chat.Message{ID: 50, ConversationID: 1, SenderID: 3, Content: "how can I help?", SentAt: time.Now()}
	f.subs.deliver(inbound)

	messages := f.session.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "how can I help?", messages[0].Content)

	select {
	case event := <-f.session.Events():
		assert.Equal(t, EventMessage, event.Kind)
		require.NotNil(t, event.Message)
		assert.Equal(t, int64(50), event.Message.ID)
	default:
		t.Fatal("expected a message event")
	}
}

func TestIncomingMessage_OwnEchoSuppressed(t *testing.T) {
	f := newFixture(t, customer())
	_, _, err := f.session.Select(testContext(t), 1)
	require.NoError(t, err)

	f.subs.deliver(chat.Message{ID: 51, ConversationID: 1, SenderID: 7, Content: "echo", SentAt: time.Now()})

	assert.Empty(t, f.session.Messages())
	select {
	case <-f.session.Events():
		t.Fatal("self echo must not produce an event")
	default:
	}
}

func TestBack_ReleasesSubscription(t *testing.T) {
	f := newFixture(t, customer())
	_, _, err := f.session.Select(testContext(t), 1)
	require.NoError(t, err)

	f.session.Back()

	assert.Nil(t, f.session.Current())
	assert.Empty(t, f.session.Messages())
	assert.Equal(t, []string{"sub:1", "unsub:1"}, f.subs.operations())
}

func TestReconnect_RestoresSelectedSubscription(t *testing.T) {
	f := newFixture(t, customer())
	f.session.Start(testContext(t), "tok")
	_, _, err := f.session.Select(testContext(t), 1)
	require.NoError(t, err)

	f.conn.stateCh <- transport.StateConnected

	require.Eventually(t, func() bool {
		ops := f.subs.operations()
		return len(ops) == 2 && ops[1] == "sub:1"
	}, time.Second, 10*time.Millisecond)
}

func TestWatch_EmitsConnectivityEvents(t *testing.T) {
	f := newFixture(t, customer())
	f.session.Start(testContext(t), "tok")

	f.conn.stateCh <- transport.StateDisconnected

	require.Eventually(t, func() bool {
		select {
		case event := <-f.session.Events():
			return event.Kind == EventConnectivity && event.State == transport.StateDisconnected
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestEmployeeGating(t *testing.T) {
	f := newFixture(t, customer())
	ctx := testContext(t)

	_, err := f.session.Unassigned(ctx)
	assert.ErrorIs(t, err, ErrNotEmployee)
	_, err = f.session.Assign(ctx, 1)
	assert.ErrorIs(t, err, ErrNotEmployee)
	_, err = f.session.Close(ctx, 1)
	assert.ErrorIs(t, err, ErrNotEmployee)
}

func TestEmployee_AssignAndClose(t *testing.T) {
	f := newFixture(t, employee())
	ctx := testContext(t)

	_, _, err := f.session.Select(ctx, 1)
	require.NoError(t, err)

	assigned, err := f.session.Assign(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, chat.StatusPending, assigned.Status)
	assert.Equal(t, chat.StatusPending, f.session.Current().Status)

	closed, err := f.session.Close(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, chat.StatusClosed, closed.Status)

	_, err = f.session.Send(ctx, "too late")
	assert.ErrorIs(t, err, ErrConversationClosed)
}

func TestCreate_SelectsNewConversation(t *testing.T) {
	f := newFixture(t, customer())

	conv, err := f.session.Create(testContext(t), "broken charger")
	require.NoError(t, err)
	assert.Equal(t, "broken charger", conv.Subject)

	current := f.session.Current()
	require.NotNil(t, current)
	assert.Equal(t, conv.ID, current.ID)
	assert.Contains(t, f.subs.operations(), "sub:"+itoa(conv.ID))
}

func TestRefreshAndTotalUnread(t *testing.T) {
	f := newFixture(t, customer())

	conversations, err := f.session.Refresh(testContext(t))
	require.NoError(t, err)
	assert.Len(t, conversations, 3)
	assert.Equal(t, 2, f.session.TotalUnread())
}
