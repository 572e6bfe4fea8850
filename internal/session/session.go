// ABOUTME: Conversation session - binds transport, subscriptions, and delivery
// ABOUTME: Owns the selected conversation, its message list, and switch discipline

package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/ycyw/support-chat/internal/auth"
	"github.com/ycyw/support-chat/internal/chat"
	"github.com/ycyw/support-chat/internal/subscription"
	"github.com/ycyw/support-chat/internal/transport"
)

// Session errors
var (
	ErrNoSelection        = errors.New("no conversation selected")
	ErrConversationClosed = errors.New("conversation is closed")
	ErrNotEmployee        = errors.New("operation requires an employee role")
)

// Connection is the slice of the transport the session drives.
type Connection interface {
	Connect(token string)
	Disconnect()
	State() transport.State
	StateChanges(ctx context.Context) <-chan transport.State
}

// Subscriptions is the topic registry the session manages selections
// through.
type Subscriptions interface {
	Subscribe(conversationID int64, handler subscription.Handler) error
	Unsubscribe(conversationID int64)
}

// Sender is the delivery controller's send surface.
type Sender interface {
	Send(ctx context.Context, conversationID int64, content string) (*chat.Message, error)
	InboundHandler(next func(chat.Message)) subscription.Handler
}

// Backend is the persistence collaborator consumed by the session.
type Backend interface {
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
	ListUnassigned(ctx context.Context) ([]chat.Conversation, error)
	GetConversation(ctx context.Context, conversationID int64) (*chat.Conversation, error)
	CreateConversation(ctx context.Context, subject string) (*chat.Conversation, error)
	ListMessages(ctx context.Context, conversationID int64) ([]chat.Message, error)
	MarkConversationRead(ctx context.Context, conversationID int64) error
	AssignConversation(ctx context.Context, conversationID int64) (*chat.Conversation, error)
	CloseConversation(ctx context.Context, conversationID int64) (*chat.Conversation, error)
}

// Session orchestrates one viewer's support-chat state: the
// conversation list, the selected conversation with its message list,
// and the real-time subscription for that selection.
//
// The message list is kept sorted by send timestamp, so fallback-path
// messages interleave chronologically with push-path messages even
// though the two paths give no cross-path ordering guarantee.
type Session struct {
	conn    Connection
	subs    Subscriptions
	sender  Sender
	backend Backend
	viewer  *auth.Identity
	logger  *slog.Logger

	events chan Event

	mu            sync.Mutex
	conversations []chat.Conversation
	current       *chat.Conversation
	messages      []chat.Message
}

// New creates a session for the given viewer. Pass nil logger for the
// default.
func New(conn Connection, subs Subscriptions, sender Sender, backend Backend, viewer *auth.Identity, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		conn:    conn,
		subs:    subs,
		sender:  sender,
		backend: backend,
		viewer:  viewer,
		logger:  logger.With("component", "session"),
		events:  make(chan Event, eventBufferSize),
	}
}

// Start connects the real-time channel and begins watching connection
// state for the session's lifetime (bounded by ctx). An empty token
// means no credential is available; the session then runs on the
// persistence API alone.
func (s *Session) Start(ctx context.Context, token string) {
	go s.watch(ctx)
	if token == "" {
		s.logger.Warn("no credential available, running without real-time channel")
		return
	}
	s.conn.Connect(token)
}

// Stop tears down the real-time channel. Safe to call repeatedly.
func (s *Session) Stop() {
	s.conn.Disconnect()
}

// watch forwards connectivity transitions to the event stream and
// restores the current conversation's subscription after a reconnect
// (teardown invalidated every handle).
func (s *Session) watch(ctx context.Context) {
	states := s.conn.StateChanges(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			s.emit(Event{Kind: EventConnectivity, State: state})
			if state == transport.StateConnected {
				s.resubscribe()
			}
		}
	}
}

func (s *Session) resubscribe() {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current == nil {
		return
	}
	if err := s.subscribe(current.ID); err != nil {
		s.logger.Warn("failed to restore subscription after reconnect",
			"conversation_id", current.ID, "error", err)
	}
}

func (s *Session) subscribe(conversationID int64) error {
	return s.subs.Subscribe(conversationID, s.sender.InboundHandler(s.appendIncoming))
}

// Refresh reloads the viewer's conversation list.
func (s *Session) Refresh(ctx context.Context) ([]chat.Conversation, error) {
	conversations, err := s.backend.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.conversations = conversations
	s.mu.Unlock()
	return slices.Clone(conversations), nil
}

// Unassigned lists open conversations awaiting an employee. Employee
// only.
func (s *Session) Unassigned(ctx context.Context) ([]chat.Conversation, error) {
	if !s.viewer.IsEmployee() {
		return nil, ErrNotEmployee
	}
	return s.backend.ListUnassigned(ctx)
}

// Select switches the session to a conversation: unsubscribes the
// previous selection's topic first (one-handle-per-conversation
// discipline), loads the detail and history, clears the unread count,
// and subscribes to the new topic.
//
// A failed subscribe (no connectivity) is logged, not fatal: history
// remains readable and sends fall back to the persistence API.
func (s *Session) Select(ctx context.Context, conversationID int64) (*chat.Conversation, []chat.Message, error) {
	s.mu.Lock()
	previous := s.current
	s.mu.Unlock()
	if previous != nil && previous.ID != conversationID {
		s.subs.Unsubscribe(previous.ID)
	}

	conversation, err := s.backend.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.backend.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	sortByTime(messages)

	if conversation.UnreadCount > 0 {
		if err := s.backend.MarkConversationRead(ctx, conversationID); err != nil {
			s.logger.Warn("failed to mark conversation read",
				"conversation_id", conversationID, "error", err)
		} else {
			conversation.UnreadCount = 0
		}
	}

	s.mu.Lock()
	s.current = conversation
	s.messages = messages
	s.updateCachedLocked(conversation)
	s.mu.Unlock()

	if err := s.subscribe(conversationID); err != nil {
		s.logger.Warn("real-time subscription unavailable",
			"conversation_id", conversationID, "error", err)
	}

	return conversation, slices.Clone(messages), nil
}

// Back leaves the current conversation, releasing its subscription.
func (s *Session) Back() {
	s.mu.Lock()
	current := s.current
	s.current = nil
	s.messages = nil
	s.mu.Unlock()
	if current != nil {
		s.subs.Unsubscribe(current.ID)
	}
}

// Send delivers content into the selected conversation and appends the
// resulting message (optimistic or authoritative) to the list.
func (s *Session) Send(ctx context.Context, content string) (*chat.Message, error) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current == nil {
		return nil, ErrNoSelection
	}
	if current.Closed() {
		return nil, ErrConversationClosed
	}

	msg, err := s.sender.Send(ctx, current.ID, content)
	if err != nil {
		return nil, err
	}
	if msg.SenderName == "" {
		msg.SenderName = s.viewer.Email
	}

	s.mu.Lock()
	s.messages = insertByTime(s.messages, *msg)
	if s.current != nil {
		s.current.UpdatedAt = msg.SentAt
	}
	s.mu.Unlock()
	return msg, nil
}

// Create opens a new conversation and selects it.
func (s *Session) Create(ctx context.Context, subject string) (*chat.Conversation, error) {
	conversation, err := s.backend.CreateConversation(ctx, subject)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.conversations = append(s.conversations, *conversation)
	s.mu.Unlock()

	if _, _, err := s.Select(ctx, conversation.ID); err != nil {
		return nil, err
	}
	return conversation, nil
}

// Assign assigns a conversation to the calling employee. Employee only.
func (s *Session) Assign(ctx context.Context, conversationID int64) (*chat.Conversation, error) {
	if !s.viewer.IsEmployee() {
		return nil, ErrNotEmployee
	}
	conversation, err := s.backend.AssignConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.updateCachedLocked(conversation)
	s.mu.Unlock()
	return conversation, nil
}

// Close moves a conversation to its terminal CLOSED status. Employee
// only.
func (s *Session) Close(ctx context.Context, conversationID int64) (*chat.Conversation, error) {
	if !s.viewer.IsEmployee() {
		return nil, ErrNotEmployee
	}
	conversation, err := s.backend.CloseConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.updateCachedLocked(conversation)
	s.mu.Unlock()
	return conversation, nil
}

// Conversations returns the cached conversation list.
func (s *Session) Conversations() []chat.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.conversations)
}

// Current returns the selected conversation, or nil.
func (s *Session) Current() *chat.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	copied := *s.current
	return &copied
}

// Messages returns the selected conversation's message list, sorted by
// send time.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// TotalUnread sums unread counts across the cached conversation list.
func (s *Session) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, conversation := range s.conversations {
		total += conversation.UnreadCount
	}
	return total
}

// ConnectionState exposes the transport state for connectivity
// indicators.
func (s *Session) ConnectionState() transport.State {
	return s.conn.State()
}

// Viewer returns the session's viewer identity.
func (s *Session) Viewer() *auth.Identity {
	return s.viewer
}

// appendIncoming receives another participant's message from the
// delivery controller's suppression handler.
func (s *Session) appendIncoming(msg chat.Message) {
	s.mu.Lock()
	if s.current == nil || s.current.ID != msg.ConversationID {
		// Stale frame from a subscription invalidated mid-flight.
		s.mu.Unlock()
		s.logger.Debug("dropping message for non-selected conversation",
			"conversation_id", msg.ConversationID)
		return
	}
	s.messages = insertByTime(s.messages, msg)
	s.current.UpdatedAt = msg.SentAt
	s.mu.Unlock()

	s.emit(Event{Kind: EventMessage, Message: &msg})
}

// updateCachedLocked refreshes the conversation's entry in the cached
// list. Caller holds s.mu.
func (s *Session) updateCachedLocked(conversation *chat.Conversation) {
	for i := range s.conversations {
		if s.conversations[i].ID == conversation.ID {
			s.conversations[i] = *conversation
			break
		}
	}
	if s.current != nil && s.current.ID == conversation.ID {
		s.current = conversation
	}
}
