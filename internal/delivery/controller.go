// ABOUTME: Dual-path send controller - broker publish with optimistic insertion,
// ABOUTME: synchronous persistence fallback, and self-echo suppression

package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ycyw/support-chat/internal/chat"
	"github.com/ycyw/support-chat/internal/subscription"
	"github.com/ycyw/support-chat/internal/transport"
)

// Publisher is the push path into the broker.
type Publisher interface {
	State() transport.State
	Publish(destination string, body []byte) error
}

// MessageStore is the synchronous persistence fallback used while the
// push channel is down.
type MessageStore interface {
	CreateMessage(ctx context.Context, conversationID int64, content string) (*chat.Message, error)
}

// Controller is the send path for one viewer session. It guarantees
// that exactly one visible copy of each logical send ends up in the
// conversation's message list:
//
//   - Connected: publish to the broker and return an optimistic local
//     Message immediately. The broker will echo the persisted message
//     back on the conversation topic; the inbound handler drops that
//     echo because its sender is the viewer.
//   - Disconnected: create the message synchronously through the
//     persistence API and return the server's authoritative Message.
//
// Placeholder IDs for optimistic messages are negative and unique for
// the life of the session, so they can never collide with
// server-assigned IDs. They are never reconciled with the server ID;
// no in-scope feature keys off a self-sent message's identifier.
type Controller struct {
	publisher Publisher
	store     MessageStore
	viewerID  int64
	logger    *slog.Logger

	seq localSequence
}

// New creates a controller for the given viewer. Pass nil logger for
// the default.
func New(publisher Publisher, store MessageStore, viewerID int64, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		publisher: publisher,
		store:     store,
		viewerID:  viewerID,
		logger:    logger.With("component", "delivery"),
	}
}

// Send delivers content into a conversation via the fastest available
// path and returns the Message the caller should append to its list.
// The returned message is optimistic (negative ID) on the push path
// and authoritative on the fallback path.
func (c *Controller) Send(ctx context.Context, conversationID int64, content string) (*chat.Message, error) {
	if c.publisher.State() == transport.StateConnected {
		msg, err := c.sendPush(conversationID, content)
		if err == nil {
			return msg, nil
		}
		// A publish can still fail in the window between the state
		// check and the write; the fallback absorbs it.
		c.logger.Warn("push publish failed, using fallback",
			"conversation_id", conversationID, "error", err)
	}
	return c.sendFallback(ctx, conversationID, content)
}

func (c *Controller) sendPush(conversationID int64, content string) (*chat.Message, error) {
	body, err := json.Marshal(chat.SendMessageRequest{
		ConversationID: conversationID,
		Content:        content,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding send payload: %w", err)
	}
	if err := c.publisher.Publish(chat.SendDestination(conversationID), body); err != nil {
		return nil, err
	}

	optimistic := &chat.Message{
		ID:             c.seq.next(),
		ConversationID: conversationID,
		SenderID:       c.viewerID,
		Content:        content,
		SentAt:         time.Now(),
	}
	c.logger.Debug("message published, inserted optimistically",
		"conversation_id", conversationID,
		"placeholder_id", optimistic.ID)
	return optimistic, nil
}

func (c *Controller) sendFallback(ctx context.Context, conversationID int64, content string) (*chat.Message, error) {
	msg, err := c.store.CreateMessage(ctx, conversationID, content)
	if err != nil {
		// Surfaced to the caller; the local list is not touched, so
		// displayed state stays consistent with confirmed state.
		return nil, fmt.Errorf("fallback send: %w", err)
	}
	c.logger.Debug("message persisted via fallback",
		"conversation_id", conversationID,
		"message_id", msg.ID)
	return msg, nil
}

// InboundHandler wraps next with suppression of the viewer's own
// messages. The optimistic insertion in Send already represents that
// logical send; appending the broker echo would display a duplicate.
func (c *Controller) InboundHandler(next func(chat.Message)) subscription.Handler {
	return func(msg chat.Message) {
		if msg.SenderID == c.viewerID {
			c.logger.Debug("suppressing self-sent echo",
				"conversation_id", msg.ConversationID,
				"message_id", msg.ID)
			return
		}
		next(msg)
	}
}
