// ABOUTME: Per-conversation topic subscription registry with fan-in delivery
// ABOUTME: Enforces at most one live handle per conversation at any time

package subscription

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ycyw/support-chat/internal/chat"
	"github.com/ycyw/support-chat/internal/transport"
)

const (
	// handleBufferSize is the per-subscription message queue. The
	// transport read loop never blocks on a slow callback; messages
	// beyond this backlog are dropped for that subscription.
	handleBufferSize = 64
)

// ErrNotConnected mirrors the transport error: subscribing while the
// connection is down has no fallback path, so the caller must retry
// once connectivity returns.
var ErrNotConnected = errors.New("not connected: subscription unavailable")

// Handler receives inbound messages for one conversation, in broker
// delivery order.
type Handler func(msg chat.Message)

// Broker is the slice of the transport connection the registry needs.
type Broker interface {
	State() transport.State
	Subscribe(id, destination string) error
	Unsubscribe(id string) error
}

// Handle represents one live broker subscription for a conversation.
type Handle struct {
	id             string
	conversationID int64
	handler        Handler
	queue          chan chat.Message
	done           chan struct{}
}

// run pumps queued messages into the handler until the handle is
// invalidated. Runs on its own goroutine so the transport read loop
// never waits on a consumer.
func (h *Handle) run() {
	for {
		select {
		case <-h.done:
			return
		case msg := <-h.queue:
			h.handler(msg)
		}
	}
}

// Registry owns the set of active per-conversation subscriptions.
//
// Invariant: at most one live Handle per conversation ID. Subscribing
// to a conversation that already has a handle unsubscribes the old
// handle first, so a stale callback closure can never fire against a
// newer selection.
type Registry struct {
	broker Broker
	logger *slog.Logger

	mu   sync.Mutex
	subs map[int64]*Handle
}

// NewRegistry creates a registry bound to the given broker connection.
// Pass nil logger for the default.
func NewRegistry(broker Broker, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		broker: broker,
		logger: logger.With("component", "subscription"),
		subs:   make(map[int64]*Handle),
	}
}

// Subscribe registers interest in a conversation's topic. Requires a
// connected transport: without one this is a no-op with a warning,
// since there is no real-time fallback (history stays available via
// the persistence API).
func (r *Registry) Subscribe(conversationID int64, handler Handler) error {
	if r.broker.State() != transport.StateConnected {
		r.logger.Warn("cannot subscribe while disconnected; real-time updates unavailable",
			"conversation_id", conversationID)
		return ErrNotConnected
	}

	handle := &Handle{
		id:             uuid.New().String(),
		conversationID: conversationID,
		handler:        handler,
		queue:          make(chan chat.Message, handleBufferSize),
		done:           make(chan struct{}),
	}

	r.mu.Lock()
	if old, ok := r.subs[conversationID]; ok {
		r.invalidateLocked(old, true)
	}
	r.subs[conversationID] = handle
	r.mu.Unlock()

	if err := r.broker.Subscribe(handle.id, chat.Topic(conversationID)); err != nil {
		r.mu.Lock()
		if r.subs[conversationID] == handle {
			delete(r.subs, conversationID)
		}
		r.mu.Unlock()
		close(handle.done)
		return err
	}

	go handle.run()

	r.logger.Debug("subscribed",
		"conversation_id", conversationID,
		"subscription_id", handle.id)
	return nil
}

// Unsubscribe removes and invalidates the handle for a conversation.
// No-op if none exists.
func (r *Registry) Unsubscribe(conversationID int64) {
	r.mu.Lock()
	handle, ok := r.subs[conversationID]
	if ok {
		delete(r.subs, conversationID)
		r.invalidateLocked(handle, true)
	}
	r.mu.Unlock()

	if ok {
		r.logger.Debug("unsubscribed", "conversation_id", conversationID)
	}
}

// Clear invalidates every handle without individual broker calls.
// Invoked on transport teardown, when the broker has already forgotten
// the subscriptions.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.subs) == 0 {
		return
	}
	for id, handle := range r.subs {
		r.invalidateLocked(handle, false)
		delete(r.subs, id)
	}
	r.logger.Debug("all subscriptions cleared")
}

// Deliver routes an inbound message to the conversation's handle.
// Returns false when no handle is registered (the frame is dropped by
// the dispatcher) or the handle's queue is full.
func (r *Registry) Deliver(conversationID int64, msg chat.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.subs[conversationID]
	if !ok {
		return false
	}
	select {
	case handle.queue <- msg:
		return true
	default:
		r.logger.Warn("subscription queue full, dropping message",
			"conversation_id", conversationID)
		return false
	}
}

// Subscribed reports whether a conversation currently has a live handle.
func (r *Registry) Subscribed(conversationID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[conversationID]
	return ok
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// invalidateLocked stops a handle's pump and best-effort cancels its
// broker subscription. A message already queued before invalidation
// may still reach the old callback once; that in-flight window is an
// accepted boundary of the protocol.
func (r *Registry) invalidateLocked(handle *Handle, notifyBroker bool) {
	close(handle.done)
	if notifyBroker && r.broker.State() == transport.StateConnected {
		if err := r.broker.Unsubscribe(handle.id); err != nil {
			r.logger.Debug("broker unsubscribe failed",
				"subscription_id", handle.id, "error", err)
		}
	}
}
