// ABOUTME: Session event stream and message-order helpers

package session

import (
	"slices"

	"github.com/ycyw/support-chat/internal/chat"
	"github.com/ycyw/support-chat/internal/transport"
)

const eventBufferSize = 64

// EventKind discriminates session events.
type EventKind int

const (
	// EventMessage carries an inbound message appended to the selected
	// conversation.
	EventMessage EventKind = iota
	// EventConnectivity carries a transport state transition.
	EventConnectivity
)

// Event is one asynchronous session occurrence, consumed by the UI
// loop.
type Event struct {
	Kind    EventKind
	Message *chat.Message
	State   transport.State
}

// Events returns the session's event stream. The channel is buffered;
// events are dropped when the consumer falls behind.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
		s.logger.Warn("event stream full, dropping event", "kind", event.Kind)
	}
}

// sortByTime orders messages chronologically by send time. The sort is
// stable so same-timestamp messages keep their server order.
func sortByTime(messages []chat.Message) {
	slices.SortStableFunc(messages, func(a, b chat.Message) int {
		return a.SentAt.Compare(b.SentAt)
	})
}

// insertByTime places msg into an already-sorted list, after any
// messages with the same timestamp. The common case is an append.
func insertByTime(messages []chat.Message, msg chat.Message) []chat.Message {
	i := len(messages)
	for i > 0 && messages[i-1].SentAt.After(msg.SentAt) {
		i--
	}
	return slices.Insert(messages, i, msg)
}
