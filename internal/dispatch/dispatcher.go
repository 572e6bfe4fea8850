// ABOUTME: Inbound frame dispatcher - decodes MESSAGE frames and routes by conversation
// ABOUTME: Decode failures are logged and dropped, never fatal to the connection

package dispatch

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ycyw/support-chat/internal/chat"
	"github.com/ycyw/support-chat/internal/dedupe"
	"github.com/ycyw/support-chat/internal/stomp"
)

const (
	dedupeTTL     = 5 * time.Minute
	dedupeMaxSize = 1024
)

// Registry is the handler lookup the dispatcher routes through.
type Registry interface {
	Deliver(conversationID int64, msg chat.Message) bool
}

// Dispatcher decodes inbound MESSAGE frames into chat messages and
// hands them to the subscription registry. It has no notion of who is
// viewing: suppression of self-sent echoes belongs to the delivery
// controller's handler, not here.
type Dispatcher struct {
	registry Registry
	seen     *dedupe.Cache
	logger   *slog.Logger
}

// New creates a dispatcher routing through the given registry. Pass
// nil logger for the default.
func New(registry Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		seen:     dedupe.New(dedupeTTL, dedupeMaxSize),
		logger:   logger.With("component", "dispatch"),
	}
}

// Close releases the dedupe cache's background sweeper.
func (d *Dispatcher) Close() {
	d.seen.Close()
}

// HandleFrame implements transport.FrameHandler.
func (d *Dispatcher) HandleFrame(f *stomp.Frame) {
	destination := f.Header("destination")
	conversationID, ok := chat.ParseTopic(destination)
	if !ok {
		d.logger.Debug("dropping frame for unrecognized destination",
			"destination", destination)
		return
	}

	var msg chat.Message
	if err := json.Unmarshal(f.Body, &msg); err != nil {
		d.logger.Error("dropping undecodable message payload",
			"destination", destination,
			"error", err)
		return
	}

	// The topic is authoritative for routing; backfill the field if
	// the payload omitted it.
	if msg.ConversationID == 0 {
		msg.ConversationID = conversationID
	}

	// Resubscribing after a reconnect can replay frames already
	// dispatched this session.
	if msg.ID > 0 && d.seen.Seen(msg.ID) {
		d.logger.Debug("dropping redelivered message",
			"conversation_id", conversationID,
			"message_id", msg.ID)
		return
	}

	if !d.registry.Deliver(conversationID, msg) {
		d.logger.Debug("no live subscription for conversation, dropping message",
			"conversation_id", conversationID,
			"message_id", msg.ID)
	}
}
