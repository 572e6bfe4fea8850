// ABOUTME: Domain types for support conversations and chat messages
// ABOUTME: JSON field names match the broker/backend wire format

package chat

import "time"

// Message is one chat utterance within a conversation. Messages are
// never mutated after creation except for the read flag.
//
// A Message is created either by the sender (optimistic insertion of an
// outbound message, carrying a session-local placeholder ID) or from an
// inbound broker frame / API response (carrying the server-assigned ID).
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	SenderName     string    `json:"senderName"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sentAt"`
	IsRead         bool      `json:"isRead"`
}

// IsLocal reports whether the message still carries a session-local
// placeholder ID from optimistic insertion. Placeholder IDs are
// negative, so they can never collide with server-assigned IDs.
func (m *Message) IsLocal() bool {
	return m.ID < 0
}

// SendMessageRequest is the outbound payload published to the broker
// send destination, and the body of the fallback POST /api/messages.
type SendMessageRequest struct {
	ConversationID int64  `json:"conversationId"`
	Content        string `json:"content"`
}
