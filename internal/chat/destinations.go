// ABOUTME: Broker destination naming convention for conversations
// ABOUTME: One inbound topic and one send destination per conversation

package chat

import (
	"strconv"
	"strings"
)

const (
	topicPrefix = "/topic/conversation/"
	sendPrefix  = "/app/chat/"
)

// Topic returns the broker topic carrying inbound messages for the
// given conversation.
func Topic(conversationID int64) string {
	return topicPrefix + strconv.FormatInt(conversationID, 10)
}

// SendDestination returns the broker destination a client publishes to
// in order to send a message into the given conversation.
func SendDestination(conversationID int64) string {
	return sendPrefix + strconv.FormatInt(conversationID, 10)
}

// ParseTopic extracts the conversation ID from an inbound topic
// destination. Returns false for destinations outside the conversation
// topic namespace.
func ParseTopic(destination string) (int64, bool) {
	rest, ok := strings.CutPrefix(destination, topicPrefix)
	if !ok || rest == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
