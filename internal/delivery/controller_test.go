// ABOUTME: Tests for the dual-path delivery controller
// ABOUTME: Covers optimistic push, fallback correctness, and self-echo suppression

package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ycyw/support-chat/internal/chat"
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

type fakePublisher struct {
	state      transport.State
	published  []publishedFrame
	publishErr error
}

type publishedFrame struct {
	destination string
	body        []byte
}

func (p *fakePublisher) State() transport.State { return p.state }

func (p *fakePublisher) Publish(destination string, body []byte) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.published = append(p.published, publishedFrame{destination, body})
	return nil
}

type fakeStore struct {
	calls     int
	createErr error
	nextID    int64
}

func (s *fakeStore) CreateMessage(ctx context.Context, conversationID int64, content string) (*chat.Message, error) {
	s.calls++
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &chat.Message{
		ID:             s.nextID,
		ConversationID: conversationID,
		SenderID:       7,
		Content:        content,
		SentAt:         time.Now(),
	}, nil
}

func TestSend_PushPath(t *testing.T) {
	publisher := &fakePublisher{state: transport.StateConnected}
	store := &fakeStore{nextID: 999}
	c := New(publisher, store, 7, testLogger())

	msg, err := c.Send(testContext(t), 42, "hello")
	require.NoError(t, err)

	// Exactly one publish to the conversation's send destination, no
	// persistence call.
	require.Len(t, publisher.published, 1)
	assert.Equal(t, "/app/chat/42", publisher.published[0].destination)
	assert.Zero(t, store.calls)

	var payload chat.SendMessageRequest
	require.NoError(t, json.Unmarshal(publisher.published[0].body, &payload))
	assert.Equal(t, int64(42), payload.ConversationID)
	assert.Equal(t, "hello", payload.Content)

	// The optimistic message carries a placeholder ID and the viewer
	// as sender.
	assert.Negative(t, msg.ID)
	assert.True(t, msg.IsLocal())
	assert.Equal(t, int64(42), msg.ConversationID)
	assert.Equal(t, int64(7), msg.SenderID)
	assert.Equal(t, "hello", msg.Content)
	assert.WithinDuration(t, time.Now(), msg.SentAt, time.Second)
}

func TestSend_PlaceholderIDsAreUnique(t *testing.T) {
	publisher := &fakePublisher{state: transport.StateConnected}
	c := New(publisher, &fakeStore{}, 7, testLogger())

	seen := make(map[int64]bool)
	for i := 0; i < 10; i++ {
		msg, err := c.Send(testContext(t), 1, "x")
		require.NoError(t, err)
		assert.False(t, seen[msg.ID], "placeholder ID %d reused", msg.ID)
		seen[msg.ID] = true
	}
}

func TestSend_FallbackPath(t *testing.T) {
	publisher := &fakePublisher{state: transport.StateDisconnected}
	store := &fakeStore{nextID: 501}
	c := New(publisher, store, 7, testLogger())

	msg, err := c.Send(testContext(t), 9, "hi")
	require.NoError(t, err)

	// Exactly one persistence call, no publish.
	assert.Equal(t, 1, store.calls)
	assert.Empty(t, publisher.published)

	// The server-assigned message comes back authoritative.
	assert.Equal(t, int64(501), msg.ID)
	assert.False(t, msg.IsLocal())
	assert.Equal(t, int64(9), msg.ConversationID)
}

func TestSend_FallbackFailure(t *testing.T) {
	publisher := &fakePublisher{state: transport.StateDisconnected}
	store := &fakeStore{createErr: errors.New("database unavailable")}
	c := New(publisher, store, 7, testLogger())

	msg, err := c.Send(testContext(t), 9, "hi")
	assert.Error(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, 1, store.calls)
}

func TestSend_PublishFailureFallsBack(t *testing.T) {
	// The connection can drop between the state check and the write;
	// the fallback absorbs the failed publish.
	publisher := &fakePublisher{
		state:      transport.StateConnected,
		publishErr: transport.ErrNotConnected,
	}
	store := &fakeStore{nextID: 502}
	c := New(publisher, store, 7, testLogger())

	msg, err := c.Send(testContext(t), 9, "hi")
	require.NoError(t, err)
	assert.Equal(t, int64(502), msg.ID)
	assert.Equal(t, 1, store.calls)
}

func TestInboundHandler_SuppressesSelfEcho(t *testing.T) {
	c := New(&fakePublisher{}, &fakeStore{}, 7, testLogger())

	var received []chat.Message
	handler := c.InboundHandler(func(msg chat.Message) {
		received = append(received, msg)
	})

	// Another participant's message passes through.
	handler(chat.Message{ID: 1, ConversationID: 5, SenderID: 8, Content: "from them"})
	// The viewer's own broker echo is dropped.
	handler(chat.Message{ID: 2, ConversationID: 5, SenderID: 7, Content: "from me"})

	require.Len(t, received, 1)
	assert.Equal(t, int64(8), received[0].SenderID)
}
