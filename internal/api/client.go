// ABOUTME: HTTP+JSON client for the support backend REST API
// ABOUTME: Serves history loading, read receipts, and the synchronous send fallback

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ycyw/support-chat/internal/auth"
	"github.com/ycyw/support-chat/internal/chat"
)

// Error is a failed API call. It reaches the user as an actionable
// failure ("message not sent"), unlike transport-level instability
// which the reconnect loop absorbs silently.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error (%d)", e.StatusCode)
}

// Client communicates with the support backend REST API. Every request
// carries the bearer token from the configured source.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  auth.TokenSource
	logger  *slog.Logger
}

// NewClient creates a client for the given API base URL (e.g.
// "https://support.ycyw.example/api"). Pass nil logger for the default.
func NewClient(baseURL string, timeout time.Duration, tokens auth.TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		logger:  logger.With("component", "api"),
	}
}

// ListConversations returns the viewer's conversations.
func (c *Client) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	var out []chat.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListUnassigned returns open conversations with no assigned employee.
func (c *Client) ListUnassigned(ctx context.Context) ([]chat.Conversation, error) {
	var out []chat.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations/unassigned", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetConversation fetches one conversation by ID.
func (c *Client) GetConversation(ctx context.Context, conversationID int64) (*chat.Conversation, error) {
	var out chat.Conversation
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateConversation opens a new support conversation.
func (c *Client) CreateConversation(ctx context.Context, subject string) (*chat.Conversation, error) {
	var out chat.Conversation
	req := chat.CreateConversationRequest{Subject: subject}
	if err := c.do(ctx, http.MethodPost, "/conversations", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages returns a conversation's message history, oldest first.
func (c *Client) ListMessages(ctx context.Context, conversationID int64) ([]chat.Message, error) {
	var out []chat.Message
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID)+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateMessage persists a message synchronously. This is the fallback
// send path used while the broker connection is down; the server
// assigns the message ID and timestamp.
func (c *Client) CreateMessage(ctx context.Context, conversationID int64, content string) (*chat.Message, error) {
	var out chat.Message
	req := chat.SendMessageRequest{ConversationID: conversationID, Content: content}
	if err := c.do(ctx, http.MethodPost, "/messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkConversationRead clears the viewer's unread count for a
// conversation.
func (c *Client) MarkConversationRead(ctx context.Context, conversationID int64) error {
	return c.do(ctx, http.MethodPut, conversationPath(conversationID)+"/read", nil, nil)
}

// AssignConversation assigns the conversation to the calling employee.
func (c *Client) AssignConversation(ctx context.Context, conversationID int64) (*chat.Conversation, error) {
	var out chat.Conversation
	if err := c.do(ctx, http.MethodPut, conversationPath(conversationID)+"/assign", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CloseConversation moves the conversation to its terminal CLOSED
// status.
func (c *Client) CloseConversation(ctx context.Context, conversationID int64) (*chat.Conversation, error) {
	var out chat.Conversation
	if err := c.do(ctx, http.MethodPut, conversationPath(conversationID)+"/close", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func conversationPath(conversationID int64) string {
	return "/conversations/" + strconv.FormatInt(conversationID, 10)
}

// errorBody is the backend's JSON error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, err := c.tokens.Token(); err == nil {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var eb errorBody
	if json.Unmarshal(data, &eb) == nil {
		switch {
		case eb.Error != "":
			apiErr.Message = eb.Error
		case eb.Message != "":
			apiErr.Message = eb.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
	}

	c.logger.Debug("api call failed",
		"status", resp.StatusCode,
		"message", apiErr.Message)
	return apiErr
}
