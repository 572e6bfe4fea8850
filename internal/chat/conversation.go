// ABOUTME: Conversation thread model with status lifecycle
// ABOUTME: CLOSED is terminal - the backend refuses further sends

package chat

import "time"

// ConversationStatus is the lifecycle state of a support conversation.
type ConversationStatus string

const (
	StatusOpen    ConversationStatus = "OPEN"
	StatusPending ConversationStatus = "PENDING"
	StatusClosed  ConversationStatus = "CLOSED"
)

// Conversation is a support thread between exactly one customer and at
// most one assigned employee.
type Conversation struct {
	ID           int64              `json:"id"`
	Subject      string             `json:"subject"`
	CustomerID   int64              `json:"customerId"`
	CustomerName string             `json:"customerName"`
	EmployeeID   *int64             `json:"employeeId,omitempty"`
	EmployeeName *string            `json:"employeeName,omitempty"`
	Status       ConversationStatus `json:"status"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
	UnreadCount  int                `json:"unreadCount"`
	Messages     []Message          `json:"messages,omitempty"`
}

// Closed reports whether the conversation has reached its terminal
// status. The backend refuses new messages on closed conversations.
func (c *Conversation) Closed() bool {
	return c.Status == StatusClosed
}

// Assigned reports whether an employee has picked up the conversation.
func (c *Conversation) Assigned() bool {
	return c.EmployeeID != nil
}

// CreateConversationRequest is the body of POST /api/conversations.
type CreateConversationRequest struct {
	Subject string `json:"subject"`
}
