// Package chat holds the shared domain types and broker destination
// conventions for support conversations.
package chat
