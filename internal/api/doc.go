// Package api is the REST client for the support-chat backend.
//
// # Overview
//
// The Client covers conversation listing and detail, history loading,
// the synchronous message-create fallback, mark-as-read, and the
// employee assign/close operations. Every request carries the bearer
// credential when one is available.
//
// # Errors
//
// Non-2xx responses decode the backend's error envelope into *Error,
// preserving the status code and message for callers that branch on
// them (a closed conversation rejects sends with 409, for example).
package api
