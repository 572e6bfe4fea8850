// Package delivery is the outbound message path.
//
// # Send paths
//
// The Controller picks one of two paths per send:
//
//   - Push: while connected, publish to the broker and insert an
//     optimistic local message immediately. The broker persists the
//     message and echoes it to the conversation topic.
//   - Fallback: while disconnected, create the message synchronously
//     through the persistence API and insert the server's reply.
//
// Exactly one visible copy of each logical send results. On the push
// path the broker echo of the viewer's own message is suppressed by
// the inbound handler, because the optimistic insertion already
// represents it.
//
// # Placeholder IDs
//
// Optimistic messages carry negative IDs, unique per session, so they
// can never collide with server-assigned IDs. They are not reconciled
// with the server's ID afterwards; nothing in the client keys off a
// self-sent message's identifier.
package delivery
