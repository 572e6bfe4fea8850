// Package transport maintains the WebSocket/STOMP connection to the
// support-chat broker.
//
// # Overview
//
// A Conn is an explicitly owned, long-lived object: construct one,
// register the frame handler and teardown hook, then call Connect with
// the bearer credential. The connection dials the broker, performs the
// STOMP 1.2 handshake, and keeps a session alive until Disconnect.
//
// # Lifecycle
//
// The connection moves through three states:
//
//	Disconnected -> Connecting -> Connected
//
// Connect is idempotent: calling it while a session is live or a
// reconnect loop is running does nothing. When a session drops for any
// reason other than Disconnect, the loop waits a fixed delay and
// redials with the credential captured at Connect time. There is no
// backoff escalation; the broker is a single trusted internal service.
//
// # Handshake
//
// The CONNECT frame carries:
//
//	accept-version: 1.2
//	host:           <broker host>
//	heart-beat:     <client capability>
//	Authorization:  Bearer <token>
//
// The credential is attached only here, never to SUBSCRIBE or SEND.
// Heart-beat intervals are negotiated from the CONNECTED reply per the
// STOMP specification.
//
// # Teardown
//
// Every session end, expected or not, invokes the teardown hook before
// any reconnect attempt. The subscription registry hangs its Clear on
// this hook so no handle survives a dead session.
//
// # State watching
//
// StateChanges returns a buffered per-watcher channel of transitions.
// Watchers that fall behind lose transitions, never block the
// connection.
package transport
