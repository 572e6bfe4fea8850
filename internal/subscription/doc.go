// Package subscription tracks live conversation-topic subscriptions.
//
// # Overview
//
// The Registry keeps at most one Handle per conversation. Subscribing
// to a conversation that already has a handle replaces it: the old
// handle is invalidated and its broker subscription released before
// the new one is installed, so a message is never handled twice.
//
// # Delivery
//
// Each handle owns a bounded queue drained by its own goroutine, so
// the transport read loop never blocks on a slow consumer. When a
// queue is full the message is dropped and the drop is logged.
//
// # Teardown
//
// Clear invalidates every handle without talking to the broker; it is
// wired to the transport's teardown hook, where the broker side of the
// subscriptions is already gone.
package subscription
