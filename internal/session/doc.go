// Package session orchestrates one viewer's support-chat state.
//
// # Overview
//
// The Session binds the transport connection, the subscription
// registry, the delivery controller, and the backend API behind a
// single surface the UI drives. It owns the conversation list, the
// selected conversation, and that conversation's message list.
//
// # Selection discipline
//
// At most one conversation is selected at a time. Select releases the
// previous selection's topic subscription before loading the new
// conversation's history and subscribing to its topic, so exactly one
// live subscription exists per viewer. After a reconnect the selected
// conversation's subscription is restored automatically.
//
// # Events
//
// Inbound messages and connectivity transitions surface on the Events
// channel for the UI loop to render. The channel is buffered and
// lossy toward slow consumers.
package session
