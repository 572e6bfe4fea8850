// Package dispatch routes inbound broker frames to subscriptions.
//
// The Dispatcher decodes each MESSAGE frame's JSON payload, derives
// the conversation from the topic destination, drops redelivered
// message IDs, and hands the message to the subscription registry.
// Undecodable payloads and unknown destinations are logged and
// dropped; nothing inbound is ever fatal to the connection.
package dispatch
