// Package dedupe tracks recently dispatched message IDs so broker
// redeliveries around reconnects are dropped instead of duplicated in
// the message list.
package dedupe
