// Package stomp implements the subset of STOMP 1.2 framing the
// support-chat broker speaks.
//
// # Frames
//
// A frame is a command line, header lines, a blank line, and a body
// terminated by a NUL octet:
//
//	SEND
//	destination:/app/chat/42
//	content-length:27
//
//	{"conversationId":42,...}^@
//
// Parse tolerates a missing trailing NUL because each WebSocket text
// message carries exactly one frame. Repeated headers keep the first
// occurrence, per the specification.
//
// # Header escaping
//
// Header names and values escape backslash, carriage return, line
// feed, and colon. CONNECT and CONNECTED frames are exempt, as the
// specification requires.
//
// # Heart-beats
//
// HeartBeat holds the two advertised intervals and Negotiate resolves
// the effective interval from both sides' capabilities.
package stomp
