// ABOUTME: heart-beat header negotiation per STOMP 1.2 §Heart-beating

package stomp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HeartBeat holds one side's advertised heart-beat capabilities:
// the fastest rate it can send, and the fastest it wants to receive.
// Zero means "none".
type HeartBeat struct {
	SendInterval time.Duration
	RecvInterval time.Duration
}

// String formats the header value ("sx,sy" in milliseconds).
func (h HeartBeat) String() string {
	return fmt.Sprintf("%d,%d", h.SendInterval.Milliseconds(), h.RecvInterval.Milliseconds())
}

// ParseHeartBeat parses a heart-beat header value. An absent header
// means no heartbeats in either direction.
func ParseHeartBeat(value string) (HeartBeat, error) {
	if value == "" {
		return HeartBeat{}, nil
	}
	sx, sy, ok := strings.Cut(value, ",")
	if !ok {
		return HeartBeat{}, fmt.Errorf("%w: heart-beat %q", ErrMalformedFrame, value)
	}
	send, err := strconv.ParseInt(strings.TrimSpace(sx), 10, 64)
	if err != nil || send < 0 {
		return HeartBeat{}, fmt.Errorf("%w: heart-beat %q", ErrMalformedFrame, value)
	}
	recv, err := strconv.ParseInt(strings.TrimSpace(sy), 10, 64)
	if err != nil || recv < 0 {
		return HeartBeat{}, fmt.Errorf("%w: heart-beat %q", ErrMalformedFrame, value)
	}
	return HeartBeat{
		SendInterval: time.Duration(send) * time.Millisecond,
		RecvInterval: time.Duration(recv) * time.Millisecond,
	}, nil
}

// Negotiate computes the effective client send interval given what the
// client offered and what the server answered: the slower of the two,
// or zero when either side opted out.
func Negotiate(client, server HeartBeat) time.Duration {
	if client.SendInterval == 0 || server.RecvInterval == 0 {
		return 0
	}
	return max(client.SendInterval, server.RecvInterval)
}
