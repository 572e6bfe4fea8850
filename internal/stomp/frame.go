// ABOUTME: Minimal STOMP 1.2 frame codec carried over WebSocket text messages
// ABOUTME: Covers the client subset: CONNECT/SUBSCRIBE/SEND out, CONNECTED/MESSAGE/ERROR in

package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Command is a STOMP frame command.
type Command string

const (
	CommandConnect     Command = "CONNECT"
	CommandConnected   Command = "CONNECTED"
	CommandSubscribe   Command = "SUBSCRIBE"
	CommandUnsubscribe Command = "UNSUBSCRIBE"
	CommandSend        Command = "SEND"
	CommandDisconnect  Command = "DISCONNECT"
	CommandMessage     Command = "MESSAGE"
	CommandReceipt     Command = "RECEIPT"
	CommandError       Command = "ERROR"
)

// ErrMalformedFrame indicates a payload that cannot be parsed as a
// STOMP frame. Callers are expected to log and drop the payload.
var ErrMalformedFrame = errors.New("malformed STOMP frame")

// Frame is a single STOMP frame. Header order is not preserved; the
// broker subset this client speaks never relies on repeated headers.
type Frame struct {
	Command Command
	headers map[string]string
	Body    []byte
}

// NewFrame creates a frame with the given command and body.
func NewFrame(command Command, body []byte) *Frame {
	return &Frame{
		Command: command,
		headers: make(map[string]string),
		Body:    body,
	}
}

// Set adds or replaces a header.
func (f *Frame) Set(key, value string) {
	if f.headers == nil {
		f.headers = make(map[string]string)
	}
	f.headers[key] = value
}

// Header returns the value of a header, or "" if absent.
func (f *Frame) Header(key string) string {
	return f.headers[key]
}

// Marshal encodes the frame for transmission. A content-length header
// is included whenever the frame carries a body so that brokers never
// have to scan for the NUL terminator.
func (f *Frame) Marshal() []byte {
	var buf bytes.Buffer
	buf.WriteString(string(f.Command))
	buf.WriteByte('\n')

	escape := f.escapesHeaders()
	for key, value := range f.headers {
		if escape {
			key = escapeHeader(key)
			value = escapeHeader(value)
		}
		buf.WriteString(key)
		buf.WriteByte(':')
		buf.WriteString(value)
		buf.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		buf.WriteString("content-length:")
		buf.WriteString(strconv.Itoa(len(f.Body)))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// Parse decodes a single frame from a WebSocket text message. The
// trailing NUL terminator is optional on input; some brokers omit it
// on SockJS-style transports.
func Parse(data []byte) (*Frame, error) {
	data = bytes.TrimSuffix(data, []byte{0})
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedFrame)
	}

	head, body, found := bytes.Cut(data, []byte("\n\n"))
	if !found {
		return nil, fmt.Errorf("%w: missing header terminator", ErrMalformedFrame)
	}

	lines := strings.Split(strings.TrimSuffix(string(head), "\r"), "\n")
	command := Command(strings.TrimSuffix(lines[0], "\r"))
	if command == "" {
		return nil, fmt.Errorf("%w: empty command", ErrMalformedFrame)
	}

	f := NewFrame(command, body)
	escape := f.escapesHeaders()
	for _, line := range lines[1:] {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header line %q", ErrMalformedFrame, line)
		}
		if escape {
			var err error
			if key, err = unescapeHeader(key); err != nil {
				return nil, err
			}
			if value, err = unescapeHeader(value); err != nil {
				return nil, err
			}
		}
		// First occurrence wins, per the STOMP spec.
		if _, exists := f.headers[key]; !exists {
			f.headers[key] = value
		}
	}
	return f, nil
}

// IsHeartbeat reports whether a WebSocket payload is a bare STOMP
// heartbeat (EOL only) rather than a frame.
func IsHeartbeat(data []byte) bool {
	trimmed := bytes.Trim(data, "\r\n")
	return len(trimmed) == 0
}

// escapesHeaders reports whether header octets are escaped for this
// frame. STOMP 1.2 exempts CONNECT and CONNECTED for backward
// compatibility with 1.0.
func (f *Frame) escapesHeaders() bool {
	return f.Command != CommandConnect && f.Command != CommandConnected
}

var headerEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\r", `\r`,
	"\n", `\n`,
	":", `\c`,
)

func escapeHeader(s string) string {
	return headerEscaper.Replace(s)
}

func unescapeHeader(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i >= len(s) {
			return "", fmt.Errorf("%w: dangling escape in header", ErrMalformedFrame)
		}
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		case 'c':
			b.WriteByte(':')
		default:
			return "", fmt.Errorf("%w: invalid escape sequence \\%c", ErrMalformedFrame, s[i])
		}
	}
	return b.String(), nil
}
