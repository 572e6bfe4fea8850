// ABOUTME: WebSocket/STOMP connection to the support-chat broker
// ABOUTME: Owns the connect/reconnect lifecycle, frame read loop, and heartbeats

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ycyw/support-chat/internal/stomp"
)

const (
	// writeWait is the time allowed to write a frame to the broker.
	writeWait = 10 * time.Second

	// stateBufferSize is the channel buffer for each state watcher.
	stateBufferSize = 16

	defaultReconnectDelay   = 5 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultHeartBeatMillis  = 10 * time.Second
)

// Transport errors
var (
	// ErrNotConnected means a publish or subscribe was attempted while
	// the connection is down. Sends fall back to the persistence API;
	// subscribes have no fallback and are surfaced to the caller.
	ErrNotConnected = errors.New("not connected to broker")

	// ErrProtocol means the broker rejected the session or a frame.
	// It is logged and absorbed by the reconnect loop, never fatal.
	ErrProtocol = errors.New("broker protocol error")
)

// FrameHandler receives inbound MESSAGE frames from the read loop.
// Implementations must not block; slow consumers are expected to queue.
type FrameHandler interface {
	HandleFrame(f *stomp.Frame)
}

// Config holds the transport connection settings.
type Config struct {
	// URL is the broker WebSocket endpoint (ws:// or wss://).
	URL string

	// ReconnectDelay is the fixed wait between reconnect attempts.
	// The broker is a single trusted internal service, so a fixed
	// interval is used instead of exponential backoff.
	ReconnectDelay time.Duration

	// HandshakeTimeout bounds the dial plus STOMP CONNECT exchange.
	HandshakeTimeout time.Duration

	// HeartBeat is the client's advertised heart-beat capability.
	HeartBeat stomp.HeartBeat
}

// Conn is a logical connection to the broker. It dials the WebSocket
// endpoint, performs the STOMP handshake with the bearer credential
// attached to the CONNECT frame, and keeps the session alive with a
// fixed-delay reconnect loop until Disconnect is called.
//
// A Conn is an explicitly owned object: construct one, inject it into
// the session, and tear it down when the session ends.
type Conn struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger

	handler  FrameHandler
	teardown func()

	mu     sync.Mutex
	state  State
	ws     *websocket.Conn
	cancel context.CancelFunc

	writeMu sync.Mutex

	watchMu  sync.Mutex
	watchers map[string]chan State
}

// NewConn creates a connection for the given broker endpoint. Pass nil
// logger for the default.
func NewConn(cfg Config, logger *slog.Logger) *Conn {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.HeartBeat == (stomp.HeartBeat{}) {
		cfg.HeartBeat = stomp.HeartBeat{
			SendInterval: defaultHeartBeatMillis,
			RecvInterval: defaultHeartBeatMillis,
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger:   logger.With("component", "transport"),
		watchers: make(map[string]chan State),
	}
}

// SetHandler registers the inbound frame handler. Must be called
// before Connect.
func (c *Conn) SetHandler(h FrameHandler) {
	c.handler = h
}

// OnTeardown registers a callback invoked whenever a broker session
// ends, before any reconnect attempt. The subscription registry hooks
// its Clear here so every handle is invalidated together. Must be
// called before Connect.
func (c *Conn) OnTeardown(fn func()) {
	c.teardown = fn
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StateChanges returns a channel receiving every state transition.
// The watcher is removed when ctx is cancelled. Slow watchers miss
// transitions rather than blocking the connection.
func (c *Conn) StateChanges(ctx context.Context) <-chan State {
	ch := make(chan State, stateBufferSize)
	id := uuid.New().String()

	c.watchMu.Lock()
	c.watchers[id] = ch
	c.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		c.watchMu.Lock()
		delete(c.watchers, id)
		c.watchMu.Unlock()
	}()

	return ch
}

// Connect establishes the broker session using the supplied bearer
// credential. Idempotent: calling it while connecting or connected is
// a no-op. The credential is attached once, as a CONNECT header, and
// reused for every reconnect attempt until Disconnect.
func (c *Conn) Connect(token string) {
	c.mu.Lock()
	if c.state != StateDisconnected || c.cancel != nil {
		c.mu.Unlock()
		c.logger.Debug("connect ignored", "state", c.state)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = StateConnecting
	c.mu.Unlock()

	c.notify(StateConnecting)
	go c.run(ctx, token)
}

// Disconnect tears down the broker session and stops reconnecting.
// All subscription handles are invalidated via the teardown callback.
// Idempotent.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	ws := c.ws
	c.ws = nil
	alreadyDown := c.state == StateDisconnected && cancel == nil
	c.mu.Unlock()

	if alreadyDown {
		return
	}
	if cancel != nil {
		cancel()
	}
	if ws != nil {
		// Best effort: the broker treats the socket close as an
		// implicit DISCONNECT anyway.
		frame := stomp.NewFrame(stomp.CommandDisconnect, nil)
		c.writeMu.Lock()
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteMessage(websocket.TextMessage, frame.Marshal())
		c.writeMu.Unlock()
		_ = ws.Close()
	}
	if c.teardown != nil {
		c.teardown()
	}
	c.setState(StateDisconnected)
	c.logger.Info("disconnected from broker")
}

// Publish sends a SEND frame to the given destination. Returns
// ErrNotConnected when the connection is down; the caller is expected
// to use the fallback path instead.
func (c *Conn) Publish(destination string, body []byte) error {
	ws, err := c.currentWS()
	if err != nil {
		return err
	}
	frame := stomp.NewFrame(stomp.CommandSend, body)
	frame.Set("destination", destination)
	frame.Set("content-type", "application/json")
	if err := c.writeFrame(ws, frame); err != nil {
		return fmt.Errorf("publishing to %s: %w", destination, err)
	}
	return nil
}

// Subscribe registers interest in a broker destination under the given
// subscription ID.
func (c *Conn) Subscribe(id, destination string) error {
	ws, err := c.currentWS()
	if err != nil {
		return err
	}
	frame := stomp.NewFrame(stomp.CommandSubscribe, nil)
	frame.Set("id", id)
	frame.Set("destination", destination)
	frame.Set("ack", "auto")
	if err := c.writeFrame(ws, frame); err != nil {
		return fmt.Errorf("subscribing to %s: %w", destination, err)
	}
	return nil
}

// Unsubscribe cancels the broker subscription with the given ID.
func (c *Conn) Unsubscribe(id string) error {
	ws, err := c.currentWS()
	if err != nil {
		return err
	}
	frame := stomp.NewFrame(stomp.CommandUnsubscribe, nil)
	frame.Set("id", id)
	if err := c.writeFrame(ws, frame); err != nil {
		return fmt.Errorf("unsubscribing %s: %w", id, err)
	}
	return nil
}

// run owns the reconnect loop: one session attempt per cycle, fixed
// delay between cycles, until the context is cancelled by Disconnect.
func (c *Conn) run(ctx context.Context, token string) {
	for {
		err := c.session(ctx, token)

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		if c.teardown != nil {
			c.teardown()
		}

		if ctx.Err() != nil {
			return
		}

		c.setState(StateDisconnected)
		c.logger.Warn("broker session ended, scheduling reconnect",
			"error", err,
			"delay", c.cfg.ReconnectDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
		c.setState(StateConnecting)
	}
}

// session dials the broker, performs the STOMP handshake, then reads
// frames until the connection fails or the context is cancelled.
func (c *Conn) session(ctx context.Context, token string) error {
	dialCtx, cancelDial := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	ws, _, err := c.dialer.DialContext(dialCtx, c.cfg.URL, nil)
	cancelDial()
	if err != nil {
		return fmt.Errorf("dialing broker: %w", err)
	}
	defer ws.Close()

	// Unblock the read loop when Disconnect cancels the context.
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	connect := stomp.NewFrame(stomp.CommandConnect, nil)
	connect.Set("accept-version", "1.2")
	connect.Set("host", hostOf(c.cfg.URL))
	connect.Set("heart-beat", c.cfg.HeartBeat.String())
	if token != "" {
		connect.Set("Authorization", "Bearer "+token)
	}
	if err := c.writeFrame(ws, connect); err != nil {
		return fmt.Errorf("sending CONNECT: %w", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	reply, err := readFrame(ws)
	if err != nil {
		return fmt.Errorf("awaiting CONNECTED: %w", err)
	}
	switch reply.Command {
	case stomp.CommandConnected:
	case stomp.CommandError:
		return fmt.Errorf("%w: %s", ErrProtocol, reply.Header("message"))
	default:
		return fmt.Errorf("%w: unexpected %s during handshake", ErrProtocol, reply.Command)
	}

	serverHB, err := stomp.ParseHeartBeat(reply.Header("heart-beat"))
	if err != nil {
		c.logger.Warn("ignoring invalid heart-beat header", "error", err)
		serverHB = stomp.HeartBeat{}
	}
	sendEvery := stomp.Negotiate(c.cfg.HeartBeat, serverHB)
	readTimeout := readTimeoutFor(c.cfg.HeartBeat, serverHB)

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return ctx.Err()
	}
	c.ws = ws
	c.mu.Unlock()
	c.setState(StateConnected)
	c.logger.Info("connected to broker", "url", c.cfg.URL)

	hbCtx, cancelHB := context.WithCancel(ctx)
	defer cancelHB()
	if sendEvery > 0 {
		go c.heartbeatLoop(hbCtx, ws, sendEvery)
	}

	return c.readLoop(ws, readTimeout)
}

// readLoop decodes inbound payloads and routes MESSAGE frames to the
// handler. Undecodable payloads are logged and dropped; they must
// never take the connection down.
func (c *Conn) readLoop(ws *websocket.Conn, readTimeout time.Duration) error {
	for {
		if readTimeout > 0 {
			_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
		} else {
			_ = ws.SetReadDeadline(time.Time{})
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading frame: %w", err)
		}
		if stomp.IsHeartbeat(data) {
			continue
		}
		frame, err := stomp.Parse(data)
		if err != nil {
			c.logger.Error("dropping unparseable frame", "error", err)
			continue
		}
		switch frame.Command {
		case stomp.CommandMessage:
			if c.handler != nil {
				c.handler.HandleFrame(frame)
			}
		case stomp.CommandError:
			return fmt.Errorf("%w: %s", ErrProtocol, frame.Header("message"))
		case stomp.CommandReceipt:
			// No receipts are requested; tolerate them anyway.
		default:
			c.logger.Debug("ignoring frame", "command", frame.Command)
		}
	}
}

func (c *Conn) heartbeatLoop(ctx context.Context, ws *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := ws.WriteMessage(websocket.TextMessage, []byte("\n"))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("heartbeat write failed", "error", err)
				return
			}
		}
	}
}

func (c *Conn) currentWS() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.ws == nil {
		return nil, ErrNotConnected
	}
	return c.ws, nil
}

func (c *Conn) writeFrame(ws *websocket.Conn, f *stomp.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, f.Marshal())
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	c.notify(s)
}

func (c *Conn) notify(s State) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	for id, ch := range c.watchers {
		select {
		case ch <- s:
		default:
			c.logger.Debug("state watcher lagging, dropping transition",
				"watcher", id, "state", s)
		}
	}
}

// readFrame reads payloads until a full frame arrives, skipping
// heartbeats. Used during the handshake.
func readFrame(ws *websocket.Conn) (*stomp.Frame, error) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if stomp.IsHeartbeat(data) {
			continue
		}
		return stomp.Parse(data)
	}
}

// readTimeoutFor derives the read deadline from the negotiated
// incoming heartbeat rate: twice the expected interval, zero (no
// deadline) when the server will not send heartbeats.
func readTimeoutFor(client, server stomp.HeartBeat) time.Duration {
	if client.RecvInterval == 0 || server.SendInterval == 0 {
		return 0
	}
	return 2 * max(client.RecvInterval, server.SendInterval)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "localhost"
	}
	return u.Hostname()
}
