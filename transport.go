// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// noDeadline resets a connection deadline to "no deadline" (the zero
// time.Time), the same convention net.Conn.SetDeadline documents.
var noDeadline = time.Time{}

// transportState is the local connection state C3 tracks independently of
// the Session Manager's higher-level state machine (spec §4.3).
type transportState int

const (
	transportClosed transportState = iota
	transportConnecting
	transportOpen
	transportClosing
)

// transportHooks are the event callbacks C3 invokes; the Session Manager
// supplies these at construction (spec §4.3: "on_open, on_close(code),
// on_message(bytes), on_error(err)").
type transportHooks struct {
	onOpen    func()
	onClose   func(code int)
	onMessage func(data []byte)
	onError   func(err error)
}

// transport is C3, the Transport Adapter: a thin wrapper over a gorilla/
// websocket connection, grounded on mcp/websocket.go's
// WebSocketClientTransport/websocketConn (dialer, subprotocol, ctx-driven
// cancellation, text-frame enforcement, close-code classification).
type transport struct {
	dialer *websocket.Dialer
	hooks  transportHooks

	mu    sync.Mutex
	conn  *websocket.Conn
	state transportState
}

func newTransport(hooks transportHooks) *transport {
	return &transport{dialer: websocket.DefaultDialer, hooks: hooks, state: transportClosed}
}

func (t *transport) getState() transportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// connect dials wsURL, starts the read loop, and invokes onOpen once the
// handshake completes. It blocks until the dial finishes or ctx expires.
func (t *transport) connect(ctx context.Context, wsURL string, header http.Header) error {
	t.mu.Lock()
	t.state = transportConnecting
	t.mu.Unlock()

	conn, resp, err := t.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		t.mu.Lock()
		t.state = transportClosed
		t.mu.Unlock()
		if resp != nil {
			return newError(CodeConnectionFailed, fmt.Sprintf("dial failed (status %d)", resp.StatusCode), err)
		}
		return newError(CodeNetwork, "dial failed", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.state = transportOpen
	t.mu.Unlock()

	if t.hooks.onOpen != nil {
		t.hooks.onOpen()
	}
	go t.readLoop(conn)
	return nil
}

// readLoop processes inbound frames in order (spec §5) until the socket
// closes or errors, then classifies and reports the close.
func (t *transport) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			code := closeCodeFromError(err)
			t.mu.Lock()
			t.state = transportClosed
			t.mu.Unlock()
			if t.hooks.onClose != nil {
				t.hooks.onClose(code)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if t.hooks.onMessage != nil {
			t.hooks.onMessage(data)
		}
	}
}

// send writes a single text frame. Fails fast with ConnectionRequired if
// the transport isn't open (spec §4.8: "enforce Open state").
func (t *transport) send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	conn := t.conn
	state := t.state
	t.mu.Unlock()

	if state != transportOpen || conn == nil {
		return ErrConnectionRequired
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(noDeadline)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return newError(CodeNetwork, "websocket write error", err)
	}
	return nil
}

// disconnect closes the socket without waiting for the server's close
// handshake; the read loop observes the resulting error and reports it
// through onClose like any other close (as 1006, since no close frame is
// exchanged). Whether the close was intentional is tracked by session.go
// (spec §5).
func (t *transport) disconnect() error {
	t.mu.Lock()
	conn := t.conn
	if t.state == transportClosed {
		t.mu.Unlock()
		return nil
	}
	t.state = transportClosing
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// closeCodeFromError maps a gorilla/websocket read error to a raw close
// code (defaulting to abnormal closure 1006 for non-close errors, e.g. a
// bare network reset).
func closeCodeFromError(err error) int {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}

// classifyCloseCode maps a raw close code to the typed Error the Session
// Manager reacts to (spec §4.3).
func classifyCloseCode(code int) *Error {
	switch code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway:
		return newError(CodeConnectionClosed, "normal closure", nil)
	case websocket.CloseAbnormalClosure:
		return newError(CodeConnectionFailed, "abnormal closure", nil)
	case 1011:
		return newError(CodeInternal, "server-internal close", nil)
	default:
		return newError(CodeUnknown, fmt.Sprintf("unknown close code %d", code), nil)
	}
}

// buildConnectURL constructs the `wss://<host>/ws?...` connection URL from
// spec §6's query parameter list.
func buildConnectURL(cfg *ConnectionConfig) (string, error) {
	base, err := url.Parse(cfg.WSHost)
	if err != nil {
		return "", newError(CodeInvalidParameter, "invalid ws host", err)
	}
	base.Path = joinPath(base.Path, "ws")

	q := url.Values{}
	q.Set("app_id", cfg.AppID)
	q.Set("user_id", cfg.UserID)
	q.Set("access_token", cfg.AccessToken)
	q.Set("app_version", cfg.AppVersion)
	q.Set("sdk_version", cfg.SDKVersion)
	q.Set("sdk_module", "chat-go-sdk")
	q.Set("api_version", cfg.APIVersion)
	q.Set("platform", cfg.Platform)
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func joinPath(existing, suffix string) string {
	if existing == "" || existing == "/" {
		return "/" + suffix
	}
	return existing + "/" + suffix
}
