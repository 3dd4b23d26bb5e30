// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ClientOptions configures a new Client (spec §6 connection parameters,
// plus the ambient knobs SPEC_FULL §1.3 adds). Zero-value fields fall
// back to the package defaults.
type ClientOptions struct {
	Logger             *slog.Logger
	ReconnectionPolicy *ReconnectionPolicy
	TokenRefresh       *TokenRefreshConfig
	AutoResend         *AutoResendConfig
	Timeouts           *Timeouts
	// PostToApp marshals application-facing callbacks onto the caller's
	// own execution context (e.g. a UI main-thread dispatcher). Nil runs
	// callbacks inline on whichever goroutine triggered them.
	PostToApp func(func())
}

// Client is the public facade over the Session Manager: the only type
// applications construct directly (spec §6).
type Client struct {
	appID      string
	wsHost     string
	apiHost    string
	appVersion string
	sdkVersion string
	apiVersion string
	platform   string

	s *session

	mu       sync.Mutex
	disposed bool
	pending  map[string]*PendingMessage
}

// NewClient constructs a Client bound to a single application id (spec
// §6 init(app_id, ...)). wsHost/apiHost follow the teacher's convention
// of taking explicit base URLs rather than hard-coded hosts, so tests can
// point a Client at an httptest server.
func NewClient(appID, wsHost, apiHost string, opts *ClientOptions) *Client {
	if opts == nil {
		opts = &ClientOptions{}
	}
	timeouts := DefaultTimeouts()
	if opts.Timeouts != nil {
		timeouts = *opts.Timeouts
	}
	c := &Client{
		appID:      appID,
		wsHost:     wsHost,
		apiHost:    apiHost,
		appVersion: "1.0.0",
		sdkVersion: "1.0.0",
		apiVersion: "v4",
		platform:   "go",
		pending:    make(map[string]*PendingMessage),
	}
	c.s = newSession(opts.Logger, timeouts, opts.ReconnectionPolicy, opts.TokenRefresh, opts.AutoResend, opts.PostToApp)
	return c
}

// Connect opens a session for userID using accessToken, invoking callback
// exactly once with either a nil error (success) or the failure reason
// (spec §6 connect(user_id, access_token, callback)).
func (c *Client) Connect(ctx context.Context, userID, accessToken string, callback LoginCallback) {
	cfg := &ConnectionConfig{
		AppID:          c.appID,
		UserID:         userID,
		AccessToken:    accessToken,
		WSHost:         c.wsHost,
		APIHost:        c.apiHost,
		AppVersion:     c.appVersion,
		SDKVersion:     c.sdkVersion,
		APIVersion:     c.apiVersion,
		Platform:       c.platform,
		ConnectTimeout: 10 * time.Second,
	}
	c.s.connect(ctx, cfg, callback)
}

// Disconnect closes the session intentionally; no reconnection follows
// (spec §6 disconnect()).
func (c *Client) Disconnect() {
	c.s.disconnect()
}

// GetConnectionState reports the Session Manager's current state (spec
// §6 get_connection_state()).
func (c *Client) GetConnectionState() SessionState {
	return c.s.getState()
}

// AddConnectionHandler registers h under a fresh id and returns it, so
// the caller can later pass it to RemoveConnectionHandler (spec §6).
func (c *Client) AddConnectionHandler(h *ConnectionHandler) string {
	id := c.nextHandlerID()
	c.s.dispatcher.addConnectionHandler(id, h)
	return id
}

// RemoveConnectionHandler unregisters a handler added by
// AddConnectionHandler.
func (c *Client) RemoveConnectionHandler(id string) {
	c.s.dispatcher.removeConnectionHandler(id)
}

// AddChannelHandler registers h under a fresh id and returns it (spec §6
// add_channel_handler, generalized from the distilled spec's single
// implicit handler to the supplemented multi-subscriber registry,
// SPEC_FULL §4).
func (c *Client) AddChannelHandler(h *ChannelHandler) string {
	id := c.nextHandlerID()
	c.s.dispatcher.addChannelHandler(id, h)
	return id
}

// RemoveChannelHandler unregisters a handler added by AddChannelHandler.
func (c *Client) RemoveChannelHandler(id string) {
	c.s.dispatcher.removeChannelHandler(id)
}

// SetSessionHandler registers the application's token-refresh bundle
// (spec §6 set_session_handler).
func (c *Client) SetSessionHandler(h *RefreshHandler) {
	c.s.refresh.setHandler(h)
}

// Token returns the most recently accepted access token as an
// oauth2.Token, or nil until the application has supplied a token to a
// refresh. The token is recorded as soon as it is supplied, before the
// reconnection that uses it has authenticated. Convenience for
// applications already using golang.org/x/oauth2 elsewhere that want to
// hand this Client's live token to an oauth2.TokenSource-consuming API.
func (c *Client) Token() *oauth2.Token {
	return c.s.refresh.token()
}

// SetEnableAutoReconnect is a convenience for disabling C5 entirely by
// zeroing MaxRetries; re-enabling sets a zero MaxRetries to
// DefaultReconnectionPolicy's value, so a custom MaxRetries passed in
// ClientOptions is not restored after a disable (spec §6
// set_enable_auto_reconnect). The distilled spec models this as a single
// boolean gate layered over the reconnection policy rather than a second
// independent config surface.
func (c *Client) SetEnableAutoReconnect(enabled bool) {
	c.s.reconnect.mu.Lock()
	defer c.s.reconnect.mu.Unlock()
	if enabled {
		if c.s.reconnect.policy.MaxRetries == 0 {
			c.s.reconnect.policy.MaxRetries = DefaultReconnectionPolicy().MaxRetries
		}
	} else {
		c.s.reconnect.policy.MaxRetries = 0
	}
}

// SetEnableMessageAutoResend toggles C7 (spec §6
// set_enable_message_auto_resend).
func (c *Client) SetEnableMessageAutoResend(enabled bool) {
	c.s.resend.setEnabled(enabled)
}

// SendUserMessage sends a MESG command, enqueuing a PendingMessage for
// auto-resend if the first attempt fails with a retriable error (spec §4.7,
// §4.8). onSuccess/onFailed may each be called at most once, from
// whichever goroutine completes the send (network reply, auto-resend
// retry, or TTL expiry) and are not passed through postToApp — callers
// needing main-thread delivery should do so themselves, matching the
// spec's synchronous create_params callback shape rather than the
// asynchronous event-handler shape.
func (c *Client) SendUserMessage(ctx context.Context, channelURL string, params CreateParams, onSuccess func(*Message), onFailed func(*Error)) *PendingMessage {
	pm := &PendingMessage{
		ChannelURL: channelURL,
		Params:     params,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
		OnSuccess:  onSuccess,
		OnFailed:   onFailed,
	}

	pm.setStatus(StatusSending)
	result, err := c.s.sendUserMessageOnWire(ctx, pm)
	if err == nil {
		pm.setStatus(StatusSucceeded)
		c.forgetPending(pm.ReqID)
		if onSuccess != nil {
			onSuccess(result)
		}
		return pm
	}

	e := errorFromCause(err)
	pm.ErrorCode = e.Code
	pm.setStatus(StatusFailed)

	// Remember every resendable failure, not just the auto-resend class,
	// so a user-resendable-only error (e.g. AckTimeout) can still be
	// retried later via ResendUserMessage.
	if isUserResendable(e.Code) {
		c.rememberPending(pm)
	}

	if isAutoResendable(e.Code) && c.s.resend.register(pm) {
		c.s.kickResendDrain()
		return pm
	}

	if onFailed != nil {
		onFailed(e)
	}
	return pm
}

// ResendUserMessage re-attempts a previously failed PendingMessage by
// req_id (SPEC_FULL §4 supplemented operation; the distilled spec only
// describes automatic resend, not an application-triggered one).
func (c *Client) ResendUserMessage(reqID string) bool {
	c.mu.Lock()
	pm, ok := c.pending[reqID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	if pm.currentStatus() != StatusFailed {
		return false
	}
	if !c.s.resend.register(pm) {
		return false
	}
	c.s.kickResendDrain()
	return true
}

func (c *Client) rememberPending(pm *PendingMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[pm.ReqID] = pm
}

func (c *Client) forgetPending(reqID string) {
	if reqID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, reqID)
}

func (c *Client) nextHandlerID() string {
	return newReqID()
}

// Dispose releases every resource the client owns. Safe to call more
// than once (spec §5 Resource cleanup).
func (c *Client) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.mu.Unlock()
	c.s.dispose()
}
