// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// SessionState is C8's state machine position (spec §3, §4.8).
type SessionState int

const (
	StateClosed SessionState = iota
	StateConnecting
	StateAuthenticating
	StateOpen
	StateClosing
	StateReconnecting
	StateRefreshing
)

func (s SessionState) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateConnecting:
		return "Connecting"
	case StateAuthenticating:
		return "Authenticating"
	case StateOpen:
		return "Open"
	case StateClosing:
		return "Closing"
	case StateReconnecting:
		return "Reconnecting"
	case StateRefreshing:
		return "Refreshing"
	default:
		return "Unknown"
	}
}

// LoginCallback is invoked exactly once per Connect call, via the
// application's post-to-app hook (spec §5, §6).
type LoginCallback func(userID string, err error)

// session is C8, the Session Manager: it exclusively owns C1/C2/C5/C6/C7
// and a single Transport Adapter per session, and is the only component
// whose state transitions are totally ordered (spec §3 Ownership &
// lifecycle, §5).
type session struct {
	log       *slog.Logger
	timeouts  Timeouts
	postToApp func(func())

	dispatcher *dispatcher
	ack        *ackTable
	reconnect  *reconnectPolicyState
	refresh    *tokenRefreshCoordinator
	resend     *resendQueue
	transport  *transport

	mu             sync.Mutex
	state          SessionState
	cfg            *ConnectionConfig
	sessionKey     string
	intentional    bool
	loginReceived  bool
	loginCallback  LoginCallback
	authTimer      *time.Timer
	reconnectTimer *time.Timer
	runCtx         context.Context
	runCancel      context.CancelFunc
	lastPong       time.Time
	pingStop       chan struct{}
}

// newSession constructs a Session Manager with its owned subcomponents.
// postToApp marshals application-facing callbacks (spec §5: "the core
// exposes a hook post_to_app(callback) ... the core itself makes no
// assumption beyond application callbacks are invoked via post_to_app").
// A nil postToApp runs callbacks inline on the calling goroutine.
func newSession(log *slog.Logger, timeouts Timeouts, reconnectPolicy *ReconnectionPolicy, refreshCfg *TokenRefreshConfig, resendCfg *AutoResendConfig, postToApp func(func())) *session {
	if log == nil {
		log = slog.Default()
	}
	if postToApp == nil {
		postToApp = func(f func()) { f() }
	}
	s := &session{
		log:        log,
		timeouts:   timeouts,
		postToApp:  postToApp,
		dispatcher: newDispatcher(log),
		ack:        newAckTable(),
		reconnect:  newReconnectPolicyState(reconnectPolicy),
		state:      StateClosed,
	}
	s.refresh = newTokenRefreshCoordinator(refreshCfg, log, s.onNewTokenReceived)
	s.resend = newResendQueue(resendCfg, log, s.sendUserMessageOnWire)
	s.transport = newTransport(transportHooks{
		onOpen:    s.onTransportOpen,
		onClose:   s.onTransportClose,
		onMessage: s.onTransportMessage,
		onError:   s.onTransportError,
	})
	return s
}

func (s *session) getState() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) setState(to SessionState) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from != to {
		s.log.Info("chatsdk: session state transition", "from", from, "to", to)
	}
}

func (s *session) isConnected() bool {
	return s.getState() == StateOpen
}

// setClosedFinal transitions to StateClosed and notifies the refresh
// coordinator's on_session_closed handler (spec §6). Every genuinely
// terminal path — failed login, an exhausted reconnection policy, or an
// intentional disconnect — routes through here rather than a bare
// setState(StateClosed), so OnClosed fires exactly once per give-up and
// never on the transient states a retriable close or reconnect passes
// through on the way back to Open.
func (s *session) setClosedFinal() {
	s.setState(StateClosed)
	s.refresh.notifyClosed()
}

// connect begins the Closed → Connecting → Authenticating → Open path
// (spec §4.8). callback fires exactly once, via postToApp.
func (s *session) connect(ctx context.Context, cfg *ConnectionConfig, callback LoginCallback) {
	s.mu.Lock()
	s.cfg = cfg
	s.sessionKey = ""
	s.intentional = false
	s.loginReceived = false
	s.loginCallback = callback
	runCtx, cancel := context.WithCancel(context.Background())
	s.runCtx = runCtx
	s.runCancel = cancel
	s.mu.Unlock()

	s.setState(StateConnecting)
	s.dial(ctx)
}

func (s *session) dial(ctx context.Context) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	wsURL, err := buildConnectURL(cfg)
	if err != nil {
		s.failLogin(err)
		return
	}
	connectCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := s.transport.connect(connectCtx, wsURL, nil); err != nil {
		s.handleConnectFailure(err)
	}
}

// onTransportOpen begins authentication: the server sends LOGI as the
// first frame, guarded by a 10s auth timeout (spec §4.8).
func (s *session) onTransportOpen() {
	s.setState(StateAuthenticating)
	s.mu.Lock()
	s.loginReceived = false
	s.authTimer = time.AfterFunc(s.timeouts.Auth, s.onAuthTimeout)
	s.mu.Unlock()
}

// onAuthTimeout fires if no LOGI response (success or failure) arrives
// within the auth timeout. It checks loginReceived before acting, so a
// LOGI success racing the timer is never clobbered (spec §9 open
// question: "an explicit 'LOGI received' flag").
func (s *session) onAuthTimeout() {
	s.mu.Lock()
	if s.loginReceived {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.failLogin(ErrLoginTimeout)
	s.transport.disconnect()
}

func (s *session) cancelAuthTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authTimer != nil {
		s.authTimer.Stop()
		s.authTimer = nil
	}
}

// onTransportMessage decodes one inbound frame and routes it (spec §4.8
// inbound routing table). Frames are processed strictly in arrival order
// since the transport delivers them from a single read-loop goroutine
// (spec §5).
func (s *session) onTransportMessage(data []byte) {
	frame, err := decode(data)
	if err != nil {
		s.log.Warn("chatsdk: dropping malformed frame", "error", err)
		return
	}
	switch frame.Type {
	case CmdLogin:
		s.handleLogin(frame.Payload)
	case CmdUserMessage, CmdFileMessage:
		s.handleMessage(frame)
	case CmdMediaUpdate:
		s.handleMediaUpdate(frame)
	case CmdError:
		s.handleError(frame)
	case CmdPong:
		s.onPong()
	case CmdTokenExpired:
		s.handleTokenExpired()
	case CmdPing:
		// servers don't send PING in this protocol; ignore defensively.
	default:
		s.log.Debug("chatsdk: ignoring unknown command type", "type", string(frame.Type))
	}
}

func (s *session) handleLogin(body json.RawMessage) {
	s.mu.Lock()
	s.loginReceived = true
	s.mu.Unlock()
	s.cancelAuthTimer()

	payload, err := decodeLogin(body)
	if err != nil {
		s.failLogin(err)
		s.transport.disconnect()
		return
	}
	if payload.Key == "" {
		e := newError(Code(payload.Code), payload.Message, nil)
		if payload.Code == 0 {
			e = newError(CodeUnauthorized, payload.Message, nil)
		}
		s.failLogin(e)
		s.transport.disconnect()
		return
	}

	// By the time LOGI arrives the state is Authenticating, so whether this
	// login ends a refresh or a reconnection is read from C6 and C5.
	wasRefreshing := s.refresh.refreshing()
	wasReconnecting := s.reconnect.attempt() > 0

	s.mu.Lock()
	s.sessionKey = payload.Key
	userID := s.cfg.UserID
	s.mu.Unlock()

	s.reconnect.reset()
	s.setState(StateOpen)
	s.startHeartbeat()

	if wasRefreshing {
		s.refresh.complete()
	}
	if wasReconnecting || wasRefreshing {
		s.dispatcher.notifyReconnectSucceeded()
	}
	s.dispatcher.notifyConnected(userID)

	s.mu.Lock()
	cb := s.loginCallback
	s.loginCallback = nil
	s.mu.Unlock()
	if cb != nil {
		s.postToApp(func() { cb(userID, nil) })
	}

	s.kickResendDrain()
}

// kickResendDrain starts the resend queue's drain loop if the session is
// currently open and a drain isn't already running (resendQueue.onConnected
// is itself idempotent against concurrent starts). Called both right
// after a successful LOGI and whenever a message is newly queued or
// manually resent while already connected, so a ResendUserMessage call
// issued mid-connection doesn't have to wait for the next reconnect to
// be picked up (spec §4.7).
func (s *session) kickResendDrain() {
	if !s.isConnected() {
		return
	}
	go s.resend.onConnected(s.runContext(), s.isConnected)
}

// handleMessage implements spec §4.8's MESG/FILE routing: complete a
// matching PendingAck *and* always forward the same payload as a
// broadcast (spec §9 open question: confirmed intentional echo).
func (s *session) handleMessage(frame decodedFrame) {
	msg, err := decodeMessage(frame.Payload)
	if err != nil {
		s.log.Warn("chatsdk: dropping malformed message frame", "error", err)
		return
	}
	if frame.ReqID != "" {
		s.ack.complete(frame.ReqID, frame.Payload)
	}
	s.dispatcher.broadcastReceived(msg)
}

func (s *session) handleMediaUpdate(frame decodedFrame) {
	msg, err := decodeMessage(frame.Payload)
	if err != nil {
		s.log.Warn("chatsdk: dropping malformed media-update frame", "error", err)
		return
	}
	if frame.ReqID != "" {
		s.ack.complete(frame.ReqID, frame.Payload)
	}
	s.dispatcher.broadcastUpdated(msg)
}

// handleError implements spec §4.8: complete the matching PendingAck with
// nil if req_id matches (the outstanding send failed), otherwise treat it
// as a broadcast error.
func (s *session) handleError(frame decodedFrame) {
	if frame.ReqID != "" {
		if s.ack.complete(frame.ReqID, nil) {
			return
		}
	}
	payload, err := decodeError(frame.Payload)
	if err != nil {
		s.log.Warn("chatsdk: dropping malformed error frame", "error", err)
		return
	}
	s.log.Warn("chatsdk: broadcast error frame", "code", payload.Code, "message", payload.Message)
}

func (s *session) onPong() {
	s.mu.Lock()
	defer s.mu.Unlock()
	// silently consumed; heartbeat.go tracks liveness via lastPong.
	s.lastPong = time.Now()
}

// handleTokenExpired implements spec §4.8: disconnect and trigger the
// refresh coordinator.
func (s *session) handleTokenExpired() {
	s.log.Info("chatsdk: received EXPR, starting token refresh")
	s.beginRefresh()
	s.transport.disconnect()
}

func (s *session) beginRefresh() {
	s.setState(StateRefreshing)
	s.refresh.requestRefresh()
}

// onNewTokenReceived is the refresh coordinator's onNewToken callback
// (spec §4.6: "Non-empty → emit NewTokenReceived(token); Session Manager
// reconnects with the new token").
func (s *session) onNewTokenReceived(token string) {
	s.mu.Lock()
	if s.cfg != nil {
		cfgCopy := *s.cfg
		cfgCopy.AccessToken = token
		s.cfg = &cfgCopy
	}
	s.mu.Unlock()
	s.setState(StateConnecting)
	s.dial(context.Background())
}

// onTransportError surfaces transport-level errors outside the normal
// close path (rarely used with gorilla/websocket, which reports errors
// via the read loop's close path instead).
func (s *session) onTransportError(err error) {
	s.log.Warn("chatsdk: transport error", "error", err)
}

// onTransportClose is C3's close hook; it classifies the close code and
// drives the rest of the state machine (spec §4.3, §4.8).
func (s *session) onTransportClose(code int) {
	s.cancelAuthTimer()
	s.stopHeartbeat()
	s.resend.onDisconnected()

	s.mu.Lock()
	intentional := s.intentional
	userID := ""
	if s.cfg != nil {
		userID = s.cfg.UserID
	}
	wasAuthenticating := s.state == StateAuthenticating
	// failLogin already moved a first-connection login failure (no session
	// key yet) to Closed; the socket close that follows it is not retried.
	loginFailed := s.state == StateClosed && s.sessionKey == ""
	s.mu.Unlock()

	s.ack.clearAll()

	if intentional {
		s.setClosedFinal()
		s.dispatcher.notifyDisconnected(userID)
		return
	}

	closeErr := classifyCloseCode(code)

	if wasAuthenticating {
		s.failLogin(closeErr)
		return
	}
	if loginFailed {
		return
	}

	s.dispatcher.notifyDisconnected(userID)

	if isAuthClass(closeErr.Code) {
		s.beginRefresh()
		return
	}

	if shouldAttemptReconnect(closeErr) && s.reconnect.canRetry() {
		s.scheduleReconnect()
		return
	}

	s.setClosedFinal()
	if s.reconnect.attempt() > 0 {
		s.dispatcher.notifyReconnectFailed()
	}
}

func (s *session) scheduleReconnect() {
	s.setState(StateReconnecting)
	s.dispatcher.notifyReconnectStarted()
	delay := s.reconnect.nextDelay()

	s.mu.Lock()
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.setState(StateConnecting)
		s.dial(context.Background())
	})
	s.mu.Unlock()
}

func (s *session) cancelReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

// handleConnectFailure reacts to a synchronous dial error (spec §4.8:
// errors during initial authentication are surfaced to the login
// callback and do not reconnect; errors during a reconnection attempt
// consult C5 again).
func (s *session) handleConnectFailure(err error) {
	s.mu.Lock()
	isInitial := s.sessionKey == ""
	s.mu.Unlock()

	e := errorFromCause(err)
	if isInitial {
		s.failLogin(e)
		return
	}
	if isAuthClass(e.Code) {
		s.beginRefresh()
		return
	}
	if shouldAttemptReconnect(e) && s.reconnect.canRetry() {
		s.scheduleReconnect()
		return
	}
	s.setClosedFinal()
	s.dispatcher.notifyReconnectFailed()
}

func (s *session) failLogin(err error) {
	s.setClosedFinal()
	s.mu.Lock()
	cb := s.loginCallback
	s.loginCallback = nil
	userID := ""
	if s.cfg != nil {
		userID = s.cfg.UserID
	}
	s.mu.Unlock()
	if cb != nil {
		s.postToApp(func() { cb(userID, err) })
	}
}

// disconnect implements spec §4.8's user-initiated disconnect path: set
// the intentional flag, cancel the auth and reconnection timers and every
// PendingAck, close the transport, no reconnection. A token refresh that
// is already in flight is not cancelled and keeps its own timeout timer.
func (s *session) disconnect() {
	s.mu.Lock()
	s.intentional = true
	s.mu.Unlock()

	s.setState(StateClosing)
	s.cancelAuthTimer()
	s.cancelReconnect()
	s.resend.onDisconnected()
	s.ack.clearAll()

	s.mu.Lock()
	cancel := s.runCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.transport.disconnect()
}

// checkAndReconnect resets the intentional flag and attempts a fresh
// connection; consumed by the out-of-scope host-lifecycle monitor (spec
// §4.8 external-lifecycle hooks).
func (s *session) checkAndReconnect(ctx context.Context) {
	s.mu.Lock()
	s.intentional = false
	cfg := s.cfg
	s.mu.Unlock()
	if cfg == nil || s.isConnected() {
		return
	}
	s.setState(StateConnecting)
	s.dial(ctx)
}

// update runs C6's proactive refresh check on a periodic tick supplied by
// the host-lifecycle monitor (spec §4.8 external-lifecycle hooks). The
// refresh timeout does not depend on it; it runs on C6's own timer.
func (s *session) update() {
	if !s.isConnected() {
		return
	}
	s.mu.Lock()
	token := ""
	if s.cfg != nil {
		token = s.cfg.AccessToken
	}
	s.mu.Unlock()
	if token != "" && shouldRefreshProactively(token, s.refresh.cfg.ProactiveRefresh) {
		s.beginRefresh()
	}
}

func (s *session) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx == nil {
		return context.Background()
	}
	return s.runCtx
}

// sendUserMessageOnWire performs the actual network send for a user
// message: used directly by the facade's SendUserMessage for the first
// attempt, and by the resend queue for every retry (spec §4.7, §4.8).
func (s *session) sendUserMessageOnWire(ctx context.Context, pm *PendingMessage) (*Message, error) {
	type userMessagePayload struct {
		ChannelURL string `json:"channel_url"`
		Message    string `json:"message"`
		CustomType string `json:"custom_type,omitempty"`
		Data       string `json:"data,omitempty"`
	}
	payload := userMessagePayload{
		ChannelURL: pm.ChannelURL,
		Message:    pm.Params.Message,
		CustomType: pm.Params.CustomType,
		Data:       pm.Params.Data,
	}
	raw, reqID, err := s.sendCommand(ctx, CmdUserMessage, payload, s.timeouts.AckSendMessage)
	if reqID != "" {
		pm.ReqID = reqID
	}
	if err != nil {
		return nil, err
	}
	return decodeMessage(raw)
}

// sendCommand implements spec §4.8's command-send path: enforce Open
// state, register the PendingAck before the write, await the waiter.
func (s *session) sendCommand(ctx context.Context, cmdType CommandType, payload any, timeout time.Duration) (json.RawMessage, string, error) {
	if s.getState() != StateOpen {
		return nil, "", ErrConnectionRequired
	}

	reqID, frame, err := encode(cmdType, payload)
	if err != nil {
		return nil, "", err
	}

	if !IsAckRequired(cmdType) {
		return nil, "", s.transport.send(ctx, frame)
	}

	entry := s.ack.register(reqID, timeout)
	if err := s.transport.send(ctx, frame); err != nil {
		s.ack.complete(reqID, nil)
		return nil, reqID, err
	}

	select {
	case payload := <-entry.completion:
		if payload == nil {
			return nil, reqID, ErrAckTimeout
		}
		return payload, reqID, nil
	case <-ctx.Done():
		s.ack.complete(reqID, nil)
		return nil, reqID, ctx.Err()
	}
}

// sendPing is a fire-and-forget heartbeat frame (SPEC_FULL §4
// supplemented liveness loop).
func (s *session) sendPing(ctx context.Context) error {
	_, _, err := s.sendCommand(ctx, CmdPing, struct{}{}, 0)
	return err
}

// dispose releases the resources the session owns: the transport, the
// timers disconnect cancels, the resend queue, all handler maps, and
// drains the PendingAck table (spec §5 Resource cleanup). Safe to call
// more than once.
func (s *session) dispose() {
	s.disconnect()
	s.resend.setEnabled(false)
	s.dispatcher.mu.Lock()
	clear(s.dispatcher.channelHandlers)
	clear(s.dispatcher.connectionHandlers)
	s.dispatcher.mu.Unlock()
}
