// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import (
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// RefreshHandler is the application-supplied bundle C6 drives (spec §6
// set_session_handler, §4.6). OnTokenRequired is invoked at most once per
// in-flight refresh; the application must call exactly one of success or
// fail.
type RefreshHandler struct {
	OnTokenRequired func(success func(token string), fail func())
	OnRefreshed     func()
	OnClosed        func()
	OnError         func(err error)
}

// tokenRefreshCoordinator is C6. It never holds a reference back to the
// Session Manager (spec §9 "never let C6 hold back-references to C8");
// reconnection is driven by onNewToken, a plain callback the Session
// Manager supplies, grounded on the single-trigger pattern in the
// teacher's auth/client_private.go HTTPTransport.RoundTrip (authorize
// once per transport, reuse the result thereafter).
type tokenRefreshCoordinator struct {
	cfg     TokenRefreshConfig
	handler *RefreshHandler
	log     *slog.Logger

	onNewToken func(token string)

	mu           sync.Mutex
	isRefreshing bool
	startedAt    time.Time
	timer        *time.Timer
	lastToken    *oauth2.Token
}

func newTokenRefreshCoordinator(cfg *TokenRefreshConfig, log *slog.Logger, onNewToken func(string)) *tokenRefreshCoordinator {
	c := &tokenRefreshCoordinator{log: log, onNewToken: onNewToken}
	if cfg != nil {
		c.cfg = *cfg
	} else {
		c.cfg = *DefaultTokenRefreshConfig()
	}
	return c
}

func (c *tokenRefreshCoordinator) setHandler(h *RefreshHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// requestRefresh is idempotent: a refresh already in flight makes this a
// no-op, so concurrent triggers (an EXPR frame racing an auth-class
// socket close) produce exactly one TokenRefreshRequired event (spec §8).
func (c *tokenRefreshCoordinator) requestRefresh() {
	c.mu.Lock()
	if c.isRefreshing {
		c.mu.Unlock()
		return
	}
	c.isRefreshing = true
	c.startedAt = time.Now()
	handler := c.handler
	c.timer = time.AfterFunc(c.cfg.Timeout, c.onTimeout)
	c.mu.Unlock()

	if handler == nil || handler.OnTokenRequired == nil {
		c.log.Warn("chatsdk: token refresh required but no session handler registered")
		c.mu.Lock()
		c.failLocked(ErrRefreshFailed)
		c.mu.Unlock()
		return
	}
	handler.OnTokenRequired(c.provideToken, c.failCallback)
}

// provideToken is the success callback handed to the application
// (spec §4.6's provide_token(new_token)); an empty token is treated as
// provide(null).
func (c *tokenRefreshCoordinator) provideToken(token string) {
	if token == "" {
		c.failCallback()
		return
	}
	c.mu.Lock()
	if !c.isRefreshing {
		c.mu.Unlock()
		return
	}
	c.cancelTimerLocked()
	c.lastToken = asOAuth2Token(token)
	onNewToken := c.onNewToken
	c.mu.Unlock()

	if onNewToken != nil {
		onNewToken(token)
	}
}

// failCallback is the fail callback handed to the application, and the
// path an empty provided token takes; the timeout path is onTimeout.
func (c *tokenRefreshCoordinator) failCallback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failLocked(ErrRefreshFailed)
}

func (c *tokenRefreshCoordinator) onTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isRefreshing {
		return
	}
	c.failLocked(newError(CodeSessionRefreshFailed, "refresh timeout", nil))
}

func (c *tokenRefreshCoordinator) failLocked(err *Error) {
	if !c.isRefreshing {
		return
	}
	c.isRefreshing = false
	c.cancelTimerLocked()
	handler := c.handler
	if handler != nil && handler.OnError != nil {
		go handler.OnError(err)
	}
}

// complete is called by the Session Manager after the reconnection with
// the new token completes LOGI successfully (spec §4.6).
func (c *tokenRefreshCoordinator) complete() {
	c.mu.Lock()
	if !c.isRefreshing {
		c.mu.Unlock()
		return
	}
	c.isRefreshing = false
	c.cancelTimerLocked()
	handler := c.handler
	c.mu.Unlock()

	if handler != nil && handler.OnRefreshed != nil {
		handler.OnRefreshed()
	}
}

// fail is called by the Session Manager when reconnection with the new
// token itself fails (spec §4.6).
func (c *tokenRefreshCoordinator) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failLocked(errorFromCause(err))
}

func (c *tokenRefreshCoordinator) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *tokenRefreshCoordinator) refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isRefreshing
}

// token returns the most recently accepted access token in the oauth2
// vocabulary, or nil before the application first supplies one through
// provideToken (it is recorded before the refresh completes). Exposed on
// Client as a convenience for applications that already depend on
// golang.org/x/oauth2 elsewhere (e.g. to satisfy an oauth2.TokenSource),
// grounded on auth/client.go's OAuthHandler.TokenSource contract.
func (c *tokenRefreshCoordinator) token() *oauth2.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastToken
}

// notifyClosed is called by the Session Manager whenever the session
// reaches a terminal Closed state (login failure, an exhausted
// reconnection policy, or user-initiated disconnect) — distinct from
// OnError, which only covers refresh failures, and from
// ConnectionHandler.OnDisconnected, which fires per-socket-close rather
// than once the session has given up for good (spec §6 on_session_closed).
func (c *tokenRefreshCoordinator) notifyClosed() {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil && handler.OnClosed != nil {
		handler.OnClosed()
	}
}

// shouldRefreshProactively decodes (never verifies — the client has no
// signing key) the exp claim of accessToken and reports whether it
// expires within proactiveRefresh, or can't be parsed at all (spec
// §4.6). Grounded on the teacher's jwt.MapClaims use in
// internal/testing/fake_auth_server.go, replacing the spec's hand-rolled
// substring scanner per spec §9's design note.
func shouldRefreshProactively(accessToken string, proactiveRefresh time.Duration) bool {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return true
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return true
	}
	expTime, err := claims.GetExpirationTime()
	if err != nil || expTime == nil {
		return true
	}
	return time.Until(expTime.Time) <= proactiveRefresh
}

// asOAuth2Token wraps a freshly received access token in the oauth2
// vocabulary (spec §2 C6 emits NewTokenReceived(token); we additionally
// expose it as an oauth2.Token so callers already using
// golang.org/x/oauth2 elsewhere in their app can reuse the same type),
// grounded on auth/client.go's OAuthHandler.TokenSource contract.
func asOAuth2Token(accessToken string) *oauth2.Token {
	return &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
}
