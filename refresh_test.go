// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return signed
}

func TestShouldRefreshProactively(t *testing.T) {
	farExpiry := signedJWT(t, time.Now().Add(time.Hour))
	nearExpiry := signedJWT(t, time.Now().Add(time.Second))

	if shouldRefreshProactively(farExpiry, 5*time.Minute) {
		t.Error("token expiring in 1h should not need proactive refresh with a 5m lookahead")
	}
	if !shouldRefreshProactively(nearExpiry, 5*time.Minute) {
		t.Error("token expiring in 1s should need proactive refresh with a 5m lookahead")
	}
	if !shouldRefreshProactively("not-a-jwt", 5*time.Minute) {
		t.Error("unparseable token should be treated as needing refresh")
	}
}

func TestTokenRefreshCoordinatorProvideToken(t *testing.T) {
	var mu sync.Mutex
	var newToken string
	c := newTokenRefreshCoordinator(nil, slog.Default(), func(token string) {
		mu.Lock()
		newToken = token
		mu.Unlock()
	})
	c.setHandler(&RefreshHandler{
		OnTokenRequired: func(success func(string), fail func()) {
			success("fresh-token")
		},
	})

	c.requestRefresh()

	mu.Lock()
	defer mu.Unlock()
	if newToken != "fresh-token" {
		t.Errorf("newToken = %q, want %q", newToken, "fresh-token")
	}
}

func TestTokenRefreshCoordinatorIsIdempotent(t *testing.T) {
	var calls int
	var mu sync.Mutex
	c := newTokenRefreshCoordinator(nil, slog.Default(), func(string) {})
	c.setHandler(&RefreshHandler{
		OnTokenRequired: func(success func(string), fail func()) {
			mu.Lock()
			calls++
			mu.Unlock()
		},
	})

	c.requestRefresh()
	c.requestRefresh()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("OnTokenRequired called %d times, want 1", calls)
	}
}

func TestTokenRefreshCoordinatorFailCallback(t *testing.T) {
	errCh := make(chan error, 1)
	c := newTokenRefreshCoordinator(&TokenRefreshConfig{Timeout: time.Second, ProactiveRefresh: time.Minute}, slog.Default(), func(string) {})
	c.setHandler(&RefreshHandler{
		OnTokenRequired: func(success func(string), fail func()) { fail() },
		OnError:         func(err error) { errCh <- err },
	})

	c.requestRefresh()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected non-nil error")
		}
	case <-time.After(time.Second):
		t.Fatal("OnError was never invoked")
	}
	if c.refreshing() {
		t.Error("refreshing() should be false after failure")
	}
}

func TestTokenRefreshCoordinatorNotifyClosed(t *testing.T) {
	closed := make(chan struct{}, 1)
	c := newTokenRefreshCoordinator(nil, slog.Default(), func(string) {})
	c.setHandler(&RefreshHandler{OnClosed: func() { closed <- struct{}{} }})

	c.notifyClosed()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("OnClosed was never invoked")
	}
}

func TestTokenRefreshCoordinatorNotifyClosedNilHandlerIsNoop(t *testing.T) {
	c := newTokenRefreshCoordinator(nil, slog.Default(), func(string) {})
	c.notifyClosed() // must not panic with no handler registered
}

func TestTokenRefreshCoordinatorTokenTracksLastProvidedAccessToken(t *testing.T) {
	c := newTokenRefreshCoordinator(nil, slog.Default(), func(string) {})
	if tok := c.token(); tok != nil {
		t.Fatalf("token() = %v, want nil before any refresh completes", tok)
	}

	c.setHandler(&RefreshHandler{
		OnTokenRequired: func(success func(string), fail func()) { success("fresh-token") },
	})
	c.requestRefresh()

	tok := c.token()
	if tok == nil || tok.AccessToken != "fresh-token" {
		t.Fatalf("token() = %+v, want AccessToken = fresh-token", tok)
	}
}
