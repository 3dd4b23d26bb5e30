// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import (
	"testing"
	"time"
)

func TestShouldAttemptReconnectClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"network error", ErrNetwork, true},
		{"connection closed", ErrConnectionClosed, true},
		{"invalid access token is auth-class, not retried by C5", ErrInvalidAccessToken, false},
		{"malformed data is not transport-class", ErrMalformedData, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := shouldAttemptReconnect(c.err); got != c.want {
				t.Errorf("shouldAttemptReconnect(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

func TestReconnectPolicyStateBackoffGrowsAndCaps(t *testing.T) {
	s := newReconnectPolicyState(&ReconnectionPolicy{
		InitialDelay:      10 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxDelay:          30 * time.Millisecond,
		MaxRetries:        5,
	})

	d0 := s.nextDelay()
	d1 := s.nextDelay()
	d2 := s.nextDelay()

	if d0 != 10*time.Millisecond {
		t.Errorf("d0 = %v, want 10ms", d0)
	}
	if d1 != 20*time.Millisecond {
		t.Errorf("d1 = %v, want 20ms", d1)
	}
	if d2 != 30*time.Millisecond {
		t.Errorf("d2 = %v, want capped at 30ms", d2)
	}
}

func TestReconnectPolicyStateCanRetryRespectsMaxRetries(t *testing.T) {
	s := newReconnectPolicyState(&ReconnectionPolicy{
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2,
		MaxDelay:          time.Second,
		MaxRetries:        2,
	})

	if !s.canRetry() {
		t.Fatal("canRetry should be true before any attempt")
	}
	s.nextDelay()
	if !s.canRetry() {
		t.Fatal("canRetry should be true after 1 of 2 attempts")
	}
	s.nextDelay()
	if s.canRetry() {
		t.Fatal("canRetry should be false after reaching MaxRetries")
	}
}

func TestReconnectPolicyStateResetZeroesAttempts(t *testing.T) {
	s := newReconnectPolicyState(&ReconnectionPolicy{
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2,
		MaxDelay:          time.Second,
		MaxRetries:        1,
	})
	s.nextDelay()
	s.reset()
	if s.attempt() != 0 {
		t.Errorf("attempt() = %d, want 0 after reset", s.attempt())
	}
	if !s.canRetry() {
		t.Fatal("canRetry should be true after reset")
	}
}
