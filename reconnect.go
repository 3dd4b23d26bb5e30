// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import (
	"math"
	"sync"
	"time"
)

// shouldAttemptReconnect classifies err and reports whether the
// reconnection policy should handle it at all. Auth-class errors are
// routed to the token-refresh coordinator instead (spec §4.5); everything
// else that isn't a recognized transport error is non-retriable.
func shouldAttemptReconnect(err error) bool {
	e := errorFromCause(err)
	if e == nil {
		return false
	}
	if isAuthClass(e.Code) {
		return false
	}
	return isTransportClass(e.Code)
}

// reconnectPolicyState is C5: the mutable attempt counter layered over an
// immutable ReconnectionPolicy (spec §3, §4.5). Guarded by its own mutex
// since it's read from the Session Manager's reconnection path and reset
// from the authentication-success path.
type reconnectPolicyState struct {
	mu     sync.Mutex
	policy ReconnectionPolicy
}

func newReconnectPolicyState(p *ReconnectionPolicy) *reconnectPolicyState {
	s := &reconnectPolicyState{}
	if p != nil {
		s.policy = *p
	} else {
		s.policy = *DefaultReconnectionPolicy()
	}
	return s
}

// nextDelay returns the next backoff delay and increments the attempt
// counter (spec §4.5: "delay = min(max_delay, initial_delay ×
// multiplier^attempt); attempt is incremented after each delay is handed
// out").
func (s *reconnectPolicyState) nextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt := s.policy.currentAttempt
	delay := float64(s.policy.InitialDelay) * math.Pow(s.policy.BackoffMultiplier, float64(attempt))
	if max := float64(s.policy.MaxDelay); delay > max {
		delay = max
	}
	s.policy.currentAttempt++
	return time.Duration(delay)
}

// attempt returns the current attempt count.
func (s *reconnectPolicyState) attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy.currentAttempt
}

// canRetry reports whether another reconnection attempt is still allowed
// under MaxRetries.
func (s *reconnectPolicyState) canRetry() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy.currentAttempt < s.policy.MaxRetries
}

// reset zeroes the attempt counter. Spec §4.5: "Reset to 0 on a
// successful authentication (not merely socket open)".
func (s *reconnectPolicyState) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy.currentAttempt = 0
}
