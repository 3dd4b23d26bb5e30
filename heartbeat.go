// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import (
	"context"
	"time"
)

// missedPongLimit is how many consecutive PING intervals may pass with no
// PONG before the connection is declared dead (SPEC_FULL §4 supplemented
// liveness loop).
const missedPongLimit = 2

// startHeartbeat begins the periodic PING/PONG liveness loop once a
// session reaches StateOpen, grounded on the ticker-driven heartbeatLoop
// pattern in the wingthing example's internal/ws client, generalized
// from a fixed fire-and-forget heartbeat into one that also tracks
// missed PONGs and forces a reconnect when the peer goes silent.
func (s *session) startHeartbeat() {
	interval := s.timeouts.PingInterval
	if interval <= 0 {
		return
	}

	s.mu.Lock()
	if s.pingStop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.pingStop = stop
	s.lastPong = time.Now()
	s.mu.Unlock()

	go s.heartbeatLoop(interval, stop)
}

func (s *session) stopHeartbeat() {
	s.mu.Lock()
	stop := s.pingStop
	s.pingStop = nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

func (s *session) heartbeatLoop(interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.isConnected() {
				return
			}
			if s.missedTooManyPongs(interval) {
				s.log.Warn("chatsdk: peer missed too many PONGs, forcing reconnect")
				s.transport.disconnect()
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := s.sendPing(ctx)
			cancel()
			if err != nil {
				s.log.Debug("chatsdk: ping send failed", "error", err)
				return
			}
		}
	}
}

func (s *session) missedTooManyPongs(interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPong.IsZero() {
		return false
	}
	return time.Since(s.lastPong) > time.Duration(missedPongLimit)*interval
}
