// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import "time"

// ConnectionConfig is immutable for the lifetime of a single connection
// attempt (spec §3). The Session Manager snapshots it on connect/reconnect
// and only replaces it wholesale (e.g. with a refreshed AccessToken) from
// its own serialized task.
type ConnectionConfig struct {
	AppID          string
	UserID         string
	AccessToken    string
	WSHost         string // e.g. "wss://chat.example.com"
	APIHost        string // REST base URL, used only by the out-of-scope façade
	AppVersion     string
	SDKVersion     string
	APIVersion     string
	Platform       string
	ConnectTimeout time.Duration
}

// ReconnectionPolicy holds the immutable backoff parameters plus the
// mutable attempt counter described in spec §3/§4.5.
type ReconnectionPolicy struct {
	InitialDelay     time.Duration
	BackoffMultiplier float64
	MaxDelay         time.Duration
	MaxRetries       int

	currentAttempt int
}

// DefaultReconnectionPolicy returns the spec §6 defaults: initial 1s,
// multiplier 2, max 30s, max 3 attempts.
func DefaultReconnectionPolicy() *ReconnectionPolicy {
	return &ReconnectionPolicy{
		InitialDelay:      time.Second,
		BackoffMultiplier: 2,
		MaxDelay:          30 * time.Second,
		MaxRetries:        3,
	}
}

// TokenRefreshConfig holds the refresh-timeout and proactive-check knobs
// from spec §3/§6.
type TokenRefreshConfig struct {
	Timeout           time.Duration
	ProactiveRefresh  time.Duration
}

// DefaultTokenRefreshConfig returns the spec §6 defaults: 60s timeout
// (clamped to [60s, 1800s] by NewTokenRefreshConfig), 300s proactive
// lookahead.
func DefaultTokenRefreshConfig() *TokenRefreshConfig {
	return &TokenRefreshConfig{
		Timeout:          60 * time.Second,
		ProactiveRefresh: 300 * time.Second,
	}
}

// NewTokenRefreshConfig clamps timeout to [60s, 1800s] per spec §3.
func NewTokenRefreshConfig(timeout, proactiveRefresh time.Duration) *TokenRefreshConfig {
	if timeout < 60*time.Second {
		timeout = 60 * time.Second
	}
	if timeout > 1800*time.Second {
		timeout = 1800 * time.Second
	}
	return &TokenRefreshConfig{Timeout: timeout, ProactiveRefresh: proactiveRefresh}
}

// AutoResendConfig holds the auto-resend queue's knobs from spec §6.
type AutoResendConfig struct {
	Enabled       bool
	MaxRetries    int
	TTL           time.Duration
	BaseBackoff   time.Duration
	MaxJitter     time.Duration
	QueueCapacity int
}

// DefaultAutoResendConfig returns the spec §6 defaults: max_retries 3,
// ttl 24h, base_backoff 1000ms, max_jitter 200ms.
func DefaultAutoResendConfig() *AutoResendConfig {
	return &AutoResendConfig{
		Enabled:       true,
		MaxRetries:    3,
		TTL:           24 * time.Hour,
		BaseBackoff:   time.Second,
		MaxJitter:     200 * time.Millisecond,
		QueueCapacity: 1000,
	}
}

// Timeouts bundles the ack-timeout and auth-timeout knobs from spec §6.
type Timeouts struct {
	AckDefault     time.Duration // 5s
	AckSendMessage time.Duration // 15s
	Auth           time.Duration // 10s
	PingInterval   time.Duration // supplemented heartbeat, §4 SPEC_FULL
}

// DefaultTimeouts returns the spec §6 defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		AckDefault:     5 * time.Second,
		AckSendMessage: 15 * time.Second,
		Auth:           10 * time.Second,
		PingInterval:   15 * time.Second,
	}
}
