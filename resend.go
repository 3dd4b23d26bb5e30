// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// PendingMessage is C7's resend unit (spec §3). ReqID matches the
// command's req_id; Status must only move through the legal transitions
// in legalTransitions (spec §4.7).
type PendingMessage struct {
	ReqID      string
	ChannelURL string
	Params     CreateParams
	Status     MessageStatus
	ErrorCode  Code
	RetryCount int
	CreatedAt  time.Time

	OnSuccess func(msg *Message)
	OnFailed  func(err *Error)

	mu sync.Mutex
}

// setStatus applies a status transition if legal, a no-op otherwise
// (spec §4.7, §8: "a status transition outside the legal set is a no-op
// and does not mutate status or error_code").
func (m *PendingMessage) setStatus(to MessageStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !canTransition(m.Status, to) {
		return false
	}
	m.Status = to
	return true
}

func (m *PendingMessage) currentStatus() MessageStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Status
}

// isExpired reports whether now-CreatedAt has reached ttl (spec §3, §8).
func (m *PendingMessage) isExpired(ttl time.Duration, now time.Time) bool {
	return now.Sub(m.CreatedAt) >= ttl
}

// canRetry reports whether RetryCount is still under maxRetries (spec §3
// invariant: retry_count ≤ MAX_RETRIES).
func (m *PendingMessage) canRetry(maxRetries int) bool {
	return m.RetryCount < maxRetries
}

// sendFunc performs the actual network send for a queued message; the
// Session Manager supplies this since only it owns the transport and the
// pending-ack table.
type sendFunc func(ctx context.Context, msg *PendingMessage) (*Message, error)

// resendQueue is C7: a FIFO store of PendingMessage guarded by a single
// mutex, matching the scale and locking discipline of ackTable (spec
// §4.7, §5).
type resendQueue struct {
	cfg  AutoResendConfig
	log  *slog.Logger
	send sendFunc

	mu      sync.Mutex
	enabled bool
	items   []*PendingMessage

	running bool
	cancel  context.CancelFunc
}

func newResendQueue(cfg *AutoResendConfig, log *slog.Logger, send sendFunc) *resendQueue {
	q := &resendQueue{log: log, send: send}
	if cfg != nil {
		q.cfg = *cfg
	} else {
		q.cfg = *DefaultAutoResendConfig()
	}
	q.enabled = q.cfg.Enabled
	return q
}

// register enqueues msg if the queue is enabled and under capacity (spec
// §4.7).
func (q *resendQueue) register(msg *PendingMessage) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.enabled {
		return false
	}
	if q.cfg.QueueCapacity > 0 && len(q.items) >= q.cfg.QueueCapacity {
		return false
	}
	q.items = append(q.items, msg)
	return true
}

// tryDequeue pops the front entry, FIFO (spec §4.7).
func (q *resendQueue) tryDequeue() (*PendingMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

// requeueFront puts msg back at the head of the queue — used both when a
// retriable send fails and when the loop discovers it's disconnected
// mid-drain, so a message's position relative to later-registered
// messages of the same channel is preserved (spec §8: FIFO order among
// messages of the same channel).
func (q *resendQueue) requeueFront(msg *PendingMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]*PendingMessage{msg}, q.items...)
}

// unregister removes a specific entry by req_id, e.g. after a send that
// completed outside the resend loop (spec §4.7).
func (q *resendQueue) unregister(reqID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.items {
		if m.ReqID == reqID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// setEnabled toggles auto-resend. Disabling drains and fails every queued
// entry (spec §4.7).
func (q *resendQueue) setEnabled(enabled bool) {
	q.mu.Lock()
	q.enabled = enabled
	var drained []*PendingMessage
	if !enabled {
		drained = q.items
		q.items = nil
	}
	q.mu.Unlock()

	for _, m := range drained {
		m.setStatus(StatusCanceled)
		if m.OnFailed != nil {
			m.OnFailed(newError(CodeConnectionRequired, "auto-resend disabled", nil))
		}
	}
}

// cleanupExpired removes and fails every entry whose TTL has elapsed
// (spec §4.7, §8: "an expired PendingMessage is never re-sent").
func (q *resendQueue) cleanupExpired() {
	now := time.Now()
	q.mu.Lock()
	kept := q.items[:0:0]
	var expired []*PendingMessage
	for _, m := range q.items {
		if m.isExpired(q.cfg.TTL, now) {
			expired = append(expired, m)
		} else {
			kept = append(kept, m)
		}
	}
	q.items = kept
	q.mu.Unlock()

	for _, m := range expired {
		m.setStatus(StatusFailed)
		if m.OnFailed != nil {
			m.OnFailed(newError(CodeAckTimeout, "message expired before it could be sent", nil))
		}
	}
}

func (q *resendQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// backoffDelay computes the jittered exponential backoff for retryCount,
// per spec §4.7/§8: base_backoff_ms × 2^retry_count + uniform(0, max_jitter).
func backoffDelay(retryCount int, base, maxJitter time.Duration) time.Duration {
	mult := int64(1) << retryCount
	delay := base * time.Duration(mult)
	if maxJitter > 0 {
		delay += time.Duration(rand.Int64N(int64(maxJitter) + 1))
	}
	return delay
}

// onConnected runs the resend drain loop: cleanup, then dequeue-send
// until empty or disconnected, cancellable via ctx (spec §4.7 lifecycle
// hooks). The Session Manager starts it after every successful LOGI,
// including the reconnection that follows a token refresh, and whenever
// a message is queued while the session is open.
func (q *resendQueue) onConnected(ctx context.Context, connected func() bool) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	q.running = true
	q.cancel = cancel
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.running = false
		q.cancel = nil
		q.mu.Unlock()
	}()

	q.cleanupExpired()
	for {
		msg, ok := q.tryDequeue()
		if !ok {
			return
		}
		if !connected() {
			q.requeueFront(msg)
			return
		}
		// A freshly registered message is Failed (the initial attempt
		// that landed it in the queue already failed, spec §8 scenario
		// 5); a message requeued mid-drain is also Failed. Either way
		// the retry starts the legal Failed → Pending → Sending chain.
		msg.setStatus(StatusPending)
		if msg.RetryCount > 0 {
			select {
			case <-time.After(backoffDelay(msg.RetryCount, q.cfg.BaseBackoff, q.cfg.MaxJitter)):
			case <-loopCtx.Done():
				q.requeueFront(msg)
				return
			}
		}

		msg.setStatus(StatusSending)
		result, err := q.send(loopCtx, msg)
		if err == nil {
			msg.setStatus(StatusSucceeded)
			if msg.OnSuccess != nil {
				msg.OnSuccess(result)
			}
			continue
		}

		e := errorFromCause(err)
		if isAutoResendable(e.Code) && msg.canRetry(q.cfg.MaxRetries) {
			msg.RetryCount++
			msg.ErrorCode = e.Code
			msg.setStatus(StatusFailed)
			q.requeueFront(msg)
			continue
		}
		msg.ErrorCode = e.Code
		msg.setStatus(StatusFailed)
		if msg.OnFailed != nil {
			msg.OnFailed(e)
		}
	}
}

// onDisconnected cancels any in-flight resend loop; its current message
// is re-enqueued by the cancellation path above (spec §5).
func (q *resendQueue) onDisconnected() {
	q.mu.Lock()
	cancel := q.cancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// onTokenRefreshed re-triggers the drain loop after a successful refresh
// (spec §4.7 lifecycle hook, §2 "On reauth success: C7 drains queued
// messages").
func (q *resendQueue) onTokenRefreshed(ctx context.Context, connected func() bool) {
	q.onConnected(ctx, connected)
}
