// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import (
	"encoding/json"
	"sync"
	"time"
)

// pendingAck is one in-flight ack-required send (spec §3 PendingAck).
// completion receives the ACK payload on success or nil on error/timeout;
// it is buffered 1 so the completing side never blocks on a waiter that
// has already given up.
type pendingAck struct {
	reqID      string
	completion chan json.RawMessage
	timer      *time.Timer
	createdAt  time.Time
}

// ackTable is C2: a small map guarded by a single mutex, as spec §4.2/§5
// requires ("the table is small, tens of entries"; "all mutations
// serialized by a single mutex").
type ackTable struct {
	mu      sync.Mutex
	pending map[string]*pendingAck
}

func newAckTable() *ackTable {
	return &ackTable{pending: make(map[string]*pendingAck)}
}

// register inserts a new waiter for reqID, arming a timeout that resolves
// the waiter with nil if no ACK arrives first. Registering a duplicate
// reqID is a programmer error and panics, per spec §3's invariant.
func (t *ackTable) register(reqID string, timeout time.Duration) *pendingAck {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.pending[reqID]; exists {
		panic("chatsdk: duplicate PendingAck registration for req_id " + reqID)
	}

	entry := &pendingAck{
		reqID:      reqID,
		completion: make(chan json.RawMessage, 1),
		createdAt:  time.Now(),
	}
	entry.timer = time.AfterFunc(timeout, func() {
		t.complete(reqID, nil)
	})
	t.pending[reqID] = entry
	return entry
}

// complete resolves reqID's waiter with payload (nil on error/timeout)
// and removes the entry. Returns whether an entry was found. Idempotent:
// the first of {ACK arrival, timeout, clear_all} to call complete wins;
// later calls are no-ops (spec §4.2, §5).
func (t *ackTable) complete(reqID string, payload json.RawMessage) bool {
	t.mu.Lock()
	entry, ok := t.pending[reqID]
	if ok {
		delete(t.pending, reqID)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	entry.timer.Stop()
	entry.completion <- payload
	return true
}

// clearAll resolves every outstanding waiter with nil and removes all
// entries; used on disconnect, refresh start, and session disposal
// (spec §4.2).
func (t *ackTable) clearAll() {
	t.mu.Lock()
	entries := make([]*pendingAck, 0, len(t.pending))
	for id, e := range t.pending {
		entries = append(entries, e)
		delete(t.pending, id)
	}
	t.mu.Unlock()

	for _, e := range entries {
		e.timer.Stop()
		e.completion <- nil
	}
}

func (t *ackTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
