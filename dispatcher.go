// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import (
	"log/slog"
	"sync"
)

// ChannelHandler is the application-supplied listener bundle registered
// under a unique id (spec Glossary: "Channel handler").
type ChannelHandler struct {
	OnMessageReceived func(msg *Message)
	OnMessageUpdated  func(msg *Message)
}

// ConnectionHandler is the application-supplied bundle for connection
// lifecycle events (spec §6 add_connection_handler).
type ConnectionHandler struct {
	OnConnected         func(userID string)
	OnDisconnected      func(userID string)
	OnReconnectStarted  func()
	OnReconnectSucceeded func()
	OnReconnectFailed   func()
}

// dispatcher is C4: the channel-handler and connection-handler registries,
// fanning decoded messages and connection events out to every registered
// handler while isolating panics so one bad handler never blocks the
// others (spec §4.4). It holds no handler map keyed by command type and no
// default handler; routing by command type is the switch in
// session.onTransportMessage. Handler lists are copied out under lock and iterated without it,
// so registration/removal from within a handler callback never deadlocks.
type dispatcher struct {
	log *slog.Logger

	mu                sync.RWMutex
	channelHandlers   map[string]*ChannelHandler
	connectionHandlers map[string]*ConnectionHandler
}

func newDispatcher(log *slog.Logger) *dispatcher {
	return &dispatcher{
		log:                log,
		channelHandlers:    make(map[string]*ChannelHandler),
		connectionHandlers: make(map[string]*ConnectionHandler),
	}
}

func (d *dispatcher) addChannelHandler(id string, h *ChannelHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channelHandlers[id] = h
}

func (d *dispatcher) removeChannelHandler(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.channelHandlers, id)
}

func (d *dispatcher) addConnectionHandler(id string, h *ConnectionHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectionHandlers[id] = h
}

func (d *dispatcher) removeConnectionHandler(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.connectionHandlers, id)
}

func (d *dispatcher) snapshotChannelHandlers() []*ChannelHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*ChannelHandler, 0, len(d.channelHandlers))
	for _, h := range d.channelHandlers {
		out = append(out, h)
	}
	return out
}

func (d *dispatcher) snapshotConnectionHandlers() []*ConnectionHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*ConnectionHandler, 0, len(d.connectionHandlers))
	for _, h := range d.connectionHandlers {
		out = append(out, h)
	}
	return out
}

// broadcastReceived fans a newly received message out to every channel
// handler. Handler panics are recovered and logged, never propagated
// (spec §4.4, §4.8).
func (d *dispatcher) broadcastReceived(msg *Message) {
	for _, h := range d.snapshotChannelHandlers() {
		d.invoke(func() {
			if h.OnMessageReceived != nil {
				h.OnMessageReceived(msg)
			}
		})
	}
}

// broadcastUpdated fans a MEDI streaming update out to every channel
// handler.
func (d *dispatcher) broadcastUpdated(msg *Message) {
	for _, h := range d.snapshotChannelHandlers() {
		d.invoke(func() {
			if h.OnMessageUpdated != nil {
				h.OnMessageUpdated(msg)
			}
		})
	}
}

func (d *dispatcher) notifyConnected(userID string) {
	for _, h := range d.snapshotConnectionHandlers() {
		d.invoke(func() {
			if h.OnConnected != nil {
				h.OnConnected(userID)
			}
		})
	}
}

func (d *dispatcher) notifyDisconnected(userID string) {
	for _, h := range d.snapshotConnectionHandlers() {
		d.invoke(func() {
			if h.OnDisconnected != nil {
				h.OnDisconnected(userID)
			}
		})
	}
}

func (d *dispatcher) notifyReconnectStarted() {
	for _, h := range d.snapshotConnectionHandlers() {
		d.invoke(func() {
			if h.OnReconnectStarted != nil {
				h.OnReconnectStarted()
			}
		})
	}
}

func (d *dispatcher) notifyReconnectSucceeded() {
	for _, h := range d.snapshotConnectionHandlers() {
		d.invoke(func() {
			if h.OnReconnectSucceeded != nil {
				h.OnReconnectSucceeded()
			}
		})
	}
}

func (d *dispatcher) notifyReconnectFailed() {
	for _, h := range d.snapshotConnectionHandlers() {
		d.invoke(func() {
			if h.OnReconnectFailed != nil {
				h.OnReconnectFailed()
			}
		})
	}
}

// invoke runs f, recovering and logging any panic so one misbehaving
// handler never prevents the remaining handlers from running (spec
// §4.4: "exceptions in one handler must not prevent others from
// running").
func (d *dispatcher) invoke(f func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn("chatsdk: application handler panicked", "recovered", r)
		}
	}()
	f()
}
