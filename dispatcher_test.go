// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import (
	"log/slog"
	"sync"
	"testing"
)

func TestDispatcherBroadcastReceivedFansOutToAllHandlers(t *testing.T) {
	d := newDispatcher(slog.Default())

	var mu sync.Mutex
	var got []string
	for i := 0; i < 3; i++ {
		id := string(rune('a' + i))
		d.addChannelHandler(id, &ChannelHandler{
			OnMessageReceived: func(msg *Message) {
				mu.Lock()
				got = append(got, msg.Message)
				mu.Unlock()
			},
		})
	}

	d.broadcastReceived(&Message{Message: "hello"})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("handlers invoked = %d, want 3", len(got))
	}
	for _, m := range got {
		if m != "hello" {
			t.Errorf("got message %q, want %q", m, "hello")
		}
	}
}

func TestDispatcherInvokeRecoversPanic(t *testing.T) {
	d := newDispatcher(slog.Default())
	called := false

	d.addChannelHandler("panicker", &ChannelHandler{
		OnMessageReceived: func(msg *Message) { panic("boom") },
	})
	d.addChannelHandler("normal", &ChannelHandler{
		OnMessageReceived: func(msg *Message) { called = true },
	})

	d.broadcastReceived(&Message{Message: "x"})

	if !called {
		t.Fatal("handler after a panicking one was never invoked")
	}
}

func TestDispatcherRemoveChannelHandler(t *testing.T) {
	d := newDispatcher(slog.Default())
	called := false
	d.addChannelHandler("h1", &ChannelHandler{
		OnMessageReceived: func(msg *Message) { called = true },
	})
	d.removeChannelHandler("h1")

	d.broadcastReceived(&Message{Message: "x"})

	if called {
		t.Fatal("removed handler was still invoked")
	}
}

func TestDispatcherNotifyConnectionEvents(t *testing.T) {
	d := newDispatcher(slog.Default())
	var connected, disconnected bool
	d.addConnectionHandler("h1", &ConnectionHandler{
		OnConnected:    func(userID string) { connected = true },
		OnDisconnected: func(userID string) { disconnected = true },
	})

	d.notifyConnected("user-1")
	d.notifyDisconnected("user-1")

	if !connected || !disconnected {
		t.Fatalf("connected=%v disconnected=%v, want both true", connected, disconnected)
	}
}
