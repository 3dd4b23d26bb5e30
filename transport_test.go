// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(msgType, data); err != nil {
				return
			}
		}
	}))
}

func TestTransportConnectSendReceive(t *testing.T) {
	server := echoServer(t)
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	var mu sync.Mutex
	var received []byte
	gotMessage := make(chan struct{}, 1)

	tr := newTransport(transportHooks{
		onMessage: func(data []byte) {
			mu.Lock()
			received = data
			mu.Unlock()
			gotMessage <- struct{}{}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.connect(ctx, wsURL, nil); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.disconnect()

	if tr.getState() != transportOpen {
		t.Fatalf("state = %v, want transportOpen", tr.getState())
	}

	if err := tr.send(ctx, []byte("MESGhello")); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case <-gotMessage:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed message")
	}

	mu.Lock()
	defer mu.Unlock()
	if string(received) != "MESGhello" {
		t.Errorf("received = %q, want %q", received, "MESGhello")
	}
}

func TestTransportSendBeforeConnectFails(t *testing.T) {
	tr := newTransport(transportHooks{})
	err := tr.send(context.Background(), []byte("x"))
	if err == nil {
		t.Fatal("expected error sending before connect")
	}
}

func TestTransportOnCloseFiresOnDisconnect(t *testing.T) {
	server := echoServer(t)
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	closed := make(chan int, 1)
	tr := newTransport(transportHooks{
		onClose: func(code int) { closed <- code },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.connect(ctx, wsURL, nil); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := tr.disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("onClose was never invoked")
	}
}

func TestBuildConnectURL(t *testing.T) {
	cfg := &ConnectionConfig{
		AppID:       "app-1",
		UserID:      "user-1",
		AccessToken: "token-1",
		WSHost:      "wss://chat.example.com",
		AppVersion:  "1.0.0",
		SDKVersion:  "1.0.0",
		APIVersion:  "v4",
		Platform:    "go",
	}
	got, err := buildConnectURL(cfg)
	if err != nil {
		t.Fatalf("buildConnectURL: %v", err)
	}
	if !strings.HasPrefix(got, "wss://chat.example.com/ws?") {
		t.Errorf("url = %q, want wss://chat.example.com/ws?...", got)
	}
	if !strings.Contains(got, "app_id=app-1") {
		t.Errorf("url missing app_id: %q", got)
	}
}
