// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestClientConnectAndSendUserMessage(t *testing.T) {
	server := fakeChatServer(t, func(conn *websocket.Conn, frame decodedFrame) {
		if frame.Type != CmdUserMessage {
			return
		}
		var in struct {
			ReqID   string `json:"req_id"`
			Message string `json:"message"`
		}
		json.Unmarshal(frame.Payload, &in)
		out, _ := json.Marshal(struct {
			ReqID   string `json:"req_id"`
			Message string `json:"message"`
		}{ReqID: in.ReqID, Message: in.Message})
		conn.WriteMessage(websocket.TextMessage, append([]byte("MESG"), out...))
	})
	defer server.Close()

	c := NewClient("app-1", "ws"+strings.TrimPrefix(server.URL, "http"), "", nil)
	defer c.Dispose()

	done := make(chan error, 1)
	c.Connect(context.Background(), "user-1", "token", func(userID string, err error) { done <- err })
	if err := <-done; err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if c.GetConnectionState() != StateOpen {
		t.Fatalf("state = %v, want StateOpen", c.GetConnectionState())
	}

	success := make(chan *Message, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.SendUserMessage(ctx, "channel-1", CreateParams{Message: "hi there"}, func(msg *Message) {
		success <- msg
	}, func(e *Error) {
		t.Errorf("unexpected failure: %v", e)
	})

	select {
	case msg := <-success:
		if msg.Message != "hi there" {
			t.Errorf("msg.Message = %q, want %q", msg.Message, "hi there")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SendUserMessage success")
	}
}

func TestClientSendUserMessageQueuesForResendWhenDisconnected(t *testing.T) {
	c := NewClient("app-1", "ws://unused.invalid", "", nil)
	defer c.Dispose()

	failed := make(chan *Error, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pm := c.SendUserMessage(ctx, "channel-1", CreateParams{Message: "queued"}, nil, func(e *Error) {
		failed <- e
	})

	if pm.currentStatus() != StatusFailed {
		t.Fatalf("status = %v, want Failed (queued for resend, not yet failed to the app)", pm.currentStatus())
	}
	select {
	case <-failed:
		t.Fatal("OnFailed should not fire while the message is queued for auto-resend")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestClientResendUserMessageRetriesAckTimeoutFailure covers the fixed
// review findings: an AckTimeout is user-resendable but not
// auto-resendable, so it must still be remembered for ResendUserMessage
// (not just the auto-resend class), and ResendUserMessage issued while
// already connected must drive a send immediately rather than waiting
// for the next reconnect/LOGI.
func TestClientResendUserMessageRetriesAckTimeoutFailure(t *testing.T) {
	var mesgCount int32
	server := fakeChatServer(t, func(conn *websocket.Conn, frame decodedFrame) {
		if frame.Type != CmdUserMessage {
			return
		}
		if atomic.AddInt32(&mesgCount, 1) == 1 {
			return // drop the first attempt so the client sees an ack timeout
		}
		var in struct {
			ReqID   string `json:"req_id"`
			Message string `json:"message"`
		}
		json.Unmarshal(frame.Payload, &in)
		out, _ := json.Marshal(struct {
			ReqID   string `json:"req_id"`
			Message string `json:"message"`
		}{ReqID: in.ReqID, Message: in.Message})
		conn.WriteMessage(websocket.TextMessage, append([]byte("MESG"), out...))
	})
	defer server.Close()

	timeouts := DefaultTimeouts()
	timeouts.AckSendMessage = 50 * time.Millisecond
	c := NewClient("app-1", "ws"+strings.TrimPrefix(server.URL, "http"), "", &ClientOptions{Timeouts: &timeouts})
	defer c.Dispose()

	done := make(chan error, 1)
	c.Connect(context.Background(), "user-1", "token", func(userID string, err error) { done <- err })
	if err := <-done; err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	failed := make(chan *Error, 1)
	success := make(chan *Message, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pm := c.SendUserMessage(ctx, "channel-1", CreateParams{Message: "retry me"},
		func(msg *Message) { success <- msg },
		func(e *Error) { failed <- e })

	select {
	case e := <-failed:
		if e.Code != CodeAckTimeout {
			t.Fatalf("error code = %v, want CodeAckTimeout", e.Code)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the initial ack-timeout failure")
	}

	c.mu.Lock()
	_, remembered := c.pending[pm.ReqID]
	c.mu.Unlock()
	if !remembered {
		t.Fatal("AckTimeout is user-resendable; the client should have remembered it for ResendUserMessage")
	}

	if !c.ResendUserMessage(pm.ReqID) {
		t.Fatal("ResendUserMessage returned false for a remembered Failed message")
	}
	if c.GetConnectionState() != StateOpen {
		t.Fatalf("state = %v, want StateOpen (resend must not force a reconnect)", c.GetConnectionState())
	}

	select {
	case msg := <-success:
		if msg.Message != "retry me" {
			t.Errorf("msg.Message = %q, want %q", msg.Message, "retry me")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the resend to succeed — the drain loop may not be kicked while already connected")
	}

	if got := atomic.LoadInt32(&mesgCount); got < 2 {
		t.Fatalf("server saw %d MESG frames, want at least 2 (original attempt + manual resend)", got)
	}
}
