// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package chatsdk is a client SDK for a realtime chat service reachable
// over a persistent WebSocket connection. It owns command encoding,
// request/ACK correlation, the transport connection, event dispatch to
// application handlers, reconnection with backoff, proactive and
// reactive access-token refresh, and FIFO auto-resend of failed user
// messages.
//
// A Client is constructed once per application and connected with an
// access token:
//
//	c := chatsdk.NewClient("APP-ID", "wss://chat.example.com", "https://api.example.com", nil)
//	c.Connect(ctx, "user-1", token, func(userID string, err error) {
//		if err != nil {
//			log.Fatal(err)
//		}
//	})
//
// Inbound messages and connection lifecycle events are delivered through
// handler registries rather than blocking calls, since both can arrive
// at any time relative to the application's own goroutines.
package chatsdk
