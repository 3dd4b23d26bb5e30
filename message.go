// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import "encoding/json"

// CommandType is the 4-character ASCII prefix on every wire frame
// (spec §3, §6): "XXXX{json...}".
type CommandType string

const (
	CmdLogin        CommandType = "LOGI" // first frame after transport open
	CmdUserMessage  CommandType = "MESG" // user message: ack-required, also broadcast
	CmdFileMessage  CommandType = "FILE" // file message: ack-required, also broadcast
	CmdMediaUpdate  CommandType = "MEDI" // streaming update, carries a done flag
	CmdError        CommandType = "EROR" // server-side error for a req_id, or broadcast
	CmdPong         CommandType = "PONG" // heartbeat reply, fire-and-forget
	CmdPing         CommandType = "PING" // heartbeat request, fire-and-forget (supplemented, §4 SPEC_FULL)
	CmdTokenExpired CommandType = "EXPR" // access token expired, triggers refresh
	CmdUnknown      CommandType = ""     // unrecognized type code
)

// ackRequired is the partition of command types that always carry a
// req_id and expect a completion (spec §3).
var ackRequired = map[CommandType]bool{
	CmdUserMessage: true,
	CmdFileMessage: true,
}

// IsAckRequired reports whether t is an ack-required command type.
func IsAckRequired(t CommandType) bool { return ackRequired[t] }

// User mirrors the wire "user" object embedded in MESG/MEDI payloads.
type User struct {
	UserID     string `json:"user_id"`
	Nickname   string `json:"nickname,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
	Role       string `json:"role,omitempty"`
}

// Message is the normalized form of an inbound MESG/MEDI frame, handed to
// channel handlers and to the waiter of a matching PendingAck.
type Message struct {
	ReqID       string          `json:"req_id,omitempty"`
	ChannelURL  string          `json:"channel_url"`
	MessageType string          `json:"message_type,omitempty"`
	Message     string          `json:"message,omitempty"`
	Data        string          `json:"data,omitempty"`
	CustomType  string          `json:"custom_type,omitempty"`
	MessageID   int64           `json:"message_id,omitempty"`
	CreatedAt   int64           `json:"created_at,omitempty"`
	Done        bool            `json:"done,omitempty"`
	User        *User           `json:"user,omitempty"`
	raw         json.RawMessage // the decoded payload, for forwarding verbatim
}

// UnmarshalJSON folds the wire's alias keys into their canonical field:
// message_id/msg_id and created_at/ts (spec §6 wire protocol). The
// canonical key wins if both are present.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	aux := struct {
		MsgID     *int64 `json:"msg_id"`
		Timestamp *int64 `json:"ts"`
		*alias
	}{alias: (*alias)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if m.MessageID == 0 && aux.MsgID != nil {
		m.MessageID = *aux.MsgID
	}
	if m.CreatedAt == 0 && aux.Timestamp != nil {
		m.CreatedAt = *aux.Timestamp
	}
	return nil
}

// loginPayload is the LOGI response body: "key" on success, or a numeric
// "code"/"message" on failure.
type loginPayload struct {
	Key     string `json:"key,omitempty"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// errorPayload is the EROR body.
type errorPayload struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// CreateParams is the application-supplied content of a user message send
// (spec §3 PendingMessage.create_params).
type CreateParams struct {
	Message    string         `json:"message"`
	CustomType string         `json:"custom_type,omitempty"`
	Data       string         `json:"data,omitempty"`
	Metadata   map[string]any `json:"-"`
}

// MessageStatus is a PendingMessage's position in the legal transition set
// of spec §4.7.
type MessageStatus int

const (
	StatusPending MessageStatus = iota
	StatusSending
	StatusSucceeded
	StatusFailed
	StatusCanceled
)

func (s MessageStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusSending:
		return "Sending"
	case StatusSucceeded:
		return "Succeeded"
	case StatusFailed:
		return "Failed"
	case StatusCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// legalTransitions is the status-transition set from spec §4.7; any
// transition not listed here is a no-op.
var legalTransitions = map[MessageStatus]map[MessageStatus]bool{
	StatusPending: {StatusSending: true, StatusCanceled: true},
	StatusSending: {StatusSucceeded: true, StatusFailed: true, StatusCanceled: true},
	StatusFailed:  {StatusPending: true},
}

func canTransition(from, to MessageStatus) bool {
	return legalTransitions[from][to]
}
