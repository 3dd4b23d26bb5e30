// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/chatcore/chat-go-sdk/internal/wire"
)

// typePrefixLen is the length of the ASCII command-type prefix on every
// wire frame (spec §3, §6).
const typePrefixLen = 4

// newReqID mints a fresh 32-hex-character request id, the UUID-like
// identifier spec §4.1 requires for every ack-required command. Grounded
// on the teacher's own crypto/rand use in randText (mcp/util.go), adapted
// to a fixed hex alphabet since the spec calls for "32 hex chars" rather
// than rand.Text's base32 output.
func newReqID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("chatsdk: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}

// encode serializes an outbound command. For ack-required types it mints
// and injects a req_id, returning it; for fire-and-forget types it
// returns an empty req_id (spec §4.1).
func encode(cmdType CommandType, payload any) (reqID string, frame []byte, err error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, newError(CodeMalformedData, "encode payload", err)
	}

	if IsAckRequired(cmdType) {
		reqID = newReqID()
		body, err = injectReqID(body, reqID)
		if err != nil {
			return "", nil, newError(CodeMalformedData, "inject req_id", err)
		}
	}

	frame = make([]byte, 0, typePrefixLen+len(body))
	frame = append(frame, []byte(cmdType)...)
	frame = append(frame, body...)
	return reqID, frame, nil
}

// injectReqID adds (or overwrites) the "req_id" key of a JSON object.
func injectReqID(body []byte, reqID string) ([]byte, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(reqID)
	if err != nil {
		return nil, err
	}
	m["req_id"] = encoded
	return json.Marshal(m)
}

// decodedFrame is the result of decode: the command type, the raw JSON
// payload, and the req_id if the frame carried one.
type decodedFrame struct {
	Type    CommandType
	Payload json.RawMessage
	ReqID   string
}

// knownTypes is the fixed set of command types the dispatcher recognizes;
// anything else decodes to CmdUnknown (spec §4.1: "let the dispatcher
// log-and-ignore").
var knownTypes = map[CommandType]bool{
	CmdLogin: true, CmdUserMessage: true, CmdFileMessage: true, CmdMediaUpdate: true,
	CmdError: true, CmdPong: true, CmdPing: true, CmdTokenExpired: true,
}

// decode parses an inbound wire frame into its command type, JSON payload,
// and optional req_id. Returns a *Error with CodeMalformedData if the
// frame is too short or the JSON body doesn't parse (spec §4.1).
func decode(frame []byte) (decodedFrame, error) {
	if len(frame) < typePrefixLen {
		return decodedFrame{}, newError(CodeMalformedData, "frame shorter than type prefix", nil)
	}
	cmdType := CommandType(frame[:typePrefixLen])
	body := frame[typePrefixLen:]

	if len(body) == 0 {
		body = []byte("{}")
	}
	var probe json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return decodedFrame{}, newError(CodeMalformedData, fmt.Sprintf("invalid json body for %q", cmdType), err)
	}

	reqID, err := extractReqID(body)
	if err != nil {
		return decodedFrame{}, newError(CodeMalformedData, "extract req_id", err)
	}

	if !knownTypes[cmdType] {
		cmdType = CmdUnknown
	}
	return decodedFrame{Type: cmdType, Payload: body, ReqID: reqID}, nil
}

func extractReqID(body json.RawMessage) (string, error) {
	var probe struct {
		ReqID *string `json:"req_id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return "", err
	}
	if probe.ReqID == nil {
		return "", nil
	}
	return *probe.ReqID, nil
}

// decodeLogin strictly decodes a LOGI payload, rejecting unknown/
// case-mismatched fields (internal/wire), since an authentication
// response is the one frame that must never be misparsed.
func decodeLogin(body json.RawMessage) (loginPayload, error) {
	var p loginPayload
	if err := wire.StrictUnmarshal(body, &p); err != nil {
		return loginPayload{}, newError(CodeMalformedData, "decode LOGI payload", err)
	}
	return p, nil
}

// decodeError strictly decodes an EROR payload.
func decodeError(body json.RawMessage) (errorPayload, error) {
	var p errorPayload
	if err := wire.StrictUnmarshal(body, &p); err != nil {
		return errorPayload{}, newError(CodeMalformedData, "decode EROR payload", err)
	}
	return p, nil
}

// decodeMessage decodes a MESG/MEDI/FILE payload into the normalized
// Message record forwarded to channel handlers and PendingAck waiters.
func decodeMessage(body json.RawMessage) (*Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, newError(CodeMalformedData, "decode message payload", err)
	}
	m.raw = body
	return &m, nil
}
