// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package chatsdk

import (
	"errors"
	"fmt"
)

// Code is a stable numeric error code, grouped by origin the way spec §7
// lays out: 800000-series for SDK/transport errors, 400000-series for
// common API errors echoed by the server, and per-domain 6-digit series
// for channel/message/application/organization/push errors.
type Code int

const (
	CodeUnknown Code = 800000 + iota
	CodeInvalidInit
	CodeConnectionRequired
	CodeInvalidParameter
	CodeNetwork
	CodeMalformedData
	CodeAckTimeout
	CodeLoginTimeout
	CodeConnectionClosed
	CodeConnectionFailed
	CodeRequestFailed
	CodePassedInvalidAccessToken
	CodeSessionRefreshSucceeded
	CodeSessionRefreshFailed
	CodePendingError
)

const (
	CodeBadRequest Code = 400000 + iota
	CodeInvalidArgument
	CodeUnauthorized
	CodeInvalidSession
	CodeInvalidSessionKeyValue
	CodeForbidden
	CodeNotFound
	CodePreconditionFailed
	CodeServerBusy
	CodeInternal
	CodeHTTPTimeout
)

const (
	CodeChannelNotFound    Code = 279101
	CodeChannelForbidden   Code = 279103
	CodeMessageNotFound    Code = 307101
	CodeMessageTooLong     Code = 307102
	CodeApplicationInvalid Code = 638001
	CodeOrganizationLocked Code = 730001
	CodePushTokenInvalid   Code = 348001
)

// Error is the typed error every public async operation and every
// application handler callback receives. It wraps an optional underlying
// cause without losing the stable Code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("chatsdk: %s (code=%d): %v", e.Message, e.Code, e.Cause)
	}
	return fmt.Sprintf("chatsdk: %s (code=%d)", e.Message, e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Code, so callers
// can write errors.Is(err, chatsdk.ErrConnectionClosed).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinel errors for errors.Is comparisons against a bare code, e.g.
// errors.Is(err, chatsdk.ErrConnectionClosed).
var (
	ErrConnectionRequired = &Error{Code: CodeConnectionRequired, Message: "not connected"}
	ErrConnectionClosed   = &Error{Code: CodeConnectionClosed, Message: "connection closed"}
	ErrConnectionFailed   = &Error{Code: CodeConnectionFailed, Message: "connection failed"}
	ErrAckTimeout         = &Error{Code: CodeAckTimeout, Message: "ack timeout"}
	ErrLoginTimeout       = &Error{Code: CodeLoginTimeout, Message: "login timeout"}
	ErrMalformedData      = &Error{Code: CodeMalformedData, Message: "malformed frame"}
	ErrNetwork            = &Error{Code: CodeNetwork, Message: "network error"}
	ErrRequestFailed      = &Error{Code: CodeRequestFailed, Message: "request failed"}
	ErrPendingError       = &Error{Code: CodePendingError, Message: "send still pending"}
	ErrRefreshFailed      = &Error{Code: CodeSessionRefreshFailed, Message: "token refresh failed"}
	ErrInvalidAccessToken = &Error{Code: CodePassedInvalidAccessToken, Message: "invalid access token"}
)

// isAuthClass reports whether code indicates the access token/session key
// is no longer valid; these are routed to the token-refresh coordinator
// instead of the reconnection policy (spec §4.5, §7).
func isAuthClass(code Code) bool {
	switch code {
	case CodeInvalidSession, CodeInvalidSessionKeyValue, CodePassedInvalidAccessToken:
		return true
	default:
		return false
	}
}

// isTransportClass reports whether code is one of the retriable
// transport-level errors the reconnection policy acts on (spec §4.5).
func isTransportClass(code Code) bool {
	switch code {
	case CodeNetwork, CodeConnectionFailed, CodeConnectionClosed, CodeLoginTimeout,
		CodeAckTimeout, CodeRequestFailed:
		return true
	default:
		return false
	}
}

// isAutoResendable reports whether a failed send's error code may be
// retried by the auto-resend queue without application intervention
// (spec §4.7).
func isAutoResendable(code Code) bool {
	switch code {
	case CodeConnectionRequired, CodeConnectionClosed, CodeConnectionFailed, CodeNetwork, CodeRequestFailed:
		return true
	default:
		return false
	}
}

// isUserResendable reports whether a failed send may be retried manually
// by the application (a superset of isAutoResendable, spec §4.7).
func isUserResendable(code Code) bool {
	if isAutoResendable(code) {
		return true
	}
	switch code {
	case CodeAckTimeout, CodePendingError:
		return true
	default:
		return false
	}
}

// Temporary reports whether the error's classification means a retry
// (reconnect, resend, or refresh) is already in flight or would be
// accepted — a supplemented, exported view of the same classification
// tables C5/C7 already compute, so application code can decide whether
// to surface a "retry" affordance without duplicating the policy.
func (e *Error) Temporary() bool {
	return isTransportClass(e.Code) || isAutoResendable(e.Code) || isAuthClass(e.Code)
}

// errorFromCause classifies a raw transport/context error into a typed
// Error with the best-matching code.
func errorFromCause(cause error) *Error {
	if cause == nil {
		return nil
	}
	var sdkErr *Error
	if errors.As(cause, &sdkErr) {
		return sdkErr
	}
	return newError(CodeNetwork, "transport error", cause)
}
