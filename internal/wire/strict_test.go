// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"strings"
	"testing"
)

type loginPayload struct {
	Key     string `json:"key"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func TestStrictUnmarshal_RejectsDuplicateKeys(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{
			name:    "duplicate with different case",
			json:    `{"key":"legit","Key":"smuggled"}`,
			wantErr: "duplicate key with different case",
		},
		{
			name:    "triple duplicate with different cases",
			json:    `{"key":"a","Key":"b","KEY":"c"}`,
			wantErr: "duplicate key with different case",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result loginPayload
			err := StrictUnmarshal([]byte(tt.json), &result)
			if err == nil {
				t.Fatalf("StrictUnmarshal() expected error, got nil; result: %+v", result)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("StrictUnmarshal() error = %v, want error containing %v", err, tt.wantErr)
			}
		})
	}
}

func TestStrictUnmarshal_RejectsFieldCaseMismatch(t *testing.T) {
	var result loginPayload
	err := StrictUnmarshal([]byte(`{"Key":"abc"}`), &result)
	if err == nil {
		t.Fatal("expected error for case-mismatched field")
	}
	if !strings.Contains(err.Error(), "case mismatch") {
		t.Errorf("got %v, want case mismatch error", err)
	}
}

func TestStrictUnmarshal_RejectsUnknownFields(t *testing.T) {
	var result loginPayload
	err := StrictUnmarshal([]byte(`{"key":"abc","unexpected":1}`), &result)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestStrictUnmarshal_AcceptsValid(t *testing.T) {
	var result loginPayload
	if err := StrictUnmarshal([]byte(`{"key":"session-key-123"}`), &result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Key != "session-key-123" {
		t.Errorf("Key = %q, want session-key-123", result.Key)
	}
}
