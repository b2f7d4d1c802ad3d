package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a non-2xx response from the backend.
type Error struct {
	Status  int
	Payload json.RawMessage
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func newHTTPError(status int, payload []byte) *Error {
	message := messageFromPayload(payload)
	if message == "" {
		message = http.StatusText(status)
	}
	if message == "" {
		message = "request failed"
	}
	return &Error{Status: status, Payload: json.RawMessage(payload), Message: message}
}

// messageFromPayload picks the first non-empty of message, error_description and error.
func messageFromPayload(payload []byte) string {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}
	var body struct {
		Message          any `json:"message"`
		ErrorDescription any `json:"error_description"`
		Error            any `json:"error"`
		Msg              any `json:"msg"`
	}
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return ""
	}
	for _, candidate := range []any{body.Message, body.ErrorDescription, body.Error, body.Msg} {
		if s, ok := candidate.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// RPCError is a business failure reported as an {error_code, error_message} row.
type RPCError struct {
	Function string
	Code     string
	Message  string
}

func (e *RPCError) Error() string {
	code := e.Code
	if code == "" {
		code = "UNKNOWN"
	}
	message := e.Message
	if message == "" {
		message = fmt.Sprintf("Unknown %s error", e.Function)
	}
	return fmt.Sprintf("[%s] %s", code, message)
}

type errorRow struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// rpcRowError inspects the first returned row for an error marker.
func rpcRowError(function string, raw json.RawMessage) error {
	rows, err := decodeRows[errorRow](raw)
	if err != nil || len(rows) == 0 {
		return nil
	}
	first := rows[0]
	if first.ErrorCode == "" && first.ErrorMessage == "" {
		return nil
	}
	return &RPCError{Function: function, Code: first.ErrorCode, Message: first.ErrorMessage}
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var httpErr *Error
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

// MessageOf returns the backend-provided message carried by err, if any.
func MessageOf(err error) string {
	var httpErr *Error
	if errors.As(err, &httpErr) {
		if m := messageFromPayload(httpErr.Payload); m != "" {
			return m
		}
		return ""
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Message
	}
	return ""
}
