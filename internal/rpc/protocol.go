// Package rpc defines the JSON-RPC 2.0 wire protocol shared by the
// membership API server and its clients.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"membership-registry/internal/domain"
)

// Version is the JSON-RPC protocol version.
const Version = "2.0"

// HTTP methods.
const (
	MethodSendTransaction     = "sendTransaction"
	MethodGetTransaction      = "getTransaction"
	MethodGetMembership       = "getMembership"
	MethodGetAuthority        = "getAuthority"
	MethodGetMint             = "getMint"
	MethodGetTokenAccount     = "getTokenAccount"
	MethodGetMembershipEvents = "getMembershipEvents"
	MethodDeriveAddresses     = "deriveAddresses"
	MethodGetSlot             = "getSlot"
)

// WebSocket methods.
const (
	MethodMembershipSubscribe    = "membershipSubscribe"
	MethodMembershipUnsubscribe  = "membershipUnsubscribe"
	MethodMembershipNotification = "membershipNotification"
)

// Standard JSON-RPC error codes. Program errors use their own codes (6000+).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is a JSON-RPC 2.0 request as seen by the server.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData carries the stable program error name.
type ErrorData struct {
	Name string `json:"name"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Unwrap returns the program error matching the code, so callers can use
// errors.Is(err, domain.ErrStaleRecord) on client-side errors.
func (e *Error) Unwrap() error {
	if e.Code < 0 {
		return nil
	}
	if pe := domain.ProgramErrorByCode(domain.ErrorCode(e.Code)); pe != nil {
		return pe
	}
	return nil
}

// NewError creates an Error with a standard code.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FromError converts err into an Error. Program errors keep their code and
// name; anything else becomes an internal error.
func FromError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if pe, ok := domain.AsProgramError(err); ok {
		return &Error{
			Code:    int(pe.Code),
			Message: err.Error(),
			Data:    &ErrorData{Name: pe.Name},
		}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

// Notification is a server-initiated message on a WebSocket connection.
type Notification struct {
	JSONRPC string             `json:"jsonrpc"`
	Method  string             `json:"method"`
	Params  NotificationParams `json:"params"`
}

// NotificationParams identifies the subscription a notification belongs to.
type NotificationParams struct {
	Subscription uint64          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}
