// Package rpc provides WebSocket-based RPC functionality.
package rpc

import (
	"errors"
	"fmt"

	"listenify.dev/syncengine/internal/syncerr"
)

// ErrorCode is a type for JSON-RPC error codes.
type ErrorCode int

// JSON-RPC 2.0 error codes
const (
	// Parse error: Invalid JSON was received by the server.
	ErrParseError ErrorCode = -32700

	// Invalid Request: The JSON sent is not a valid Request object.
	ErrInvalidRequest ErrorCode = -32600

	// Method not found: The method does not exist / is not available.
	ErrMethodNotFound ErrorCode = -32601

	// Invalid params: Invalid method parameter(s).
	ErrInvalidParams ErrorCode = -32602

	// Internal error: Internal JSON-RPC error.
	ErrInternalError ErrorCode = -32603

	// Server error: Reserved for implementation-defined server-errors.
	ErrServerError ErrorCode = -32000

	// Authentication required: the connection has not presented a valid token.
	ErrAuthenticationRequired ErrorCode = -32001
)

// Domain error codes, one per syncerr.Kind except Internal, which maps to
// ErrInternalError.
const (
	// NotFound: the referenced room, member, or queue entry does not exist.
	ErrNotFound ErrorCode = -32100

	// Conflict: the requested room code or state already exists.
	ErrConflict ErrorCode = -32101

	// Unauthorized: the caller is not the room's host.
	ErrUnauthorized ErrorCode = -32102

	// FailedPrecondition: the room is not in a state that allows this operation.
	ErrFailedPrecondition ErrorCode = -32103

	// Invalid: the request parameters fail validation.
	ErrInvalid ErrorCode = -32104

	// Transient: a dependency is temporarily unavailable; retry later.
	ErrTransient ErrorCode = -32105
)

// String returns a string representation of the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrParseError:
		return "Parse error"
	case ErrInvalidRequest:
		return "Invalid request"
	case ErrMethodNotFound:
		return "Method not found"
	case ErrInvalidParams:
		return "Invalid params"
	case ErrInternalError:
		return "Internal error"
	case ErrServerError:
		return "Server error"
	case ErrAuthenticationRequired:
		return "Authentication required"
	case ErrNotFound:
		return "Not found"
	case ErrConflict:
		return "Conflict"
	case ErrUnauthorized:
		return "Not authorized"
	case ErrFailedPrecondition:
		return "Failed precondition"
	case ErrInvalid:
		return "Invalid"
	case ErrTransient:
		return "Temporarily unavailable"
	default:
		return fmt.Sprintf("Error code %d", c)
	}
}

// Error combines an error code, message, and no data.
func (c ErrorCode) Error() error {
	return &Error{
		Code:    c,
		Message: c.String(),
	}
}

// ErrorWith combines an error code, message, and data.
func (c ErrorCode) ErrorWith(data any) error {
	return &Error{
		Code:    c,
		Message: c.String(),
		Data:    data,
	}
}

// NewError creates a new Error with the given code, message, and data.
func NewError(code ErrorCode, message string, data any) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// NewParseError creates a new parse error.
func NewParseError(err error) *Error {
	return &Error{
		Code:    ErrParseError,
		Message: fmt.Sprintf("Parse error: %v", err),
	}
}

// NewInvalidRequestError creates a new invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Code:    ErrInvalidRequest,
		Message: fmt.Sprintf("Invalid request: %s", message),
	}
}

// NewMethodNotFoundError creates a new method not found error.
func NewMethodNotFoundError(method string) *Error {
	return &Error{
		Code:    ErrMethodNotFound,
		Message: fmt.Sprintf("Method not found: %s", method),
	}
}

// NewInvalidParamsError creates a new invalid params error.
func NewInvalidParamsError(err error) *Error {
	return &Error{
		Code:    ErrInvalidParams,
		Message: fmt.Sprintf("Invalid params: %v", err),
	}
}

// NewInternalError creates a new internal error.
func NewInternalError(err error) *Error {
	return &Error{
		Code:    ErrInternalError,
		Message: fmt.Sprintf("Internal error: %v", err),
	}
}

// NewAuthenticationRequiredError creates a new authentication required error.
func NewAuthenticationRequiredError() *Error {
	return &Error{
		Code:    ErrAuthenticationRequired,
		Message: "Authentication required",
	}
}

var kindToCode = map[syncerr.Kind]ErrorCode{
	syncerr.NotFound:           ErrNotFound,
	syncerr.Conflict:           ErrConflict,
	syncerr.Unauthorized:       ErrUnauthorized,
	syncerr.FailedPrecondition: ErrFailedPrecondition,
	syncerr.Invalid:            ErrInvalid,
	syncerr.Transient:          ErrTransient,
	syncerr.Internal:           ErrInternalError,
}

// fromSyncErr maps err onto a JSON-RPC error response. Errors built with
// the taxonomy in internal/syncerr surface their own message; anything
// else collapses to a generic internal error so raw driver or database
// strings never reach a client.
func fromSyncErr(id any, err error) *Response {
	var serr *syncerr.Err
	if errors.As(err, &serr) {
		code, ok := kindToCode[serr.Kind]
		if !ok {
			code = ErrInternalError
		}
		return NewErrorResponse(id, code, serr.Message, nil)
	}
	return NewErrorResponse(id, ErrInternalError, "internal error", nil)
}

// IsParseError returns true if the error is a parse error.
func IsParseError(err error) bool {
	if rpcErr, ok := err.(*Error); ok {
		return rpcErr.Code == ErrParseError
	}
	return false
}

// IsMethodNotFoundError returns true if the error is a method not found error.
func IsMethodNotFoundError(err error) bool {
	if rpcErr, ok := err.(*Error); ok {
		return rpcErr.Code == ErrMethodNotFound
	}
	return false
}

// IsInvalidParamsError returns true if the error is an invalid params error.
func IsInvalidParamsError(err error) bool {
	if rpcErr, ok := err.(*Error); ok {
		return rpcErr.Code == ErrInvalidParams
	}
	return false
}

// IsAuthenticationRequiredError returns true if the error is an authentication required error.
func IsAuthenticationRequiredError(err error) bool {
	if rpcErr, ok := err.(*Error); ok {
		return rpcErr.Code == ErrAuthenticationRequired
	}
	return false
}
