package message

import "fmt"

// Standard JSON-RPC 2.0 error codes. These values are part of the wire contract.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Server error codes, taken from the range reserved for implementations.
const (
	CodeServerError = -32000 // uncaught failure inside a method
	CodeTimeout     = -32001
	CodeRateLimited = -32002
)

// Kind is the closed set of error kinds a caller can observe. Every code maps
// to exactly one kind; codes outside the four named ones are server errors.
type Kind int

const (
	KindServer Kind = iota
	KindParse
	KindInvalidRequest
	KindMethodNotFound
	KindInvalidParams
)

var kindNames = map[Kind]string{
	KindServer:         "server error",
	KindParse:          "parse error",
	KindInvalidRequest: "invalid request",
	KindMethodNotFound: "method not found",
	KindInvalidParams:  "invalid params",
}

func (k Kind) String() string {
	return kindNames[k]
}

// KindOf maps a code to its kind.
func KindOf(code int) Kind {
	switch code {
	case CodeParseError:
		return KindParse
	case CodeInvalidRequest:
		return KindInvalidRequest
	case CodeMethodNotFound:
		return KindMethodNotFound
	case CodeInvalidParams:
		return KindInvalidParams
	default:
		return KindServer
	}
}

// Error is the error member of a response. It doubles as a Go error so that
// methods can return one to pick the code, and the client can hand it back.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Kind sentinels for errors.Is. Only the kind is compared, not the code or message.
var (
	ErrParse          = &Error{Code: CodeParseError, Message: "Parse error"}
	ErrInvalidRequest = &Error{Code: CodeInvalidRequest, Message: "Invalid Request"}
	ErrMethodNotFound = &Error{Code: CodeMethodNotFound, Message: "Method not found"}
	ErrInvalidParams  = &Error{Code: CodeInvalidParams, Message: "Invalid params"}
	ErrServer         = &Error{Code: CodeServerError, Message: "Server error"}
)

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc: %s (code: %d)", e.Message, e.Code)
}

// Kind returns the taxonomy entry for the error code.
func (e *Error) Kind() Kind {
	return KindOf(e.Code)
}

// Is implements errors.Is comparison by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind() == t.Kind()
}

// WithData returns a copy of the error with additional data attached.
func (e *Error) WithData(data any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Data:    data,
	}
}

// NewParseError creates a parse error (-32700).
func NewParseError(msg string) *Error {
	return &Error{Code: CodeParseError, Message: msg}
}

// NewInvalidRequest creates an invalid request error (-32600).
func NewInvalidRequest(msg string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: msg}
}

// NewMethodNotFound creates a method not found error (-32601).
func NewMethodNotFound(msg string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: msg}
}

// NewInvalidParams creates an invalid params error (-32602).
func NewInvalidParams(msg string) *Error {
	return &Error{Code: CodeInvalidParams, Message: msg}
}

// NewServerError creates a generic server error (-32000).
func NewServerError(msg string) *Error {
	return &Error{Code: CodeServerError, Message: msg}
}
