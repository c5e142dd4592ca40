package rpc

import (
	"errors"
	"fmt"
)

// Reserved fault codes. Both protocols share the same code space.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application-defined fault codes should be picked from
// [CustomErrorBase, CustomErrorMax] so they never collide with the reserved codes.
const (
	CustomErrorBase = -32099
	CustomErrorMax  = -32000
)

// Kind classifies an Error.
type Kind int

const (
	KindParseError Kind = iota + 1
	KindInvalidRequest
	KindMethodNotFound
	KindInvalidParams
	KindInternalError
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindParseError:
		return "ParseError"
	case KindInvalidRequest:
		return "InvalidRequest"
	case KindMethodNotFound:
		return "MethodNotFound"
	case KindInvalidParams:
		return "InvalidParams"
	case KindInternalError:
		return "InternalError"
	case KindCustom:
		return "CustomError"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the engine's error record. It is created where a call fails and
// turned into exactly one fault by Encode.
//
// Handlers return an *Error to surface their own fault code; any other error
// returned by a handler is reported as an internal error.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Data    any
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is an *Error of the same kind and code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func withDetail(prefix, detail string) string {
	if detail == "" {
		return prefix
	}
	return prefix + ": " + detail
}

func NewParseError(detail string) *Error {
	return &Error{Kind: KindParseError, Code: CodeParseError, Message: withDetail("Parse error", detail)}
}

func NewInvalidRequestError(detail string) *Error {
	return &Error{Kind: KindInvalidRequest, Code: CodeInvalidRequest, Message: withDetail("Invalid request", detail)}
}

func NewMethodNotFoundError(method string) *Error {
	return &Error{Kind: KindMethodNotFound, Code: CodeMethodNotFound, Message: withDetail("Method not found", method)}
}

func NewInvalidParamsError(detail string) *Error {
	return &Error{Kind: KindInvalidParams, Code: CodeInvalidParams, Message: withDetail("Invalid params", detail)}
}

func NewInternalError(detail string) *Error {
	return &Error{Kind: KindInternalError, Code: CodeInternalError, Message: withDetail("Internal error", detail)}
}

// NewCustomError returns an application fault. The code and message are sent
// to the caller unmodified.
func NewCustomError(code int, message string) *Error {
	return &Error{Kind: KindCustom, Code: code, Message: message}
}

// NewError returns an error for code. Reserved codes map to their kind, any
// other code is an application fault.
func NewError(code int, message string) *Error {
	return &Error{Kind: kindOf(code), Code: code, Message: message}
}

func kindOf(code int) Kind {
	switch code {
	case CodeParseError:
		return KindParseError
	case CodeInvalidRequest:
		return KindInvalidRequest
	case CodeMethodNotFound:
		return KindMethodNotFound
	case CodeInvalidParams:
		return KindInvalidParams
	case CodeInternalError:
		return KindInternalError
	}
	return KindCustom
}

// AsError converts err into an *Error. An *Error anywhere in the chain is
// returned as is; anything else becomes an internal error carrying
// err's message.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) && rpcErr != nil {
		return rpcErr
	}
	return NewInternalError(err.Error())
}

// Fault is the protocol-neutral shape of a failed call.
type Fault struct {
	Code    int
	Message string
	Data    any
}

// Encode maps an error record to its fault. Reserved kinds always use their
// reserved code; custom errors keep the code the handler supplied. An Error
// without a Kind is classified by its code.
func Encode(e *Error) Fault {
	if e == nil {
		return Fault{Code: CodeInternalError, Message: "Internal error"}
	}
	code, kind := e.Code, e.Kind
	if kind == 0 {
		kind = kindOf(code)
	}
	switch kind {
	case KindParseError:
		code = CodeParseError
	case KindInvalidRequest:
		code = CodeInvalidRequest
	case KindMethodNotFound:
		code = CodeMethodNotFound
	case KindInvalidParams:
		code = CodeInvalidParams
	case KindInternalError:
		code = CodeInternalError
	case KindCustom:
	default:
		code = CodeInternalError
	}
	return Fault{Code: code, Message: e.Message, Data: e.Data}
}
