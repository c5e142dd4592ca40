package rpc

import "context"

// Protocol identifies the wire protocol a call arrived on.
type Protocol int

const (
	JSONRPC Protocol = iota + 1
	XMLRPC
)

func (p Protocol) String() string {
	switch p {
	case JSONRPC:
		return "jsonrpc"
	case XMLRPC:
		return "xmlrpc"
	}
	return "unknown"
}

type protocolKey struct{}

// WithProtocol returns a context carrying the protocol of the current call.
func WithProtocol(ctx context.Context, p Protocol) context.Context {
	return context.WithValue(ctx, protocolKey{}, p)
}

// ProtocolFromContext returns the protocol of the call being executed, or 0
// outside of a dispatch.
func ProtocolFromContext(ctx context.Context) Protocol {
	p, _ := ctx.Value(protocolKey{}).(Protocol)
	return p
}

// ParamsKind tells how a request carried its parameters.
type ParamsKind int

const (
	ParamsNone ParamsKind = iota
	ParamsPositional
	ParamsNamed
)

// Params holds a request's decoded parameters. Values are untyped: numbers,
// strings, booleans, nil, []any and map[string]any as produced by the wire
// decoder, plus protocol specific scalars (json.Number, time.Time, []byte).
type Params struct {
	Kind       ParamsKind
	Positional []any
	Named      map[string]any
}

// PositionalParams returns positional parameters.
func PositionalParams(values ...any) Params {
	if values == nil {
		values = []any{}
	}
	return Params{Kind: ParamsPositional, Positional: values}
}

// NamedParams returns keyword parameters.
func NamedParams(values map[string]any) Params {
	if values == nil {
		values = map[string]any{}
	}
	return Params{Kind: ParamsNamed, Named: values}
}

// Request is one decoded call.
//
// ID is opaque and echoed back unchanged. A Notification expects no response.
// When the wire decoder finds the envelope malformed it sets Err; the call is
// then answered with that fault and never executed.
type Request struct {
	ID           any
	Notification bool
	Method       string
	Params       Params
	Err          *Error
}

// Response is the outcome of one non-notification call. Exactly one of
// Result and Error is meaningful; Error is non-nil for a fault.
type Response struct {
	ID     any
	Result any
	Error  *Error
}

// BatchResponse holds the responses of a batch in request order.
type BatchResponse struct {
	Responses []*Response
}
