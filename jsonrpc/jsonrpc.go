package jsonrpc

import (
	"context"
	"mime"
	"net/http"

	"github.com/mnehpets/rpcserve/endpoint"
	"github.com/mnehpets/rpcserve/rpc"
)

// ContentType is the media type of requests and responses.
const ContentType = "application/json"

// JSONRPCEndpoint serves JSON-RPC 2.0 over a dispatcher.
// Use endpoint.Handler(e.Endpoint, processors...) to create an http.Handler.
type JSONRPCEndpoint struct {
	dispatcher *rpc.Dispatcher
}

// NewEndpoint returns an endpoint dispatching to d.
func NewEndpoint(d *rpc.Dispatcher) *JSONRPCEndpoint {
	return &JSONRPCEndpoint{dispatcher: d}
}

// rpcParams captures the raw request body. Parsing is deferred to Handle
// since parse failures are answered with a JSON-RPC fault, not an HTTP error.
// The size limit is left to the server.
type rpcParams struct {
	ContentType string `header:"Content-Type"`
	Body        []byte `body:"" maxLength:"0"`
}

// Endpoint is the endpoint function. Pass it to endpoint.Handler.
func (e *JSONRPCEndpoint) Endpoint(w http.ResponseWriter, r *http.Request, params rpcParams) (endpoint.Renderer, error) {
	if r.Method != http.MethodPost {
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "JSON-RPC requires POST method", nil)
	}
	if ct := params.ContentType; ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != ContentType {
			return nil, endpoint.Error(http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		}
	}

	out := e.Handle(r.Context(), params.Body)
	if out == nil {
		return &endpoint.NoContentRenderer{}, nil
	}
	return &endpoint.BytesRenderer{ContentType: ContentType, Body: out}, nil
}

// Handle runs a raw JSON-RPC payload and returns the encoded reply, or nil
// when nothing must be sent back: a notification, or a batch made only of
// notifications. Transports other than HTTP call it directly.
func (e *JSONRPCEndpoint) Handle(ctx context.Context, body []byte) []byte {
	reqs, batch, perr := Decode(body)
	if perr != nil {
		return EncodeResponse(&rpc.Response{Error: perr})
	}

	if !batch {
		resp := e.dispatcher.Dispatch(ctx, rpc.JSONRPC, reqs[0])
		if resp == nil {
			return nil
		}
		return EncodeResponse(resp)
	}

	// An empty batch is a single invalid request, not an empty array.
	if len(reqs) == 0 {
		return EncodeResponse(&rpc.Response{Error: rpc.NewInvalidRequestError("empty batch")})
	}
	responses := e.dispatcher.DispatchBatch(ctx, rpc.JSONRPC, reqs)
	if responses == nil {
		return nil
	}
	return EncodeBatch(responses)
}

// NewError returns an application fault for handlers to return.
func NewError(code int, message string) *rpc.Error {
	return rpc.NewError(code, message)
}
