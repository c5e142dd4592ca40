// Package xmlrpc provides the XML-RPC transport of rpcserve: a value codec,
// an HTTP endpoint with system.multicall support, and a client.
//
// XML-RPC has no notifications and no keyword parameters. Every call is
// answered with HTTP 200 and either a params or a fault methodResponse; the
// fault codes are the ones JSON-RPC uses.
//
//	e := xmlrpc.NewEndpoint(rpc.NewDispatcher(reg))
//	http.Handle("/xmlrpc", endpoint.Handler(e.Endpoint))
package xmlrpc

import (
	"context"
	"mime"
	"net/http"

	"github.com/mnehpets/rpcserve/endpoint"
	"github.com/mnehpets/rpcserve/rpc"
)

// ContentType is the media type of responses.
const ContentType = "text/xml; charset=utf-8"

// XMLRPCEndpoint serves XML-RPC over a dispatcher.
type XMLRPCEndpoint struct {
	dispatcher *rpc.Dispatcher
}

// NewEndpoint returns an endpoint dispatching to d.
func NewEndpoint(d *rpc.Dispatcher) *XMLRPCEndpoint {
	return &XMLRPCEndpoint{dispatcher: d}
}

type rpcParams struct {
	ContentType string `header:"Content-Type"`
	Body        []byte `body:"" maxLength:"0"`
}

// Endpoint is the endpoint function. Pass it to endpoint.Handler.
func (e *XMLRPCEndpoint) Endpoint(w http.ResponseWriter, r *http.Request, params rpcParams) (endpoint.Renderer, error) {
	if r.Method != http.MethodPost {
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "XML-RPC requires POST method", nil)
	}
	if ct := params.ContentType; ct != "" && !IsContentType(ct) {
		return nil, endpoint.Error(http.StatusUnsupportedMediaType, "Content-Type must be text/xml", nil)
	}
	return &endpoint.BytesRenderer{ContentType: ContentType, Body: e.Handle(r.Context(), params.Body)}, nil
}

// IsContentType reports whether ct names an XML media type.
func IsContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && (mt == "text/xml" || mt == "application/xml")
}

// Handle runs a raw methodCall and returns the encoded methodResponse.
func (e *XMLRPCEndpoint) Handle(ctx context.Context, body []byte) []byte {
	call, err := DecodeCall(body)
	if err != nil {
		return EncodeFault(err)
	}
	if call.Method == rpc.MulticallMethod {
		return e.multicall(ctx, call.Params)
	}
	resp := e.dispatcher.Dispatch(ctx, rpc.XMLRPC, &rpc.Request{
		Method: call.Method,
		Params: rpc.PositionalParams(call.Params...),
	})
	return EncodeResponse(resp)
}
