// Package jsonrpc provides the JSON-RPC 2.0 transport of rpcserve: the wire
// codec, an HTTP endpoint integrated with the endpoint processor chain, and a
// client.
//
// This package implements the JSON-RPC 2.0 specification (https://www.jsonrpc.org/specification)
// and JSON-RPC over HTTP (https://www.simple-is-better.org/json-rpc/transport_http.html).
//
// # Basic Usage
//
//	reg := rpc.NewRegistry()
//	reg.RegisterService("math", &MathMethods{})
//	e := jsonrpc.NewEndpoint(rpc.NewDispatcher(reg))
//	http.Handle("/rpc", endpoint.Handler(e.Endpoint))
//
// # Batches and notifications
//
// A request without an id is a notification and gets no response. A batch
// answers with an array holding one entry per non-notification member, in
// request order; a batch of notifications only is answered with
// 204 No Content. Malformed members are answered with an Invalid Request
// fault whose id is null, and an empty batch with a single Invalid Request
// object.
//
// # Errors
//
// Parse failures, invalid envelopes, unknown methods, bad params and handler
// failures map to the reserved codes -32700 to -32603. Handlers surface their
// own codes by returning an *rpc.Error:
//
//	return 0, jsonrpc.NewError(rpc.CustomErrorBase+1, "quota exceeded")
//
// # Processor Integration
//
// Processors passed to endpoint.Handler run before decoding; their errors are
// HTTP errors, not JSON-RPC faults:
//
//	http.Handle("/rpc", endpoint.Handler(e.Endpoint, authProcessor))
package jsonrpc
