package xmlrpc

import (
	"bytes"
	"context"

	"github.com/mnehpets/rpcserve/rpc"
)

// multicallRequests turns the single array argument of system.multicall into
// one request per element. Malformed elements become requests carrying an
// invalid request fault, so they are answered inline.
func multicallRequests(params []any) ([]*rpc.Request, *rpc.Error) {
	if len(params) != 1 {
		return nil, rpc.NewInvalidParamsError("system.multicall expects 1 argument, an array of calls")
	}
	calls, ok := params[0].([]any)
	if !ok {
		return nil, rpc.NewInvalidParamsError("system.multicall expects an array of calls")
	}
	reqs := make([]*rpc.Request, len(calls))
	for i, c := range calls {
		reqs[i] = multicallRequest(c)
	}
	return reqs, nil
}

func multicallRequest(c any) *rpc.Request {
	call, ok := c.(map[string]any)
	if !ok {
		return &rpc.Request{Err: rpc.NewInvalidRequestError("call must be a struct")}
	}
	method, _ := call["methodName"].(string)
	if method == "" {
		return &rpc.Request{Err: rpc.NewInvalidRequestError("methodName must be a non-empty string")}
	}
	if method == rpc.MulticallMethod {
		return &rpc.Request{Err: rpc.NewInvalidRequestError("recursive system.multicall forbidden")}
	}
	var params []any
	switch p := call["params"].(type) {
	case nil:
	case []any:
		params = p
	default:
		return &rpc.Request{Err: rpc.NewInvalidRequestError("params must be an array")}
	}
	return &rpc.Request{Method: method, Params: rpc.PositionalParams(params...)}
}

// encodeMulticall writes the result array: each success wrapped in a one
// element array, each fault as a {faultCode, faultString} struct.
func encodeMulticall(batch *rpc.BatchResponse) []byte {
	var buf bytes.Buffer
	buf.WriteString(header)
	buf.WriteString("<methodResponse><params><param><value><array><data>")
	for _, resp := range batch.Responses {
		var member bytes.Buffer
		if resp.Error == nil && encodeValue(&member, []any{resp.Result}) == nil {
			buf.Write(member.Bytes())
			continue
		}
		fault := resp.Error
		if fault == nil {
			fault = rpc.NewInternalError("result cannot be encoded")
		}
		_ = encodeValue(&buf, faultStruct(fault))
	}
	buf.WriteString("</data></array></value></param></params></methodResponse>")
	return buf.Bytes()
}

// multicall runs the calls of one system.multicall concurrently and returns
// the encoded response.
func (e *XMLRPCEndpoint) multicall(ctx context.Context, params []any) []byte {
	reqs, err := multicallRequests(params)
	if err != nil {
		return EncodeFault(err)
	}
	batch := e.dispatcher.DispatchBatch(ctx, rpc.XMLRPC, reqs)
	if batch == nil {
		batch = &rpc.BatchResponse{}
	}
	return encodeMulticall(batch)
}
