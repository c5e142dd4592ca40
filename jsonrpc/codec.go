package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mnehpets/rpcserve/rpc"
)

// Version is the protocol version tag carried by every message.
const Version = "2.0"

// Standard error codes.
const (
	CodeParseError     = rpc.CodeParseError
	CodeInvalidRequest = rpc.CodeInvalidRequest
	CodeMethodNotFound = rpc.CodeMethodNotFound
	CodeInvalidParams  = rpc.CodeInvalidParams
	CodeInternalError  = rpc.CodeInternalError
)

// Decode parses a request body into requests.
//
// A body starting with '[' is a batch: batch is true and each element yields
// one request, malformed elements included (their Err is set and their ID is
// nil). A body that is not valid JSON fails with a ParseError.
func Decode(body []byte) (reqs []*rpc.Request, batch bool, err *rpc.Error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, true, rpc.NewParseError("")
		}
		reqs = make([]*rpc.Request, len(raws))
		for i, raw := range raws {
			reqs[i] = decodeRequest(raw)
		}
		return reqs, true, nil
	}
	if !json.Valid(body) {
		return nil, false, rpc.NewParseError("")
	}
	return []*rpc.Request{decodeRequest(body)}, false, nil
}

func invalid(id any, detail string) *rpc.Request {
	return &rpc.Request{ID: id, Err: rpc.NewInvalidRequestError(detail)}
}

// decodeRequest validates one request object. The id is kept as raw JSON so
// it is echoed back byte for byte.
func decodeRequest(raw json.RawMessage) *rpc.Request {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return invalid(nil, "")
	}

	rawID, hasID := fields["id"]
	var id any
	if hasID {
		if !validID(rawID) {
			return invalid(nil, "id must be a string, a number or null")
		}
		id = rawID
	}

	var version string
	if err := json.Unmarshal(fields["jsonrpc"], &version); err != nil || version != Version {
		return invalid(id, `jsonrpc must be "2.0"`)
	}
	var method string
	if err := json.Unmarshal(fields["method"], &method); err != nil || method == "" {
		return invalid(id, "method must be a non-empty string")
	}
	params, err := decodeParams(fields["params"])
	if err != nil {
		return invalid(id, err.Error())
	}
	return &rpc.Request{ID: id, Notification: !hasID, Method: method, Params: params}
}

func validID(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch raw[0] {
	case '"', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	}
	return false
}

func decodeParams(raw json.RawMessage) (rpc.Params, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return rpc.Params{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	switch raw[0] {
	case '[':
		var values []any
		if err := dec.Decode(&values); err != nil {
			return rpc.Params{}, err
		}
		return rpc.PositionalParams(values...), nil
	case '{':
		var values map[string]any
		if err := dec.Decode(&values); err != nil {
			return rpc.Params{}, err
		}
		return rpc.NamedParams(values), nil
	}
	return rpc.Params{}, fmt.Errorf("params must be an array or an object")
}

// Error is the wire shape of a fault.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc: %d %s", e.Code, e.Message)
}

type resultResponse struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result"`
	ID      any    `json:"id"`
}

type errorResponse struct {
	JSONRPC string `json:"jsonrpc"`
	Error   *Error `json:"error"`
	ID      any    `json:"id"`
}

// EncodeResponse marshals resp. A result that cannot be marshalled is
// replaced by an internal error for the same id.
func EncodeResponse(resp *rpc.Response) json.RawMessage {
	if resp.Error == nil {
		b, err := json.Marshal(resultResponse{JSONRPC: Version, Result: resp.Result, ID: resp.ID})
		if err == nil {
			return b
		}
		resp = &rpc.Response{ID: resp.ID, Error: rpc.NewInternalError(err.Error())}
	}
	fault := rpc.Encode(resp.Error)
	b, err := json.Marshal(errorResponse{
		JSONRPC: Version,
		Error:   &Error{Code: fault.Code, Message: fault.Message, Data: fault.Data},
		ID:      resp.ID,
	})
	if err != nil {
		// Only Data can fail to marshal.
		b, _ = json.Marshal(errorResponse{
			JSONRPC: Version,
			Error:   &Error{Code: fault.Code, Message: fault.Message},
			ID:      resp.ID,
		})
	}
	return b
}

// EncodeBatch marshals batch responses as a JSON array.
func EncodeBatch(batch *rpc.BatchResponse) []byte {
	raws := make([]json.RawMessage, len(batch.Responses))
	for i, resp := range batch.Responses {
		raws[i] = EncodeResponse(resp)
	}
	b, _ := json.Marshal(raws)
	return b
}
