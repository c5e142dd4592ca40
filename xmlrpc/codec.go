package xmlrpc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mnehpets/rpcserve/rpc"
)

const header = `<?xml version="1.0"?>` + "\n"

// Call is a decoded methodCall.
type Call struct {
	Method string
	Params []any
}

type param struct {
	Value value `xml:"value"`
}

type methodCall struct {
	XMLName    xml.Name `xml:"methodCall"`
	MethodName string   `xml:"methodName"`
	Params     []param  `xml:"params>param"`
}

// DecodeCall parses a methodCall document. Malformed XML and values that do
// not match their declared type are parse errors; a well formed document
// that is not a methodCall is an invalid request.
func DecodeCall(body []byte) (*Call, *rpc.Error) {
	var mc methodCall
	if err := xml.Unmarshal(body, &mc); err != nil {
		var syntaxErr *xml.SyntaxError
		var valErr *valueError
		switch {
		case errors.As(err, &syntaxErr), errors.As(err, &valErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil, rpc.NewParseError("")
		}
		return nil, rpc.NewInvalidRequestError(err.Error())
	}
	method := strings.TrimSpace(mc.MethodName)
	if method == "" {
		return nil, rpc.NewInvalidRequestError("missing methodName")
	}
	params := make([]any, len(mc.Params))
	for i, p := range mc.Params {
		params[i] = p.Value.v
	}
	return &Call{Method: method, Params: params}, nil
}

// EncodeCall writes a methodCall document.
func EncodeCall(method string, params ...any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)
	buf.WriteString("<methodCall><methodName>")
	if err := xml.EscapeText(&buf, []byte(method)); err != nil {
		return nil, err
	}
	buf.WriteString("</methodName><params>")
	for _, p := range params {
		buf.WriteString("<param>")
		if err := encodeValue(&buf, p); err != nil {
			return nil, err
		}
		buf.WriteString("</param>")
	}
	buf.WriteString("</params></methodCall>")
	return buf.Bytes(), nil
}

// EncodeResponse writes the methodResponse for resp. A result that cannot be
// represented in XML-RPC is answered with an internal error fault.
func EncodeResponse(resp *rpc.Response) []byte {
	if resp.Error != nil {
		return EncodeFault(resp.Error)
	}
	var buf bytes.Buffer
	buf.WriteString(header)
	buf.WriteString("<methodResponse><params><param>")
	if err := encodeValue(&buf, resp.Result); err != nil {
		return EncodeFault(rpc.NewInternalError(err.Error()))
	}
	buf.WriteString("</param></params></methodResponse>")
	return buf.Bytes()
}

// EncodeFault writes a fault methodResponse for e.
func EncodeFault(e *rpc.Error) []byte {
	var buf bytes.Buffer
	buf.WriteString(header)
	buf.WriteString("<methodResponse><fault>")
	// faultStruct only holds an int and a string.
	_ = encodeValue(&buf, faultStruct(e))
	buf.WriteString("</fault></methodResponse>")
	return buf.Bytes()
}

func faultStruct(e *rpc.Error) map[string]any {
	f := rpc.Encode(e)
	return map[string]any{"faultCode": f.Code, "faultString": f.Message}
}

// Fault is a fault returned by a server.
type Fault struct {
	Code   int
	String string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("xmlrpc: fault %d %s", f.Code, f.String)
}

type methodResponse struct {
	XMLName xml.Name `xml:"methodResponse"`
	Params  []param  `xml:"params>param"`
	Fault   *value   `xml:"fault>value"`
}

// DecodeResponse parses a methodResponse document. A fault is returned as a
// *Fault error.
func DecodeResponse(body []byte) (any, error) {
	var mr methodResponse
	if err := xml.Unmarshal(body, &mr); err != nil {
		return nil, fmt.Errorf("xmlrpc: decoding response: %w", err)
	}
	if mr.Fault != nil {
		return nil, faultFrom(mr.Fault.v)
	}
	if len(mr.Params) != 1 {
		return nil, fmt.Errorf("xmlrpc: response has %d params, want 1", len(mr.Params))
	}
	return mr.Params[0].Value.v, nil
}

// faultFrom reads a {faultCode, faultString} struct.
func faultFrom(v any) *Fault {
	m, _ := v.(map[string]any)
	f := &Fault{}
	f.Code, _ = m["faultCode"].(int)
	f.String, _ = m["faultString"].(string)
	return f
}
