package xmlrpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-viper/mapstructure/v2"
	"golang.org/x/oauth2"

	"github.com/mnehpets/rpcserve/rpc"
)

// Client calls an XML-RPC server over HTTP.
type Client struct {
	url  string
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTokenSource authenticates requests with bearer tokens from ts.
func WithTokenSource(ctx context.Context, ts oauth2.TokenSource) ClientOption {
	return func(c *Client) {
		c.http = oauth2.NewClient(ctx, ts)
	}
}

// NewClient returns a client posting to url.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{url: url, http: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call invokes method with positional params and decodes its result into
// result, which may be nil. Struct results are matched by json field name.
// A fault is returned as *Fault.
func (c *Client) Call(ctx context.Context, method string, result any, params ...any) error {
	v, err := c.call(ctx, method, params...)
	if err != nil {
		return err
	}
	return assign(v, result)
}

// MulticallCall is one member of a multicall. After Multicall returns, Err
// holds the member's fault, if any, and Result has been filled on success.
type MulticallCall struct {
	Method string
	Params []any
	Result any
	Err    error
}

// Multicall sends calls in one system.multicall request. The returned error
// reports transport failures and faults of the multicall itself; per-call
// faults are set on each MulticallCall.
func (c *Client) Multicall(ctx context.Context, calls []*MulticallCall) error {
	members := make([]any, len(calls))
	for i, call := range calls {
		params := call.Params
		if params == nil {
			params = []any{}
		}
		members[i] = map[string]any{"methodName": call.Method, "params": params}
	}
	v, err := c.call(ctx, rpc.MulticallMethod, members)
	if err != nil {
		return err
	}
	results, ok := v.([]any)
	if !ok || len(results) != len(calls) {
		return fmt.Errorf("xmlrpc: multicall returned %T, want %d results", v, len(calls))
	}
	for i, r := range results {
		switch r := r.(type) {
		case []any:
			if len(r) != 1 {
				calls[i].Err = fmt.Errorf("xmlrpc: multicall result has %d values, want 1", len(r))
				continue
			}
			calls[i].Err = assign(r[0], calls[i].Result)
		case map[string]any:
			calls[i].Err = faultFrom(r)
		default:
			calls[i].Err = fmt.Errorf("xmlrpc: unexpected multicall result %T", r)
		}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, params ...any) (any, error) {
	b, err := EncodeCall(method, params...)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ContentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("xmlrpc: http status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return DecodeResponse(body)
}

func assign(v, result any) error {
	if result == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  result,
	})
	if err != nil {
		return err
	}
	return dec.Decode(v)
}
