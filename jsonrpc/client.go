package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"golang.org/x/oauth2"
)

// Client calls a JSON-RPC 2.0 server over HTTP.
type Client struct {
	url    string
	http   *http.Client
	nextID atomic.Int64
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

type clientRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      *int64 `json:"id,omitempty"`
}

type clientResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
	ID     *int64          `json:"id"`
}

// Call invokes method and decodes its result into result, which may be nil.
// params is marshalled as is: a slice for positional parameters, a map or
// struct for named ones, nil for none. A fault is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	id := c.nextID.Add(1)
	body, err := c.post(ctx, clientRequest{JSONRPC: Version, Method: method, Params: params, ID: &id})
	if err != nil {
		return err
	}
	var resp clientResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("jsonrpc: decode response: %w", err)
	}
	return resp.decode(result)
}

// Notify sends a notification; the server sends nothing back.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	_, err := c.post(ctx, clientRequest{JSONRPC: Version, Method: method, Params: params})
	return err
}

// BatchCall is one member of a batch. After Batch returns, Err holds the
// member's fault, if any, and Result has been filled on success.
type BatchCall struct {
	Method       string
	Params       any
	Result       any
	Notification bool
	Err          error
}

// Batch sends calls as one batch request. The returned error reports
// transport failures only; per-call faults are set on each BatchCall.
func (c *Client) Batch(ctx context.Context, calls []*BatchCall) error {
	reqs := make([]clientRequest, len(calls))
	byID := make(map[int64]*BatchCall, len(calls))
	for i, call := range calls {
		reqs[i] = clientRequest{JSONRPC: Version, Method: call.Method, Params: call.Params}
		if !call.Notification {
			id := c.nextID.Add(1)
			reqs[i].ID = &id
			byID[id] = call
		}
	}
	body, err := c.post(ctx, reqs)
	if err != nil || len(byID) == 0 {
		return err
	}

	var resps []clientResponse
	if err := json.Unmarshal(body, &resps); err != nil {
		// A batch rejected as a whole is answered with a single fault.
		var single clientResponse
		if json.Unmarshal(body, &single) == nil && single.Error != nil {
			return single.Error
		}
		return fmt.Errorf("jsonrpc: decode batch response: %w", err)
	}
	for _, resp := range resps {
		if resp.ID == nil {
			continue
		}
		if call, ok := byID[*resp.ID]; ok {
			call.Err = resp.decode(call.Result)
			delete(byID, *resp.ID)
		}
	}
	for _, call := range byID {
		call.Err = errors.New("jsonrpc: no response for call")
	}
	return nil
}

func (r *clientResponse) decode(result any) error {
	if r.Error != nil {
		return r.Error
	}
	if result == nil || len(r.Result) == 0 {
		return nil
	}
	return json.Unmarshal(r.Result, result)
}

func (c *Client) post(ctx context.Context, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Accept", ContentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNoContent:
		return nil, nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return nil, fmt.Errorf("jsonrpc: http status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
}
