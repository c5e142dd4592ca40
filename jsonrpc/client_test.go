package jsonrpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"

	"github.com/mnehpets/rpcserve/endpoint"
	"github.com/mnehpets/rpcserve/rpc"
)

func newTestServer(t *testing.T, processors ...endpoint.Processor) *httptest.Server {
	t.Helper()
	e := newEndpoint(t, map[string]any{"test": &testMethods{}})
	srv := httptest.NewServer(serveRPC(e, processors...))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientCall(t *testing.T) {
	c := NewClient(newTestServer(t).URL)

	var sum int
	if err := c.Call(context.Background(), "add", []any{2, 3}, &sum); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if sum != 5 {
		t.Errorf("got %d, want 5", sum)
	}

	if err := c.Call(context.Background(), "add", map[string]int{"a": 4, "b": 6}, &sum); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if sum != 10 {
		t.Errorf("got %d, want 10", sum)
	}
}

func TestClientFault(t *testing.T) {
	c := NewClient(newTestServer(t).URL)

	err := c.Call(context.Background(), "test.Fail", nil, nil)
	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("got error %v, want *Error", err)
	}
	if rpcErr.Code != -1000 || rpcErr.Message != "custom error" {
		t.Errorf("got %+v, want code -1000", rpcErr)
	}
}

func TestClientNotify(t *testing.T) {
	c := NewClient(newTestServer(t).URL)
	if err := c.Notify(context.Background(), "add", []any{1, 2}); err != nil {
		t.Errorf("Notify: %v", err)
	}
}

func TestClientBatch(t *testing.T) {
	c := NewClient(newTestServer(t).URL)

	var a, b int
	calls := []*BatchCall{
		{Method: "add", Params: []any{5, 10}, Result: &a},
		{Method: "divide", Params: []any{75, 0}},
		{Method: "add", Params: []any{1, 1}, Notification: true},
		{Method: "add", Params: []any{8, 8}, Result: &b},
	}
	if err := c.Batch(context.Background(), calls); err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if a != 15 || b != 16 {
		t.Errorf("got (%d, %d), want (15, 16)", a, b)
	}
	var rpcErr *Error
	if !errors.As(calls[1].Err, &rpcErr) || rpcErr.Code != rpc.CodeInternalError {
		t.Errorf("got error %v, want internal error", calls[1].Err)
	}
	if calls[0].Err != nil || calls[2].Err != nil || calls[3].Err != nil {
		t.Errorf("unexpected errors: %v, %v, %v", calls[0].Err, calls[2].Err, calls[3].Err)
	}
}

func TestClientBatchAllNotifications(t *testing.T) {
	c := NewClient(newTestServer(t).URL)
	calls := []*BatchCall{
		{Method: "add", Params: []any{1, 1}, Notification: true},
		{Method: "add", Params: []any{2, 2}, Notification: true},
	}
	if err := c.Batch(context.Background(), calls); err != nil {
		t.Errorf("Batch: %v", err)
	}
}

func TestClientTokenSource(t *testing.T) {
	var gotAuth string
	auth := endpoint.ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
		gotAuth = r.Header.Get("Authorization")
		if gotAuth != "Bearer secret-token" {
			return endpoint.Error(http.StatusUnauthorized, "", nil)
		}
		return next(w, r)
	})
	srv := newTestServer(t, auth)

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "secret-token"})
	c := NewClient(srv.URL, WithTokenSource(context.Background(), ts))
	var sum int
	if err := c.Call(context.Background(), "add", []any{1, 2}, &sum); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if sum != 3 {
		t.Errorf("got %d, want 3", sum)
	}

	unauthenticated := NewClient(srv.URL)
	if err := unauthenticated.Call(context.Background(), "add", []any{1, 2}, &sum); err == nil {
		t.Error("got nil error without token, want HTTP 401")
	}
}
