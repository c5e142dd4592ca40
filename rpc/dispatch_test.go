package rpc

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestDispatcher(t *testing.T, opts ...DispatcherOption) *Dispatcher {
	t.Helper()
	reg := NewRegistry()
	reg.MustRegister("add", func(a, b int) int { return a + b }, ParamNames("a", "b"))
	reg.MustRegister("divide", func(numerator, denominator int) int { return numerator / denominator },
		ParamNames("numerator", "denominator"))
	reg.MustRegister("method_with_kwargs_2", func(ctx context.Context, x int, kw Kwargs) []any {
		return []any{x, ProtocolFromContext(ctx).String()}
	}, ParamNames("x"))
	reg.MustRegister("raise_custom_exception", func() error {
		return NewCustomError(CustomErrorBase+5, "This is a test error")
	})
	reg.MustRegister("xml_only", func() string { return "xml" }, Protocols(XMLRPC))
	if err := RegisterSystemMethods(reg); err != nil {
		t.Fatalf("RegisterSystemMethods: %v", err)
	}
	return NewDispatcher(reg, opts...)
}

func call(id any, method string, params Params) *Request {
	return &Request{ID: id, Method: method, Params: params}
}

func notify(method string, params Params) *Request {
	return &Request{Notification: true, Method: method, Params: params}
}

func TestDispatch(t *testing.T) {
	d := newTestDispatcher(t)
	tests := []struct {
		name     string
		protocol Protocol
		req      *Request
		want     any
		wantCode int
	}{
		{"positional", JSONRPC, call(1, "add", PositionalParams(5, 10)), 15, 0},
		{"named", JSONRPC, call(1, "add", NamedParams(map[string]any{"a": 5, "b": 10})), 15, 0},
		{"unknown method", JSONRPC, call(1, "nope", Params{}), nil, CodeMethodNotFound},
		{"invalid params", JSONRPC, call(1, "add", PositionalParams(1)), nil, CodeInvalidParams},
		{"divide by zero", JSONRPC, call(1, "divide", PositionalParams(75, 0)), nil, CodeInternalError},
		{"custom error", XMLRPC, call(nil, "raise_custom_exception", Params{}), nil, CustomErrorBase + 5},
		{"malformed envelope", JSONRPC, &Request{Err: NewInvalidRequestError("")}, nil, CodeInvalidRequest},
		{"protocol restricted", JSONRPC, call(1, "xml_only", Params{}), nil, CodeMethodNotFound},
		{"protocol allowed", XMLRPC, call(nil, "xml_only", Params{}), "xml", 0},
		{"multicall on json", JSONRPC, call(1, MulticallMethod, PositionalParams([]any{})), nil, CodeMethodNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := d.Dispatch(context.Background(), tt.protocol, tt.req)
			if resp == nil {
				t.Fatal("got nil response")
			}
			if resp.ID != tt.req.ID {
				t.Errorf("got id %v, want %v", resp.ID, tt.req.ID)
			}
			if tt.wantCode != 0 {
				if resp.Error == nil {
					t.Fatalf("got result %v, want fault %d", resp.Result, tt.wantCode)
				}
				if got := Encode(resp.Error).Code; got != tt.wantCode {
					t.Errorf("got code %d, want %d", got, tt.wantCode)
				}
				return
			}
			if resp.Error != nil {
				t.Fatalf("got fault %v", resp.Error)
			}
			if resp.Result != tt.want {
				t.Errorf("got result %v, want %v", resp.Result, tt.want)
			}
		})
	}
}

func TestDispatchProtocolVisibleToHandler(t *testing.T) {
	d := newTestDispatcher(t)
	for _, protocol := range []Protocol{JSONRPC, XMLRPC} {
		resp := d.Dispatch(context.Background(), protocol, call(1, "method_with_kwargs_2", PositionalParams(6)))
		res, ok := resp.Result.([]any)
		if !ok || res[0] != 6 || res[1] != protocol.String() {
			t.Errorf("got %v, want [6 %s]", resp.Result, protocol)
		}
	}
}

func TestDispatchNotification(t *testing.T) {
	d := newTestDispatcher(t)
	for _, req := range []*Request{
		notify("add", PositionalParams(1, 2)),
		notify("divide", PositionalParams(1, 0)),
		notify("nope", Params{}),
	} {
		if resp := d.Dispatch(context.Background(), JSONRPC, req); resp != nil {
			t.Errorf("%s: got response %+v, want nil", req.Method, resp)
		}
	}
}

func results(t *testing.T, batch *BatchResponse) []any {
	t.Helper()
	if batch == nil {
		t.Fatal("got nil batch response")
	}
	var out []any
	for _, resp := range batch.Responses {
		if resp.Error != nil {
			out = append(out, Encode(resp.Error).Code)
			continue
		}
		out = append(out, resp.Result)
	}
	return out
}

func equal(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDispatchBatch(t *testing.T) {
	d := newTestDispatcher(t)
	tests := []struct {
		name string
		reqs []*Request
		want []any
	}{
		{
			"ordered results",
			[]*Request{
				call(1, "add", PositionalParams(5, 10)),
				call(2, "divide", PositionalParams(30, 5)),
				call(3, "add", PositionalParams(8, 8)),
				call(4, "divide", PositionalParams(6, 2)),
			},
			[]any{15, 6, 16, 3},
		},
		{
			"unknown method isolated",
			[]*Request{
				call(1, "add", PositionalParams(7, 3)),
				call(2, "unknown_method", Params{}),
				call(3, "add", PositionalParams(8, 8)),
			},
			[]any{10, CodeMethodNotFound, 16},
		},
		{
			"divide by zero isolated",
			[]*Request{
				call(1, "add", PositionalParams(7, 3)),
				call(2, "divide", PositionalParams(75, 0)),
				call(3, "add", PositionalParams(8, 8)),
			},
			[]any{10, CodeInternalError, 16},
		},
		{
			"notifications elided",
			[]*Request{
				notify("add", PositionalParams(1, 1)),
				call(1, "add", PositionalParams(2, 2)),
				notify("divide", PositionalParams(1, 0)),
				call(2, "add", PositionalParams(3, 3)),
			},
			[]any{4, 6},
		},
		{
			"malformed members",
			[]*Request{
				{Err: NewInvalidRequestError("")},
				{Err: NewInvalidRequestError("")},
				{Err: NewInvalidRequestError("")},
			},
			[]any{CodeInvalidRequest, CodeInvalidRequest, CodeInvalidRequest},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := results(t, d.DispatchBatch(context.Background(), JSONRPC, tt.reqs))
			if !equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDispatchBatchMessages(t *testing.T) {
	d := newTestDispatcher(t)
	batch := d.DispatchBatch(context.Background(), JSONRPC, []*Request{
		call(1, "add", PositionalParams(7, 3)),
		call(2, "divide", PositionalParams(75, 0)),
		call(3, "raise_custom_exception", Params{}),
	})
	if len(batch.Responses) != 3 {
		t.Fatalf("got %d responses, want 3", len(batch.Responses))
	}
	for i, resp := range batch.Responses {
		if resp.ID != i+1 {
			t.Errorf("response %d: got id %v, want %d", i, resp.ID, i+1)
		}
	}
	if msg := batch.Responses[1].Error.Message; !strings.Contains(msg, "by zero") {
		t.Errorf("got message %q, want it to contain %q", msg, "by zero")
	}
	custom := batch.Responses[2].Error
	if !errors.Is(custom, NewCustomError(CustomErrorBase+5, "")) || custom.Message != "This is a test error" {
		t.Errorf("got %+v, want custom error %d", custom, CustomErrorBase+5)
	}
}

func TestDispatchBatchAllNotifications(t *testing.T) {
	d := newTestDispatcher(t)
	batch := d.DispatchBatch(context.Background(), JSONRPC, []*Request{
		notify("add", PositionalParams(1, 1)),
		notify("nope", Params{}),
	})
	if batch != nil {
		t.Errorf("got %+v, want nil", batch)
	}
}

func TestDispatchBatchEmpty(t *testing.T) {
	d := newTestDispatcher(t)
	batch := d.DispatchBatch(context.Background(), XMLRPC, nil)
	if batch == nil || len(batch.Responses) != 0 {
		t.Errorf("got %+v, want empty batch", batch)
	}
}

func TestDispatchBatchOrderUnderConcurrency(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("sleep", func(ms int) int {
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return ms
	})
	var inflight, peak atomic.Int32
	reg.MustRegister("track", func() int {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inflight.Add(-1)
		return 0
	})
	d := NewDispatcher(reg, WithConcurrency(2))

	var reqs []*Request
	var want []any
	for i, ms := range []int{30, 1, 20, 2, 10} {
		reqs = append(reqs, call(i, "sleep", PositionalParams(ms)))
		want = append(want, ms)
	}
	if got := results(t, d.DispatchBatch(context.Background(), JSONRPC, reqs)); !equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	reqs = nil
	for i := 0; i < 8; i++ {
		reqs = append(reqs, call(i, "track", Params{}))
	}
	d.DispatchBatch(context.Background(), JSONRPC, reqs)
	if peak.Load() > 2 {
		t.Errorf("got %d concurrent calls, want at most 2", peak.Load())
	}
}

func TestDispatchSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	d := newTestDispatcher(t, WithTracerProvider(tp))

	d.Dispatch(context.Background(), JSONRPC, call(1, "add", PositionalParams(1, 2)))
	d.Dispatch(context.Background(), JSONRPC, call(2, "nope", Params{}))

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Name() != "add" {
		t.Errorf("got span name %q, want %q", spans[0].Name(), "add")
	}
	if spans[1].Status().Description != "Method not found: nope" {
		t.Errorf("got status %q", spans[1].Status().Description)
	}
}

func TestRegisterSystemMethods(t *testing.T) {
	d := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), JSONRPC, call(1, "system.listMethods", Params{}))
	names := resp.Result.([]string)
	for _, name := range names {
		if name == "xml_only" || name == MulticallMethod {
			t.Errorf("JSON-RPC listing contains %s", name)
		}
	}
	resp = d.Dispatch(context.Background(), XMLRPC, call(nil, "system.listMethods", Params{}))
	names = resp.Result.([]string)
	if names[len(names)-1] != MulticallMethod {
		t.Errorf("got %v, want %s listed last", names, MulticallMethod)
	}

	resp = d.Dispatch(context.Background(), XMLRPC, call(nil, "system.methodSignature", PositionalParams("add")))
	sig := resp.Result.([][]string)
	if got := strings.Join(sig[0], ","); got != "int,int,int" {
		t.Errorf("got signature %s, want int,int,int", got)
	}

	resp = d.Dispatch(context.Background(), XMLRPC, call(nil, "system.methodHelp", NamedParams(map[string]any{"method_name": "system.listMethods"})))
	if resp.Result != "Return the names of all published methods." {
		t.Errorf("got help %v", resp.Result)
	}

	resp = d.Dispatch(context.Background(), XMLRPC, call(nil, "system.methodHelp", PositionalParams("missing")))
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("got %+v, want MethodNotFound", resp)
	}
}
