package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

type contact struct {
	Name string `json:"name"`
}

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func execute(t *testing.T, ctx context.Context, x *Executor, p *Procedure, params Params) (any, *Error) {
	t.Helper()
	args, rpcErr := Bind(p, params)
	if rpcErr != nil {
		t.Fatalf("Bind: %v", rpcErr)
	}
	return x.Execute(ctx, p, args)
}

func TestExecuteConversion(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		handler any
		params  Params
		want    any
		wantErr bool
	}{
		{"int", func(a, b int) int { return a + b }, PositionalParams(2, 3), 5, false},
		{"json number", func(a, b int) int { return a + b }, PositionalParams(json.Number("2"), json.Number("3")), 5, false},
		{"float to float", func(f float64) float64 { return f * 2 }, PositionalParams(json.Number("1.5")), 3.0, false},
		{"fractional number to int", func(a int) int { return a }, PositionalParams(json.Number("1.5")), nil, true},
		{"string to int", func(a int) int { return a }, PositionalParams("5"), nil, true},
		{"json number to string", func(s string) string { return s }, PositionalParams(json.Number("5")), nil, true},
		{"int to string", func(s string) string { return s }, PositionalParams(5), nil, true},
		{"bool to int", func(a int) int { return a }, PositionalParams(true), nil, true},
		{"fractional double to int", func(a int) int { return a }, PositionalParams(5.9), nil, true},
		{"whole double to int", func(a int) int { return a }, PositionalParams(5.0), 5, false},
		{"int to float", func(f float64) float64 { return f }, PositionalParams(2), 2.0, false},
		{"fractional double in slice", func(xs []int) int { return len(xs) }, PositionalParams([]any{1.5}), nil, true},
		{"json number in struct field", func(c contact) string { return c.Name }, PositionalParams(map[string]any{"name": json.Number("7")}), nil, true},
		{"null to int", func(a int) int { return a }, PositionalParams(nil), nil, true},
		{"null to pointer", func(p *point) bool { return p == nil }, PositionalParams(nil), true, false},
		{"struct", func(p point) int { return p.X + p.Y }, PositionalParams(map[string]any{"x": json.Number("1"), "y": json.Number("2")}), 3, false},
		{"slice", func(xs []int) int { return len(xs) }, PositionalParams([]any{json.Number("1"), json.Number("2")}), 2, false},
		{"time value", func(at time.Time) int { return at.Year() }, PositionalParams(when), 2024, false},
		{"time string", func(at time.Time) int { return at.Year() }, PositionalParams("2024-03-01T12:00:00Z"), 2024, false},
		{"any", func(v any) any { return v }, PositionalParams("x"), "x", false},
		{"variadic", func(xs ...int) int { return len(xs) }, PositionalParams(1, json.Number("2"), 3), 3, false},
		{"no result", func(int) {}, PositionalParams(1), nil, false},
	}
	x := NewExecutor(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustProcedure(t, tt.handler)
			got, rpcErr := execute(t, context.Background(), x, p, tt.params)
			if tt.wantErr {
				if rpcErr == nil || rpcErr.Kind != KindInternalError {
					t.Fatalf("got (%v, %v), want InternalError", got, rpcErr)
				}
				return
			}
			if rpcErr != nil {
				t.Fatalf("got error %v, want nil", rpcErr)
			}
			if got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestExecuteFailures(t *testing.T) {
	custom := NewCustomError(CustomErrorBase+5, "This is a test error")
	tests := []struct {
		name        string
		handler     any
		params      Params
		wantCode    int
		wantMessage string
	}{
		{"divide by zero", func(a, b int) int { return a / b }, PositionalParams(75, 0), CodeInternalError, "Internal error: runtime error: integer divide by zero"},
		{"panic string", func() int { panic("boom") }, PositionalParams(), CodeInternalError, "Internal error: boom"},
		{"plain error", func() error { return errors.New("disk full") }, PositionalParams(), CodeInternalError, "Internal error: disk full"},
		{"custom error", func() (int, error) { return 0, custom }, PositionalParams(), CustomErrorBase + 5, "This is a test error"},
		{"wrapped custom error", func() (int, error) { return 0, errors.Join(errors.New("ctx"), custom) }, PositionalParams(), CustomErrorBase + 5, "This is a test error"},
		{"panic with custom error", func() int { panic(custom) }, PositionalParams(), CustomErrorBase + 5, "This is a test error"},
		{"error literal without kind", func() error { return &Error{Code: CustomErrorBase + 6, Message: "app"} }, PositionalParams(), CustomErrorBase + 6, "app"},
	}
	x := NewExecutor(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustProcedure(t, tt.handler)
			_, rpcErr := execute(t, context.Background(), x, p, tt.params)
			if rpcErr == nil {
				t.Fatal("got nil error, want fault")
			}
			fault := Encode(rpcErr)
			if fault.Code != tt.wantCode {
				t.Errorf("got code %d, want %d", fault.Code, tt.wantCode)
			}
			if fault.Message != tt.wantMessage {
				t.Errorf("got message %q, want %q", fault.Message, tt.wantMessage)
			}
		})
	}
}

func TestExecuteInvokesOnce(t *testing.T) {
	calls := 0
	p := mustProcedure(t, func() int { calls++; return calls })
	if _, rpcErr := execute(t, context.Background(), NewExecutor(nil), p, Params{}); rpcErr != nil {
		t.Fatalf("got error %v", rpcErr)
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1", calls)
	}
}

func TestExecuteAuthorization(t *testing.T) {
	tests := []struct {
		name       string
		authorizer Authorizer
		require    []Predicate
		identity   *Identity
		wantAllow  bool
	}{
		{"default allows", nil, nil, nil, true},
		{"authorizer denies", AuthorizerFunc(func(context.Context, string, *Identity) bool { return false }), nil, nil, false},
		{"superuser anonymous", nil, []Predicate{Superuser}, nil, false},
		{"superuser plain user", nil, []Predicate{Superuser}, &Identity{Subject: "bob"}, false},
		{"superuser", nil, []Predicate{Superuser}, &Identity{Subject: "root", Superuser: true}, true},
		{"group member", nil, []Predicate{InGroup("ops")}, &Identity{Subject: "bob", Groups: []string{"ops"}}, true},
		{"group outsider", nil, []Predicate{InGroup("ops")}, &Identity{Subject: "bob", Groups: []string{"dev"}}, false},
		{"permission held", nil, []Predicate{HasPermission("a", "b")}, &Identity{Subject: "bob", Permissions: []string{"b", "a"}}, true},
		{"permission partial", nil, []Predicate{HasPermission("a", "b")}, &Identity{Subject: "bob", Permissions: []string{"a"}}, false},
		{"authenticated", nil, []Predicate{Authenticated}, &Identity{Subject: "bob"}, true},
		{"authorizer sees method", AuthorizerFunc(func(_ context.Context, method string, _ *Identity) bool { return method == "m" }), nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			p := mustProcedure(t, func() string { called = true; return "ok" }, Require(tt.require...))
			ctx := WithIdentity(context.Background(), tt.identity)
			_, rpcErr := execute(t, ctx, NewExecutor(tt.authorizer), p, Params{})
			if tt.wantAllow {
				if rpcErr != nil || !called {
					t.Errorf("got (called=%v, err=%v), want allowed", called, rpcErr)
				}
				return
			}
			if called {
				t.Error("handler invoked for denied call")
			}
			if rpcErr == nil || rpcErr.Code != CodeInternalError {
				t.Fatalf("got error %v, want InternalError", rpcErr)
			}
			if !strings.Contains(rpcErr.Message, "Authentication failed when calling m") {
				t.Errorf("got message %q", rpcErr.Message)
			}
		})
	}
}

func TestExecuteContextAndKwargs(t *testing.T) {
	p := mustProcedure(t, func(ctx context.Context, x int, kw Kwargs) []any {
		return []any{x, ProtocolFromContext(ctx).String(), len(kw)}
	}, ParamNames("x"))
	ctx := WithProtocol(context.Background(), XMLRPC)
	got, rpcErr := execute(t, ctx, NewExecutor(nil), p, NamedParams(map[string]any{"x": 25, "y": 1}))
	if rpcErr != nil {
		t.Fatalf("got error %v", rpcErr)
	}
	res := got.([]any)
	if res[0] != 25 || res[1] != "xmlrpc" || res[2] != 1 {
		t.Errorf("got %v, want [25 xmlrpc 1]", res)
	}
}
