// Package methods holds the procedures published by the rpcserve binary.
package methods

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mnehpets/rpcserve/rpc"
)

// ErrDivisionByZero is returned by divide.
var ErrDivisionByZero = errors.New("division by zero")

// CodeCustomTest is the fault code of raise_custom_exception.
const CodeCustomTest = rpc.CustomErrorBase + 5

// protocolMarker names the protocol a call arrived on.
func protocolMarker(ctx context.Context) string {
	switch rpc.ProtocolFromContext(ctx) {
	case rpc.JSONRPC:
		return "__json_rpc"
	case rpc.XMLRPC:
		return "__xml_rpc"
	}
	return ""
}

// Register adds the procedures and the introspection methods to reg.
func Register(reg *rpc.Registry) error {
	procs := []struct {
		name    string
		handler any
		opts    []rpc.Option
	}{
		{"add", add,
			[]rpc.Option{rpc.ParamNames("a", "b"), rpc.Doc("Return the sum of a and b. The sum of two integers is an integer.")}},
		{"divide", func(numerator, denominator float64) (float64, error) {
			if denominator == 0 {
				return 0, ErrDivisionByZero
			}
			return numerator / denominator, nil
		}, []rpc.Option{rpc.ParamNames("numerator", "denominator"), rpc.Doc("Return numerator divided by denominator.")}},
		{"method_with_kwargs", func(ctx context.Context, _ rpc.Kwargs) string {
			return protocolMarker(ctx)
		}, []rpc.Option{rpc.Doc("Return the protocol the call arrived on.")}},
		{"method_with_kwargs_2", func(ctx context.Context, x any, _ rpc.Kwargs) []any {
			return []any{x, protocolMarker(ctx)}
		}, []rpc.Option{rpc.ParamNames("x"), rpc.Doc("Return x and the protocol the call arrived on.")}},
		{"raise_custom_exception", func() error {
			return rpc.NewCustomError(CodeCustomTest, "This is a test error")
		}, []rpc.Option{rpc.Doc("Always fail with a custom fault.")}},
		{"logged_superuser_required", func(x any) any { return x },
			[]rpc.Option{rpc.ParamNames("x"), rpc.Require(rpc.Superuser), rpc.Doc("Return x. Superusers only.")}},
		{"logged_user_required", func(ctx context.Context, x any) any { return x },
			[]rpc.Option{rpc.ParamNames("x"), rpc.Require(rpc.Authenticated), rpc.Doc("Return x. Authenticated callers only.")}},
		{"whoami", func(ctx context.Context) *rpc.Identity {
			return rpc.IdentityFromContext(ctx)
		}, []rpc.Option{rpc.Doc("Return the caller identity, null when anonymous.")}},
		{"echo", func(v any) any { return v },
			[]rpc.Option{rpc.ParamNames("value"), rpc.Doc("Return value unchanged.")}},
		{"now", func() time.Time { return time.Now().UTC().Truncate(time.Second) },
			[]rpc.Option{rpc.Doc("Return the server time.")}},
		{"sum", func(values ...float64) float64 {
			var total float64
			for _, v := range values {
				total += v
			}
			return total
		}, []rpc.Option{rpc.Doc("Return the sum of all arguments.")}},
	}
	for _, p := range procs {
		if err := reg.Register(p.name, p.handler, p.opts...); err != nil {
			return err
		}
	}
	return rpc.RegisterSystemMethods(reg)
}

// add keeps the sum of two integers integral, so XML-RPC callers get an <int>
// back for <int> arguments.
func add(a, b any) (any, error) {
	x, err := toNumber(a)
	if err != nil {
		return nil, err
	}
	y, err := toNumber(b)
	if err != nil {
		return nil, err
	}
	xi, xInt := x.(int64)
	yi, yInt := y.(int64)
	if xInt && yInt {
		return int(xi + yi), nil
	}
	return toFloat(x) + toFloat(y), nil
}

// toNumber returns v as an int64 or a float64.
func toNumber(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return n, nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		return n.Float64()
	}
	return nil, fmt.Errorf("unsupported operand %v (%T)", v, v)
}

func toFloat(n any) float64 {
	if i, ok := n.(int64); ok {
		return float64(i)
	}
	return n.(float64)
}
