package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

const logPrefix = "rpc:executor"

// Executor runs bound calls against their handlers.
type Executor struct {
	authorizer Authorizer
}

// NewExecutor returns an executor consulting authorizer before every call.
// A nil authorizer allows everything.
func NewExecutor(authorizer Authorizer) *Executor {
	if authorizer == nil {
		authorizer = AllowAll
	}
	return &Executor{authorizer: authorizer}
}

// Execute invokes p's handler exactly once with args.
//
// The caller identity is read from ctx. A denied call never reaches the
// handler. Values that cannot be converted to the handler's parameter types,
// panics and errors returned by the handler are internal errors; a returned
// *Error is passed through unchanged.
func (x *Executor) Execute(ctx context.Context, p *Procedure, args *BoundArgs) (result any, rpcErr *Error) {
	if !x.allowed(ctx, p) {
		return nil, NewInternalError("Authentication failed when calling " + p.Name)
	}

	in, rpcErr := p.arguments(ctx, args)
	if rpcErr != nil {
		return nil, rpcErr
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - panic in %s: %v", logPrefix, p.Name, r))
			if err, ok := r.(error); ok {
				rpcErr = AsError(err)
			} else {
				rpcErr = NewInternalError(fmt.Sprint(r))
			}
			result = nil
		}
	}()

	out := p.fn.Call(in)
	if p.returnErr {
		if errVal := out[len(out)-1]; !errVal.IsNil() {
			return nil, AsError(errVal.Interface().(error))
		}
	}
	if p.result == nil {
		return nil, nil
	}
	return out[0].Interface(), nil
}

func (x *Executor) allowed(ctx context.Context, p *Procedure) bool {
	id := IdentityFromContext(ctx)
	for _, pred := range p.predicates {
		if !pred(id) {
			return false
		}
	}
	return x.authorizer.Authorize(ctx, p.Name, id)
}

// arguments builds the reflect call arguments, converting each bound value to
// its parameter type.
func (p *Procedure) arguments(ctx context.Context, args *BoundArgs) ([]reflect.Value, *Error) {
	in := make([]reflect.Value, 0, len(p.params)+len(args.Variadic)+2)
	if p.takesCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	var st reflect.Value
	if p.fields != nil {
		st = reflect.New(p.fields).Elem()
	}
	for i, prm := range p.params {
		v, err := convert(args.Values[i], prm.typ)
		if err != nil {
			return nil, NewInternalError(fmt.Sprintf("argument %d of %s: %v", i+1, p.Name, err))
		}
		if st.IsValid() {
			st.Field(prm.index).Set(v)
			continue
		}
		in = append(in, v)
	}
	if st.IsValid() {
		in = append(in, st)
	}
	for i, value := range args.Variadic {
		v, err := convert(value, p.variadic)
		if err != nil {
			return nil, NewInternalError(fmt.Sprintf("argument %d of %s: %v", len(p.params)+i+1, p.Name, err))
		}
		in = append(in, v)
	}
	if p.takesKw {
		kw := args.Kwargs
		if kw == nil {
			kw = Kwargs{}
		}
		in = append(in, reflect.ValueOf(kw))
	}
	return in, nil
}

// convert turns a decoded wire value into a value of type t. Values already
// assignable to t are used as is; anything else goes through mapstructure
// without weak typing, so "5" never becomes 5, and strictKinds rejects the
// remaining lossy or cross-kind conversions mapstructure would perform.
func convert(value any, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot use null as %s", t)
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(v)
		return out, nil
	}

	target := reflect.New(t)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     target.Interface(),
		TagName:    "json",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			strictKinds,
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return reflect.Value{}, err
	}
	if err := dec.Decode(value); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot use %T as %s: %w", value, t, err)
	}
	return target.Elem(), nil
}

var jsonNumberType = reflect.TypeOf(json.Number(""))

// strictKinds only lets numbers convert between numeric types without loss
// and only lets strings become strings.
func strictKinds(from, to reflect.Type, data any) (any, error) {
	switch {
	case to.Kind() == reflect.String && (from.Kind() != reflect.String || from == jsonNumberType):
		return nil, fmt.Errorf("cannot use %s as %s", from, to)
	case isInteger(to) && (from.Kind() == reflect.Float32 || from.Kind() == reflect.Float64):
		f := reflect.ValueOf(data).Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("cannot use %v as %s without losing its fraction", f, to)
		}
	}
	return data, nil
}

func isInteger(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
