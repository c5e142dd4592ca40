package rpc

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mnehpets/rpcserve/rpc"

// Dispatcher routes decoded requests to registered procedures.
type Dispatcher struct {
	registry    *Registry
	executor    *Executor
	concurrency int
	tracer      trace.Tracer
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAuthorizer sets the authorizer consulted before each call.
func WithAuthorizer(a Authorizer) DispatcherOption {
	return func(d *Dispatcher) {
		d.executor = NewExecutor(a)
	}
}

// WithConcurrency bounds the number of batch members executed at once.
// Values below 1 run members one at a time.
func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		d.concurrency = max(n, 1)
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) DispatcherOption {
	return func(d *Dispatcher) {
		d.tracer = tp.Tracer(tracerName)
	}
}

// NewDispatcher returns a dispatcher over reg. The registry is frozen: no
// procedure can be added once requests may be served.
func NewDispatcher(reg *Registry, opts ...DispatcherOption) *Dispatcher {
	reg.Freeze()
	d := &Dispatcher{
		registry:    reg,
		executor:    NewExecutor(nil),
		concurrency: 8,
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the dispatcher's registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs a single request and returns its response, or nil for a
// notification. Every failure is reported in the response; Dispatch itself
// never fails.
func (d *Dispatcher) Dispatch(ctx context.Context, protocol Protocol, req *Request) *Response {
	resp := d.dispatch(ctx, protocol, req)
	if req.Notification {
		return nil
	}
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, protocol Protocol, req *Request) *Response {
	if req.Err != nil {
		return &Response{ID: req.ID, Error: req.Err}
	}

	ctx, span := d.tracer.Start(ctx, req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", protocol.String()),
			attribute.String("rpc.method", req.Method),
			attribute.Bool("rpc.notification", req.Notification),
		))
	defer span.End()

	result, rpcErr := d.call(WithProtocol(ctx, protocol), protocol, req)
	if rpcErr != nil {
		fault := Encode(rpcErr)
		span.SetStatus(codes.Error, fault.Message)
		span.SetAttributes(attribute.Int("rpc.fault_code", fault.Code))
		return &Response{ID: req.ID, Error: rpcErr}
	}
	return &Response{ID: req.ID, Result: result}
}

func (d *Dispatcher) call(ctx context.Context, protocol Protocol, req *Request) (any, *Error) {
	p, ok := d.registry.Lookup(req.Method)
	if !ok || !p.Accepts(protocol) {
		slog.Debug(fmt.Sprintf("%s - method not found: %s", logPrefix, req.Method))
		return nil, NewMethodNotFoundError(req.Method)
	}
	args, rpcErr := Bind(p, req.Params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return d.executor.Execute(ctx, p, args)
}
