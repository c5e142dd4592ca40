// Package endpoint provides the HTTP plumbing shared by the rpcserve
// transports.
//
// A request goes through three phases:
//
//  1. Processors run in order, as middleware. They may attach values to the
//     request context (the caller identity, for instance) or short-circuit
//     with an error.
//  2. The EndpointFunc receives params decoded from the request by Unmarshal
//     and returns a Renderer. It never writes the response itself.
//  3. The Renderer writes status, headers and body.
//
// Errors returned from any phase become plain HTTP error responses; an
// *EndpointError selects the status code.
package endpoint

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const logPrefix = "endpoint:endpoint"

// EndpointError is an error carrying the HTTP status to answer with.
type EndpointError struct {
	Status int
	// Message is the client-visible response body. Defaults to the status text.
	Message string
	Cause   error
}

func (e *EndpointError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *EndpointError) Unwrap() error {
	return e.Cause
}

// Error returns an *EndpointError. An err that already is one is returned
// unchanged.
func Error(status int, message string, err error) error {
	var ee *EndpointError
	if errors.As(err, &ee) {
		return err
	}
	return &EndpointError{Status: status, Message: message, Cause: err}
}

// Renderer writes a response. It must call WriteHeader.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// Processor is middleware run before the endpoint. It must call next unless
// it short-circuits, and must not write the response.
type Processor interface {
	Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error
}

// ProcessorFunc adapts a function to a Processor.
type ProcessorFunc func(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error

func (f ProcessorFunc) Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
	return f(w, r, next)
}

// EndpointFunc handles a request with params decoded by Unmarshal.
type EndpointFunc[P any] func(w http.ResponseWriter, r *http.Request, params P) (Renderer, error)

// EndpointHandler is the http.Handler running processors, an EndpointFunc
// and its Renderer.
type EndpointHandler[P any] struct {
	Endpoint   EndpointFunc[P]
	Processors []Processor
}

// Handler returns an EndpointHandler for fn.
func Handler[P any](fn EndpointFunc[P], processors ...Processor) *EndpointHandler[P] {
	return &EndpointHandler[P]{Endpoint: fn, Processors: processors}
}

func (h *EndpointHandler[P]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.run(0, w, r); err != nil {
		status, message := http.StatusInternalServerError, err.Error()
		var ee *EndpointError
		if errors.As(err, &ee) {
			if ee.Status >= 100 {
				status = ee.Status
			}
			message = ee.Message
			if message == "" {
				message = http.StatusText(status)
			}
		}
		if status >= http.StatusInternalServerError {
			slog.Error(fmt.Sprintf("%s - %s %s: %v", logPrefix, r.Method, r.URL.Path, err))
		}
		http.Error(w, message, status)
	}
}

func (h *EndpointHandler[P]) run(i int, w http.ResponseWriter, r *http.Request) error {
	if i < len(h.Processors) {
		if h.Processors[i] == nil {
			return errors.New("endpoint: nil processor")
		}
		return h.Processors[i].Process(w, r, func(w http.ResponseWriter, r *http.Request) error {
			return h.run(i+1, w, r)
		})
	}

	if h.Endpoint == nil {
		return errors.New("endpoint: nil EndpointFunc")
	}
	var params P
	if err := Unmarshal(r, &params); err != nil {
		return err
	}
	renderer, err := h.Endpoint(w, r, params)
	if err != nil {
		return err
	}
	if renderer == nil {
		return errors.New("endpoint: nil renderer")
	}
	if c, ok := renderer.(io.Closer); ok {
		defer c.Close()
	}
	return renderer.Render(w, r)
}
