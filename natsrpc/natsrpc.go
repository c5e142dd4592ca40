// Package natsrpc serves the RPC endpoints over NATS request/reply. Each
// subject carries raw protocol payloads: a message body is a JSON-RPC or
// XML-RPC document and the reply is the encoded response, exactly as over
// HTTP. Messages without a reply subject, and JSON-RPC notifications, get no
// reply.
package natsrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"
)

const logPrefix = "natsrpc:natsrpc"

// DefaultQueue is the queue group shared by all rpcserve instances, so each
// request is handled once.
const DefaultQueue = "rpcserve"

// Handler runs one raw payload and returns the reply, or nil for none.
// jsonrpc.JSONRPCEndpoint and xmlrpc.XMLRPCEndpoint implement it.
type Handler interface {
	Handle(ctx context.Context, body []byte) []byte
}

// Connect connects to the NATS server at url with reconnection enabled.
func Connect(url, name string) (*comms.Conn, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to NATS at %s as %s", logPrefix, url, name))

	nc, err := comms.Connect(url,
		comms.Name(name),
		comms.Timeout(10*time.Second),
		comms.ReconnectWait(2*time.Second),
		comms.MaxReconnects(60),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - NATS disconnected: %v", logPrefix, err))
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - NATS reconnected to %s", logPrefix, nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	return nc, nil
}

// Server subscribes handlers to subjects on one connection.
type Server struct {
	nc      *comms.Conn
	queue   string
	timeout time.Duration

	mu   sync.Mutex
	subs []*comms.Subscription
}

// Option configures a Server.
type Option func(*Server)

// WithQueue sets the queue group. An empty name subscribes without a group,
// so every instance gets every request.
func WithQueue(queue string) Option {
	return func(s *Server) {
		s.queue = queue
	}
}

// WithTimeout bounds the handling of one request. Defaults to 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// NewServer returns a Server using nc.
func NewServer(nc *comms.Conn, opts ...Option) *Server {
	s := &Server{nc: nc, queue: DefaultQueue, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle subscribes h to subject. ctx is the parent of every request
// context; cancelling it aborts in-flight calls.
func (s *Server) Handle(ctx context.Context, subject string, h Handler) error {
	cb := func(msg *comms.Msg) {
		reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		out := h.Handle(reqCtx, msg.Data)
		if out == nil || msg.Reply == "" {
			return
		}
		if err := msg.Respond(out); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to respond on %s: %v", logPrefix, subject, err))
		}
	}

	var sub *comms.Subscription
	var err error
	if s.queue != "" {
		sub, err = s.nc.QueueSubscribe(subject, s.queue, cb)
	} else {
		sub, err = s.nc.Subscribe(subject, cb)
	}
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
	}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, subject))
	return nil
}

// Close drains the subscriptions, letting in-flight requests finish.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil && !errors.Is(err, comms.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	s.subs = nil
	return errors.Join(errs...)
}
