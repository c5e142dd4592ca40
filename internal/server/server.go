// Package server wires the rpcserve components: the dispatcher, the HTTP
// routes, the NATS transport and the caller identity sources.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	comms "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/propagation"

	"github.com/mnehpets/rpcserve/auth"
	"github.com/mnehpets/rpcserve/endpoint"
	"github.com/mnehpets/rpcserve/internal/config"
	"github.com/mnehpets/rpcserve/internal/methods"
	"github.com/mnehpets/rpcserve/internal/telemetry"
	"github.com/mnehpets/rpcserve/jsonrpc"
	"github.com/mnehpets/rpcserve/middleware"
	"github.com/mnehpets/rpcserve/natsrpc"
	"github.com/mnehpets/rpcserve/rpc"
	"github.com/mnehpets/rpcserve/xmlrpc"
)

const logPrefix = "server:server"

// Server is the rpcserve orchestrator.
type Server struct {
	cfg        *config.Config
	dispatcher *rpc.Dispatcher
	jsonrpc    *jsonrpc.JSONRPCEndpoint
	xmlrpc     *xmlrpc.XMLRPCEndpoint

	users   auth.Users
	cookie  *auth.Cookie
	sources []auth.Source

	httpServer *http.Server
	addr       net.Addr
	nc         *comms.Conn
	nats       *natsrpc.Server
}

// Run loads configuration, serves until SIGINT or SIGTERM, then shuts down.
func Run(envFile string) error {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	SetupLogging(cfg.LogLevel)

	slog.Info(fmt.Sprintf("%s - Starting %s", logPrefix, cfg.ServiceName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTELEndpoint, cfg.OTELEnabled)
	if err != nil {
		return fmt.Errorf("%s - failed to set up tracing: %w", logPrefix, err)
	}

	reg := rpc.NewRegistry()
	if err := methods.Register(reg); err != nil {
		return fmt.Errorf("%s - failed to register methods: %w", logPrefix, err)
	}

	s, err := New(ctx, cfg, reg)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - %s is ready", logPrefix, cfg.ServiceName))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	err = s.Shutdown(shutdownCtx)
	if terr := shutdownTracing(shutdownCtx); terr != nil {
		slog.Warn(fmt.Sprintf("%s - tracing shutdown: %v", logPrefix, terr))
	}
	cancel()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return err
}

// SetupLogging installs the default text logger at level.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// New builds a Server publishing the procedures of reg. Nothing listens
// until Start.
func New(ctx context.Context, cfg *config.Config, reg *rpc.Registry) (*Server, error) {
	d := rpc.NewDispatcher(reg, rpc.WithConcurrency(cfg.Concurrency))
	s := &Server{
		cfg:        cfg,
		dispatcher: d,
		jsonrpc:    jsonrpc.NewEndpoint(d),
		xmlrpc:     xmlrpc.NewEndpoint(d),
	}
	if err := s.setupIdentity(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// setupIdentity configures the credential sources, in the order they are
// tried: bearer token, basic auth, identity cookie.
func (s *Server) setupIdentity(ctx context.Context) error {
	cfg := s.cfg
	if cfg.OIDCIssuer != "" {
		verifier, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
		if err != nil {
			return fmt.Errorf("%s - failed to set up OIDC: %w", logPrefix, err)
		}
		s.sources = append(s.sources, &auth.Bearer{Verifier: verifier, SuperuserGroup: cfg.SuperuserGroup})
		slog.Info(fmt.Sprintf("%s - Accepting bearer tokens from %s", logPrefix, cfg.OIDCIssuer))
	}

	if cfg.Users != "" {
		users, err := auth.ParseUsers(cfg.Users)
		if err != nil {
			return fmt.Errorf("%s - invalid RPCSERVE_USERS: %w", logPrefix, err)
		}
		s.users = users
		s.sources = append(s.sources, &auth.Basic{Users: users})
		slog.Info(fmt.Sprintf("%s - Loaded %d users", logPrefix, len(users)))
	}

	if cfg.CookieKeys != "" {
		keys, err := middleware.ParseKeys(cfg.CookieKeys)
		if err != nil {
			return fmt.Errorf("%s - invalid RPCSERVE_COOKIE_KEYS: %w", logPrefix, err)
		}
		sc, err := middleware.NewSecureCookie(auth.DefaultCookieName, currentKeyID(cfg.CookieKeys), keys,
			middleware.WithSecure(!cfg.CookieInsecure))
		if err != nil {
			return fmt.Errorf("%s - invalid identity cookie: %w", logPrefix, err)
		}
		s.cookie = &auth.Cookie{Cookie: sc, MaxAge: cfg.CookieMaxAge}
		s.sources = append(s.sources, s.cookie)
	}
	return nil
}

// currentKeyID returns the id of the first key: new cookies are sealed with
// it, the others only open existing ones.
func currentKeyID(keys string) string {
	first, _, _ := strings.Cut(keys, ",")
	id, _, _ := strings.Cut(strings.TrimSpace(first), ":")
	return id
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	api := []endpoint.Processor{
		middleware.NewAPIHeadersProcessor(s.cfg.AllowedOrigins...),
		traceProcessor(),
		timeoutProcessor(s.cfg.RequestTimeout),
		auth.NewProcessor(s.sources...),
	}
	page := []endpoint.Processor{middleware.NewPageHeadersProcessor()}

	jsonHandler := endpoint.Handler(s.jsonrpc.Endpoint, api...)
	xmlHandler := endpoint.Handler(s.xmlrpc.Endpoint, api...)

	mux := http.NewServeMux()
	mux.Handle("/rpc", byContentType(jsonHandler, xmlHandler))
	mux.Handle("/jsonrpc", jsonHandler)
	mux.Handle("/xmlrpc", xmlHandler)
	mux.Handle("/docs", endpoint.Handler(s.docs, page...))
	mux.Handle("/docs/{method}", endpoint.Handler(s.methodDoc, page...))
	mux.Handle("/health", endpoint.Handler(s.health))
	if s.cookie != nil {
		mux.Handle("/login", endpoint.Handler(s.cookie.Login(s.users), api...))
		mux.Handle("/logout", endpoint.Handler(s.cookie.Logout, api...))
	}
	return http.MaxBytesHandler(mux, s.cfg.MaxBodyBytes)
}

// byContentType routes XML documents to the XML-RPC handler and everything
// else to the JSON-RPC handler.
func byContentType(jsonHandler, xmlHandler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if xmlrpc.IsContentType(r.Header.Get("Content-Type")) {
			xmlHandler.ServeHTTP(w, r)
			return
		}
		jsonHandler.ServeHTTP(w, r)
	})
}

// traceProcessor joins dispatch spans to the caller's trace.
func traceProcessor() endpoint.Processor {
	return endpoint.ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
		ctx := telemetry.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		return next(w, r.WithContext(ctx))
	})
}

func timeoutProcessor(d time.Duration) endpoint.Processor {
	return endpoint.ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		return next(w, r.WithContext(ctx))
	})
}

type healthStatus struct {
	Status string `json:"status"`
	NATS   string `json:"nats"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
	h := healthStatus{Status: "healthy", NATS: "disabled"}
	status := http.StatusOK
	if s.nc != nil {
		if s.nc.IsConnected() {
			h.NATS = "connected"
		} else {
			h.NATS = s.nc.Status().String()
			h.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}
	return &endpoint.JSONRenderer{Status: status, Value: h}, nil
}

// Start binds the HTTP listener, connects the NATS transport when configured
// and starts serving. A listener or NATS failure is returned and nothing is
// left running.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("%s - failed to listen on %s: %w", logPrefix, s.cfg.Addr(), err)
	}
	if s.cfg.COMMSURL != "" {
		if err := s.startNATS(ctx); err != nil {
			ln.Close()
			return err
		}
	}

	s.addr = ln.Addr()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, ln.Addr()))
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()
	return nil
}

func (s *Server) startNATS(ctx context.Context) error {
	nc, err := natsrpc.Connect(s.cfg.COMMSURL, s.cfg.ServiceName)
	if err != nil {
		return err
	}
	ns := natsrpc.NewServer(nc, natsrpc.WithQueue(s.cfg.Queue), natsrpc.WithTimeout(s.cfg.RequestTimeout))
	if err := ns.Handle(ctx, s.cfg.JSONRPCSubject, s.jsonrpc); err != nil {
		nc.Close()
		return err
	}
	if err := ns.Handle(ctx, s.cfg.XMLRPCSubject, s.xmlrpc); err != nil {
		ns.Close()
		nc.Close()
		return err
	}
	s.nc, s.nats = nc, ns
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// is done.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s - HTTP shutdown: %w", logPrefix, err))
		}
	}
	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s - NATS unsubscribe: %w", logPrefix, err))
		}
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil && !errors.Is(err, comms.ErrConnectionClosed) {
			errs = append(errs, fmt.Errorf("%s - NATS drain: %w", logPrefix, err))
		}
	}
	return errors.Join(errs...)
}
