// Package auth identifies RPC callers. Sources read credentials from the HTTP
// request (basic auth, OIDC bearer tokens, a sealed identity cookie) and the
// Processor stores the resulting rpc.Identity in the request context, where
// the dispatcher's authorization predicates find it.
//
// Invalid credentials do not fail the HTTP request: the call proceeds
// anonymously and a protected procedure then answers with an
// "Authentication failed" fault, as any other RPC error.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mnehpets/rpcserve/endpoint"
	"github.com/mnehpets/rpcserve/middleware"
	"github.com/mnehpets/rpcserve/rpc"
)

const logPrefix = "auth:auth"

// DefaultCookieName is the name of the identity cookie.
const DefaultCookieName = "rpcid"

// Source extracts an identity from a request. It returns nil, nil when the
// request carries no credentials it understands.
type Source interface {
	Identify(r *http.Request) (*rpc.Identity, error)
}

// Basic identifies callers with HTTP basic authentication against Users.
type Basic struct {
	Users Users
}

func (b *Basic) Identify(r *http.Request) (*rpc.Identity, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, nil
	}
	id, ok := b.Users.Authenticate(username, password)
	if !ok {
		return nil, fmt.Errorf("invalid credentials for %q", username)
	}
	return id, nil
}

// Cookie identifies callers by an identity sealed in a cookie by Login.
type Cookie struct {
	Cookie *middleware.SecureCookie
	MaxAge time.Duration
}

func (c *Cookie) Identify(r *http.Request) (*rpc.Identity, error) {
	hc, err := r.Cookie(c.Cookie.Name())
	if err != nil {
		return nil, nil
	}
	var id rpc.Identity
	if err := c.Cookie.Decode(hc, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// Processor runs sources in order; the first identity found is stored in
// the request context.
type Processor struct {
	Sources []Source
}

// NewProcessor returns a Processor over sources. Nil sources are skipped.
func NewProcessor(sources ...Source) *Processor {
	p := &Processor{}
	for _, s := range sources {
		if s != nil {
			p.Sources = append(p.Sources, s)
		}
	}
	return p
}

func (p *Processor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	for _, s := range p.Sources {
		id, err := s.Identify(r)
		if err != nil {
			slog.Debug(fmt.Sprintf("%s - rejected credentials: %v", logPrefix, err))
			continue
		}
		if id != nil {
			return next(w, r.WithContext(rpc.WithIdentity(r.Context(), id)))
		}
	}
	return next(w, r)
}

// Login exchanges basic auth credentials for an identity cookie.
func (c *Cookie) Login(users Users) endpoint.EndpointFunc[struct{}] {
	return func(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		if r.Method != http.MethodPost {
			return nil, endpoint.Error(http.StatusMethodNotAllowed, "", nil)
		}
		id, err := (&Basic{Users: users}).Identify(r)
		if err != nil || id == nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="rpcserve"`)
			return nil, endpoint.Error(http.StatusUnauthorized, "", err)
		}
		hc, err := c.Cookie.Encode(id, c.maxAge())
		if err != nil {
			return nil, endpoint.Error(http.StatusInternalServerError, "", err)
		}
		http.SetCookie(w, hc)
		slog.Info(fmt.Sprintf("%s - login %s", logPrefix, id.Subject))
		return &endpoint.NoContentRenderer{}, nil
	}
}

// Logout clears the identity cookie.
func (c *Cookie) Logout(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
	if r.Method != http.MethodPost {
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "", nil)
	}
	http.SetCookie(w, c.Cookie.Clear())
	return &endpoint.NoContentRenderer{}, nil
}

func (c *Cookie) maxAge() time.Duration {
	if c.MaxAge <= 0 {
		return 12 * time.Hour
	}
	return c.MaxAge
}

var _ endpoint.Processor = (*Processor)(nil)
