package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/mnehpets/rpcserve/rpc"
)

// OIDCOption configures the ID token verifier.
type OIDCOption func(*oidc.Config)

// WithSkipIssuerCheck disables issuer validation, for providers that issue
// tokens with a per-tenant issuer.
func WithSkipIssuerCheck() OIDCOption {
	return func(c *oidc.Config) {
		c.SkipIssuerCheck = true
	}
}

// NewOIDCVerifier discovers issuer and returns a verifier accepting ID
// tokens issued to clientID.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string, opts ...OIDCOption) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider %q: %w", issuer, err)
	}
	config := &oidc.Config{ClientID: clientID}
	for _, opt := range opts {
		opt(config)
	}
	return provider.Verifier(config), nil
}

// claims are the ID token claims mapped onto an identity.
type claims struct {
	Email         string   `json:"email"`
	EmailVerified bool     `json:"email_verified"`
	Groups        []string `json:"groups"`
	Scope         string   `json:"scope"`
}

// Bearer identifies callers by an OIDC ID token in the Authorization header.
//
// The subject is "issuer|sub", or the email address when it is verified.
// Members of SuperuserGroup are superusers; space separated scopes become
// permissions.
type Bearer struct {
	Verifier       *oidc.IDTokenVerifier
	SuperuserGroup string
}

func (b *Bearer) Identify(r *http.Request) (*rpc.Identity, error) {
	scheme, raw, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, nil
	}
	token, err := b.Verifier.Verify(r.Context(), strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	var c claims
	if err := token.Claims(&c); err != nil {
		return nil, err
	}
	id := &rpc.Identity{
		Subject:     token.Issuer + "|" + token.Subject,
		Groups:      c.Groups,
		Permissions: strings.Fields(c.Scope),
	}
	if c.Email != "" && c.EmailVerified {
		id.Subject = c.Email
	}
	if b.SuperuserGroup != "" {
		for _, g := range c.Groups {
			if g == b.SuperuserGroup {
				id.Superuser = true
			}
		}
	}
	return id, nil
}
