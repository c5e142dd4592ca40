package rpc

import (
	"context"
	"slices"
)

// Identity describes the authenticated caller. Transports attach it to the
// request context; a nil Identity is an anonymous caller.
type Identity struct {
	Subject     string   `cbor:"1,keyasint,omitempty" json:"subject"`
	Superuser   bool     `cbor:"2,keyasint,omitempty" json:"superuser,omitempty"`
	Groups      []string `cbor:"3,keyasint,omitempty" json:"groups,omitempty"`
	Permissions []string `cbor:"4,keyasint,omitempty" json:"permissions,omitempty"`
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller identity, or nil when anonymous.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// Authorizer decides whether the caller may invoke method. It only consumes
// an identity; credential checks happen before dispatch.
type Authorizer interface {
	Authorize(ctx context.Context, method string, id *Identity) bool
}

// AuthorizerFunc adapts a function to an Authorizer.
type AuthorizerFunc func(ctx context.Context, method string, id *Identity) bool

func (f AuthorizerFunc) Authorize(ctx context.Context, method string, id *Identity) bool {
	return f(ctx, method, id)
}

// AllowAll is the default Authorizer.
var AllowAll Authorizer = AuthorizerFunc(func(context.Context, string, *Identity) bool { return true })

// Predicate is a per-procedure access rule, attached with Require.
type Predicate func(id *Identity) bool

// Authenticated allows any identified caller.
func Authenticated(id *Identity) bool {
	return id != nil && id.Subject != ""
}

// Superuser allows callers flagged as superuser.
func Superuser(id *Identity) bool {
	return Authenticated(id) && id.Superuser
}

// InGroup allows superusers and members of any of groups.
func InGroup(groups ...string) Predicate {
	return func(id *Identity) bool {
		if !Authenticated(id) {
			return false
		}
		if id.Superuser {
			return true
		}
		for _, g := range groups {
			if slices.Contains(id.Groups, g) {
				return true
			}
		}
		return false
	}
}

// HasPermission allows superusers and callers holding every listed permission.
func HasPermission(perms ...string) Predicate {
	return func(id *Identity) bool {
		if !Authenticated(id) {
			return false
		}
		if id.Superuser {
			return true
		}
		for _, p := range perms {
			if !slices.Contains(id.Permissions, p) {
				return false
			}
		}
		return true
	}
}
