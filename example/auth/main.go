package main

import (
	"context"
	"crypto/rand"
	"log"
	"net/http"

	"github.com/mnehpets/rpcserve/auth"
	"github.com/mnehpets/rpcserve/endpoint"
	"github.com/mnehpets/rpcserve/jsonrpc"
	"github.com/mnehpets/rpcserve/middleware"
	"github.com/mnehpets/rpcserve/rpc"
)

func main() {
	// 1. Accounts. Use "rpcserve hash-password" to produce hashes for configuration.
	hash, err := auth.HashPassword("secret")
	if err != nil {
		log.Fatal(err)
	}
	users := auth.Users{
		"admin": {PasswordHash: []byte(hash), Identity: rpc.Identity{Subject: "admin", Superuser: true}},
	}

	// 2. Identity cookie, so browsers log in once with POST /login.
	key := make([]byte, middleware.KeySize)
	if _, err := rand.Read(key); err != nil {
		log.Fatal(err)
	}
	sc, err := middleware.NewSecureCookie(auth.DefaultCookieName, "k1", map[string][]byte{"k1": key},
		middleware.WithSecure(false))
	if err != nil {
		log.Fatal(err)
	}
	cookie := &auth.Cookie{Cookie: sc}

	// 3. Procedures guarded by predicates.
	reg := rpc.NewRegistry()
	reg.MustRegister("whoami", func(ctx context.Context) *rpc.Identity {
		return rpc.IdentityFromContext(ctx)
	})
	reg.MustRegister("admin_only", func() string { return "welcome" }, rpc.Require(rpc.Superuser))
	e := jsonrpc.NewEndpoint(rpc.NewDispatcher(reg))

	identify := auth.NewProcessor(&auth.Basic{Users: users}, cookie)
	http.Handle("/rpc", endpoint.Handler(e.Endpoint, identify))
	http.Handle("/login", endpoint.Handler(cookie.Login(users)))
	http.Handle("/logout", endpoint.Handler(cookie.Logout))

	log.Println("Starting server on :8080")
	log.Fatal(http.ListenAndServe(":8080", nil))
}
