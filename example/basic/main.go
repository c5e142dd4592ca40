package main

import (
	"context"
	"log"
	"net/http"

	"github.com/mnehpets/rpcserve/endpoint"
	"github.com/mnehpets/rpcserve/jsonrpc"
	"github.com/mnehpets/rpcserve/rpc"
	"github.com/mnehpets/rpcserve/xmlrpc"
)

type MathMethods struct{}

func (m *MathMethods) Add(ctx context.Context, a, b int) (int, error) {
	return a + b, nil
}

// SubParams binds named params by json tag.
type SubParams struct {
	A int `json:"a"`
	B int `json:"b"`
}

func (m *MathMethods) Sub(ctx context.Context, args SubParams) (int, error) {
	return args.A - args.B, nil
}

func main() {
	reg := rpc.NewRegistry()
	if err := reg.RegisterService("math", &MathMethods{}); err != nil {
		log.Fatal(err)
	}
	reg.MustRegister("echo", func(v any) any { return v }, rpc.ParamNames("value"))
	if err := rpc.RegisterSystemMethods(reg); err != nil {
		log.Fatal(err)
	}
	d := rpc.NewDispatcher(reg)

	http.Handle("/jsonrpc", endpoint.Handler(jsonrpc.NewEndpoint(d).Endpoint))
	http.Handle("/xmlrpc", endpoint.Handler(xmlrpc.NewEndpoint(d).Endpoint))

	log.Println("Starting server on :8080")
	log.Fatal(http.ListenAndServe(":8080", nil))
}
