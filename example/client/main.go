package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/mnehpets/rpcserve/jsonrpc"
	"github.com/mnehpets/rpcserve/xmlrpc"
)

func main() {
	base := flag.String("url", "http://localhost:8080", "rpcserve base URL")
	flag.Parse()
	ctx := context.Background()

	jc := jsonrpc.NewClient(*base + "/jsonrpc")
	var sum float64
	if err := jc.Call(ctx, "add", map[string]any{"a": 5, "b": 10}, &sum); err != nil {
		log.Fatal(err)
	}
	fmt.Println("add:", sum)

	var quotient float64
	var marker string
	batch := []*jsonrpc.BatchCall{
		{Method: "divide", Params: []any{30, 5}, Result: &quotient},
		{Method: "method_with_kwargs", Result: &marker},
		{Method: "divide", Params: []any{1, 0}},
	}
	if err := jc.Batch(ctx, batch); err != nil {
		log.Fatal(err)
	}
	fmt.Println("batch:", quotient, marker, batch[2].Err)

	xc := xmlrpc.NewClient(*base + "/xmlrpc")
	var methods []string
	if err := xc.Call(ctx, "system.listMethods", &methods); err != nil {
		log.Fatal(err)
	}
	fmt.Println("methods:", methods)

	var pair []any
	calls := []*xmlrpc.MulticallCall{
		{Method: "method_with_kwargs_2", Params: []any{6}, Result: &pair},
		{Method: "logged_superuser_required", Params: []any{5}},
	}
	if err := xc.Multicall(ctx, calls); err != nil {
		log.Fatal(err)
	}
	fmt.Println("multicall:", pair, calls[1].Err)
}
