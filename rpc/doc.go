// Package rpc is the protocol-neutral core of rpcserve: the procedure
// registry, argument binding, call execution, fault encoding and batch
// dispatch shared by the JSON-RPC and XML-RPC transports.
//
// # Registration
//
// Procedures are registered on a Registry during startup:
//
//	reg := rpc.NewRegistry()
//	reg.MustRegister("add", func(a, b int) int { return a + b }, rpc.ParamNames("a", "b"))
//	reg.MustRegister("echo_kwargs", func(ctx context.Context, kw rpc.Kwargs) rpc.Kwargs { return kw })
//	d := rpc.NewDispatcher(reg) // freezes reg
//
// A handler is a func of the shape
//
//	func([ctx context.Context,] args... [, kw rpc.Kwargs]) ([result,] [error])
//
// The calling convention follows from that shape:
//   - PositionalOnly: no parameter names declared; only positional params bind.
//   - KeywordCapable: names declared with ParamNames (or a params struct); positional
//     and keyword params bind.
//   - VariableKeyword: a trailing Kwargs parameter receives unmatched keywords.
//
// # Errors
//
// Every failure is an *Error with one of the reserved kinds, or a custom
// application code. Handlers surface their own codes by returning
// NewCustomError; codes in [CustomErrorBase, CustomErrorMax] never clash with
// the reserved ones. Any other returned error or panic is reported as
// "Internal error: <message>".
//
// # Dispatch
//
// Wire codecs decode requests into Request values and hand them to
// Dispatcher.Dispatch or Dispatcher.DispatchBatch. A notification yields no
// response; a batch made only of notifications yields a nil BatchResponse,
// meaning nothing is written back.
package rpc
