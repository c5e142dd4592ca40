// Package main is the entrypoint for rpcserve, a JSON-RPC 2.0 and XML-RPC
// server.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/mnehpets/rpcserve/auth"
	"github.com/mnehpets/rpcserve/internal/methods"
	"github.com/mnehpets/rpcserve/internal/server"
	"github.com/mnehpets/rpcserve/rpc"
)

const usage = `Usage: rpcserve [command]
       rpcserve serve [env-file]     Start the server (HTTP, and NATS when COMMS_URL is set).
       rpcserve methods              List the published procedures and their signatures.
       rpcserve hash-password        Read a password on stdin and print its bcrypt hash.

Commands:
  serve           (default) Start the server. env-file defaults to .env; a missing file is ignored.
  methods         Print one line per procedure: signature and documentation.
  hash-password   Print a hash for an RPCSERVE_USERS entry (name:hash[:superuser][:group=g][:perm=p]).

Environment: HTTP_PORT (default 8080), RPCSERVE_USERS, RPCSERVE_COOKIE_KEYS, OIDC_ISSUER,
OIDC_CLIENT_ID, COMMS_URL, RPCSERVE_OTEL_ENDPOINT, LOG_LEVEL. See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "methods":
		if err := runMethods(os.Stdout); err != nil {
			log.Fatalf("rpcserve methods: %v", err)
		}
		return
	case "hash-password":
		if err := runHashPassword(os.Stdin, os.Stdout); err != nil {
			log.Fatalf("rpcserve hash-password: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	envFile := ".env"
	if len(args) > 1 && args[1] != "" {
		envFile = args[1]
	}
	if err := server.Run(envFile); err != nil {
		log.Fatalf("rpcserve: %v", err)
	}
}

func runMethods(w io.Writer) error {
	reg := rpc.NewRegistry()
	if err := methods.Register(reg); err != nil {
		return err
	}
	for _, name := range reg.Names() {
		p, _ := reg.Lookup(name)
		sig := rpc.Signature(p)
		line := fmt.Sprintf("%s %s(%s)", sig[0], name, strings.Join(sig[1:], ", "))
		if p.Doc != "" {
			line += "  " + p.Doc
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func runHashPassword(r io.Reader, w io.Writer) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return fmt.Errorf("empty password")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}
