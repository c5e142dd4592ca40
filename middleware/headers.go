// Package middleware holds endpoint processors shared by the rpcserve HTTP
// routes and the sealed cookie used to carry caller identities.
package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/mnehpets/rpcserve/endpoint"
)

// HeadersProcessor sets response security headers and, when AllowedOrigins
// is set, answers CORS for browser RPC clients.
type HeadersProcessor struct {
	ContentSecurityPolicy string
	FrameOptions          string
	ReferrerPolicy        string
	// NoStore adds Cache-Control: no-store. RPC replies are never cacheable.
	NoStore bool

	AllowedOrigins []string
	AllowedHeaders []string
}

// NewAPIHeadersProcessor returns the defaults for RPC endpoints.
func NewAPIHeadersProcessor(allowedOrigins ...string) *HeadersProcessor {
	return &HeadersProcessor{
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		FrameOptions:          "DENY",
		ReferrerPolicy:        "no-referrer",
		NoStore:               true,
		AllowedOrigins:        allowedOrigins,
		AllowedHeaders:        []string{"Authorization", "Content-Type"},
	}
}

// NewPageHeadersProcessor returns the defaults for HTML pages.
func NewPageHeadersProcessor() *HeadersProcessor {
	return &HeadersProcessor{
		ContentSecurityPolicy: "default-src 'self'; style-src 'self' 'unsafe-inline'; frame-ancestors 'none'",
		FrameOptions:          "DENY",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}
}

func (p *HeadersProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	if p.ContentSecurityPolicy != "" {
		h.Set("Content-Security-Policy", p.ContentSecurityPolicy)
	}
	if p.FrameOptions != "" {
		h.Set("X-Frame-Options", p.FrameOptions)
	}
	if p.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", p.ReferrerPolicy)
	}
	if p.NoStore {
		h.Set("Cache-Control", "no-store")
	}

	origin := r.Header.Get("Origin")
	if origin == "" || len(p.AllowedOrigins) == 0 {
		return next(w, r)
	}
	if slices.Contains(p.AllowedOrigins, "*") {
		h.Set("Access-Control-Allow-Origin", "*")
	} else if slices.Contains(p.AllowedOrigins, origin) {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	}
	// Preflight requests are answered here.
	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", strings.Join(p.AllowedHeaders, ", "))
		return endpoint.Error(http.StatusNoContent, "", nil)
	}
	return next(w, r)
}

var _ endpoint.Processor = (*HeadersProcessor)(nil)
