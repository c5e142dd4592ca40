package middleware

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mnehpets/rpcserve/endpoint"
)

type payload struct {
	Msg string `cbor:"1,keyasint"`
	Num int    `cbor:"2,keyasint"`
}

func newKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, KeySize)
	if _, err := rand.Read(k); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return k
}

func TestSecureCookieRoundTrip(t *testing.T) {
	sc, err := NewSecureCookie("sc", "a", map[string][]byte{"a": newKey(t)}, WithSecure(false))
	if err != nil {
		t.Fatalf("NewSecureCookie: %v", err)
	}
	c, err := sc.Encode(payload{Msg: "hello", Num: 1}, time.Hour)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if c.Name != "sc" || c.Path != "/" || !c.HttpOnly || c.Secure || c.MaxAge != 3600 {
		t.Errorf("got cookie %+v, want name sc, path /, HttpOnly, MaxAge 3600", c)
	}
	if !strings.HasPrefix(c.Value, "a.") {
		t.Errorf("got value %q, want key id prefix", c.Value)
	}

	var got payload
	if err := sc.Decode(c, &got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != (payload{Msg: "hello", Num: 1}) {
		t.Errorf("got %+v, want {hello 1}", got)
	}
}

func TestSecureCookieRotation(t *testing.T) {
	k1, k2 := newKey(t), newKey(t)
	before, _ := NewSecureCookie("sc", "old", map[string][]byte{"old": k1})
	after, _ := NewSecureCookie("sc", "new", map[string][]byte{"old": k1, "new": k2})

	c, err := before.Encode(payload{Msg: "x"}, time.Minute)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got payload
	if err := after.Decode(c, &got); err != nil || got.Msg != "x" {
		t.Errorf("got (%+v, %v), want value sealed with old key", got, err)
	}
}

func TestSecureCookieRejects(t *testing.T) {
	key := newKey(t)
	sc, _ := NewSecureCookie("sc", "a", map[string][]byte{"a": key})
	other, _ := NewSecureCookie("other", "a", map[string][]byte{"a": key})
	c, _ := sc.Encode(payload{Msg: "x"}, time.Minute)

	sealed, _ := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(c.Value, "a."))
	sealed[len(sealed)-1] ^= 0xff
	tampered := &http.Cookie{Value: "a." + base64.RawURLEncoding.EncodeToString(sealed)}

	tests := []struct {
		name   string
		cookie *http.Cookie
		want   error
	}{
		{"nil", nil, ErrCookieFormat},
		{"no separator", &http.Cookie{Value: "abc"}, ErrCookieFormat},
		{"unknown key", &http.Cookie{Value: "zz." + strings.SplitN(c.Value, ".", 2)[1]}, ErrCookieInvalid},
		{"short", &http.Cookie{Value: "a.AAAA"}, ErrCookieFormat},
		{"tampered", tampered, ErrCookieInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got payload
			if err := sc.Decode(tt.cookie, &got); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	// A value sealed for one cookie name does not open under another.
	var got payload
	if err := other.Decode(c, &got); !errors.Is(err, ErrCookieInvalid) {
		t.Errorf("got %v, want %v", err, ErrCookieInvalid)
	}
}

func TestSecureCookieConfig(t *testing.T) {
	if _, err := NewSecureCookie("sc", "missing", map[string][]byte{"a": newKey(t)}); !errors.Is(err, ErrCookieConfig) {
		t.Errorf("missing key id: got %v, want %v", err, ErrCookieConfig)
	}
	if _, err := NewSecureCookie("sc", "a", map[string][]byte{"a": []byte("short")}); !errors.Is(err, ErrCookieConfig) {
		t.Errorf("short key: got %v, want %v", err, ErrCookieConfig)
	}
	sc, _ := NewSecureCookie("sc", "a", map[string][]byte{"a": newKey(t)})
	if _, err := sc.Encode(payload{}, 0); err == nil {
		t.Error("zero maxAge: got nil error")
	}
	if c := sc.Clear(); c.MaxAge != -1 || c.Value != "" {
		t.Errorf("got %+v, want cleared cookie", c)
	}
}

func TestParseKeys(t *testing.T) {
	k := base64.StdEncoding.EncodeToString(newKey(t))
	keys, err := ParseKeys("a:" + k + ", b:" + k)
	if err != nil {
		t.Fatalf("ParseKeys: %v", err)
	}
	if len(keys) != 2 || len(keys["a"]) != KeySize {
		t.Errorf("got %d keys, want 2 of %d bytes", len(keys), KeySize)
	}
	for _, bad := range []string{"a", "a:!!!", "a:" + base64.StdEncoding.EncodeToString([]byte("short"))} {
		if _, err := ParseKeys(bad); err == nil {
			t.Errorf("ParseKeys(%q): got nil error", bad)
		}
	}
}

func okEndpoint(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
	return &endpoint.StringRenderer{Body: "ok"}, nil
}

func TestHeadersProcessor(t *testing.T) {
	h := endpoint.Handler(okEndpoint, NewAPIHeadersProcessor("https://app.example"))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":      "nosniff",
		"X-Frame-Options":             "DENY",
		"Cache-Control":               "no-store",
		"Referrer-Policy":             "no-referrer",
		"Access-Control-Allow-Origin": "https://app.example",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s: got %q, want %q", k, got, v)
		}
	}
	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want 200", rec.Code)
	}
}

func TestHeadersProcessorCORS(t *testing.T) {
	h := endpoint.Handler(okEndpoint, NewAPIHeadersProcessor("https://app.example"))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantOrigin string
	}{
		{"preflight", http.MethodOptions, "https://app.example", http.StatusNoContent, "https://app.example"},
		{"other origin", http.MethodPost, "https://evil.example", http.StatusOK, ""},
		{"same origin", http.MethodPost, "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("got origin %q, want %q", got, tt.wantOrigin)
			}
		})
	}

	page := endpoint.Handler(okEndpoint, NewPageHeadersProcessor())
	rec := httptest.NewRecorder()
	page.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rec.Header().Get("Content-Security-Policy"), "default-src 'self'") {
		t.Errorf("got CSP %q, want page policy", rec.Header().Get("Content-Security-Policy"))
	}
}
