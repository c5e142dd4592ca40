package middleware

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrCookieFormat  = errors.New("invalid cookie format")
	ErrCookieInvalid = errors.New("invalid cookie")
	ErrCookieConfig  = errors.New("invalid secure cookie configuration")
)

// maxCookieLen bounds the value size we are willing to decode.
const maxCookieLen = 8192

// KeySize is the key length in bytes.
const KeySize = chacha20poly1305.KeySize

// SecureCookie seals values into cookies with XChaCha20-Poly1305.
//
// The cookie value is keyID "." base64url(nonce || ciphertext). The cookie
// name and path are bound as additional data, so a value cannot be replayed
// under another cookie. keys holds every accepted key; keyID selects the one
// used for sealing, which allows rotation.
type SecureCookie struct {
	name   string
	path   string
	secure bool
	keyID  string
	keys   map[string]cipher.AEAD
}

// SecureCookieOption configures a SecureCookie.
type SecureCookieOption func(*SecureCookie)

// WithPath sets the cookie path. Defaults to "/".
func WithPath(path string) SecureCookieOption {
	return func(sc *SecureCookie) {
		sc.path = path
	}
}

// WithSecure sets the Secure attribute. Defaults to true.
func WithSecure(secure bool) SecureCookieOption {
	return func(sc *SecureCookie) {
		sc.secure = secure
	}
}

// NewSecureCookie returns a SecureCookie named name.
func NewSecureCookie(name, keyID string, keys map[string][]byte, opts ...SecureCookieOption) (*SecureCookie, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty cookie name", ErrCookieConfig)
	}
	if _, ok := keys[keyID]; !ok {
		return nil, fmt.Errorf("%w: key %q not found", ErrCookieConfig, keyID)
	}
	sc := &SecureCookie{name: name, path: "/", secure: true, keyID: keyID, keys: make(map[string]cipher.AEAD, len(keys))}
	for id, k := range keys {
		aead, err := chacha20poly1305.NewX(k)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrCookieConfig, id, err)
		}
		sc.keys[id] = aead
	}
	for _, opt := range opts {
		opt(sc)
	}
	if sc.path == "" {
		sc.path = "/"
	}
	return sc, nil
}

// Name returns the cookie name.
func (sc *SecureCookie) Name() string {
	return sc.name
}

func (sc *SecureCookie) aad() []byte {
	return []byte(sc.name + ":" + sc.path)
}

// Encode marshals v with CBOR, seals it and returns the cookie.
func (sc *SecureCookie) Encode(v any, maxAge time.Duration) (*http.Cookie, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("%w: maxAge must be positive", ErrCookieConfig)
	}
	plain, err := cbor.Marshal(v)
	if err != nil {
		return nil, err
	}
	aead := sc.keys[sc.keyID]
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := aead.Seal(nonce, nonce, plain, sc.aad())
	return &http.Cookie{
		Name:     sc.name,
		Value:    sc.keyID + "." + base64.RawURLEncoding.EncodeToString(sealed),
		Path:     sc.path,
		MaxAge:   int(maxAge / time.Second),
		Expires:  time.Now().Add(maxAge),
		Secure:   sc.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Decode opens the cookie and unmarshals its value into v.
func (sc *SecureCookie) Decode(c *http.Cookie, v any) error {
	if c == nil || len(c.Value) == 0 || len(c.Value) > maxCookieLen {
		return ErrCookieFormat
	}
	keyID, enc, ok := strings.Cut(c.Value, ".")
	if !ok || keyID == "" || enc == "" {
		return ErrCookieFormat
	}
	aead, ok := sc.keys[keyID]
	if !ok {
		return ErrCookieInvalid
	}
	sealed, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return ErrCookieFormat
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return ErrCookieFormat
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, sc.aad())
	if err != nil {
		return ErrCookieInvalid
	}
	return cbor.Unmarshal(plain, v)
}

// Clear returns a cookie that removes this one from the client.
func (sc *SecureCookie) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     sc.name,
		Path:     sc.path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   sc.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ParseKeys parses "id:base64" pairs separated by commas, the format used
// in configuration.
func ParseKeys(s string) (map[string][]byte, error) {
	keys := map[string][]byte{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, enc, ok := strings.Cut(pair, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: key %q is not id:base64", ErrCookieConfig, pair)
		}
		k, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrCookieConfig, id, err)
		}
		if len(k) != KeySize {
			return nil, fmt.Errorf("%w: key %q must be %d bytes", ErrCookieConfig, id, KeySize)
		}
		keys[id] = k
	}
	return keys, nil
}
