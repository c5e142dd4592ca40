// Package config provides server configuration loaded from environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:config"

// Config holds rpcserve configuration.
type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"rpcserve"`

	// HTTP listener (RPCSERVE_HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr        string        `envconfig:"RPCSERVE_HTTP_ADDR"`
	HTTPPort        int           `envconfig:"HTTP_PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"RPCSERVE_REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"RPCSERVE_SHUTDOWN_TIMEOUT" default:"10s"`
	MaxBodyBytes    int64         `envconfig:"RPCSERVE_MAX_BODY_BYTES" default:"1048576"`
	AllowedOrigins  []string      `envconfig:"RPCSERVE_ALLOWED_ORIGINS"`

	// Concurrency bounds the batch members executed at once.
	Concurrency int `envconfig:"RPCSERVE_CONCURRENCY" default:"8"`

	// NATS transport; disabled when COMMS_URL is empty.
	COMMSURL       string `envconfig:"COMMS_URL"`
	JSONRPCSubject string `envconfig:"RPCSERVE_JSONRPC_SUBJECT" default:"rpc.jsonrpc"`
	XMLRPCSubject  string `envconfig:"RPCSERVE_XMLRPC_SUBJECT" default:"rpc.xmlrpc"`
	Queue          string `envconfig:"RPCSERVE_QUEUE" default:"rpcserve"`

	// Identity
	Users          string        `envconfig:"RPCSERVE_USERS"`
	CookieKeys     string        `envconfig:"RPCSERVE_COOKIE_KEYS"`
	CookieMaxAge   time.Duration `envconfig:"RPCSERVE_COOKIE_MAX_AGE" default:"12h"`
	CookieInsecure bool          `envconfig:"RPCSERVE_COOKIE_INSECURE" default:"false"`
	OIDCIssuer     string        `envconfig:"OIDC_ISSUER"`
	OIDCClientID   string        `envconfig:"OIDC_CLIENT_ID"`
	SuperuserGroup string        `envconfig:"RPCSERVE_SUPERUSER_GROUP" default:"admin"`

	// Tracing
	OTELEndpoint string `envconfig:"RPCSERVE_OTEL_ENDPOINT"`
	OTELEnabled  bool   `envconfig:"RPCSERVE_OTEL_ENABLED" default:"true"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables. When envFile
// is not empty it is read first; variables already set take precedence. A
// missing envFile is not an error.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s - failed to load %s: %w", logPrefix, envFile, err)
		}
	}
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// ValidateForServe checks required config when running the server.
func (c *Config) ValidateForServe() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - RPCSERVE_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%s - RPCSERVE_SHUTDOWN_TIMEOUT must be positive", logPrefix)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("%s - RPCSERVE_MAX_BODY_BYTES must be positive", logPrefix)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%s - RPCSERVE_CONCURRENCY must be at least 1", logPrefix)
	}
	if c.COMMSURL != "" && (c.JSONRPCSubject == "" || c.XMLRPCSubject == "") {
		return fmt.Errorf("%s - RPCSERVE_JSONRPC_SUBJECT and RPCSERVE_XMLRPC_SUBJECT are required with COMMS_URL", logPrefix)
	}
	if (c.OIDCIssuer == "") != (c.OIDCClientID == "") {
		return fmt.Errorf("%s - OIDC_ISSUER and OIDC_CLIENT_ID must be set together", logPrefix)
	}
	if c.CookieKeys != "" && c.Users == "" {
		return fmt.Errorf("%s - RPCSERVE_COOKIE_KEYS requires RPCSERVE_USERS", logPrefix)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s - LOG_LEVEL must be one of debug, info, warn, error", logPrefix)
	}
	return nil
}
