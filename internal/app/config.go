package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hllvc/toconline-mcp/internal/credstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Transport represents the MCP transport the server listens on.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// CredentialStorageType represents the storage backends for refresh credentials.
type CredentialStorageType string

const (
	CredentialStorageTypeKeyring CredentialStorageType = "keyring"
	CredentialStorageTypeFile    CredentialStorageType = "file"
	CredentialStorageTypeEnv     CredentialStorageType = "env"
)

// Default configuration values
const (
	DefaultConfigLogFormat        = LogFormatText
	DefaultConfigServerTransport  = TransportStdio
	DefaultConfigServerHost       = "127.0.0.1"
	DefaultConfigServerPort       = 8280
	DefaultConfigShutdownTimeout  = 5 * time.Second
	DefaultConfigAPIBaseURL       = "https://api10.toconline.pt"
	DefaultConfigOAuthTokenURL    = "https://app10.toconline.pt/oauth/token"
	DefaultConfigOAuthRedirectURI = "https://oauth.pstmn.io/v1/callback"
	DefaultConfigOAuthScope       = "commercial"
	DefaultConfigAuthStorage      = CredentialStorageTypeKeyring
	DefaultConfigMaxWriteCalls    = 50
)

// keyringService is the system keyring service name the credential lives under.
const keyringService = "toconline-mcp"

// envRefreshTokenKey is the variable the env storage backend reads.
const envRefreshTokenKey = "TOCONLINE_AUTH__REFRESH_TOKEN"

// ServerConfig holds MCP transport configuration.
type ServerConfig struct {
	Transport Transport `json:"transport" validate:"oneof=stdio http"`
	Host      string    `json:"host" validate:"hostname_rfc1123|ip"`
	Port      uint16    `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// APIConfig holds upstream TOC Online API configuration.
type APIConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
}

// OAuthConfig holds the OAuth2 provider endpoints and client identity.
type OAuthConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TokenURL     string `json:"token_url" validate:"required,url"`
	RedirectURI  string `json:"redirect_uri" validate:"required,url"`
	Scope        string `json:"scope"`
}

// AuthURL derives the authorization endpoint from the token endpoint; the
// provider exposes both under the same path prefix.
func (o *OAuthConfig) AuthURL() string {
	return strings.Replace(o.TokenURL, "/token", "/auth", 1)
}

// AuthConfig describes where credentials come from.
//
// A non-empty AccessToken short-circuits everything: it is used as a static
// bearer and never refreshed. Otherwise the storage backend is consulted,
// with RefreshToken as the headless fallback.
type AuthConfig struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`

	Storage CredentialStorageType `json:"storage" validate:"required,oneof=keyring file env"`

	// Storage-specific settings
	File        string `json:"file,omitempty"`         // For file storage: path to credential file
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: account identifier
}

// NewCredentialStore creates a credential store from the authentication
// configuration.
func (a *AuthConfig) NewCredentialStore() (credstore.Store, error) {
	switch a.Storage {
	case CredentialStorageTypeKeyring:
		return credstore.NewKeyringStore(keyringService, a.KeyringUser)
	case CredentialStorageTypeFile:
		return credstore.NewFileStore(a.File)
	case CredentialStorageTypeEnv:
		return credstore.NewEnvStore(envRefreshTokenKey)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// SafetyConfig holds the write-operation policy.
type SafetyConfig struct {
	// ReadOnly blocks every write tool call before it reaches the API.
	ReadOnly bool `json:"read_only"`

	// MaxWriteCalls bounds write tool calls per session. 0 disables the
	// limit; nil takes the default.
	MaxWriteCalls *int64 `json:"max_write_calls,omitempty" validate:"omitempty,min=0"`
}

// TelemetryConfig holds the optional OTLP log bridge settings.
type TelemetryConfig struct {
	Exporter string `json:"exporter" validate:"omitempty,oneof=otlp-grpc otlp-http stdout"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json"`
	Server    ServerConfig    `json:"server"`
	Shutdown  ShutdownConfig  `json:"shutdown"`
	API       APIConfig       `json:"api"`
	OAuth     OAuthConfig     `json:"oauth"`
	Auth      AuthConfig      `json:"auth"`
	Safety    SafetyConfig    `json:"safety"`
	Telemetry TelemetryConfig `json:"telemetry"`

	// Modules selects the tool modules to register. Empty loads all.
	Modules []string `json:"modules"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Server.Transport == "" {
		c.Server.Transport = DefaultConfigServerTransport
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultConfigAPIBaseURL
	}
	if c.OAuth.TokenURL == "" {
		c.OAuth.TokenURL = DefaultConfigOAuthTokenURL
	}
	if c.OAuth.RedirectURI == "" {
		c.OAuth.RedirectURI = DefaultConfigOAuthRedirectURI
	}
	if c.OAuth.Scope == "" {
		c.OAuth.Scope = DefaultConfigOAuthScope
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}
	if c.Safety.MaxWriteCalls == nil {
		limit := int64(DefaultConfigMaxWriteCalls)
		c.Safety.MaxWriteCalls = &limit
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case CredentialStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "toconline-mcp", "credential")
		}
	case CredentialStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case CredentialStorageTypeEnv:
		// env storage reads a fixed variable, nothing to derive
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	// OAuth flows need client credentials unless a static token bypasses them.
	if c.Auth.AccessToken == "" && c.OAuth.ClientID == "" {
		return errors.New("oauth.client_id required unless auth.access_token is set")
	}

	switch c.Auth.Storage {
	case CredentialStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case CredentialStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	case CredentialStorageTypeEnv:
	}

	return nil
}
