package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/underwrite-ai/underwrite-go/pkg/realtime"
	"github.com/underwrite-ai/underwrite-go/pkg/socket"
)

// Auth modes.
const (
	ModeAPIKey = "apiKey"
	ModeBearer = "bearer"
)

// Config is the root of a configuration file.
type Config struct {
	Endpoint      string          `yaml:"endpoint"`
	Auth          AuthConfig      `yaml:"auth"`
	Reconnect     ReconnectConfig `yaml:"reconnect"`
	Capture       CaptureConfig   `yaml:"capture"`
	LogLevel      string          `yaml:"logLevel"`
	Stream        StreamConfig    `yaml:"stream"`
	Subscriptions []Subscription  `yaml:"subscriptions"`
}

// AuthConfig selects the credential. Exactly one source per mode is used,
// in the order: inline value, environment variable, file.
type AuthConfig struct {
	Mode      string `yaml:"mode"`
	APIKey    string `yaml:"apiKey"`
	APIKeyEnv string `yaml:"apiKeyEnv"`
	Token     string `yaml:"token"`
	TokenEnv  string `yaml:"tokenEnv"`
	TokenFile string `yaml:"tokenFile"`
}

// ReconnectConfig selects the reconnect policy.
type ReconnectConfig struct {
	Delay    time.Duration `yaml:"delay"`
	Backoff  bool          `yaml:"backoff"`
	MaxDelay time.Duration `yaml:"maxDelay"`
	Jitter   float64       `yaml:"jitter"`
}

// CaptureConfig configures protocol capture.
type CaptureConfig struct {
	File   string `yaml:"file"`
	Frames bool   `yaml:"frames"`
}

// StreamConfig configures a raw push stream.
type StreamConfig struct {
	URL        string `yaml:"url"`
	BufferSize int    `yaml:"bufferSize"`
}

// Subscription is a named GraphQL subscription document.
type Subscription struct {
	Name          string         `yaml:"name"`
	Query         string         `yaml:"query"`
	Variables     map[string]any `yaml:"variables"`
	OperationName string         `yaml:"operationName"`
}

// Request converts the document into a realtime request.
func (s Subscription) Request() realtime.Request {
	return realtime.Request{
		Query:         s.Query,
		Variables:     s.Variables,
		OperationName: s.OperationName,
	}
}

// ConfigError describes a configuration problem.
type ConfigError struct {
	// File is the configuration file, if known.
	File string

	// Field is the offending key, if known.
	Field string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{File: path, Message: "failed to read file", Cause: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.File = path
			return nil, ce
		}
		return nil, &ConfigError{File: path, Message: err.Error()}
	}
	return cfg, nil
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Message: "failed to parse YAML", Cause: err}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Reconnect.Delay <= 0 {
		c.Reconnect.Delay = socket.DefaultReconnectDelay
	}
	if c.Reconnect.Backoff {
		if c.Reconnect.MaxDelay <= 0 {
			c.Reconnect.MaxDelay = socket.DefaultMaxBackoff
		}
		if c.Reconnect.Jitter == 0 {
			c.Reconnect.Jitter = socket.DefaultJitter
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Endpoint != "" {
		if _, _, err := realtime.RealtimeURL(c.Endpoint); err != nil {
			return &ConfigError{Field: "endpoint", Message: "invalid endpoint", Cause: err}
		}
	}

	switch c.Auth.Mode {
	case "":
	case ModeAPIKey:
		if c.Auth.APIKey == "" && c.Auth.APIKeyEnv == "" {
			return &ConfigError{Field: "auth", Message: "apiKey mode needs apiKey or apiKeyEnv"}
		}
	case ModeBearer:
		if c.Auth.Token == "" && c.Auth.TokenEnv == "" && c.Auth.TokenFile == "" {
			return &ConfigError{Field: "auth", Message: "bearer mode needs token, tokenEnv or tokenFile"}
		}
	default:
		return &ConfigError{Field: "auth.mode", Message: fmt.Sprintf("unknown mode %q", c.Auth.Mode)}
	}

	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter > 1 {
		return &ConfigError{Field: "reconnect.jitter", Message: "must be between 0 and 1"}
	}
	if c.Reconnect.Backoff && c.Reconnect.MaxDelay < c.Reconnect.Delay {
		return &ConfigError{Field: "reconnect.maxDelay", Message: "must not be below reconnect.delay"}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return &ConfigError{Field: "logLevel", Message: fmt.Sprintf("unknown level %q", c.LogLevel)}
	}

	if c.Stream.URL != "" && !strings.HasPrefix(c.Stream.URL, "ws://") && !strings.HasPrefix(c.Stream.URL, "wss://") {
		return &ConfigError{Field: "stream.url", Message: "must be a ws:// or wss:// URL"}
	}

	seen := make(map[string]bool)
	for i, s := range c.Subscriptions {
		field := fmt.Sprintf("subscriptions[%d]", i)
		if s.Name == "" {
			return &ConfigError{Field: field, Message: "name is required"}
		}
		if seen[s.Name] {
			return &ConfigError{Field: field, Message: fmt.Sprintf("duplicate name %q", s.Name)}
		}
		seen[s.Name] = true
		if strings.TrimSpace(s.Query) == "" {
			return &ConfigError{Field: field, Message: "query is required"}
		}
	}
	return nil
}

// Subscription returns the named subscription document.
func (c *Config) Subscription(name string) (Subscription, bool) {
	for _, s := range c.Subscriptions {
		if s.Name == name {
			return s, true
		}
	}
	return Subscription{}, false
}

// RealtimeAuth builds the session credential, resolving environment
// variables now and token files on every use.
func (c *Config) RealtimeAuth() (realtime.Auth, error) {
	a := c.Auth
	switch a.Mode {
	case ModeAPIKey:
		key := a.APIKey
		if key == "" {
			key = os.Getenv(a.APIKeyEnv)
		}
		if key == "" {
			return realtime.Auth{}, &ConfigError{Field: "auth.apiKeyEnv", Message: fmt.Sprintf("environment variable %s is empty", a.APIKeyEnv)}
		}
		return realtime.APIKey(key), nil

	case ModeBearer:
		switch {
		case a.Token != "":
			return realtime.Bearer(a.Token), nil
		case a.TokenEnv != "":
			if os.Getenv(a.TokenEnv) == "" {
				return realtime.Auth{}, &ConfigError{Field: "auth.tokenEnv", Message: fmt.Sprintf("environment variable %s is empty", a.TokenEnv)}
			}
			env := a.TokenEnv
			return realtime.BearerFunc(func() string { return os.Getenv(env) }), nil
		default:
			if _, err := readToken(a.TokenFile); err != nil {
				return realtime.Auth{}, &ConfigError{Field: "auth.tokenFile", Message: "cannot read token", Cause: err}
			}
			path := a.TokenFile
			return realtime.BearerFunc(func() string {
				token, _ := readToken(path)
				return token
			}), nil
		}

	default:
		return realtime.Auth{}, &ConfigError{Field: "auth.mode", Message: "no credentials configured"}
	}
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// ReconnectPolicy returns the configured socket reconnect policy.
func (c *Config) ReconnectPolicy() socket.ReconnectPolicy {
	if !c.Reconnect.Backoff {
		return socket.FixedDelay(c.Reconnect.Delay)
	}
	return socket.NewBackoff(socket.BackoffConfig{
		Initial: c.Reconnect.Delay,
		Max:     c.Reconnect.MaxDelay,
		Jitter:  c.Reconnect.Jitter,
	})
}
