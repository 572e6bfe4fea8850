// ABOUTME: Configuration loading and parsing for the support-chat client
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves fields unset.
const (
	DefaultReconnectDelay   = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultRequestTimeout   = 10 * time.Second
)

// Config represents the complete support-chat client configuration
type Config struct {
	Broker  BrokerConfig  `yaml:"broker"`
	API     APIConfig     `yaml:"api"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
}

// BrokerConfig holds the WebSocket/STOMP broker connection settings
type BrokerConfig struct {
	// URL is the broker WebSocket endpoint (ws:// or wss://), e.g.
	// wss://support.ycyw.example/ws
	URL string `yaml:"url"`

	ReconnectDelay   time.Duration `yaml:"-"`
	HandshakeTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ReconnectDelayRaw   string `yaml:"reconnect_delay"`
	HandshakeTimeoutRaw string `yaml:"handshake_timeout"`
}

// APIConfig holds the backend REST API settings (history loading and
// the synchronous send fallback)
type APIConfig struct {
	BaseURL string `yaml:"base_url"`

	RequestTimeout time.Duration `yaml:"-"`

	RequestTimeoutRaw string `yaml:"request_timeout"`
}

// AuthConfig holds credential lookup configuration
type AuthConfig struct {
	// Token is the bearer token itself; usually supplied via ${YCYW_TOKEN}
	Token string `yaml:"token"`
	// TokenFile is a file containing the token, used when Token is empty
	TokenFile string `yaml:"token_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Broker.URL == "" {
		return fmt.Errorf("broker.url is required")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Broker.ReconnectDelay <= 0 {
		return fmt.Errorf("broker.reconnect_delay must be positive")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Broker.ReconnectDelay == 0 {
		c.Broker.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Broker.HandshakeTimeout == 0 {
		c.Broker.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.API.RequestTimeout == 0 {
		c.API.RequestTimeout = DefaultRequestTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Broker.ReconnectDelayRaw != "" {
		cfg.Broker.ReconnectDelay, err = time.ParseDuration(cfg.Broker.ReconnectDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing reconnect_delay %q: %w", cfg.Broker.ReconnectDelayRaw, err)
		}
	}

	if cfg.Broker.HandshakeTimeoutRaw != "" {
		cfg.Broker.HandshakeTimeout, err = time.ParseDuration(cfg.Broker.HandshakeTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing handshake_timeout %q: %w", cfg.Broker.HandshakeTimeoutRaw, err)
		}
	}

	if cfg.API.RequestTimeoutRaw != "" {
		cfg.API.RequestTimeout, err = time.ParseDuration(cfg.API.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.API.RequestTimeoutRaw, err)
		}
	}

	return nil
}
