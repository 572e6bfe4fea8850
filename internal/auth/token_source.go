// ABOUTME: Bearer credential sources for broker connect and API calls
// ABOUTME: Static value, environment variable, and XDG token file lookups

package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoToken means no credential is available. Callers treat this as
// "do not attempt to connect" rather than a fatal failure.
var ErrNoToken = errors.New("no token available")

// TokenSource supplies the bearer credential attached once at broker
// connect time and to every API request.
type TokenSource interface {
	Token() (string, error)
}

// StaticTokenSource returns a fixed token, typically from a flag.
type StaticTokenSource string

func (s StaticTokenSource) Token() (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// EnvTokenSource reads the token from an environment variable.
type EnvTokenSource string

func (e EnvTokenSource) Token() (string, error) {
	token := strings.TrimSpace(os.Getenv(string(e)))
	if token == "" {
		return "", fmt.Errorf("%w: %s not set", ErrNoToken, string(e))
	}
	return token, nil
}

// FileTokenSource reads the token from a file, trimming whitespace.
type FileTokenSource string

func (f FileTokenSource) Token() (string, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoToken, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNoToken, string(f))
	}
	return token, nil
}

// Chain tries each source in order and returns the first token found.
type Chain []TokenSource

func (c Chain) Token() (string, error) {
	for _, source := range c {
		token, err := source.Token()
		if err == nil {
			return token, nil
		}
	}
	return "", ErrNoToken
}

// DefaultTokenPath returns the conventional token file location:
// $XDG_CONFIG_HOME/ycyw/token, falling back to ~/.config/ycyw/token.
func DefaultTokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "ycyw", "token")
}
