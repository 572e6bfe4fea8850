// ABOUTME: Entry point for the ycyw-chat terminal support client
// ABOUTME: Wires config, auth, transport, and session into the interactive loop

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/ycyw/support-chat/internal/api"
	"github.com/ycyw/support-chat/internal/auth"
	"github.com/ycyw/support-chat/internal/config"
	"github.com/ycyw/support-chat/internal/delivery"
	"github.com/ycyw/support-chat/internal/dispatch"
	"github.com/ycyw/support-chat/internal/session"
	"github.com/ycyw/support-chat/internal/subscription"
	"github.com/ycyw/support-chat/internal/transport"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _   _  ___ _   ___      __   ___| |__   __ _| |_
| | | |/ __| | | \ \ /\ / /  / __| '_ \ / _' | __|
| |_| | (__| |_| |\ V  V /  | (__| | | | (_| | |_
 \__, |\___|\__, | \_/\_/    \___|_| |_|\__,_|\__|
 |___/      |___/
`

// getConfigPath returns the path to the client config file.
// Priority: YCYW_CHAT_CONFIG env var > XDG_CONFIG_HOME/ycyw/chat.yaml > ~/.config/ycyw/chat.yaml
func getConfigPath() string {
	if envPath := os.Getenv("YCYW_CHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "ycyw", "chat.yaml")
}

func main() {
	tokenFlag := flag.String("token", "", "bearer token (overrides config and YCYW_TOKEN)")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: ycyw-chat [flags] [command]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  chat     Start the interactive client (default)")
		fmt.Fprintln(os.Stderr, "  init     Write a starter config file")
		fmt.Fprintln(os.Stderr, "  whoami   Show the identity asserted by the current token")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Flags:")
		flag.PrintDefaults()
	}
	flag.Parse()

	command := "chat"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch command {
	case "chat":
		err = runChat(ctx, *tokenFlag)
	case "init":
		err = runInit()
	case "whoami":
		err = runWhoami(*tokenFlag)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// tokenSources builds the credential lookup chain:
// flag > YCYW_TOKEN > config token > config token file > default token file.
func tokenSources(cfg *config.Config, tokenFlag string) auth.Chain {
	chain := auth.Chain{
		auth.StaticTokenSource(tokenFlag),
		auth.EnvTokenSource("YCYW_TOKEN"),
		auth.StaticTokenSource(cfg.Auth.Token),
	}
	if cfg.Auth.TokenFile != "" {
		chain = append(chain, auth.FileTokenSource(cfg.Auth.TokenFile))
	}
	if defaultPath := auth.DefaultTokenPath(); defaultPath != "" {
		chain = append(chain, auth.FileTokenSource(defaultPath))
	}
	return chain
}

func runChat(ctx context.Context, tokenFlag string) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	tokens := tokenSources(cfg, tokenFlag)
	token, err := tokens.Token()
	if err != nil {
		token = ""
	}

	viewer := &auth.Identity{Role: auth.RoleUser}
	if token != "" {
		viewer, err = auth.IdentityFromToken(token)
		if err != nil {
			logger.Warn("credential unusable, continuing without real-time channel", "error", err)
			viewer = &auth.Identity{Role: auth.RoleUser}
			token = ""
		}
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config: %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Broker: %s\n", cfg.Broker.URL)
	green.Print("    ▶ ")
	fmt.Printf("API:    %s\n", cfg.API.BaseURL)
	if viewer.Email != "" {
		green.Print("    ▶ ")
		fmt.Printf("User:   %s (%s)\n", viewer.Email, strings.ToLower(string(viewer.Role)))
	}
	fmt.Println()

	logger.Info("starting ycyw-chat",
		"config", configPath,
		"broker_url", cfg.Broker.URL,
		"api_base_url", cfg.API.BaseURL,
	)

	backend := api.NewClient(cfg.API.BaseURL, cfg.API.RequestTimeout, tokens, logger)

	conn := transport.NewConn(transport.Config{
		URL:              cfg.Broker.URL,
		ReconnectDelay:   cfg.Broker.ReconnectDelay,
		HandshakeTimeout: cfg.Broker.HandshakeTimeout,
	}, logger)

	registry := subscription.NewRegistry(conn, logger)
	dispatcher := dispatch.New(registry, logger)
	defer dispatcher.Close()
	conn.SetHandler(dispatcher)
	conn.OnTeardown(registry.Clear)

	sender := delivery.New(conn, backend, viewer.UserID, logger)

	sess := session.New(conn, registry, sender, backend, viewer, logger)
	sess.Start(ctx, token)
	defer sess.Stop()

	return runRepl(ctx, sess)
}

func runWhoami(tokenFlag string) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	token, err := tokenSources(cfg, tokenFlag).Token()
	if err != nil {
		return fmt.Errorf("no token found: set YCYW_TOKEN or auth.token in config")
	}

	viewer, err := auth.IdentityFromToken(token)
	if err != nil {
		return fmt.Errorf("inspecting token: %w", err)
	}

	fmt.Printf("User ID: %d\n", viewer.UserID)
	fmt.Printf("Email:   %s\n", viewer.Email)
	fmt.Printf("Role:    %s\n", viewer.Role)
	if !viewer.ExpiresAt.IsZero() {
		fmt.Printf("Expires: %s\n", viewer.ExpiresAt.Format("Jan 02, 2006 15:04"))
	}
	return nil
}

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	configContent := `# ycyw-chat configuration
# Generated by ycyw-chat init

broker:
  url: "wss://support.ycyw.example/ws"
  reconnect_delay: "5s"
  handshake_timeout: "10s"

api:
  base_url: "https://support.ycyw.example/api"
  request_timeout: "10s"

auth:
  token: "${YCYW_TOKEN}"

logging:
  level: "info"
  format: "text"
`

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	fmt.Println()
	fmt.Println("Edit the broker and API endpoints, then:")
	fmt.Println("  export YCYW_TOKEN=<your token>")
	fmt.Println("  ycyw-chat")

	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Logs go to stderr so they interleave cleanly with chat output on
	// stdout.
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
