// Package config handles configuration loading for the support-chat
// client.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from YCYW_CHAT_CONFIG environment variable
//  2. ~/.config/ycyw/chat.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token: "${YCYW_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	broker:
//	  reconnect_delay: "5s"
//	  handshake_timeout: "10s"
//
// # Configuration Sections
//
// Broker settings:
//
//	broker:
//	  url: "wss://support.ycyw.example/ws"
//	  reconnect_delay: "5s"
//	  handshake_timeout: "10s"
//
// Backend API:
//
//	api:
//	  base_url: "https://support.ycyw.example/api"
//	  request_timeout: "10s"
//
// Authentication:
//
//	auth:
//	  token: "${YCYW_TOKEN}"
//	  token_file: "~/.config/ycyw/token"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
