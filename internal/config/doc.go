// Package config handles configuration loading for the console.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	server:
//	  token: "${COVEN_TOKEN}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	stream:
//	  initial_backoff: "1s"
//	  max_backoff: "30s"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  base_url: "http://localhost:8080"
//	  token: "${COVEN_TOKEN}"
//
// History ledger:
//
//	history:
//	  path: "~/.local/share/coven/console-history.db"
//
// Trace presentation:
//
//	trace:
//	  locale: "en"   # BCP 47 tag; "zh-Hans" is bundled
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
