// Package logging provides structured logging for envsensor.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the device agent.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Tinted text output for an attached terminal (github.com/lmittmann/tint)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stderr"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("connected", "endpoint", cfg.MQTT.Endpoint)
//	logger.Error("publish failed", "error", err)
//
// # Security
//
// Never log private keys, signed websocket URLs or InfluxDB tokens.
package logging
