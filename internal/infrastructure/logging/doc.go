// Package logging provides structured logging for the access core.
//
// It wraps Go's standard log/slog package so every component logs the
// same way: JSON in production, text for local development, and default
// service/version fields on every entry.
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("access granted", "door_id", doorID, "device_id", deviceID)
//
// Never log PINs, PIN hashes, broker passwords or API keys.
package logging
