// Package logging provides structured logging for homecore.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same handler, level and default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	devLog := logger.Component("devices")
//	devLog.Warn("device update failed", "device", name, "error", err)
//
// Domain packages accept a small Logger interface instead of importing this
// package; *Logger satisfies all of them.
package logging
