// Package logging provides structured logging for the OpenBCI service.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the service. It provides both general logging
// functions and specialized functions for device-link logging needs.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (hex dumps, command bytes, sample values)
//   - Info: Normal operations (connections, board responses, state changes)
//   - Warn: Non-fatal issues (dropped samples, desyncs, slow consumers)
//   - Error: Link failures and unexpected errors
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Board response",
//	    zap.String("endpoint", "/dev/ttyUSB0"),
//	    zap.String("text", "OpenBCI V3 8-16 channel"),
//	)
//
// # Configuration
//
// Initialize logging at startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// When no level is given and OPENBCI_LOG_LEVEL is unset, a no-op logger is
// used so library code never prints unexpectedly.
//
// # File Loggers
//
// NewFileLogger builds an independent JSON logger bound to one file. The
// raw debug-byte sink uses it; the caller owns its lifecycle.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. SetLogger is meant
// for tests and must not race with logging calls.
package logging
