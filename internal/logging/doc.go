// Package logging provides structured logging for toolmux using slog.
//
// The package supports both text and JSON output formats, configurable log
// levels, and helpers for testing. All loggers are based on the standard
// library's [log/slog] package. Loggers are constructed once per top-level
// call and passed down explicitly; nothing in this package holds mutable
// global state.
//
// Attribute values whose keys look credential-bearing (authorization, token,
// api_key, ...) are masked in text output, since server manifests routinely
// carry bearer tokens that would otherwise leak through connection debug
// logging.
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{
//		Level:  slog.LevelInfo,
//		Format: logging.FormatText,
//		Output: os.Stderr,
//	})
//	logger.Info("starting", "version", "1.0.0")
//
// # Testing
//
// For tests, use [ForTest] to capture log output via the testing framework:
//
//	func TestSomething(t *testing.T) {
//		logger := logging.ForTest(t)
//		// logs appear in test output on failure
//	}
//
// # Quiet Mode
//
// Use [NewDiscard] when log output should be suppressed entirely:
//
//	logger := logging.NewDiscard()
package logging
