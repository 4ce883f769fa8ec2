// Package errors provides error handling conventions for toolmux.
//
// This package defines sentinel errors classifying the stages at which a
// server initialization can fail, a ServerInitError type attributing a
// failure to its server, and an ExitError type for CLI exit code handling.
//
// # Failure taxonomy
//
// Initialization failures fall into three classes, each with a sentinel
// checked via [errors.Is]:
//
//   - ErrConfiguration: the server config is malformed or self-contradictory.
//     Detected before any connection attempt.
//   - ErrConnection: the transport could not be constructed or connected.
//   - ErrProtocol: the remote side answered, but not with a valid response.
//
// Tool invocation failures are deliberately absent from this taxonomy: the
// tool binder converts them into textual results rather than errors, so a
// calling agent loop observes a failed call instead of crashing on it.
//
// # Exit codes
//
// The package defines standard exit codes for CLI applications:
//
//   - ExitSuccess (0): Command completed successfully
//   - ExitUser (1): User-related error (invalid input, configuration, etc.)
//   - ExitSystem (2): System-related error (I/O, network, permissions, etc.)
package errors
