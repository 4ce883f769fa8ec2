package errors

import (
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI applications.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitUser indicates a user-related error (invalid input, configuration, etc.).
	ExitUser = 1

	// ExitSystem indicates a system-related error (I/O, network, permissions, etc.).
	ExitSystem = 2
)

// Sentinel errors classifying the failure stages of server initialization.
// Wrap these with cockroachdb/errors so callers can classify with [errors.Is]
// while keeping the original cause in the chain.
var (
	// ErrConfiguration indicates a malformed or conflicting server
	// configuration. Raised before any connection attempt for the server.
	ErrConfiguration = errors.New("invalid server configuration")

	// ErrConnection indicates transport construction or connect failure.
	ErrConnection = errors.New("connection failed")

	// ErrProtocol indicates a malformed or unexpected remote response
	// during initialize or catalog fetch.
	ErrProtocol = errors.New("protocol error")

	// ErrToolNotFound indicates the named tool is not present in any
	// connected server's catalog.
	ErrToolNotFound = errors.New("tool not found")

	// ErrClosed indicates an operation on a connection that has already
	// been released.
	ErrClosed = errors.New("connection closed")
)

// ServerInitError wraps a failure from one server's initialization task with
// the server's name. The broker joins these into the aggregate error it
// returns, so callers can attribute each failure to its server.
type ServerInitError struct {
	// Server is the name of the server whose initialization failed.
	Server string

	// Err is the underlying cause.
	Err error
}

// NewServerInitError wraps err with the originating server's name.
func NewServerInitError(server string, err error) *ServerInitError {
	return &ServerInitError{Server: server, Err: err}
}

// Error returns the server name followed by the underlying error message.
func (e *ServerInitError) Error() string {
	return fmt.Sprintf("server %q: %v", e.Server, e.Err)
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As
// to examine the error chain.
func (e *ServerInitError) Unwrap() error {
	return e.Err
}

// ExitError wraps an error with an exit code and optional suggestion for CLI applications.
// It implements the error interface and supports unwrapping via errors.Unwrap.
type ExitError struct {
	// Err is the underlying error that caused the exit.
	Err error

	// Code is the exit code to return to the operating system.
	Code int

	// Suggestion is an optional actionable suggestion for the user.
	Suggestion string
}

// NewExitError creates an ExitError with the given underlying error and exit code.
// If err is nil, the returned ExitError will have a nil Err field.
func NewExitError(err error, code int) *ExitError {
	return &ExitError{
		Err:  err,
		Code: code,
	}
}

// NewUserError creates an ExitError with ExitUser code and a suggestion.
func NewUserError(err error, suggestion string) *ExitError {
	return &ExitError{
		Err:        err,
		Code:       ExitUser,
		Suggestion: suggestion,
	}
}

// NewSystemError creates an ExitError with ExitSystem code and a suggestion.
func NewSystemError(err error, suggestion string) *ExitError {
	return &ExitError{
		Err:        err,
		Code:       ExitSystem,
		Suggestion: suggestion,
	}
}

// Render writes err to w in the CLI's error format and returns the exit
// code the process should use. An ExitError supplies its own code and an
// optional suggestion line; any other error exits with ExitUser.
func Render(w io.Writer, err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return ExitUser
	}

	if exitErr.Err != nil {
		fmt.Fprintf(w, "Error: %v\n", exitErr.Err)
	}
	if exitErr.Suggestion != "" {
		fmt.Fprintf(w, "Hint: %s\n", exitErr.Suggestion)
	}
	return exitErr.Code
}

// Error returns the error message from the underlying error.
// If the underlying error is nil, it returns a generic message with the exit code.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As
// to examine the error chain.
func (e *ExitError) Unwrap() error {
	return e.Err
}
