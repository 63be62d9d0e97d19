// Package errdefs defines the error types shared across the hackerrun
// choreographies. Callers match them with errors.As to decide whether a
// failure is fatal, retryable-by-rerun, or merely worth a warning.
package errdefs

import "fmt"

// ValidationError reports bad or missing local input: an absent services
// section, an unknown service name, a malformed address, port, or email.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validation builds a ValidationError from a format string.
func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConnectionError reports an SSH authentication or handshake failure.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// CommandError reports a remote command that exited nonzero. It carries the
// exit status and the captured stderr so callers can surface both.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("remote command %q exited with status %d: %s", e.Command, e.ExitCode, e.Stderr)
}

// TransferError reports a failed file upload.
type TransferError struct {
	Path string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("failed to transfer %s: %v", e.Path, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ArchiveError reports a packaging fault. A failed build may leave a
// truncated output file behind; callers must not assume otherwise.
type ArchiveError struct {
	Err error
}

func (e *ArchiveError) Error() string { return fmt.Sprintf("failed to build archive: %v", e.Err) }

func (e *ArchiveError) Unwrap() error { return e.Err }

// ContextError reports an unknown or unusable Docker execution context.
type ContextError struct {
	Name string
	Msg  string
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("docker context %q: %s", e.Name, e.Msg)
}
