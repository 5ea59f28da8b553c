package pieuvre

// errors.go — error taxonomy for the prover client and the synchronizer.

import (
	"errors"
	"fmt"
)

var (
	// ErrBinaryNotFound is matched by every *BinaryNotFoundError.
	ErrBinaryNotFound = errors.New("prover binary not found")

	// ErrNotStarted is returned when a command is sent before Start.
	ErrNotStarted = errors.New("prover not started")

	// ErrStartFailed reports that the ready handshake did not complete.
	ErrStartFailed = errors.New("prover start failed")

	// ErrStopped is returned for commands outstanding when Stop is called
	// and for commands sent after it.
	ErrStopped = errors.New("prover stopped")

	// ErrProverExited reports that the subprocess terminated on its own.
	ErrProverExited = errors.New("prover exited")

	// ErrCanceled marks a queued command that was discarded before it was
	// transmitted. The prover never saw it.
	ErrCanceled = errors.New("command canceled")

	// ErrAbandoned marks an in-flight command whose caller stopped waiting.
	// The prover may or may not have applied it.
	ErrAbandoned = errors.New("command abandoned while in flight")

	// ErrSuperseded is returned by a synchronization pass that was replaced
	// by a newer edit.
	ErrSuperseded = errors.New("synchronization superseded")

	// ErrSessionInvalid means the recorded sentences no longer match the
	// prover state and the session must be restarted.
	ErrSessionInvalid = errors.New("session state invalid")
)

// BinaryNotFoundError reports a missing or unconfigured prover executable.
type BinaryNotFoundError struct {
	Path string
}

func (e *BinaryNotFoundError) Error() string {
	if e.Path == "" {
		return "prover binary path not configured"
	}
	return fmt.Sprintf("prover binary not found at: %s", e.Path)
}

// Is makes errors.Is(err, ErrBinaryNotFound) hold.
func (e *BinaryNotFoundError) Is(target error) bool {
	return target == ErrBinaryNotFound
}

// ProverError is a reply framed with the error tag.
type ProverError struct {
	Kind    Kind
	Message string
}

func (e *ProverError) Error() string {
	return fmt.Sprintf("prover rejected %s: %s", e.Kind, e.Message)
}

// IsProverError reports whether err carries a prover rejection.
func IsProverError(err error) bool {
	var pe *ProverError
	return errors.As(err, &pe)
}
