package coursesage

import (
	"errors"

	apperrors "github.com/yanqian/ai-helloworld/pkg/errors"
)

// Error taxonomy codes, matching §7 of the ingestion/agent specification.
const (
	CodeInput          = "input"
	CodeTransient      = "transient"
	CodeFatalExternal  = "fatal_external"
	CodeInvariant      = "invariant"
	CodeConflict       = "conflict"
	CodeTool           = "tool"
)

// ErrInvariant marks a chunker post-condition failure. Wrapped with
// apperrors.Wrap(CodeInvariant, ...) at the call site that raises it so
// callers can use apperrors.IsCode.
var ErrInvariant = errors.New("chunker invariant violated")

// ErrChunkerInput marks a malformed or empty PDF passed to the chunker.
var ErrChunkerInput = errors.New("chunker input error")

// ErrUnknownSearchType marks an outbound request naming an unsupported search type.
var ErrUnknownSearchType = errors.New("unknown search type")

// WrapInput wraps an error as a non-retryable input error.
func WrapInput(message string, err error) error {
	return apperrors.Wrap(CodeInput, message, err)
}

// WrapTransient wraps a retryable external error.
func WrapTransient(message string, err error) error {
	return apperrors.Wrap(CodeTransient, message, err)
}

// WrapFatalExternal wraps a non-retryable external error (auth, bad request).
func WrapFatalExternal(message string, err error) error {
	return apperrors.Wrap(CodeFatalExternal, message, err)
}

// WrapInvariant wraps a chunker/data invariant violation.
func WrapInvariant(message string, err error) error {
	return apperrors.Wrap(CodeInvariant, message, err)
}

// IsTransient reports whether err should be retried per §7.
func IsTransient(err error) bool {
	return apperrors.IsCode(err, CodeTransient)
}

// IsFatalExternal reports whether err must surface immediately, no retry.
func IsFatalExternal(err error) bool {
	return apperrors.IsCode(err, CodeFatalExternal)
}
