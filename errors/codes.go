package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Command and process errors
const (
	// ErrCodeInvalidCommand indicates the command tokenized to nothing.
	ErrCodeInvalidCommand ErrorCode = "INVALID_COMMAND"
	// ErrCodeSpawnFailed indicates the OS could not create the process.
	ErrCodeSpawnFailed ErrorCode = "SPAWN_FAILED"
	// ErrCodeProcessFailed indicates the process was created but could not be
	// observed to completion (pipe failure, wait delay exceeded).
	ErrCodeProcessFailed ErrorCode = "PROCESS_FAILED"
	// ErrCodeCommandFailed indicates a command exited non-zero where the caller
	// treats that as a failure.
	ErrCodeCommandFailed ErrorCode = "COMMAND_FAILED"
	// ErrCodeParseFailed indicates command output could not be parsed.
	ErrCodeParseFailed ErrorCode = "PARSE_FAILED"
)

// Cancellation errors
const (
	// ErrCodeCanceled indicates the caller canceled the operation.
	ErrCodeCanceled ErrorCode = "CANCELED"
	// ErrCodeTimeout indicates the operation ran past its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeServiceUnavailable indicates the docker daemon or binary is not usable right now.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Resource errors
const (
	// ErrCodeNotFound indicates the requested container, image or network does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeAlreadyExists indicates the resource already exists.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
)

// ErrCodeInternal indicates a bug or an unexpected state.
const ErrCodeInternal ErrorCode = "INTERNAL_ERROR"

var retryableCodes = map[ErrorCode]bool{
	ErrCodeSpawnFailed:        true,
	ErrCodeProcessFailed:      true,
	ErrCodeTimeout:            true,
	ErrCodeServiceUnavailable: true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
