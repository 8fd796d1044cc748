package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// --- Process errors ---

// InvalidCommand reports a command that has no program name after tokenization.
func InvalidCommand(raw string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidCommand, Message: "Invalid command: no program name",
		Details: map[string]any{"command": raw},
	}
}

// SpawnFailed reports that the OS refused to create the process. A missing or
// non-executable binary will not fix itself, so those causes are not retryable.
func SpawnFailed(binary string, cause error) *AppError {
	retryable := !(stderrors.Is(cause, exec.ErrNotFound) ||
		stderrors.Is(cause, fs.ErrNotExist) ||
		stderrors.Is(cause, fs.ErrPermission))
	return &AppError{
		Code: ErrCodeSpawnFailed, Message: fmt.Sprintf("Failed to start %s", binary),
		Retryable: retryable, Details: map[string]any{"binary": binary}, Cause: cause,
	}
}

// ProcessFailed reports a process that started but could not be observed to completion.
func ProcessFailed(binary string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeProcessFailed, Message: fmt.Sprintf("Process %s failed", binary),
		Retryable: true, Details: map[string]any{"binary": binary}, Cause: cause,
	}
}

// CommandFailed reports a non-zero exit that the caller decided is a failure.
// The trimmed stderr text is kept in the details.
func CommandFailed(command string, exitCode int, stderr string) *AppError {
	return &AppError{
		Code:    ErrCodeCommandFailed,
		Message: fmt.Sprintf("%s exited with code %d", command, exitCode),
		Details: map[string]any{
			"command":   command,
			"exit_code": exitCode,
			"stderr":    strings.TrimSpace(stderr),
		},
	}
}

// ParseFailed reports output that could not be decoded.
func ParseFailed(what string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeParseFailed, Message: fmt.Sprintf("Failed to parse %s output", what),
		Cause: cause,
	}
}

// FromContext maps a context error onto CANCELED or TIMEOUT.
func FromContext(operation string, cause error) *AppError {
	if stderrors.Is(cause, context.DeadlineExceeded) {
		return &AppError{
			Code: ErrCodeTimeout, Message: fmt.Sprintf("%s did not finish before the deadline", operation),
			Retryable: true, Details: map[string]any{"operation": operation}, Cause: cause,
		}
	}
	return &AppError{
		Code: ErrCodeCanceled, Message: fmt.Sprintf("%s was canceled", operation),
		Details: map[string]any{"operation": operation}, Cause: cause,
	}
}

// ServiceUnavailable creates a new AppError for a service that is temporarily unavailable.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code: ErrCodeServiceUnavailable, Message: fmt.Sprintf("The %s is temporarily unavailable.", service),
		Retryable: true, Details: map[string]any{"service": service},
	}
}

// --- Resource errors ---

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("The requested %s was not found.", resource),
		Details: details,
	}
}

// AlreadyExists creates a new AppError for a resource that already exists.
func AlreadyExists(resource, id string) *AppError {
	return &AppError{
		Code: ErrCodeAlreadyExists, Message: fmt.Sprintf("The %s %q already exists.", resource, id),
		Details: map[string]any{"resource": resource, "id": id},
	}
}

// --- Validation errors ---

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Message: message}
}

// MissingField creates a new AppError for a missing required field.
func MissingField(field string) *AppError {
	return &AppError{
		Code: ErrCodeMissingField, Message: fmt.Sprintf("Missing required field: %s", field),
		Details: map[string]any{"field": field},
	}
}

// Internal creates a new AppError for an unexpected state.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.", Cause: cause,
	}
}

// --- Inspection ---

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// IsRetryable reports whether err is an AppError marked retryable.
func IsRetryable(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Retryable
}

// Wrap converts any error to an AppError. AppErrors anywhere in the chain are
// returned as-is; anything else becomes an internal error.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return Internal(err)
}
