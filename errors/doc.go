// Package errors provides unified error handling for dockerkit.
// It implements a structured error type with machine-readable codes and
// retryable detection, covering the process taxonomy (invalid command,
// spawn failure) and the docker CLI failures built on top of it.
package errors
