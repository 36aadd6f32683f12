package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnparsableResponse means the model text did not match the expected
	// answer shape. Recovered via retry or the caller-supplied fallback.
	ErrUnparsableResponse = errors.New("llm: unparsable model response")

	// ErrEmptyResponse means the endpoint answered without any text payload.
	// Treated as transient and retried.
	ErrEmptyResponse = errors.New("llm: empty model response")

	// ErrBackendNotFound means the local backend executable could not be
	// located on the system.
	ErrBackendNotFound = errors.New("llm: ollama binary not found, install it from https://ollama.com/download or set OLLAMA_BIN")

	// ErrServiceUnavailable means the local backend could not be readied
	// (startup deadline exceeded or model pull failed).
	ErrServiceUnavailable = errors.New("llm: local inference service unavailable")
)

// InferenceUnavailableError is returned after the retry budget is exhausted
// on persistent network or HTTP failures. Parse and confidence failures never
// produce it; those resolve to the fallback instead.
type InferenceUnavailableError struct {
	Attempts int
	Err      error
}

func (e *InferenceUnavailableError) Error() string {
	return fmt.Sprintf("llm: inference unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *InferenceUnavailableError) Unwrap() error {
	return e.Err
}
