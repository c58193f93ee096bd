// Package errors provides sentinel error definitions for sensord.
//
// The error taxonomy follows the propagation policy of the pipeline:
//
//   - End-of-stream conditions (broken socket, unlinked mailbox, closed pipe)
//     terminate one consumer loop and nothing else.
//   - Capacity and misuse conditions (payload over mailbox capacity, send on a
//     closed endpoint) are caller-visible and must not be swallowed.
//   - Decode failures are logged and skipped by the ingestion loop.
//   - Sink-local failures are isolated by the sink chain.
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Transport errors
	ErrEndOfStream     = errors.New("end of stream")
	ErrUnavailable     = errors.New("transport unavailable")
	ErrMessageTooLarge = errors.New("message exceeds transport capacity")
	ErrClosed          = errors.New("endpoint is closed")

	// Codec errors
	ErrDecodeFailure = errors.New("decode failure")
	ErrUnbalanced    = errors.New("no balanced payload found")

	// Sink errors
	ErrSinkClosed = errors.New("sink is closed")
	ErrQueueFull  = errors.New("sink queue full")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// IsEndOfStream returns true if err means the peer went away and the
// consumer loop should terminate normally.
func IsEndOfStream(err error) bool {
	return errors.Is(err, ErrEndOfStream)
}

// IsFatal returns true for conditions the caller must surface rather than
// retry or ignore.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMessageTooLarge) ||
		errors.Is(err, ErrClosed)
}

// IsSinkRejection returns true if a sink refused an append without the
// append being an error of the chain itself.
func IsSinkRejection(err error) bool {
	return errors.Is(err, ErrSinkClosed) ||
		errors.Is(err, ErrQueueFull)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
