package engine

import (
	"errors"
	"fmt"
)

// Error represents a failure detected inside the document engine.
//
// Engine errors include:
//   - Encoding: a binary update or state vector could not be decoded
//   - Index out of range: a position beyond the container's length
//   - Transaction finished: a mutation through a committed transaction
//   - Kind mismatch: a root requested with a different container kind
//
// Error includes structured fields for diagnostics.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeEncoding indicates malformed binary input.
	ErrCodeEncoding ErrorCode = "ENCODING"

	// ErrCodeIndexOutOfRange indicates a position outside the container.
	ErrCodeIndexOutOfRange ErrorCode = "INDEX_OUT_OF_RANGE"

	// ErrCodeTransactionFinished indicates use of a committed transaction.
	ErrCodeTransactionFinished ErrorCode = "TRANSACTION_FINISHED"

	// ErrCodeKindMismatch indicates a root already defined with another kind.
	ErrCodeKindMismatch ErrorCode = "KIND_MISMATCH"
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code ErrorCode) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsEncodingError returns true if the error is a decoding failure.
// Uses errors.As to handle wrapped errors.
func IsEncodingError(err error) bool { return hasCode(err, ErrCodeEncoding) }

// IsIndexOutOfRange returns true if the error is an out-of-range position.
func IsIndexOutOfRange(err error) bool { return hasCode(err, ErrCodeIndexOutOfRange) }

// IsTransactionFinished returns true if the error reports a committed transaction.
func IsTransactionFinished(err error) bool { return hasCode(err, ErrCodeTransactionFinished) }

// IsKindMismatch returns true if the error reports a root kind conflict.
func IsKindMismatch(err error) bool { return hasCode(err, ErrCodeKindMismatch) }

// newEncodingError creates an Error for malformed binary input.
func newEncodingError(format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeEncoding,
		Message: fmt.Sprintf(format, args...),
	}
}

// newIndexError creates an Error for an out-of-range position.
func newIndexError(index, length int) *Error {
	return &Error{
		Code:    ErrCodeIndexOutOfRange,
		Message: fmt.Sprintf("index %d out of range (length %d)", index, length),
		Details: map[string]string{
			"index":  fmt.Sprintf("%d", index),
			"length": fmt.Sprintf("%d", length),
		},
	}
}

var errTransactionFinished = &Error{
	Code:    ErrCodeTransactionFinished,
	Message: "transaction already committed",
}
