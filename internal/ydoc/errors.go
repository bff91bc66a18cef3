package ydoc

import (
	"errors"
	"fmt"

	"github.com/roach88/ydoc/internal/classify"
	"github.com/roach88/ydoc/internal/engine"
)

// Error represents a failure reported by a document, transaction or
// shared container handle.
//
// Errors are returned to the immediate caller and abort only the current
// operation. They never poison the transaction: the caller may keep using it.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Value describes the offending value or position, when there is one.
	Value string

	// Err is the lower-level cause, if any.
	Err error
}

// ErrorCode categorizes errors.
type ErrorCode string

const (
	// ErrCodeUnsupportedType indicates a value with no document representation.
	ErrCodeUnsupportedType ErrorCode = "UNSUPPORTED_TYPE"

	// ErrCodeAlreadyIntegrated indicates a container handle that already lives
	// in a document was inserted again.
	ErrCodeAlreadyIntegrated ErrorCode = "ALREADY_INTEGRATED"

	// ErrCodeCrossDocument indicates a handle and a transaction belonging to
	// different documents.
	ErrCodeCrossDocument ErrorCode = "CROSS_DOCUMENT"

	// ErrCodeIndexOutOfRange indicates a position outside the container.
	ErrCodeIndexOutOfRange ErrorCode = "INDEX_OUT_OF_RANGE"

	// ErrCodeAlreadyCommitted indicates use of a committed transaction.
	ErrCodeAlreadyCommitted ErrorCode = "ALREADY_COMMITTED"

	// ErrCodeStaleEvent indicates event data read after its callback returned.
	ErrCodeStaleEvent ErrorCode = "STALE_EVENT"

	// ErrCodeEncoding indicates a malformed update, state vector or sync message.
	ErrCodeEncoding ErrorCode = "ENCODING"

	// ErrCodePreliminaryObservation indicates an observer registered on a
	// container that is not part of a document yet.
	ErrCodePreliminaryObservation ErrorCode = "PRELIMINARY_OBSERVATION"

	// ErrCodePreliminaryOperation indicates an operation that needs a live
	// container, attempted on a preliminary one.
	ErrCodePreliminaryOperation ErrorCode = "PRELIMINARY_OPERATION"

	// ErrCodeKeyNotFound indicates a missing map key.
	ErrCodeKeyNotFound ErrorCode = "KEY_NOT_FOUND"

	// ErrCodeInvalidOption indicates a bad document option.
	ErrCodeInvalidOption ErrorCode = "INVALID_OPTION"

	// ErrCodeKindMismatch indicates a root requested with a different kind
	// than it already has.
	ErrCodeKindMismatch ErrorCode = "KIND_MISMATCH"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s (value=%s)", e.Code, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the lower-level cause.
func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code of err, or "" when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var ye *Error
	if errors.As(err, &ye) {
		return ye.Code
	}
	return ""
}

// IsUnsupportedType returns true if the error reports an unclassifiable value.
// Uses errors.As to handle wrapped errors.
func IsUnsupportedType(err error) bool { return CodeOf(err) == ErrCodeUnsupportedType }

// IsAlreadyIntegrated returns true if the error reports handle reuse.
func IsAlreadyIntegrated(err error) bool { return CodeOf(err) == ErrCodeAlreadyIntegrated }

// IsCrossDocument returns true if the error reports a document mismatch.
func IsCrossDocument(err error) bool { return CodeOf(err) == ErrCodeCrossDocument }

// IsIndexOutOfRange returns true if the error reports a bad position.
func IsIndexOutOfRange(err error) bool { return CodeOf(err) == ErrCodeIndexOutOfRange }

// IsAlreadyCommitted returns true if the error reports a committed transaction.
func IsAlreadyCommitted(err error) bool { return CodeOf(err) == ErrCodeAlreadyCommitted }

// IsStaleTransaction is IsAlreadyCommitted; a stale transaction is one that
// has committed.
func IsStaleTransaction(err error) bool { return IsAlreadyCommitted(err) }

// IsStaleEvent returns true if the error reports an expired event.
func IsStaleEvent(err error) bool { return CodeOf(err) == ErrCodeStaleEvent }

// IsEncodingError returns true if the error reports malformed binary input.
func IsEncodingError(err error) bool { return CodeOf(err) == ErrCodeEncoding }

// IsKeyNotFound returns true if the error reports a missing key.
func IsKeyNotFound(err error) bool { return CodeOf(err) == ErrCodeKeyNotFound }

// IsPreliminary returns true if the error reports an operation that needs an
// integrated container.
func IsPreliminary(err error) bool {
	code := CodeOf(err)
	return code == ErrCodePreliminaryObservation || code == ErrCodePreliminaryOperation
}

func newError(code ErrorCode, value any, format string, args ...any) *Error {
	e := &Error{Code: code, Message: fmt.Sprintf(format, args...)}
	if value != nil {
		e.Value = describe(value)
	}
	return e
}

func errAlreadyCommitted() *Error {
	return &Error{Code: ErrCodeAlreadyCommitted, Message: "transaction already committed"}
}

func errIndex(index, length int) *Error {
	return &Error{
		Code:    ErrCodeIndexOutOfRange,
		Message: fmt.Sprintf("index %d out of range (length %d)", index, length),
		Value:   fmt.Sprint(index),
	}
}

// describe renders a value for error messages, bounded in size.
func describe(v any) string {
	s := fmt.Sprintf("%T(%v)", v, v)
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}

// translate maps engine and classifier errors onto the public taxonomy.
// Errors that are already *Error pass through.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var ye *Error
	if errors.As(err, &ye) {
		return err
	}
	var ce *classify.Error
	if errors.As(err, &ce) {
		return &Error{Code: ErrCodeUnsupportedType, Message: ce.Error(), Value: ce.Type, Err: err}
	}
	var ee *engine.Error
	if errors.As(err, &ee) {
		code := ErrorCode(ee.Code)
		switch ee.Code {
		case engine.ErrCodeTransactionFinished:
			code = ErrCodeAlreadyCommitted
		case engine.ErrCodeIndexOutOfRange:
			code = ErrCodeIndexOutOfRange
		case engine.ErrCodeEncoding:
			code = ErrCodeEncoding
		case engine.ErrCodeKindMismatch:
			code = ErrCodeKindMismatch
		}
		return &Error{Code: code, Message: ee.Message, Value: ee.Details["index"], Err: err}
	}
	return err
}
