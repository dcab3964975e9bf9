package fiber

import (
	"errors"
	"fmt"
)

// ErrCancelled is the error carried by a cancelled fiber.
// Use IsCancelled (or errors.Is) to check for it.
var ErrCancelled = errors.New("cancelled")

// IsCancelled reports whether err is (or wraps) ErrCancelled.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// FiberError represents a failure detected by the runtime itself, as opposed
// to an error returned by a user function.
type FiberError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// FiberID identifies the affected fiber (0 when not tied to a fiber).
	FiberID int

	// Err is the underlying error, if any.
	Err error
}

// ErrorCode categorizes runtime errors.
type ErrorCode string

const (
	// ErrCodeZeroDurationRepeat indicates a repeat without an end condition
	// whose iteration took no time.
	ErrCodeZeroDurationRepeat ErrorCode = "ZERO_DURATION_REPEAT"

	// ErrCodeQuotaExceeded indicates a fiber was resumed too many times
	// within a single instant.
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeNameInUse indicates a fiber name is already taken by another
	// live fiber.
	ErrCodeNameInUse ErrorCode = "NAME_IN_USE"

	// ErrCodeInvalidDuration indicates a duration that is not a number >= 0.
	ErrCodeInvalidDuration ErrorCode = "INVALID_DURATION"

	// ErrCodeAlreadyScheduled indicates an attempt to schedule a fiber that
	// is already scheduled.
	ErrCodeAlreadyScheduled ErrorCode = "ALREADY_SCHEDULED"

	// ErrCodeNilDeferred indicates an async function returned no deferred.
	ErrCodeNilDeferred ErrorCode = "NIL_DEFERRED"

	// ErrCodeInvalidTime indicates a NaN scheduling time.
	ErrCodeInvalidTime ErrorCode = "INVALID_TIME"
)

// Error implements the error interface.
func (e *FiberError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.FiberID != 0 {
		msg = fmt.Sprintf("%s (fiber=%d)", msg, e.FiberID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *FiberError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var fe *FiberError
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// IsZeroDurationRepeat returns true if err reports a zero-duration repeat.
func IsZeroDurationRepeat(err error) bool {
	return hasCode(err, ErrCodeZeroDurationRepeat)
}

// IsQuotaError returns true if err reports a runaway fiber.
func IsQuotaError(err error) bool {
	return hasCode(err, ErrCodeQuotaExceeded)
}

// IsNameInUse returns true if err reports a duplicate fiber name.
func IsNameInUse(err error) bool {
	return hasCode(err, ErrCodeNameInUse)
}

func newZeroDurationRepeatError(fiberID int) *FiberError {
	return &FiberError{
		Code:    ErrCodeZeroDurationRepeat,
		Message: "repeat iteration took no time and has no end condition",
		FiberID: fiberID,
	}
}

func newQuotaError(fiberID, runs, max int) *FiberError {
	return &FiberError{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("fiber resumed too many times in one instant (%d > %d)", runs, max),
		FiberID: fiberID,
	}
}

func newNameInUseError(name string, fiberID int) *FiberError {
	return &FiberError{
		Code:    ErrCodeNameInUse,
		Message: fmt.Sprintf("name %q is already in use", name),
		FiberID: fiberID,
	}
}

func newInvalidDurationError(fiberID int, err error) *FiberError {
	return &FiberError{
		Code:    ErrCodeInvalidDuration,
		Message: "duration is not a number >= 0",
		FiberID: fiberID,
		Err:     err,
	}
}
