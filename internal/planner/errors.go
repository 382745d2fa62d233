package planner

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes planning errors.
type ErrorCode string

const (
	// ErrCodeDuplicateOutput indicates two jobs declare the same output.
	ErrCodeDuplicateOutput ErrorCode = "DUPLICATE_OUTPUT"

	// ErrCodeInvalidOptions indicates the option set cannot be planned.
	ErrCodeInvalidOptions ErrorCode = "INVALID_OPTIONS"

	// ErrCodeUnresolvedPlaceholder indicates a placeholder module was
	// never replaced by a concrete one.
	ErrCodeUnresolvedPlaceholder ErrorCode = "UNRESOLVED_PLACEHOLDER"

	// ErrCodeModuleCycle indicates the module dependency graph has a cycle.
	ErrCodeModuleCycle ErrorCode = "MODULE_CYCLE"

	// ErrCodeInPlaceConflict indicates an in-place job was combined with
	// other work.
	ErrCodeInPlaceConflict ErrorCode = "IN_PLACE_CONFLICT"
)

// PlanningError is a fatal error detected before anything runs.
type PlanningError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PlanningError) Unwrap() error {
	return e.Err
}

// HasCode reports whether err is a PlanningError with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code ErrorCode) bool {
	var pe *PlanningError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// IsDuplicateOutputError returns true if err reports a producer collision.
func IsDuplicateOutputError(err error) bool {
	return HasCode(err, ErrCodeDuplicateOutput)
}

// IsPlanningError returns true if err is any PlanningError.
func IsPlanningError(err error) bool {
	var pe *PlanningError
	return errors.As(err, &pe)
}

func invalidOptions(format string, args ...any) *PlanningError {
	return &PlanningError{Code: ErrCodeInvalidOptions, Message: fmt.Sprintf(format, args...)}
}
