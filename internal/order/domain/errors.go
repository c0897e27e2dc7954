package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                  = errors.New("order_not_found")
	ErrCycleNotActive            = errors.New("cycle_not_active")
	ErrNoProcessedEmployees      = errors.New("no_processed_employees")
	ErrMissingKit                = errors.New("missing_kit")
	ErrSizesPending              = errors.New("sizes_pending")
	ErrNoKitLines                = errors.New("no_kit_lines")
	ErrOrderNotReceivable        = errors.New("order_not_receivable")
	ErrReceptionExceedsRequested = errors.New("reception_exceeds_requested")
	ErrInvalidReception          = errors.New("invalid_reception")
)

// MissingKitError lists members whose kit could not be resolved.
type MissingKitError struct {
	Employees []EmployeeRef
}

func (e *MissingKitError) Error() string {
	return fmt.Sprintf("%s: %d employee(s) without a kit", ErrMissingKit.Error(), len(e.Employees))
}

func (e *MissingKitError) Is(target error) bool { return target == ErrMissingKit }

// SizesPendingError lists (employee, article) pairs that still need a size.
type SizesPendingError struct {
	Pending []PendingSize
}

func (e *SizesPendingError) Error() string {
	return fmt.Sprintf("%s: %d size selection(s) missing", ErrSizesPending.Error(), len(e.Pending))
}

func (e *SizesPendingError) Is(target error) bool { return target == ErrSizesPending }
