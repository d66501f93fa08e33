package booking

import (
	"errors"
	"fmt"

	"github.com/warp/travel-ledger/ledger"
	"github.com/warp/travel-ledger/payment"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")

	ErrAlreadyCancelled     = fmt.Errorf("%w: booking is already cancelled", ErrConflict)
	ErrNotCancelled         = fmt.Errorf("%w: booking is not cancelled", ErrConflict)
	ErrRefundRequiresCancel = fmt.Errorf("%w: booking must be cancelled before it can be refunded", ErrConflict)
	ErrAlreadyRefunded      = fmt.Errorf("%w: booking is already refunded", ErrConflict)
	ErrNoRefunds            = fmt.Errorf("%w: at least one refund amount is required", ErrValidation)
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		payment.IsClientError(err) ||
		ledger.IsClientError(err)
}

// IsConflict returns true if the request clashes with the booking state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || ledger.IsNotFound(err)
}
