package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTransactionNotFound is returned by lookups by transaction id.
	// Lookups by booking and slot return nil instead.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInvalidAmount is returned when an amount is negative, zero where a
	// positive value is required, or carries an unknown currency.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidSlot is returned when a slot key cannot be parsed.
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrInvalidReference is returned by Create when the booking reference
	// is empty or of an unknown kind.
	ErrInvalidReference = errors.New("invalid booking reference")
)

// AmountError describes a rejected amount.
type AmountError struct {
	Amount Amount
	Reason string
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("invalid amount %s: %s", e.Amount.Value.String(), e.Reason)
}

func (e *AmountError) Unwrap() error { return ErrInvalidAmount }

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidSlot) ||
		errors.Is(err, ErrInvalidReference)
}

// IsNotFound returns true if the error indicates a missing transaction.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound)
}
