package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSnapshot is returned when a snapshot breaks the amount
	// invariants of its status.
	ErrInvalidSnapshot = errors.New("invalid payment snapshot")

	// ErrPriceChangeOnPaid is returned when the price of an already paid
	// payer changes without a status change. Callers must go through an
	// explicit top-up (partially paid) or refund flow instead.
	ErrPriceChangeOnPaid = errors.New("price change on a paid booking requires a payment status change")
)

type InvalidSnapshotError struct {
	Field   string
	Message string
}

func (e *InvalidSnapshotError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *InvalidSnapshotError) Unwrap() error { return ErrInvalidSnapshot }

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidSnapshot) || errors.Is(err, ErrPriceChangeOnPaid)
}
