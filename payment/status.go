/*
Package payment keeps the ledger consistent with booking payment state.

PURPOSE:
  Every ticket and every traveler inside a group booking carries a price,
  a paid amount and a payment status. Whenever any of them changes, the
  ledger must receive the matching income, outcome or debt rows. This
  package owns that decision (Plan) and its execution (Reconciler).

KEY CONCEPTS:
  Status:     unpaid, partially_paid, paid, refunded
  Snapshot:   {price, paid, currency, status} of one payer
  Change:     old and new snapshot of one payer plus booking context
  Op:         one ledger mutation decided by Plan
  Reconciler: executes ops through the ledger, one after another

SEE ALSO:
  - plan.go: Transition table
  - reconciler.go: Execution and replay
  - ledger/ledger.go: Operations the reconciler calls
*/
package payment

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/travel-ledger/ledger"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	Unpaid        Status = "unpaid"
	PartiallyPaid Status = "partially_paid"
	Paid          Status = "paid"
	Refunded      Status = "refunded"

	// NotPaid is a legacy alias of Unpaid still sent by older clients.
	NotPaid Status = "not_paid"
)

// ParseStatus accepts the canonical values and the legacy alias.
// Empty input means Unpaid.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if st == "" {
		return Unpaid, nil
	}
	st = st.Normalize()
	if !st.Valid() {
		return "", &InvalidSnapshotError{Field: "payment_status", Message: fmt.Sprintf("unknown payment status %q", s)}
	}
	return st, nil
}

// Normalize maps the legacy alias onto Unpaid.
func (s Status) Normalize() Status {
	if s == NotPaid || s == "" {
		return Unpaid
	}
	return s
}

func (s Status) Valid() bool {
	switch s.Normalize() {
	case Unpaid, PartiallyPaid, Paid, Refunded:
		return true
	}
	return false
}

// =============================================================================
// SNAPSHOT - Payment state of one payer
// =============================================================================

type Snapshot struct {
	Price      decimal.Decimal
	PaidAmount decimal.Decimal
	Currency   ledger.Currency
	Status     Status
}

// Normalize forces the paid amount implied by the status:
// price when Paid, zero when Unpaid or Refunded.
func (s Snapshot) Normalize() Snapshot {
	s.Status = s.Status.Normalize()
	if s.Currency == "" {
		s.Currency = ledger.DefaultCurrency
	}
	switch s.Status {
	case Paid:
		s.PaidAmount = s.Price
	case Unpaid, Refunded:
		s.PaidAmount = decimal.Zero
	}
	return s
}

// Validate checks the amount invariants of a normalized snapshot.
func (s Snapshot) Validate() error {
	if !s.Status.Valid() {
		return &InvalidSnapshotError{Field: "payment_status", Message: fmt.Sprintf("unknown payment status %q", s.Status)}
	}
	if s.Price.IsNegative() {
		return &InvalidSnapshotError{Field: "price", Message: "must not be negative"}
	}
	if s.Status.Normalize() == PartiallyPaid {
		if !s.PaidAmount.IsPositive() || !s.PaidAmount.LessThan(s.Price) {
			return &InvalidSnapshotError{
				Field:   "paid_amount",
				Message: fmt.Sprintf("partially paid requires 0 < paid < price, got %s of %s", s.PaidAmount, s.Price),
			}
		}
	}
	return nil
}

// Paid returns the amount collected so far.
func (s Snapshot) Paid() decimal.Decimal {
	return s.Normalize().PaidAmount
}

// Remaining returns the outstanding balance.
func (s Snapshot) Remaining() decimal.Decimal {
	n := s.Normalize()
	if n.Status == Refunded {
		return decimal.Zero
	}
	return n.Price.Sub(n.PaidAmount)
}

func (s Snapshot) amount(v decimal.Decimal) ledger.Amount {
	return ledger.Amount{Value: v, Currency: s.Normalize().Currency}
}

// sameAs reports whether two normalized snapshots describe the same state.
func (s Snapshot) sameAs(o Snapshot) bool {
	return s.Status == o.Status &&
		s.Price.Equal(o.Price) &&
		s.PaidAmount.Equal(o.PaidAmount) &&
		s.Currency == o.Currency
}
