package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/travel-ledger/ledger"
)

// Target is the current payment state of one payer, as stored on its
// booking document.
type Target struct {
	Ref        ledger.BookingRef
	TravelerID string
	AgencyID   string
	UserID     string
	Label      string
	Snapshot   Snapshot
}

// Repair brings the live slots (base and _debt) of t in line with its
// snapshot and returns the number of rows it changed. It is the backstop
// for a booking write that was persisted without its reconciliation.
//
// Expected live state per status:
//
//	unpaid          base = debt of price, no _debt
//	partially_paid  base = income, _debt = debt of price - paid
//	paid            base = income, no _debt
//	refunded        no base, no _debt
//
// Repair is idempotent: a second run on a consistent ledger changes nothing.
func (r *Reconciler) Repair(ctx context.Context, t Target) (int, error) {
	s := t.Snapshot.Normalize()
	if err := s.Validate(); err != nil {
		return 0, err
	}
	c := Change{Ref: t.Ref, TravelerID: t.TravelerID, AgencyID: t.AgencyID, UserID: t.UserID, Label: t.Label, New: s}

	baseSlot, debtSlot := ledger.BaseSlot(t.TravelerID), ledger.DebtSlot(t.TravelerID)
	base, err := r.ledger.FindBySlot(ctx, t.Ref, baseSlot)
	if err != nil {
		return 0, err
	}
	debt, err := r.ledger.FindBySlot(ctx, t.Ref, debtSlot)
	if err != nil {
		return 0, err
	}

	fixed := 0
	step := func(changed bool, err error) error {
		if err != nil {
			return fmt.Errorf("repair %s %s: %w", t.Ref.String(), t.TravelerID, err)
		}
		if changed {
			fixed++
		}
		return nil
	}

	switch s.Status {
	case Unpaid:
		if debt != nil {
			if err := step(r.ledger.DeleteBySlot(ctx, t.Ref, debtSlot)); err != nil {
				return fixed, err
			}
		}
		if !s.Price.IsPositive() {
			if base != nil && base.OpenDebt() {
				if err := step(r.ledger.DeleteBySlot(ctx, t.Ref, baseSlot)); err != nil {
					return fixed, err
				}
			}
			break
		}
		if err := step(r.ensureDebt(ctx, c, baseSlot, base, s.Price, "Debt")); err != nil {
			return fixed, err
		}

	case PartiallyPaid:
		if err := step(r.ensureIncome(ctx, c, baseSlot, base, s.PaidAmount)); err != nil {
			return fixed, err
		}
		if err := step(r.ensureDebt(ctx, c, debtSlot, debt, s.Remaining(), "Remaining debt")); err != nil {
			return fixed, err
		}

	case Paid:
		if debt != nil {
			// the final installment was never booked
			if debt.OpenDebt() {
				entry := r.entry(c, ledger.FinalSlot(t.TravelerID), ledger.TxIncome, debt.Amount, "Final payment")
				if err := step(created(r.ledger.Create(ctx, entry))); err != nil {
					return fixed, err
				}
			}
			if err := step(r.ledger.DeleteBySlot(ctx, t.Ref, debtSlot)); err != nil {
				return fixed, err
			}
		}
		if err := step(r.ensureIncome(ctx, c, baseSlot, base, s.Price)); err != nil {
			return fixed, err
		}

	case Refunded:
		if base != nil {
			if err := step(r.ledger.DeleteBySlot(ctx, t.Ref, baseSlot)); err != nil {
				return fixed, err
			}
		}
		if debt != nil {
			if err := step(r.ledger.DeleteBySlot(ctx, t.Ref, debtSlot)); err != nil {
				return fixed, err
			}
		}
	}

	if fixed > 0 {
		r.logger.Warn("ledger drift repaired",
			"ref", t.Ref.String(), "traveler_id", t.TravelerID,
			"status", s.Status, "rows", fixed)
	}
	return fixed, nil
}

// ensureDebt makes slot an open debt of amount v in the snapshot currency.
func (r *Reconciler) ensureDebt(ctx context.Context, c Change, slot ledger.Slot, existing *ledger.Transaction, v decimal.Decimal, note string) (bool, error) {
	if existing == nil {
		return created(r.ledger.Create(ctx, r.entry(c, slot, ledger.TxDebt, c.New.amount(v), note)))
	}
	return r.reopenDebt(ctx, c.Ref, slot, existing, c.New.amount(v))
}

// ensureIncome settles a stale debt at slot in place, or books the
// collected amount when the slot is empty.
func (r *Reconciler) ensureIncome(ctx context.Context, c Change, slot ledger.Slot, existing *ledger.Transaction, collected decimal.Decimal) (bool, error) {
	switch {
	case existing == nil:
		if !collected.IsPositive() {
			return false, nil
		}
		return created(r.ledger.Create(ctx, r.entry(c, slot, ledger.TxIncome, c.New.amount(collected), "Payment")))
	case existing.OpenDebt():
		settled, err := r.ledger.SettleSlotDebt(ctx, c.Ref, slot, &collected)
		return settled != nil, err
	}
	return false, nil
}

func created(tx *ledger.Transaction, err error) (bool, error) {
	return tx != nil, err
}
