/*
plan.go - Payment transition table

PURPOSE:
  Plan is a pure function from (old snapshot, new snapshot) to the ledger
  mutations that keep the ledger truthful. It never touches storage, so
  every booking kind shares one transition table and tests can assert on
  the ops directly.

TRANSITIONS (old -> new):
  -> Paid            delete base debt if old was unpaid; delete _debt;
                     income of price - oldPaid at base (or _final when
                     completing a partial payment)
  -> PartiallyPaid   delete base debt if old was unpaid; income for a
                     positive delta (base, else _payment_<ts>); outcome for
                     a negative delta at _refund_<ts>; upsert _debt to the
                     remaining balance or delete it when nothing remains
  -> Refunded        outcome per explicit refund, else one outcome for
                     the amount previously paid; delete base and _debt
  -> Unpaid          from another status: delete base and _debt, open a
                     debt for the full price. Unpaid -> Unpaid with a new
                     price only resizes the base debt.
  same state         no ops

CREATION:
  A missing old snapshot means the payer was just created. The baseline is
  unpaid with nothing in the ledger, so no deletes are planned.

SEE ALSO:
  - reconciler.go: Executes the ops
*/
package payment

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/travel-ledger/ledger"
)

type OpKind string

const (
	OpCreate     OpKind = "create"
	OpDelete     OpKind = "delete"
	OpUpsertDebt OpKind = "upsert_debt"
)

// Op is one ledger mutation.
type Op struct {
	Kind   OpKind
	Slot   ledger.Slot
	Type   ledger.TransactionType
	Amount ledger.Amount
	Note   string

	// Fallback is used by OpCreate when Slot is already occupied.
	Fallback *ledger.Slot
}

// Change is a payment state change of one payer.
type Change struct {
	Ref        ledger.BookingRef
	TravelerID string
	AgencyID   string
	UserID     string
	Label      string

	// Old is nil when the payer is being created.
	Old *Snapshot
	New Snapshot

	// Refunds are explicit refund amounts for a transition to Refunded.
	// When empty, the previously paid amount is refunded.
	Refunds []ledger.Amount
}

// Plan computes the ledger ops for c. The returned slice is empty for a
// no-op change.
func Plan(c Change, at time.Time) ([]Op, error) {
	n := c.New.Normalize()
	if err := n.Validate(); err != nil {
		return nil, err
	}

	creation := c.Old == nil
	o := Snapshot{Status: Unpaid, Currency: n.Currency}
	if !creation {
		o = c.Old.Normalize()
	}

	if !creation {
		if o.sameAs(n) || (o.Status == Refunded && n.Status == Refunded) {
			return nil, nil
		}
		if o.Status == Paid && n.Status == Paid {
			if o.Price.Equal(n.Price) {
				return nil, nil
			}
			return nil, ErrPriceChangeOnPaid
		}
	}

	p := planner{tid: c.TravelerID, at: at, creation: creation, old: o, new: n}
	switch n.Status {
	case Paid:
		p.toPaid()
	case PartiallyPaid:
		p.toPartiallyPaid()
	case Refunded:
		p.toRefunded(c.Refunds)
	case Unpaid:
		p.toUnpaid()
	}
	return p.ops, nil
}

type planner struct {
	tid      string
	at       time.Time
	creation bool
	old, new Snapshot
	ops      []Op
}

func (p *planner) remove(slot ledger.Slot) {
	if p.creation {
		return
	}
	p.ops = append(p.ops, Op{Kind: OpDelete, Slot: slot})
}

func (p *planner) create(slot ledger.Slot, typ ledger.TransactionType, v decimal.Decimal, note string, fallback *ledger.Slot) {
	if !v.IsPositive() {
		return
	}
	p.ops = append(p.ops, Op{
		Kind:     OpCreate,
		Slot:     slot,
		Type:     typ,
		Amount:   p.new.amount(v),
		Note:     note,
		Fallback: fallback,
	})
}

func (p *planner) upsertDebt(slot ledger.Slot, v decimal.Decimal, note string) {
	if p.creation {
		p.create(slot, ledger.TxDebt, v, note, nil)
		return
	}
	p.ops = append(p.ops, Op{Kind: OpUpsertDebt, Slot: slot, Type: ledger.TxDebt, Amount: p.new.amount(v), Note: note})
}

func (p *planner) paymentFallback() *ledger.Slot {
	s := ledger.PaymentSlot(p.tid, p.at)
	return &s
}

func (p *planner) toPaid() {
	if p.old.Status == Unpaid {
		p.remove(ledger.BaseSlot(p.tid))
	}
	p.remove(ledger.DebtSlot(p.tid))

	due := p.new.Price.Sub(p.old.Paid())
	slot := ledger.BaseSlot(p.tid)
	note := "Payment"
	if p.old.Status == PartiallyPaid {
		slot = ledger.FinalSlot(p.tid)
		note = "Final payment"
	}
	p.create(slot, ledger.TxIncome, due, note, p.paymentFallback())
}

func (p *planner) toPartiallyPaid() {
	if p.old.Status == Unpaid {
		p.remove(ledger.BaseSlot(p.tid))
	}

	delta := p.new.PaidAmount.Sub(p.old.Paid())
	switch {
	case delta.IsPositive():
		p.create(ledger.BaseSlot(p.tid), ledger.TxIncome, delta, "Partial payment", p.paymentFallback())
	case delta.IsNegative():
		p.create(ledger.RefundSlot(p.tid, p.at), ledger.TxOutcome, delta.Abs(), "Partial refund", nil)
	}

	remaining := p.new.Remaining()
	if remaining.IsPositive() {
		p.upsertDebt(ledger.DebtSlot(p.tid), remaining, "Remaining debt")
		return
	}
	p.remove(ledger.DebtSlot(p.tid))
}

func (p *planner) toRefunded(refunds []ledger.Amount) {
	if len(refunds) > 0 {
		for i, r := range refunds {
			if r.IsZero() {
				continue
			}
			amt := r.Abs()
			if amt.Currency == "" {
				amt.Currency = p.new.Currency
			}
			// one refund slot per line item
			slot := ledger.RefundSlot(p.tid, p.at.Add(time.Duration(i)*time.Millisecond))
			p.ops = append(p.ops, Op{Kind: OpCreate, Slot: slot, Type: ledger.TxOutcome, Amount: amt, Note: "Refund"})
		}
	} else {
		refunded := p.old.Paid()
		if refunded.IsPositive() {
			p.ops = append(p.ops, Op{
				Kind:   OpCreate,
				Slot:   ledger.RefundSlot(p.tid, p.at),
				Type:   ledger.TxOutcome,
				Amount: p.old.amount(refunded),
				Note:   "Refund",
			})
		}
	}
	p.remove(ledger.BaseSlot(p.tid))
	p.remove(ledger.DebtSlot(p.tid))
}

func (p *planner) toUnpaid() {
	if p.old.Status == Unpaid && !p.creation {
		// price change only
		if p.new.Price.IsPositive() {
			p.upsertDebt(ledger.BaseSlot(p.tid), p.new.Price, "Debt")
			return
		}
		p.remove(ledger.BaseSlot(p.tid))
		return
	}
	p.remove(ledger.BaseSlot(p.tid))
	p.remove(ledger.DebtSlot(p.tid))
	p.create(ledger.BaseSlot(p.tid), ledger.TxDebt, p.new.Price, "Debt", nil)
}
