package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/travel-ledger/ledger"
	"github.com/warp/travel-ledger/metrics"
)

// LedgerOps is the subset of ledger operations the reconciler needs.
// *ledger.Ledger implements it.
type LedgerOps interface {
	Create(ctx context.Context, tx ledger.Transaction) (*ledger.Transaction, error)
	FindBySlot(ctx context.Context, ref ledger.BookingRef, slot ledger.Slot) (*ledger.Transaction, error)
	UpdateBySlot(ctx context.Context, ref ledger.BookingRef, slot ledger.Slot, patch ledger.Patch) (*ledger.Transaction, error)
	DeleteBySlot(ctx context.Context, ref ledger.BookingRef, slot ledger.Slot) (bool, error)
	SettleSlotDebt(ctx context.Context, ref ledger.BookingRef, slot ledger.Slot, finalAmount *decimal.Decimal) (*ledger.Transaction, error)
}

// Reconciler applies planned ops through the ledger, sequentially.
type Reconciler struct {
	ledger  LedgerOps
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option { return func(r *Reconciler) { r.logger = logger } }
func WithMetrics(m *metrics.Metrics) Option { return func(r *Reconciler) { r.metrics = m } }
func WithClock(now func() time.Time) Option { return func(r *Reconciler) { r.now = now } }

func NewReconciler(l LedgerOps, opts ...Option) *Reconciler {
	r := &Reconciler{
		ledger: l,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Result reports what a reconciliation did.
type Result struct {
	Ops     []Op
	Applied int
}

// Reconcile plans and applies the ledger mutations for c.
// Ledger no-ops (missing slots) are tolerated; storage errors are returned
// and the remaining ops are not applied.
func (r *Reconciler) Reconcile(ctx context.Context, c Change) (Result, error) {
	ops, err := Plan(c, r.now())
	if err != nil {
		return Result{}, err
	}
	res := Result{Ops: ops}
	if len(ops) == 0 {
		return res, nil
	}

	from := string(Unpaid)
	if c.Old != nil {
		from = string(c.Old.Status.Normalize())
	}
	to := string(c.New.Status.Normalize())

	for _, op := range ops {
		applied, err := r.apply(ctx, c, op)
		if err != nil {
			r.logger.Error("reconciliation step failed",
				"ref", c.Ref.String(), "traveler_id", c.TravelerID,
				"op", op.Kind, "slot", op.Slot.String(), "error", err)
			return res, fmt.Errorf("reconcile %s %s->%s: %w", c.Ref.String(), from, to, err)
		}
		if applied {
			res.Applied++
		}
	}

	r.metrics.Reconciled(from, to)
	r.logger.Info("payment reconciled",
		"ref", c.Ref.String(), "traveler_id", c.TravelerID,
		"from", from, "to", to, "ops", len(ops), "applied", res.Applied)
	return res, nil
}

func (r *Reconciler) apply(ctx context.Context, c Change, op Op) (bool, error) {
	switch op.Kind {
	case OpDelete:
		return r.ledger.DeleteBySlot(ctx, c.Ref, op.Slot)

	case OpCreate:
		slot := op.Slot
		if op.Fallback != nil {
			existing, err := r.ledger.FindBySlot(ctx, c.Ref, slot)
			if err != nil {
				return false, err
			}
			if existing != nil {
				slot = *op.Fallback
			}
		}
		created, err := r.ledger.Create(ctx, r.entry(c, slot, op.Type, op.Amount, op.Note))
		return created != nil, err

	case OpUpsertDebt:
		existing, err := r.ledger.FindBySlot(ctx, c.Ref, op.Slot)
		if err != nil {
			return false, err
		}
		if existing == nil {
			created, err := r.ledger.Create(ctx, r.entry(c, op.Slot, ledger.TxDebt, op.Amount, op.Note))
			return created != nil, err
		}
		return r.reopenDebt(ctx, c.Ref, op.Slot, existing, op.Amount)
	}
	return false, fmt.Errorf("unknown op %q", op.Kind)
}

// reopenDebt rewrites an existing row at slot as an open debt of amt.
// A currency change counts as drift.
func (r *Reconciler) reopenDebt(ctx context.Context, ref ledger.BookingRef, slot ledger.Slot, existing *ledger.Transaction, amt ledger.Amount) (bool, error) {
	if existing.OpenDebt() && existing.Amount.Equal(amt) {
		return false, nil
	}
	debt, pending := ledger.TxDebt, ledger.StatusPending
	v, cur := amt.Value, amt.Currency
	updated, err := r.ledger.UpdateBySlot(ctx, ref, slot, ledger.Patch{Amount: &v, Currency: &cur, Type: &debt, Status: &pending})
	return updated != nil, err
}

func (r *Reconciler) entry(c Change, slot ledger.Slot, typ ledger.TransactionType, amt ledger.Amount, note string) ledger.Transaction {
	desc := note
	if c.Label != "" {
		desc = note + ": " + c.Label
	}
	status := ledger.StatusSettled
	if typ == ledger.TxDebt {
		status = ledger.StatusPending
	}
	return ledger.Transaction{
		Ref:         c.Ref,
		Slot:        slot,
		Amount:      amt,
		Type:        typ,
		Status:      status,
		AgencyID:    c.AgencyID,
		UserID:      c.UserID,
		Description: desc,
	}
}
