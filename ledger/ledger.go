/*
ledger.go - Ledger operations scoped by booking reference and slot

PURPOSE:
  The Ledger is the only writer of Transaction rows. It exposes the
  primitives the payment reconciler composes: create, find, update and
  delete by (booking, slot), debt settlement and reduction, and booking
  wide cleanup. Read-only queries serve reporting.

FAILURE SEMANTICS:
  Operations addressed by booking reference are no-ops on an invalid or
  unknown reference: they return nil/false and no error. Reconciliation
  can therefore be replayed with stale references (e.g. after a traveler
  was removed concurrently). Storage failures are always returned.

UNIQUENESS:
  Create never checks whether a slot is already occupied. Avoiding double
  creation is the reconciler's job.

DESCRIPTIONS:
  On Create the agency display name is appended to the description
  ("<desc> - <agency>") for audit readability. Lookup failures are logged
  and the caller's description is kept.

SEE ALSO:
  - store.go: Persistence interface
  - payment/reconciler.go: Main caller
*/
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/travel-ledger/metrics"
)

// Ledger implements the ledger operations on top of a Store.
type Ledger struct {
	store    Store
	agencies AgencyDirectory
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Ledger)

// WithAgencies enables agency-name denormalization into descriptions.
func WithAgencies(d AgencyDirectory) Option { return func(l *Ledger) { l.agencies = d } }

func WithLogger(logger *slog.Logger) Option { return func(l *Ledger) { l.logger = logger } }

func WithMetrics(m *metrics.Metrics) Option { return func(l *Ledger) { l.metrics = m } }

// WithClock overrides the time source used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// =============================================================================
// WRITES
// =============================================================================

// Create inserts a new entry and returns it as stored.
// Returns (nil, nil) when the booking reference is invalid.
func (l *Ledger) Create(ctx context.Context, tx Transaction) (*Transaction, error) {
	if !tx.Ref.Valid() {
		l.logger.Warn("ledger create skipped: invalid booking reference", "ref", tx.Ref.String())
		return nil, nil
	}
	if !tx.Slot.Valid() {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidSlot, tx.Slot)
	}
	if !tx.Amount.IsPositive() {
		return nil, &AmountError{Amount: tx.Amount, Reason: "must be positive"}
	}
	if tx.Amount.Currency == "" {
		tx.Amount.Currency = DefaultCurrency
	}
	if tx.Status == "" {
		tx.Status = StatusSettled
		if tx.Type == TxDebt {
			tx.Status = StatusPending
		}
	}

	now := l.now()
	tx.ID = TransactionID(uuid.NewString())
	tx.CreatedAt = now
	tx.UpdatedAt = now
	tx.Description = l.describe(ctx, tx.AgencyID, tx.Description)

	err := l.store.Insert(ctx, tx)
	l.metrics.LedgerOp("create", err)
	if err != nil {
		return nil, fmt.Errorf("create %s at %s: %w", tx.Type, tx.Slot.String(), err)
	}
	l.logger.Debug("ledger entry created",
		"ref", tx.Ref.String(), "slot", tx.Slot.String(),
		"type", tx.Type, "status", tx.Status, "amount", tx.Amount.String())
	return &tx, nil
}

// UpdateBySlot applies a partial update to the entry at (ref, slot).
func (l *Ledger) UpdateBySlot(ctx context.Context, ref BookingRef, slot Slot, patch Patch) (*Transaction, error) {
	if !ref.Valid() {
		return nil, nil
	}
	if patch.Amount != nil && !patch.Amount.IsPositive() {
		return nil, &AmountError{Amount: Amount{Value: *patch.Amount}, Reason: "must be positive"}
	}
	patch.UpdatedAt = l.now()
	updated, err := l.store.UpdateSlot(ctx, ref, slot, patch)
	l.metrics.LedgerOp("update", err)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", slot.String(), err)
	}
	return updated, nil
}

// DeleteBySlot removes the entry at (ref, slot). Reports whether one existed.
func (l *Ledger) DeleteBySlot(ctx context.Context, ref BookingRef, slot Slot) (bool, error) {
	if !ref.Valid() {
		return false, nil
	}
	deleted, err := l.store.DeleteSlot(ctx, ref, slot)
	l.metrics.LedgerOp("delete", err)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", slot.String(), err)
	}
	return deleted, nil
}

// SettleDebt converts the booking-level debt of a single ticket to income.
func (l *Ledger) SettleDebt(ctx context.Context, ref BookingRef) (*Transaction, error) {
	return l.SettleSlotDebt(ctx, ref, BaseSlot(""), nil)
}

// SettleSlotDebt converts the Debt+Pending entry at slot in place to
// Income+Settled. When finalAmount is positive it replaces the amount.
// Returns nil if there is no open debt at the slot.
func (l *Ledger) SettleSlotDebt(ctx context.Context, ref BookingRef, slot Slot, finalAmount *decimal.Decimal) (*Transaction, error) {
	if !ref.Valid() {
		return nil, nil
	}
	existing, err := l.store.FindSlot(ctx, ref, slot)
	if err != nil {
		return nil, fmt.Errorf("settle %s: %w", slot.String(), err)
	}
	if existing == nil || !existing.OpenDebt() {
		return nil, nil
	}

	income, settled := TxIncome, StatusSettled
	patch := Patch{Type: &income, Status: &settled}
	if finalAmount != nil && finalAmount.IsPositive() {
		patch.Amount = finalAmount
	}
	patch.UpdatedAt = l.now()
	updated, err := l.store.UpdateSlot(ctx, ref, slot, patch)
	l.metrics.LedgerOp("settle", err)
	if err != nil {
		return nil, fmt.Errorf("settle %s: %w", slot.String(), err)
	}
	return updated, nil
}

// ReduceDebt shrinks the open debt at slot by paid. When nothing remains
// the entry becomes Income+Settled and keeps its original amount.
// Returns nil if there is no open debt or paid is not positive.
func (l *Ledger) ReduceDebt(ctx context.Context, ref BookingRef, slot Slot, paid decimal.Decimal) (*Transaction, error) {
	if !ref.Valid() || !paid.IsPositive() {
		return nil, nil
	}
	existing, err := l.store.FindSlot(ctx, ref, slot)
	if err != nil {
		return nil, fmt.Errorf("reduce %s: %w", slot.String(), err)
	}
	if existing == nil || !existing.OpenDebt() {
		return nil, nil
	}

	remaining := existing.Amount.Value.Sub(paid)
	var patch Patch
	if remaining.IsPositive() {
		patch.Amount = &remaining
	} else {
		income, settled := TxIncome, StatusSettled
		patch.Type, patch.Status = &income, &settled
	}
	patch.UpdatedAt = l.now()
	updated, err := l.store.UpdateSlot(ctx, ref, slot, patch)
	l.metrics.LedgerOp("reduce", err)
	if err != nil {
		return nil, fmt.Errorf("reduce %s: %w", slot.String(), err)
	}
	return updated, nil
}

// DeleteAllForBooking removes every entry of the booking. Used when an
// unpaid booking is cancelled or deleted and its debt must vanish.
func (l *Ledger) DeleteAllForBooking(ctx context.Context, ref BookingRef) (int, error) {
	if !ref.Valid() {
		return 0, nil
	}
	n, err := l.store.DeleteBooking(ctx, ref)
	l.metrics.LedgerOp("delete_booking", err)
	if err != nil {
		return 0, fmt.Errorf("delete entries of %s: %w", ref.String(), err)
	}
	return n, nil
}

// =============================================================================
// READS
// =============================================================================

// FindBySlot returns the entry at (ref, slot), or nil.
func (l *Ledger) FindBySlot(ctx context.Context, ref BookingRef, slot Slot) (*Transaction, error) {
	if !ref.Valid() {
		return nil, nil
	}
	return l.store.FindSlot(ctx, ref, slot)
}

// FindAll returns entries matching filter, newest first.
func (l *Ledger) FindAll(ctx context.Context, filter Filter) ([]Transaction, error) {
	if filter.Ref != nil && !filter.Ref.Valid() {
		return nil, nil
	}
	txs, err := l.store.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
	return txs, nil
}

// ForBooking returns every entry of the booking, newest first.
func (l *Ledger) ForBooking(ctx context.Context, ref BookingRef) ([]Transaction, error) {
	return l.FindAll(ctx, Filter{Ref: &ref})
}

// FindByID returns the entry with the given id.
func (l *Ledger) FindByID(ctx context.Context, id TransactionID) (*Transaction, error) {
	if strings.TrimSpace(string(id)) == "" {
		return nil, ErrTransactionNotFound
	}
	tx, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

// DebtsSummary totals the pending debts of an agency, per currency.
func (l *Ledger) DebtsSummary(ctx context.Context, agencyID string) (DebtSummary, error) {
	txs, err := l.store.Query(ctx, Filter{AgencyID: agencyID, Type: TxDebt, Status: StatusPending})
	if err != nil {
		return DebtSummary{}, err
	}
	summary := DebtSummary{AgencyID: agencyID, Totals: make(map[Currency]decimal.Decimal)}
	for _, tx := range txs {
		summary.Count++
		summary.Totals[tx.Amount.Currency] = summary.Totals[tx.Amount.Currency].Add(tx.Amount.Value)
	}
	return summary, nil
}

// describe appends the agency display name to desc unless already present.
func (l *Ledger) describe(ctx context.Context, agencyID, desc string) string {
	if l.agencies == nil || agencyID == "" {
		return desc
	}
	name, err := l.agencies.AgencyName(ctx, agencyID)
	if err != nil {
		l.logger.Warn("agency lookup failed, keeping description", "agency_id", agencyID, "error", err)
		return desc
	}
	switch {
	case name == "" || strings.Contains(desc, name):
		return desc
	case desc == "":
		return name
	default:
		return desc + " - " + name
	}
}
