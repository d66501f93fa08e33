package tickets_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/travel-ledger/booking"
	"github.com/warp/travel-ledger/booking/tickets"
	"github.com/warp/travel-ledger/ledger"
	"github.com/warp/travel-ledger/payment"
	"github.com/warp/travel-ledger/store/memory"
)

// ticking returns a clock that advances one second per call so refund and
// payment slots never collide.
func ticking() func() time.Time {
	t := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

type fixture struct {
	svc    *tickets.Service
	ledger *ledger.Ledger
	store  *memory.Store
}

func newFixture(t *testing.T, ledgerStore ledger.Store) *fixture {
	t.Helper()
	store := memory.New()
	if ledgerStore == nil {
		ledgerStore = store
	}
	now := ticking()
	l := ledger.New(ledgerStore, ledger.WithAgencies(store), ledger.WithClock(now))
	svc := tickets.NewService(tickets.Config{
		Store:      store,
		Ledger:     l,
		Reconciler: payment.NewReconciler(l, payment.WithClock(now)),
		Transactor: store,
		Clock:      now,
	})
	return &fixture{svc: svc, ledger: l, store: store}
}

func planeTicket(status payment.Status, price int64) tickets.CreateInput {
	return tickets.CreateInput{
		Type:              booking.TicketPlane,
		AgencyID:          "ag-1",
		EmployeeID:        "emp-1",
		BookingReference:  "PNR123",
		DepartureLocation: "Tirana",
		ArrivalLocation:   "Rome",
		DepartureDate:     time.Date(2025, time.September, 1, 8, 0, 0, 0, time.UTC),
		Passengers:        []booking.Passenger{{FirstName: "Ana", LastName: "Hoxha"}},
		Price:             decimal.NewFromInt(price),
		Currency:          ledger.CurrencyEUR,
		PaymentStatus:     status,
	}
}

func (f *fixture) rows(t *testing.T, tk *booking.Ticket) []ledger.Transaction {
	t.Helper()
	rows, err := f.ledger.ForBooking(context.Background(), tk.Ref())
	require.NoError(t, err)
	return rows
}

func sum(rows []ledger.Transaction, typ ledger.TransactionType) string {
	total := decimal.Zero
	for _, r := range rows {
		if r.Type == typ {
			total = total.Add(r.Amount.Value)
		}
	}
	return total.String()
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_UnpaidOpensDebt(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tk, err := f.svc.Create(ctx, planeTicket(payment.Unpaid, 200))
	require.NoError(t, err)

	assert.NotEmpty(t, tk.ID)
	assert.Regexp(t, `^A\d{6}$`, tk.UID)
	assert.Equal(t, booking.StatusActive, tk.Status)
	require.Len(t, tk.Logs, 1)
	assert.Equal(t, "Ticket created", tk.Logs[0].Title)

	rows := f.rows(t, tk)
	require.Len(t, rows, 1)
	assert.Equal(t, ledger.TxDebt, rows[0].Type)
	assert.Equal(t, ledger.StatusPending, rows[0].Status)
	assert.Equal(t, ledger.BaseSlot(""), rows[0].Slot)
	assert.Equal(t, "200", rows[0].Amount.Value.String())
}

func TestCreate_PaidRecordsFullChunk(t *testing.T) {
	f := newFixture(t, nil)

	tk, err := f.svc.Create(context.Background(), planeTicket(payment.Paid, 300))
	require.NoError(t, err)

	require.Len(t, tk.PaymentChunks, 1)
	assert.Equal(t, "300", tk.PaymentChunks[0].Amount.String())
	assert.Equal(t, "300", sum(f.rows(t, tk), ledger.TxIncome))
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	in := planeTicket(payment.Unpaid, 100)
	in.Type = "train"
	_, err := f.svc.Create(ctx, in)
	assert.ErrorIs(t, err, booking.ErrValidation)

	in = planeTicket(payment.Unpaid, 100)
	in.Passengers = nil
	_, err = f.svc.Create(ctx, in)
	assert.ErrorIs(t, err, booking.ErrValidation)

	in = planeTicket(payment.PartiallyPaid, 100)
	_, err = f.svc.Create(ctx, in)
	assert.True(t, booking.IsClientError(err), "partial payment without chunks: %v", err)
}

func TestCreate_PassportGuardBlocksIstanbul(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// GIVEN: a passport expiring 100 days after departure to Istanbul
	in := planeTicket(payment.Unpaid, 100)
	in.ArrivalLocation = "Istanbul"
	expiry := in.DepartureDate.AddDate(0, 0, 100)
	in.Passengers[0].PassportExpiry = &expiry

	// WHEN: the ticket is created
	_, err := f.svc.Create(ctx, in)

	// THEN: it is rejected and nothing is stored
	var perr *booking.PassportError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 100, perr.Days)

	_, total, err := f.svc.List(ctx, booking.TicketFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)

	rows, err := f.ledger.FindAll(ctx, ledger.Filter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// =============================================================================
// PAYMENT STATUS
// =============================================================================

func TestUpdatePaymentStatus_UnpaidToPaid(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tk, err := f.svc.Create(ctx, planeTicket(payment.Unpaid, 200))
	require.NoError(t, err)

	tk, err = f.svc.UpdatePaymentStatus(ctx, tk.ID, payment.Paid, nil, "emp-2")
	require.NoError(t, err)
	assert.Equal(t, payment.Paid, tk.PaymentStatus)

	rows := f.rows(t, tk)
	require.Len(t, rows, 1)
	assert.Equal(t, ledger.TxIncome, rows[0].Type)
	assert.Equal(t, "200", rows[0].Amount.Value.String())
	assert.Len(t, tk.Logs, 2)
}

func TestAddPayment_InstallmentsThenPaid(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tk, err := f.svc.Create(ctx, planeTicket(payment.Unpaid, 500))
	require.NoError(t, err)

	tk, err = f.svc.AddPayment(ctx, tk.ID, booking.PaymentChunk{Amount: decimal.NewFromInt(200)}, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, payment.PartiallyPaid, tk.PaymentStatus)
	rows := f.rows(t, tk)
	assert.Equal(t, "200", sum(rows, ledger.TxIncome))
	assert.Equal(t, "300", sum(rows, ledger.TxDebt))

	_, err = f.svc.AddPayment(ctx, tk.ID, booking.PaymentChunk{Amount: decimal.NewFromInt(400)}, "emp-1")
	assert.ErrorIs(t, err, booking.ErrValidation, "overpayment")

	tk, err = f.svc.AddPayment(ctx, tk.ID, booking.PaymentChunk{Amount: decimal.NewFromInt(300)}, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, payment.Paid, tk.PaymentStatus)
	rows = f.rows(t, tk)
	assert.Equal(t, "500", sum(rows, ledger.TxIncome))
	assert.Equal(t, "0", sum(rows, ledger.TxDebt))
}

func TestUpdate_PriceChangeOnPaidIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tk, err := f.svc.Create(ctx, planeTicket(payment.Paid, 300))
	require.NoError(t, err)

	price := decimal.NewFromInt(350)
	_, err = f.svc.Update(ctx, tk.ID, tickets.UpdateInput{Price: &price})
	require.ErrorIs(t, err, payment.ErrPriceChangeOnPaid)

	got, err := f.svc.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "300", got.Price.String())
}

func TestUpdate_KeepsOriginalBookingReference(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tk, err := f.svc.Create(ctx, planeTicket(payment.Unpaid, 100))
	require.NoError(t, err)

	ref := "PNR999"
	_, err = f.svc.Update(ctx, tk.ID, tickets.UpdateInput{BookingReference: &ref})
	require.NoError(t, err)

	for _, q := range []string{"PNR123", "PNR999"} {
		found, err := f.svc.FindByReference(ctx, q)
		require.NoError(t, err)
		require.Len(t, found, 1, q)
		assert.Equal(t, tk.ID, found[0].ID)
	}
}

func TestUpdate_CurrencyChangeMovesDebt(t *testing.T) {
	// GIVEN: An unpaid ticket owed in EUR
	// WHEN: Only the currency changes
	// THEN: The debt row is owed in the new currency and replay finds nothing to fix

	f := newFixture(t, nil)
	ctx := context.Background()

	tk, err := f.svc.Create(ctx, planeTicket(payment.Unpaid, 250))
	require.NoError(t, err)

	chf := ledger.CurrencyCHF
	tk, err = f.svc.Update(ctx, tk.ID, tickets.UpdateInput{Currency: &chf})
	require.NoError(t, err)
	assert.Equal(t, ledger.CurrencyCHF, tk.Currency)

	rows := f.rows(t, tk)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].OpenDebt())
	assert.Equal(t, ledger.CurrencyCHF, rows[0].Amount.Currency)
	assert.Equal(t, "250", rows[0].Amount.Value.String())

	fixed, err := f.svc.Replay(ctx)
	require.NoError(t, err)
	assert.Zero(t, fixed)
}

func TestUpdatePaymentStatus_LedgerFailureRollsBack(t *testing.T) {
	broken := &failingLedgerStore{Store: memory.New()}
	f := newFixture(t, broken)
	ctx := context.Background()

	tk, err := f.svc.Create(ctx, planeTicket(payment.Unpaid, 200))
	require.NoError(t, err)

	broken.failDeletes = true
	_, err = f.svc.UpdatePaymentStatus(ctx, tk.ID, payment.Paid, nil, "")
	require.Error(t, err)

	got, err := f.svc.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.Unpaid, got.PaymentStatus)
}

type failingLedgerStore struct {
	*memory.Store
	failDeletes bool
}

func (s *failingLedgerStore) DeleteSlot(ctx context.Context, ref ledger.BookingRef, slot ledger.Slot) (bool, error) {
	if s.failDeletes {
		return false, errors.New("disk full")
	}
	return s.Store.DeleteSlot(ctx, ref, slot)
}

// =============================================================================
// CANCEL / REFUND
// =============================================================================

func TestCancel_PaidWithRefund(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tk, err := f.svc.Create(ctx, planeTicket(payment.Paid, 300))
	require.NoError(t, err)

	// WHEN: cancelled with a refund of 100
	tk, err = f.svc.Cancel(ctx, tk.ID, []ledger.Amount{ledger.NewAmountFromInt(-100, ledger.CurrencyEUR)}, "customer request", "emp-1")
	require.NoError(t, err)

	// THEN: one outcome of 100, no base row left
	assert.Equal(t, booking.StatusCancelled, tk.Status)
	assert.Equal(t, payment.Refunded, tk.PaymentStatus)
	last := tk.PaymentChunks[len(tk.PaymentChunks)-1]
	assert.Equal(t, "-100", last.Amount.String())

	rows := f.rows(t, tk)
	require.Len(t, rows, 1)
	assert.Equal(t, ledger.TxOutcome, rows[0].Type)
	assert.Equal(t, "100", rows[0].Amount.Value.String())
	assert.Equal(t, ledger.SlotRefund, rows[0].Slot.Kind)

	_, err = f.svc.Cancel(ctx, tk.ID, nil, "", "")
	assert.ErrorIs(t, err, booking.ErrAlreadyCancelled)
}

func TestCancel_UnpaidDropsLedgerAndReactivateRestoresDebt(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tk, err := f.svc.Create(ctx, planeTicket(payment.Unpaid, 150))
	require.NoError(t, err)

	tk, err = f.svc.Cancel(ctx, tk.ID, nil, "", "")
	require.NoError(t, err)
	assert.Empty(t, f.rows(t, tk))

	tk, err = f.svc.Reactivate(ctx, tk.ID, "")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusActive, tk.Status)
	rows := f.rows(t, tk)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].OpenDebt())
	assert.Equal(t, "150", rows[0].Amount.Value.String())

	_, err = f.svc.Reactivate(ctx, tk.ID, "")
	assert.ErrorIs(t, err, booking.ErrNotCancelled)
}

func TestRefund_Preconditions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	refund := []ledger.Amount{ledger.NewAmountFromInt(50, "")}

	tk, err := f.svc.Create(ctx, planeTicket(payment.Paid, 300))
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, tk.ID, refund, "", "")
	assert.ErrorIs(t, err, booking.ErrRefundRequiresCancel)
	assert.True(t, booking.IsConflict(err))

	_, err = f.svc.Cancel(ctx, tk.ID, nil, "", "")
	require.NoError(t, err)
	assert.Equal(t, "300", sum(f.rows(t, tk), ledger.TxIncome), "cancel without refunds keeps income")

	_, err = f.svc.Refund(ctx, tk.ID, nil, "", "")
	assert.ErrorIs(t, err, booking.ErrNoRefunds)

	tk, err = f.svc.Refund(ctx, tk.ID, refund, "", "")
	require.NoError(t, err)
	assert.Equal(t, payment.Refunded, tk.PaymentStatus)
	assert.Equal(t, "50", sum(f.rows(t, tk), ledger.TxOutcome))

	_, err = f.svc.Refund(ctx, tk.ID, refund, "", "")
	assert.ErrorIs(t, err, booking.ErrAlreadyRefunded)
}

func TestCancelAndRefund_AppendNotes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	in := planeTicket(payment.Paid, 300)
	in.Note = "Window seat"
	tk, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	tk, err = f.svc.Cancel(ctx, tk.ID, nil, "flight moved", "")
	require.NoError(t, err)
	assert.Equal(t, "Window seat\n\nCancellation: flight moved", tk.Note)

	tk, err = f.svc.Refund(ctx, tk.ID, []ledger.Amount{ledger.NewAmountFromInt(300, "")}, "paid back in cash", "")
	require.NoError(t, err)
	assert.Equal(t, "Window seat\n\nCancellation: flight moved\n\nRefund: paid back in cash", tk.Note)

	// no note, no paragraph
	bare, err := f.svc.Create(ctx, planeTicket(payment.Unpaid, 100))
	require.NoError(t, err)
	bare, err = f.svc.Cancel(ctx, bare.ID, nil, "  ", "")
	require.NoError(t, err)
	assert.Empty(t, bare.Note)
}

// =============================================================================
// MISC
// =============================================================================

func TestDelete_HidesTicket(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tk, err := f.svc.Create(ctx, planeTicket(payment.Unpaid, 100))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, tk.ID, ""))

	_, err = f.svc.Get(ctx, tk.ID)
	assert.True(t, booking.IsNotFound(err))
	assert.Empty(t, f.rows(t, tk))
}

func TestCheckInAndLogs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tk, err := f.svc.Create(ctx, planeTicket(payment.Paid, 100))
	require.NoError(t, err)

	tk, err = f.svc.CheckIn(ctx, tk.ID, true, "emp-1")
	require.NoError(t, err)
	assert.True(t, tk.CheckedIn)

	tk, err = f.svc.AddLog(ctx, tk.ID, "Called customer", "confirmed seat", "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "Called customer", tk.Logs[len(tk.Logs)-1].Title)

	_, err = f.svc.AddLog(ctx, tk.ID, " ", "", "")
	assert.ErrorIs(t, err, booking.ErrValidation)
}

func TestTargets_SkipCancelled(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	keep, err := f.svc.Create(ctx, planeTicket(payment.Unpaid, 100))
	require.NoError(t, err)
	drop, err := f.svc.Create(ctx, planeTicket(payment.Unpaid, 100))
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, drop.ID, nil, "", "")
	require.NoError(t, err)

	targets, err := f.svc.Targets(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, keep.Ref(), targets[0].Ref)
}

func TestReplay_RestoresMissingDebt(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// GIVEN: an unpaid ticket whose debt row was lost
	tk, err := f.svc.Create(ctx, planeTicket(payment.Unpaid, 120))
	require.NoError(t, err)
	removed, err := f.ledger.DeleteBySlot(ctx, tk.Ref(), ledger.BaseSlot(""))
	require.NoError(t, err)
	require.True(t, removed)

	// WHEN: the replay runs
	fixed, err := f.svc.Replay(ctx)
	require.NoError(t, err)

	// THEN: the debt is back and a second run is a no-op
	assert.Equal(t, 1, fixed)
	rows := f.rows(t, tk)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].OpenDebt())
	assert.Equal(t, "120", rows[0].Amount.Value.String())

	fixed, err = f.svc.Replay(ctx)
	require.NoError(t, err)
	assert.Zero(t, fixed)
}
