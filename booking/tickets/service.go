/*
Package tickets owns the lifecycle of single-passenger bookings (bus and
plane tickets).

PAYMENT FLOW:
  Every mutation that touches price, payment chunks or payment status runs
  the same steps under a per-ticket lock and one storage transaction:

    1. load the ticket and snapshot its payment state
    2. apply the change and validate it (passport rule, amounts, plan)
    3. persist the ticket
    4. reconcile the ledger from the old and new snapshot
    5. append an audit log entry (best effort)

  Ledger failures while creating a ticket are logged and ignored. Ledger
  failures during explicit financial actions (payment status, cancel,
  refund) fail the request.

PAYMENT CHUNKS:
  A ticket keeps a signed list of installments for display. The paid
  amount of a partially paid ticket is the net of its chunks. Refunds are
  appended as negative chunks. The ledger stays the source of truth for
  reporting.

SEE ALSO:
  - booking/types.go: Ticket document
  - payment/plan.go: Transition table
*/
package tickets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/travel-ledger/booking"
	"github.com/warp/travel-ledger/ledger"
	"github.com/warp/travel-ledger/payment"
)

// Service implements the ticket operations.
type Service struct {
	store      booking.TicketStore
	ledger     *ledger.Ledger
	reconciler *payment.Reconciler
	tx         booking.Transactor
	locks      *booking.Locker
	logger     *slog.Logger
	now        func() time.Time
}

type Config struct {
	Store      booking.TicketStore
	Ledger     *ledger.Ledger
	Reconciler *payment.Reconciler
	Transactor booking.Transactor
	Locker     *booking.Locker
	Logger     *slog.Logger
	Clock      func() time.Time
}

func NewService(cfg Config) *Service {
	s := &Service{
		store:      cfg.Store,
		ledger:     cfg.Ledger,
		reconciler: cfg.Reconciler,
		tx:         cfg.Transactor,
		locks:      cfg.Locker,
		logger:     cfg.Logger,
		now:        cfg.Clock,
	}
	if s.tx == nil {
		s.tx = booking.NopTransactor{}
	}
	if s.locks == nil {
		s.locks = booking.NewLocker()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// =============================================================================
// INPUTS
// =============================================================================

type CreateInput struct {
	Type              booking.TicketType
	AgencyID          string
	EmployeeID        string
	BookingReference  string
	Operator          string
	RouteNumber       string
	DepartureLocation string
	ArrivalLocation   string
	DepartureDate     time.Time
	ReturnDate        *time.Time
	Passengers        []booking.Passenger
	Price             decimal.Decimal
	Currency          ledger.Currency
	PaymentStatus     payment.Status
	PaymentChunks     []booking.PaymentChunk
	Note              string
}

// UpdateInput is a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	EmployeeID        string
	BookingReference  *string
	Operator          *string
	RouteNumber       *string
	DepartureLocation *string
	ArrivalLocation   *string
	DepartureDate     *time.Time
	ReturnDate        *time.Time
	Passengers        []booking.Passenger
	Price             *decimal.Decimal
	Currency          *ledger.Currency
	PaymentStatus     *payment.Status
	PaidAmount        *decimal.Decimal
	Note              *string
}

// =============================================================================
// CREATE / READ
// =============================================================================

// Create stores a new ticket and books its opening ledger entries.
func (s *Service) Create(ctx context.Context, in CreateInput) (*booking.Ticket, error) {
	if !in.Type.Valid() {
		return nil, booking.Invalid("type", "must be bus or plane")
	}
	if strings.TrimSpace(in.AgencyID) == "" {
		return nil, booking.Invalid("agency_id", "is required")
	}
	if in.DepartureDate.IsZero() {
		return nil, booking.Invalid("departure_date", "is required")
	}
	if len(in.Passengers) == 0 {
		return nil, booking.Invalid("passengers", "at least one passenger is required")
	}
	if in.Price.IsNegative() {
		return nil, booking.Invalid("price", "must not be negative")
	}
	currency, err := ledger.ParseCurrency(string(in.Currency))
	if err != nil {
		return nil, booking.Invalid("currency", "%v", err)
	}
	status, err := payment.ParseStatus(string(in.PaymentStatus))
	if err != nil {
		return nil, err
	}

	now := s.now()
	t := booking.Ticket{
		ID:                uuid.NewString(),
		UID:               booking.NewUID(in.Type.UIDPrefix()),
		Type:              in.Type,
		AgencyID:          in.AgencyID,
		EmployeeID:        in.EmployeeID,
		BookingReference:  strings.TrimSpace(in.BookingReference),
		Operator:          in.Operator,
		RouteNumber:       in.RouteNumber,
		DepartureLocation: in.DepartureLocation,
		ArrivalLocation:   in.ArrivalLocation,
		DepartureDate:     in.DepartureDate,
		ReturnDate:        in.ReturnDate,
		Passengers:        in.Passengers,
		Price:             in.Price,
		Currency:          currency,
		PaymentStatus:     status,
		Status:            booking.StatusActive,
		Note:              in.Note,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, c := range in.PaymentChunks {
		t.PaymentChunks = append(t.PaymentChunks, s.chunk(c.Amount, c.Currency, c.Note, c.PaidAt, currency))
	}
	if err := s.validate(&t, nil); err != nil {
		return nil, err
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.store.SaveTicket(ctx, t); err != nil {
			return err
		}
		if _, err := s.reconciler.Reconcile(ctx, s.change(nil, &t, nil)); err != nil {
			s.logger.Warn("ledger entries for new ticket failed", "ticket_id", t.ID, "error", err)
		}
		s.appendLog(ctx, &t, "Ticket created", t.Label(), in.EmployeeID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Get returns a ticket that has not been deleted.
func (s *Service) Get(ctx context.Context, id string) (*booking.Ticket, error) {
	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil || t.Deleted {
		return nil, &booking.NotFoundError{Resource: "ticket", ID: id}
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, filter booking.TicketFilter) ([]booking.Ticket, int, error) {
	return s.store.ListTickets(ctx, filter)
}

// FindByReference matches the current or the original booking reference.
func (s *Service) FindByReference(ctx context.Context, reference string) ([]booking.Ticket, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, booking.Invalid("booking_reference", "is required")
	}
	return s.store.FindTicketsByReference(ctx, reference)
}

// =============================================================================
// UPDATES
// =============================================================================

// Update applies a partial update. Payment fields go through the
// reconciler like UpdatePaymentStatus.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*booking.Ticket, error) {
	return s.mutate(ctx, id, mutation{
		title:    "Ticket updated",
		employee: in.EmployeeID,
		apply: func(t *booking.Ticket) error {
			if in.BookingReference != nil {
				ref := strings.TrimSpace(*in.BookingReference)
				if ref != t.BookingReference && t.OriginalBookingReference == "" {
					t.OriginalBookingReference = t.BookingReference
				}
				t.BookingReference = ref
			}
			setString(&t.Operator, in.Operator)
			setString(&t.RouteNumber, in.RouteNumber)
			setString(&t.DepartureLocation, in.DepartureLocation)
			setString(&t.ArrivalLocation, in.ArrivalLocation)
			setString(&t.Note, in.Note)
			if in.DepartureDate != nil {
				t.DepartureDate = *in.DepartureDate
			}
			if in.ReturnDate != nil {
				t.ReturnDate = in.ReturnDate
			}
			if in.Passengers != nil {
				t.Passengers = in.Passengers
			}
			if in.Price != nil {
				t.Price = *in.Price
			}
			if in.Currency != nil {
				c, err := ledger.ParseCurrency(string(*in.Currency))
				if err != nil {
					return booking.Invalid("currency", "%v", err)
				}
				t.Currency = c
			}
			if in.PaymentStatus != nil || in.PaidAmount != nil {
				status := t.PaymentStatus
				if in.PaymentStatus != nil {
					status = *in.PaymentStatus
				}
				return s.setPaymentStatus(t, status, in.PaidAmount)
			}
			return nil
		},
	})
}

// UpdatePaymentStatus moves the ticket to status. paidAmount is the total
// collected and is only used for partially paid.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id string, status payment.Status, paidAmount *decimal.Decimal, employeeID string) (*booking.Ticket, error) {
	return s.mutate(ctx, id, mutation{
		title:    "Payment status updated",
		employee: employeeID,
		apply: func(t *booking.Ticket) error {
			return s.setPaymentStatus(t, status, paidAmount)
		},
	})
}

// AddPayment records an installment and derives the payment status.
func (s *Service) AddPayment(ctx context.Context, id string, chunk booking.PaymentChunk, employeeID string) (*booking.Ticket, error) {
	if !chunk.Amount.IsPositive() {
		return nil, booking.Invalid("amount", "must be positive")
	}
	return s.mutate(ctx, id, mutation{
		title:    "Payment added",
		employee: employeeID,
		apply: func(t *booking.Ticket) error {
			if t.Status == booking.StatusCancelled {
				return booking.ErrAlreadyCancelled
			}
			if t.PaymentStatus.Normalize() == payment.Refunded {
				return booking.ErrAlreadyRefunded
			}
			paid := t.Snapshot().PaidAmount.Add(chunk.Amount)
			if paid.GreaterThan(t.Price) {
				return booking.Invalid("amount", "payment of %s exceeds the outstanding balance", chunk.Amount.StringFixed(2))
			}
			if t.PaymentStatus.Normalize() == payment.Unpaid {
				t.PaymentChunks = nil
			}
			t.PaymentChunks = append(t.PaymentChunks, s.chunk(chunk.Amount, chunk.Currency, chunk.Note, chunk.PaidAt, t.Currency))
			t.PaymentStatus = payment.PartiallyPaid
			if paid.Equal(t.Price) {
				t.PaymentStatus = payment.Paid
			}
			return nil
		},
	})
}

// Cancel marks the ticket cancelled. An unpaid ticket loses all its ledger
// entries. With refunds, each amount is paid back and the ticket becomes
// refunded; without, money already collected stays booked.
func (s *Service) Cancel(ctx context.Context, id string, refunds []ledger.Amount, note, employeeID string) (*booking.Ticket, error) {
	var unpaid bool
	return s.mutate(ctx, id, mutation{
		title:    "Ticket cancelled",
		employee: employeeID,
		note:     note,
		refunds:  refunds,
		apply: func(t *booking.Ticket) error {
			if t.Status == booking.StatusCancelled {
				return booking.ErrAlreadyCancelled
			}
			t.Status = booking.StatusCancelled
			appendNote(t, "Cancellation", note)
			unpaid = t.PaymentStatus.Normalize() == payment.Unpaid
			if unpaid || len(refunds) == 0 {
				return nil
			}
			return s.applyRefunds(t, refunds)
		},
		after: func(ctx context.Context, t *booking.Ticket) error {
			if !unpaid {
				return nil
			}
			_, err := s.ledger.DeleteAllForBooking(ctx, t.Ref())
			return err
		},
	})
}

// Refund pays money back on a cancelled ticket.
func (s *Service) Refund(ctx context.Context, id string, refunds []ledger.Amount, note, employeeID string) (*booking.Ticket, error) {
	return s.mutate(ctx, id, mutation{
		title:    "Ticket refunded",
		employee: employeeID,
		note:     note,
		refunds:  refunds,
		apply: func(t *booking.Ticket) error {
			if t.Status != booking.StatusCancelled {
				return booking.ErrRefundRequiresCancel
			}
			if t.PaymentStatus.Normalize() == payment.Refunded {
				return booking.ErrAlreadyRefunded
			}
			if len(refunds) == 0 {
				return booking.ErrNoRefunds
			}
			appendNote(t, "Refund", note)
			return s.applyRefunds(t, refunds)
		},
	})
}

// Reactivate brings a cancelled ticket back. An unpaid ticket gets its
// debt reopened since cancelling removed it.
func (s *Service) Reactivate(ctx context.Context, id, employeeID string) (*booking.Ticket, error) {
	var reopen bool
	return s.mutate(ctx, id, mutation{
		title:    "Ticket reactivated",
		employee: employeeID,
		apply: func(t *booking.Ticket) error {
			if t.Status != booking.StatusCancelled {
				return booking.ErrNotCancelled
			}
			t.Status = booking.StatusActive
			reopen = t.PaymentStatus.Normalize() == payment.Unpaid
			return nil
		},
		after: func(ctx context.Context, t *booking.Ticket) error {
			if !reopen {
				return nil
			}
			_, err := s.reconciler.Repair(ctx, s.target(t))
			return err
		},
	})
}

// CheckIn records whether the passenger has checked in.
func (s *Service) CheckIn(ctx context.Context, id string, checkedIn bool, employeeID string) (*booking.Ticket, error) {
	return s.mutate(ctx, id, mutation{
		title:    "Check-in updated",
		employee: employeeID,
		apply: func(t *booking.Ticket) error {
			if checkedIn && t.Status == booking.StatusCancelled {
				return booking.ErrAlreadyCancelled
			}
			t.CheckedIn = checkedIn
			return nil
		},
	})
}

// AddLog appends a manual audit entry.
func (s *Service) AddLog(ctx context.Context, id, title, description, employeeID string) (*booking.Ticket, error) {
	if strings.TrimSpace(title) == "" {
		return nil, booking.Invalid("title", "is required")
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Logs = append(t.Logs, booking.NewLog(title, description, employeeID, s.now()))
	t.UpdatedAt = s.now()
	if err := s.store.SaveTicket(ctx, *t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete soft-deletes the ticket. An unpaid ticket loses its ledger entries.
func (s *Service) Delete(ctx context.Context, id, employeeID string) error {
	var unpaid bool
	_, err := s.mutate(ctx, id, mutation{
		title:    "Ticket deleted",
		employee: employeeID,
		apply: func(t *booking.Ticket) error {
			t.Deleted = true
			unpaid = t.PaymentStatus.Normalize() == payment.Unpaid
			return nil
		},
		after: func(ctx context.Context, t *booking.Ticket) error {
			if !unpaid {
				return nil
			}
			_, err := s.ledger.DeleteAllForBooking(ctx, t.Ref())
			return err
		},
	})
	return err
}

// =============================================================================
// MUTATION PIPELINE
// =============================================================================

type mutation struct {
	title    string
	employee string
	note     string
	refunds  []ledger.Amount
	apply    func(t *booking.Ticket) error
	after    func(ctx context.Context, t *booking.Ticket) error
}

func (s *Service) mutate(ctx context.Context, id string, m mutation) (*booking.Ticket, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var result *booking.Ticket
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		old := t.Clone()

		if err := m.apply(t); err != nil {
			return err
		}
		if err := s.validate(t, &old); err != nil {
			return err
		}
		change := s.change(&old, t, m.refunds)
		if _, err := payment.Plan(change, s.now()); err != nil {
			return err
		}

		t.UpdatedAt = s.now()
		if err := s.store.SaveTicket(ctx, *t); err != nil {
			return err
		}
		if _, err := s.reconciler.Reconcile(ctx, change); err != nil {
			return err
		}
		if m.after != nil {
			if err := m.after(ctx, t); err != nil {
				return err
			}
		}

		desc := booking.DescribeTicketChanges(&old, t)
		if m.note != "" {
			desc += " (" + m.note + ")"
		}
		s.appendLog(ctx, t, m.title, desc, m.employee)
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// validate checks the payment invariants and the passport rule. old is nil
// on creation.
func (s *Service) validate(t *booking.Ticket, old *booking.Ticket) error {
	if t.Price.IsNegative() {
		return booking.Invalid("price", "must not be negative")
	}
	if err := s.syncChunks(t); err != nil {
		return err
	}
	if err := t.Snapshot().Validate(); err != nil {
		return err
	}

	passportChanged := old == nil ||
		!old.DepartureDate.Equal(t.DepartureDate) ||
		old.DepartureLocation != t.DepartureLocation ||
		old.ArrivalLocation != t.ArrivalLocation ||
		len(old.Passengers) != len(t.Passengers)
	if !passportChanged {
		for i := range t.Passengers {
			if !sameTime(old.Passengers[i].PassportExpiry, t.Passengers[i].PassportExpiry) {
				passportChanged = true
				break
			}
		}
	}
	if !passportChanged {
		return nil
	}
	for _, p := range t.Passengers {
		if err := booking.CheckPassport(p.FullName(), p.PassportExpiry, t.DepartureDate, t.DepartureLocation, t.ArrivalLocation); err != nil {
			return err
		}
	}
	return nil
}

// setPaymentStatus moves t to status and adjusts the chunk list so that
// its net matches the new paid amount.
func (s *Service) setPaymentStatus(t *booking.Ticket, status payment.Status, paidAmount *decimal.Decimal) error {
	st, err := payment.ParseStatus(string(status))
	if err != nil {
		return err
	}
	if st == payment.PartiallyPaid && paidAmount != nil {
		net := decimal.Zero
		if t.PaymentStatus.Normalize() == payment.PartiallyPaid || t.PaymentStatus.Normalize() == payment.Paid {
			net = t.Snapshot().PaidAmount
		} else {
			t.PaymentChunks = nil
		}
		if delta := paidAmount.Sub(net); !delta.IsZero() {
			t.PaymentChunks = append(t.PaymentChunks, s.chunk(delta, t.Currency, "", time.Time{}, t.Currency))
		}
	}
	if st == payment.Refunded {
		if net := t.Snapshot().PaidAmount; net.IsPositive() {
			t.PaymentChunks = append(t.PaymentChunks, s.chunk(net.Neg(), t.Currency, "Refund", time.Time{}, t.Currency))
		}
	}
	t.PaymentStatus = st
	return nil
}

// syncChunks keeps the chunk list consistent with the payment status.
func (s *Service) syncChunks(t *booking.Ticket) error {
	net := t.PaidFromChunks()
	switch t.PaymentStatus.Normalize() {
	case payment.Unpaid:
		t.PaymentChunks = nil
	case payment.Paid:
		if net.LessThan(t.Price) {
			t.PaymentChunks = append(t.PaymentChunks, s.chunk(t.Price.Sub(net), t.Currency, "", time.Time{}, t.Currency))
		}
	case payment.PartiallyPaid:
		if !net.IsPositive() || !net.LessThan(t.Price) {
			return booking.Invalid("payment_chunks", "partially paid requires payments between 0 and the price, got %s", net.StringFixed(2))
		}
	}
	return nil
}

// applyRefunds appends a negative chunk per refund and marks the ticket
// refunded.
func (s *Service) applyRefunds(t *booking.Ticket, refunds []ledger.Amount) error {
	for _, r := range refunds {
		if r.Value.IsZero() {
			return booking.Invalid("refunds", "refund amounts must not be zero")
		}
		t.PaymentChunks = append(t.PaymentChunks, s.chunk(r.Value.Abs().Neg(), r.Currency, "Refund", time.Time{}, t.Currency))
	}
	t.PaymentStatus = payment.Refunded
	return nil
}

func (s *Service) chunk(amount decimal.Decimal, currency ledger.Currency, note string, at time.Time, fallback ledger.Currency) booking.PaymentChunk {
	if currency == "" {
		currency = fallback
	}
	if at.IsZero() {
		at = s.now()
	}
	return booking.PaymentChunk{Amount: amount, Currency: currency, PaidAt: at, Note: note}
}

func (s *Service) change(old, cur *booking.Ticket, refunds []ledger.Amount) payment.Change {
	c := payment.Change{
		Ref:      cur.Ref(),
		AgencyID: cur.AgencyID,
		UserID:   cur.EmployeeID,
		Label:    cur.Label(),
		New:      cur.Snapshot(),
		Refunds:  refunds,
	}
	if old != nil {
		snap := old.Snapshot()
		c.Old = &snap
	}
	return c
}

// appendLog stores an audit entry. Failures are logged, never returned.
func (s *Service) appendLog(ctx context.Context, t *booking.Ticket, title, description, employeeID string) {
	t.Logs = append(t.Logs, booking.NewLog(title, description, employeeID, s.now()))
	if err := s.store.SaveTicket(ctx, *t); err != nil {
		s.logger.Warn("audit log append failed", "ticket_id", t.ID, "title", title, "error", err)
	}
}

// =============================================================================
// REPLAY
// =============================================================================

// Targets lists the payment state of every live ticket for the replay
// backstop. Cancelled tickets are skipped: their ledger was settled
// explicitly by cancel or refund.
func (s *Service) Targets(ctx context.Context) ([]payment.Target, error) {
	tickets, _, err := s.store.ListTickets(ctx, booking.TicketFilter{Status: booking.StatusActive})
	if err != nil {
		return nil, err
	}
	targets := make([]payment.Target, 0, len(tickets))
	for i := range tickets {
		targets = append(targets, s.target(&tickets[i]))
	}
	return targets, nil
}

// Replay repairs the live ledger rows of every active ticket and returns
// the number of rows changed. Each ticket is re-read under its lock, so a
// repair never works from a stale snapshot.
func (s *Service) Replay(ctx context.Context) (int, error) {
	targets, err := s.Targets(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	var errs []error
	for _, tg := range targets {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := s.replayTicket(ctx, tg.Ref.ID)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("ticket %s: %w", tg.Ref.ID, err))
		}
	}
	return total, errors.Join(errs...)
}

func (s *Service) replayTicket(ctx context.Context, id string) (int, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	fixed := 0
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := s.store.GetTicket(ctx, id)
		if err != nil {
			return err
		}
		if t == nil || t.Deleted || t.Status != booking.StatusActive {
			return nil
		}
		fixed, err = s.reconciler.Repair(ctx, s.target(t))
		return err
	})
	if err != nil {
		return 0, err
	}
	return fixed, nil
}

func (s *Service) target(t *booking.Ticket) payment.Target {
	return payment.Target{
		Ref:      t.Ref(),
		AgencyID: t.AgencyID,
		UserID:   t.EmployeeID,
		Label:    t.Label(),
		Snapshot: t.Snapshot(),
	}
}

// appendNote adds a labelled paragraph to the ticket note.
func appendNote(t *booking.Ticket, label, note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if t.Note == "" {
		t.Note = label + ": " + note
		return
	}
	t.Note += "\n\n" + label + ": " + note
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
