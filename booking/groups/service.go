/*
Package groups owns the lifecycle of multi-traveler bookings: events,
organized travel and hotel reservations.

Each traveler is an independent payer with its own ledger slots
(base and _debt, keyed by traveler id). One Service per kind; KindSpec
switches the kind-specific operations (bus and room assignment,
reservation status) on or off.

Every payment mutation follows the same pipeline as tickets: lock the
booking, snapshot the traveler, apply and validate, persist, reconcile,
append an audit entry. Adding travelers (including at creation) is
best effort on the ledger side; explicit payment, refund and removal
actions fail the request when the ledger write fails.
*/
package groups

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

type Service struct {
	spec       KindSpec
	store      booking.GroupStore
	ledger     *ledger.Ledger
	reconciler *payment.Reconciler
	tx         booking.Transactor
	locks      *booking.Locker
	logger     *slog.Logger
	now        func() time.Time
}

type Config struct {
	Store      booking.GroupStore
	Ledger     *ledger.Ledger
	Reconciler *payment.Reconciler
	Transactor booking.Transactor
	Locker     *booking.Locker
	Logger     *slog.Logger
	Clock      func() time.Time
}

func NewService(spec KindSpec, cfg Config) *Service {
	s := &Service{
		spec:       spec,
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
	s.logger = s.logger.With("kind", string(spec.Kind))
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *Service) Spec() KindSpec { return s.spec }

// =============================================================================
// INPUTS
// =============================================================================

type TravelerInput struct {
	FirstName      string
	LastName       string
	Phone          string
	PassportNumber string
	PassportExpiry *time.Time
	BirthDate      *time.Time
	Price          decimal.Decimal
	PaidAmount     decimal.Decimal
	Currency       ledger.Currency
	PaymentStatus  payment.Status
	Bus            string
	HotelName      string
	RoomType       string
	RoomGroup      string
	Note           string
}

type CreateInput struct {
	AgencyID       string
	EmployeeID     string
	Name           string
	Location       string
	DepartureCity  string
	ArrivalCity    string
	DepartureDate  time.Time
	ReturnDate     *time.Time
	HotelName      string
	HotelBookingID string
	Currency       ledger.Currency
	Buses          []string
	Note           string
	Travelers      []TravelerInput
}

// UpdateInput changes booking-level fields. Nil fields are left unchanged.
type UpdateInput struct {
	EmployeeID     string
	Name           *string
	Location       *string
	DepartureCity  *string
	ArrivalCity    *string
	DepartureDate  *time.Time
	ReturnDate     *time.Time
	HotelName      *string
	HotelBookingID *string
	Note           *string
	Buses          []string
}

// TravelerPatch is a partial traveler update. Payment fields are
// reconciled like UpdateTravelerPayment.
type TravelerPatch struct {
	FirstName      *string
	LastName       *string
	Phone          *string
	PassportNumber *string
	PassportExpiry *time.Time
	BirthDate      *time.Time
	Price          *decimal.Decimal
	PaidAmount     *decimal.Decimal
	Currency       *ledger.Currency
	PaymentStatus  *payment.Status
	Bus            *string
	HotelName      *string
	RoomType       *string
	RoomGroup      *string
	Note           *string
}

type PaymentUpdate struct {
	Status     payment.Status
	PaidAmount *decimal.Decimal
	Price      *decimal.Decimal
	Currency   *ledger.Currency
}

// RefundRequest refunds one traveler. Without amounts, everything the
// traveler paid is refunded.
type RefundRequest struct {
	TravelerID string
	Amounts    []ledger.Amount
}

type RoomAssignment struct {
	TravelerIDs []string
	HotelName   string
	RoomType    string
	RoomGroup   string
}

// =============================================================================
// BOOKING OPERATIONS
// =============================================================================

// Create stores a new booking and books the opening ledger entries of every
// traveler.
func (s *Service) Create(ctx context.Context, in CreateInput) (*booking.GroupBooking, error) {
	if strings.TrimSpace(in.AgencyID) == "" {
		return nil, booking.Invalid("agency_id", "is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, booking.Invalid("name", "is required")
	}
	if in.DepartureDate.IsZero() {
		return nil, booking.Invalid("departure_date", "is required")
	}
	if in.ReturnDate != nil && in.ReturnDate.Before(in.DepartureDate) {
		return nil, booking.Invalid("return_date", "must not be before the departure date")
	}
	currency, err := ledger.ParseCurrency(string(in.Currency))
	if err != nil {
		return nil, booking.Invalid("currency", "%v", err)
	}

	now := s.now()
	g := booking.GroupBooking{
		ID:             uuid.NewString(),
		UID:            booking.NewUID(s.spec.UIDPrefix),
		Kind:           s.spec.Kind,
		AgencyID:       in.AgencyID,
		EmployeeID:     in.EmployeeID,
		Name:           strings.TrimSpace(in.Name),
		Location:       in.Location,
		DepartureCity:  in.DepartureCity,
		ArrivalCity:    in.ArrivalCity,
		DepartureDate:  in.DepartureDate,
		ReturnDate:     in.ReturnDate,
		HotelName:      in.HotelName,
		HotelBookingID: in.HotelBookingID,
		Currency:       currency,
		Note:           in.Note,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if s.spec.Buses {
		g.Buses = uniq(in.Buses)
	}
	if s.spec.Reservation {
		g.ReservationStatus = booking.ReservationPending
	}
	for _, tin := range in.Travelers {
		tr, err := s.newTraveler(&g, tin)
		if err != nil {
			return nil, err
		}
		g.Travelers = append(g.Travelers, tr)
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.store.SaveGroup(ctx, g); err != nil {
			return err
		}
		for _, tr := range g.Travelers {
			if _, err := s.reconciler.Reconcile(ctx, s.change(&g, in.EmployeeID, nil, tr, nil)); err != nil {
				s.logger.Warn("ledger entries for new traveler failed", "booking_id", g.ID, "traveler_id", tr.ID, "error", err)
			}
		}
		s.appendLog(ctx, &g, s.spec.Noun+" created", fmt.Sprintf("%s with %d travelers", g.Name, len(g.Travelers)), in.EmployeeID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Service) Get(ctx context.Context, id string) (*booking.GroupBooking, error) {
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil || g.Deleted || g.Kind != s.spec.Kind {
		return nil, &booking.NotFoundError{Resource: string(s.spec.Kind), ID: id}
	}
	return g, nil
}

func (s *Service) List(ctx context.Context, filter booking.GroupFilter) ([]booking.GroupBooking, int, error) {
	filter.Kind = s.spec.Kind
	return s.store.ListGroups(ctx, filter)
}

// Update changes booking-level fields. Travelers are re-checked against the
// passport rule when the itinerary changes.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*booking.GroupBooking, error) {
	return s.mutate(ctx, id, in.EmployeeID, func(g *booking.GroupBooking) (effect, error) {
		before := g.Clone()
		if in.Name != nil {
			if strings.TrimSpace(*in.Name) == "" {
				return effect{}, booking.Invalid("name", "must not be empty")
			}
			g.Name = strings.TrimSpace(*in.Name)
		}
		setString(&g.Location, in.Location)
		setString(&g.DepartureCity, in.DepartureCity)
		setString(&g.ArrivalCity, in.ArrivalCity)
		setString(&g.HotelName, in.HotelName)
		setString(&g.HotelBookingID, in.HotelBookingID)
		setString(&g.Note, in.Note)
		if in.DepartureDate != nil {
			g.DepartureDate = *in.DepartureDate
		}
		if in.ReturnDate != nil {
			g.ReturnDate = in.ReturnDate
		}
		if g.ReturnDate != nil && g.ReturnDate.Before(g.DepartureDate) {
			return effect{}, booking.Invalid("return_date", "must not be before the departure date")
		}
		if in.Buses != nil && s.spec.Buses {
			g.Buses = uniq(in.Buses)
		}

		if itineraryChanged(&before, g) {
			for _, tr := range g.Travelers {
				if tr.Status == booking.StatusActive {
					if err := s.checkPassport(g, tr); err != nil {
						return effect{}, err
					}
				}
			}
		}
		return effect{title: s.spec.Noun + " updated", description: describeBooking(&before, g)}, nil
	})
}

// Delete soft-deletes the booking and voids every outstanding debt. Income
// and refunds stay on the ledger.
func (s *Service) Delete(ctx context.Context, id, employeeID string) error {
	_, err := s.mutate(ctx, id, employeeID, func(g *booking.GroupBooking) (effect, error) {
		g.Deleted = true
		return effect{title: s.spec.Noun + " deleted", voidDebts: true}, nil
	})
	return err
}

// SetReservationStatus moves a hotel reservation through its workflow.
func (s *Service) SetReservationStatus(ctx context.Context, id string, status booking.ReservationStatus, employeeID string) (*booking.GroupBooking, error) {
	if !s.spec.Reservation {
		return nil, s.unsupported("reservation status")
	}
	if !status.Valid() {
		return nil, booking.Invalid("status", "unknown reservation status %q", status)
	}
	return s.mutate(ctx, id, employeeID, func(g *booking.GroupBooking) (effect, error) {
		old := g.ReservationStatus
		g.ReservationStatus = status
		return effect{title: "Reservation status updated", description: fmt.Sprintf("%s -> %s", old, status)}, nil
	})
}

// =============================================================================
// TRAVELER OPERATIONS
// =============================================================================

// AddTravelers appends travelers and books their opening entries.
func (s *Service) AddTravelers(ctx context.Context, id string, ins []TravelerInput, employeeID string) (*booking.GroupBooking, error) {
	if len(ins) == 0 {
		return nil, booking.Invalid("travelers", "at least one traveler is required")
	}
	return s.mutate(ctx, id, employeeID, func(g *booking.GroupBooking) (effect, error) {
		eff := effect{title: "Travelers added", bestEffort: true}
		var names []string
		for _, in := range ins {
			tr, err := s.newTraveler(g, in)
			if err != nil {
				return effect{}, err
			}
			g.Travelers = append(g.Travelers, tr)
			eff.changes = append(eff.changes, s.change(g, employeeID, nil, tr, nil))
			names = append(names, tr.FullName())
		}
		eff.description = strings.Join(names, ", ")
		return eff, nil
	})
}

// UpdateTraveler applies a partial traveler update.
func (s *Service) UpdateTraveler(ctx context.Context, id, travelerID string, p TravelerPatch, employeeID string) (*booking.GroupBooking, error) {
	return s.mutateTraveler(ctx, id, travelerID, employeeID, "Traveler updated", func(g *booking.GroupBooking, tr *booking.Traveler) error {
		if p.FirstName != nil && strings.TrimSpace(*p.FirstName) == "" {
			return booking.Invalid("first_name", "must not be empty")
		}
		setString(&tr.FirstName, p.FirstName)
		setString(&tr.LastName, p.LastName)
		setString(&tr.Phone, p.Phone)
		setString(&tr.PassportNumber, p.PassportNumber)
		setString(&tr.Note, p.Note)
		if p.PassportExpiry != nil {
			tr.PassportExpiry = p.PassportExpiry
		}
		if p.BirthDate != nil {
			tr.BirthDate = p.BirthDate
		}
		if p.Bus != nil {
			if !s.spec.Buses {
				return s.unsupported("bus assignment")
			}
			tr.Bus = *p.Bus
			addBus(g, tr.Bus)
		}
		if p.HotelName != nil || p.RoomType != nil || p.RoomGroup != nil {
			if !s.spec.Rooms {
				return s.unsupported("room assignment")
			}
			setString(&tr.HotelName, p.HotelName)
			setString(&tr.RoomType, p.RoomType)
			setString(&tr.RoomGroup, p.RoomGroup)
		}
		if p.Price != nil || p.PaidAmount != nil || p.Currency != nil || p.PaymentStatus != nil {
			u := PaymentUpdate{Status: tr.PaymentStatus, PaidAmount: p.PaidAmount, Price: p.Price, Currency: p.Currency}
			if p.PaymentStatus != nil {
				u.Status = *p.PaymentStatus
			}
			if err := applyPayment(tr, u); err != nil {
				return err
			}
		}
		return s.checkPassport(g, *tr)
	})
}

// UpdateTravelerPayment changes the payment state of one traveler.
func (s *Service) UpdateTravelerPayment(ctx context.Context, id, travelerID string, u PaymentUpdate, employeeID string) (*booking.GroupBooking, error) {
	return s.mutateTraveler(ctx, id, travelerID, employeeID, "Payment status updated", func(_ *booking.GroupBooking, tr *booking.Traveler) error {
		return applyPayment(tr, u)
	})
}

// RemoveTraveler drops the traveler and both of its live ledger slots. No
// refund is booked; refund first if money was collected.
func (s *Service) RemoveTraveler(ctx context.Context, id, travelerID, employeeID string) (*booking.GroupBooking, error) {
	return s.mutate(ctx, id, employeeID, func(g *booking.GroupBooking) (effect, error) {
		i, err := s.traveler(g, travelerID)
		if err != nil {
			return effect{}, err
		}
		tr := g.Travelers[i]
		g.Travelers = append(g.Travelers[:i], g.Travelers[i+1:]...)
		return effect{title: "Traveler removed", description: tr.FullName(), removed: []string{tr.ID}}, nil
	})
}

// CancelTraveler marks the traveler cancelled. The ledger is untouched.
func (s *Service) CancelTraveler(ctx context.Context, id, travelerID, employeeID string) (*booking.GroupBooking, error) {
	return s.mutateTraveler(ctx, id, travelerID, employeeID, "Traveler cancelled", func(_ *booking.GroupBooking, tr *booking.Traveler) error {
		if tr.Status == booking.StatusCancelled {
			return booking.ErrAlreadyCancelled
		}
		tr.Status = booking.StatusCancelled
		return nil
	})
}

func (s *Service) ReactivateTraveler(ctx context.Context, id, travelerID, employeeID string) (*booking.GroupBooking, error) {
	return s.mutateTraveler(ctx, id, travelerID, employeeID, "Traveler reactivated", func(g *booking.GroupBooking, tr *booking.Traveler) error {
		if tr.Status != booking.StatusCancelled {
			return booking.ErrNotCancelled
		}
		tr.Status = booking.StatusActive
		return s.checkPassport(g, *tr)
	})
}

// RefundTravelers moves each requested traveler to refunded and books the
// outcome rows.
func (s *Service) RefundTravelers(ctx context.Context, id string, reqs []RefundRequest, note, employeeID string) (*booking.GroupBooking, error) {
	if len(reqs) == 0 {
		return nil, booking.ErrNoRefunds
	}
	return s.mutate(ctx, id, employeeID, func(g *booking.GroupBooking) (effect, error) {
		eff := effect{title: "Travelers refunded"}
		var parts []string
		for _, req := range reqs {
			i, err := s.traveler(g, req.TravelerID)
			if err != nil {
				return effect{}, err
			}
			old := g.Travelers[i]
			if old.PaymentStatus.Normalize() == payment.Refunded {
				return effect{}, fmt.Errorf("%w: %s", booking.ErrAlreadyRefunded, old.FullName())
			}
			for _, a := range req.Amounts {
				if a.Value.IsZero() {
					return effect{}, booking.Invalid("amounts", "refund amounts must not be zero")
				}
			}
			cur := old
			cur.ApplySnapshot(payment.Snapshot{Price: old.Price, Currency: old.Currency, Status: payment.Refunded})
			g.Travelers[i] = cur
			eff.changes = append(eff.changes, s.change(g, employeeID, &old, cur, req.Amounts))
			parts = append(parts, cur.FullName())
		}
		eff.description = strings.Join(parts, ", ")
		if note != "" {
			eff.description += " (" + note + ")"
		}
		return eff, nil
	})
}

// AssignBus puts travelers on bus. An empty bus unassigns them.
func (s *Service) AssignBus(ctx context.Context, id, bus string, travelerIDs []string, employeeID string) (*booking.GroupBooking, error) {
	if !s.spec.Buses {
		return nil, s.unsupported("bus assignment")
	}
	if len(travelerIDs) == 0 {
		return nil, booking.Invalid("traveler_ids", "at least one traveler is required")
	}
	bus = strings.TrimSpace(bus)
	return s.mutate(ctx, id, employeeID, func(g *booking.GroupBooking) (effect, error) {
		for _, tid := range travelerIDs {
			i, err := s.traveler(g, tid)
			if err != nil {
				return effect{}, err
			}
			g.Travelers[i].Bus = bus
		}
		addBus(g, bus)
		desc := fmt.Sprintf("%d travelers assigned to bus %s", len(travelerIDs), bus)
		if bus == "" {
			desc = fmt.Sprintf("%d travelers unassigned from their bus", len(travelerIDs))
		}
		return effect{title: "Bus assigned", description: desc}, nil
	})
}

func (s *Service) AssignRoom(ctx context.Context, id string, a RoomAssignment, employeeID string) (*booking.GroupBooking, error) {
	if !s.spec.Rooms {
		return nil, s.unsupported("room assignment")
	}
	if len(a.TravelerIDs) == 0 {
		return nil, booking.Invalid("traveler_ids", "at least one traveler is required")
	}
	return s.mutate(ctx, id, employeeID, func(g *booking.GroupBooking) (effect, error) {
		for _, tid := range a.TravelerIDs {
			i, err := s.traveler(g, tid)
			if err != nil {
				return effect{}, err
			}
			tr := &g.Travelers[i]
			if a.HotelName != "" {
				tr.HotelName = a.HotelName
			}
			tr.RoomType = a.RoomType
			tr.RoomGroup = a.RoomGroup
		}
		desc := fmt.Sprintf("%d travelers in %s room %s", len(a.TravelerIDs), a.RoomType, a.RoomGroup)
		return effect{title: "Room assigned", description: desc}, nil
	})
}

// Unassigned is the TravelersByBus and TravelersByHotel key of travelers
// without a bus or hotel.
const Unassigned = "unassigned"

// TravelersByBus groups active travelers by bus.
func (s *Service) TravelersByBus(ctx context.Context, id string) (map[string][]booking.Traveler, error) {
	if !s.spec.Buses {
		return nil, s.unsupported("bus assignment")
	}
	g, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]booking.Traveler, len(g.Buses)+1)
	for _, bus := range g.Buses {
		out[bus] = []booking.Traveler{}
	}
	for _, tr := range g.Travelers {
		if tr.Status != booking.StatusActive {
			continue
		}
		key := tr.Bus
		if key == "" {
			key = Unassigned
		}
		out[key] = append(out[key], tr)
	}
	return out, nil
}

// TravelersByHotel groups active travelers by the hotel they are roomed in.
func (s *Service) TravelersByHotel(ctx context.Context, id string) (map[string][]booking.Traveler, error) {
	if !s.spec.Rooms {
		return nil, s.unsupported("room assignment")
	}
	g, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]booking.Traveler)
	for _, tr := range g.Travelers {
		if tr.Status != booking.StatusActive {
			continue
		}
		key := tr.HotelName
		if key == "" {
			key = Unassigned
		}
		out[key] = append(out[key], tr)
	}
	return out, nil
}

// Targets lists the payment state of every traveler on live bookings for
// the replay backstop. Cancelled travelers are included: cancelling does
// not touch the ledger.
func (s *Service) Targets(ctx context.Context) ([]payment.Target, error) {
	groups, _, err := s.List(ctx, booking.GroupFilter{})
	if err != nil {
		return nil, err
	}
	var targets []payment.Target
	for i := range groups {
		g := &groups[i]
		for _, tr := range g.Travelers {
			targets = append(targets, payment.Target{
				Ref:        g.Ref(),
				TravelerID: tr.ID,
				AgencyID:   g.AgencyID,
				UserID:     g.EmployeeID,
				Label:      g.Label(tr),
				Snapshot:   tr.Snapshot(),
			})
		}
	}
	return targets, nil
}

// Replay repairs the live ledger rows of every traveler on live bookings
// and returns the number of rows changed. Each booking is re-read under its
// lock, so a repair never works from a stale snapshot.
func (s *Service) Replay(ctx context.Context) (int, error) {
	groups, _, err := s.List(ctx, booking.GroupFilter{})
	if err != nil {
		return 0, err
	}
	total := 0
	var errs []error
	for i := range groups {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := s.replayGroup(ctx, groups[i].ID)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", s.spec.Kind, groups[i].ID, err))
		}
	}
	return total, errors.Join(errs...)
}

func (s *Service) replayGroup(ctx context.Context, id string) (int, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	fixed := 0
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		g, err := s.store.GetGroup(ctx, id)
		if err != nil {
			return err
		}
		if g == nil || g.Deleted || g.Kind != s.spec.Kind {
			return nil
		}
		for _, tr := range g.Travelers {
			n, err := s.reconciler.Repair(ctx, payment.Target{
				Ref:        g.Ref(),
				TravelerID: tr.ID,
				AgencyID:   g.AgencyID,
				UserID:     g.EmployeeID,
				Label:      g.Label(tr),
				Snapshot:   tr.Snapshot(),
			})
			fixed += n
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return fixed, nil
}

// =============================================================================
// MUTATION PIPELINE
// =============================================================================

type effect struct {
	title       string
	description string
	changes     []payment.Change
	// bestEffort logs reconciliation failures instead of returning them.
	bestEffort bool
	// removed lists travelers whose live slots are deleted.
	removed   []string
	voidDebts bool
}

func (s *Service) mutate(ctx context.Context, id, employeeID string, fn func(g *booking.GroupBooking) (effect, error)) (*booking.GroupBooking, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var result *booking.GroupBooking
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		g, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		eff, err := fn(g)
		if err != nil {
			return err
		}
		at := s.now()
		for _, c := range eff.changes {
			if _, err := payment.Plan(c, at); err != nil {
				return err
			}
		}

		g.UpdatedAt = at
		if err := s.store.SaveGroup(ctx, *g); err != nil {
			return err
		}
		for _, c := range eff.changes {
			if _, err := s.reconciler.Reconcile(ctx, c); err != nil {
				if !eff.bestEffort {
					return err
				}
				s.logger.Warn("ledger entries for traveler failed", "booking_id", g.ID, "traveler_id", c.TravelerID, "error", err)
			}
		}
		for _, tid := range eff.removed {
			if err := s.clearSlots(ctx, g.Ref(), tid); err != nil {
				return err
			}
		}
		if eff.voidDebts {
			if err := s.voidDebts(ctx, g); err != nil {
				return err
			}
		}

		s.appendLog(ctx, g, eff.title, eff.description, employeeID)
		result = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// mutateTraveler runs fn on one traveler and reconciles its payment change.
func (s *Service) mutateTraveler(ctx context.Context, id, travelerID, employeeID, title string, fn func(g *booking.GroupBooking, tr *booking.Traveler) error) (*booking.GroupBooking, error) {
	return s.mutate(ctx, id, employeeID, func(g *booking.GroupBooking) (effect, error) {
		i, err := s.traveler(g, travelerID)
		if err != nil {
			return effect{}, err
		}
		old := g.Travelers[i]
		cur := old
		if err := fn(g, &cur); err != nil {
			return effect{}, err
		}
		g.Travelers[i] = cur
		return effect{
			title:       title,
			description: cur.FullName() + ": " + booking.DescribeTravelerChanges(old, cur),
			changes:     []payment.Change{s.change(g, employeeID, &old, cur, nil)},
		}, nil
	})
}

func (s *Service) clearSlots(ctx context.Context, ref ledger.BookingRef, travelerID string) error {
	for _, slot := range []ledger.Slot{ledger.BaseSlot(travelerID), ledger.DebtSlot(travelerID)} {
		if _, err := s.ledger.DeleteBySlot(ctx, ref, slot); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) voidDebts(ctx context.Context, g *booking.GroupBooking) error {
	ref := g.Ref()
	for _, tr := range g.Travelers {
		base, err := s.ledger.FindBySlot(ctx, ref, ledger.BaseSlot(tr.ID))
		if err != nil {
			return err
		}
		if base != nil && base.OpenDebt() {
			if _, err := s.ledger.DeleteBySlot(ctx, ref, ledger.BaseSlot(tr.ID)); err != nil {
				return err
			}
		}
		if _, err := s.ledger.DeleteBySlot(ctx, ref, ledger.DebtSlot(tr.ID)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) appendLog(ctx context.Context, g *booking.GroupBooking, title, description, employeeID string) {
	g.Logs = append(g.Logs, booking.NewLog(title, description, employeeID, s.now()))
	if err := s.store.SaveGroup(ctx, *g); err != nil {
		s.logger.Warn("audit log append failed", "booking_id", g.ID, "title", title, "error", err)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) newTraveler(g *booking.GroupBooking, in TravelerInput) (booking.Traveler, error) {
	if strings.TrimSpace(in.FirstName) == "" {
		return booking.Traveler{}, booking.Invalid("first_name", "is required")
	}
	if in.Price.IsNegative() {
		return booking.Traveler{}, booking.Invalid("price", "must not be negative")
	}
	currency := g.Currency
	if in.Currency != "" {
		c, err := ledger.ParseCurrency(string(in.Currency))
		if err != nil {
			return booking.Traveler{}, booking.Invalid("currency", "%v", err)
		}
		currency = c
	}
	status, err := payment.ParseStatus(string(in.PaymentStatus))
	if err != nil {
		return booking.Traveler{}, err
	}

	tr := booking.Traveler{
		ID:             uuid.NewString(),
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		Phone:          in.Phone,
		PassportNumber: in.PassportNumber,
		PassportExpiry: in.PassportExpiry,
		BirthDate:      in.BirthDate,
		Status:         booking.StatusActive,
		Note:           in.Note,
	}
	if s.spec.Buses {
		tr.Bus = strings.TrimSpace(in.Bus)
		addBus(g, tr.Bus)
	}
	if s.spec.Rooms {
		tr.HotelName = in.HotelName
		tr.RoomType = in.RoomType
		tr.RoomGroup = in.RoomGroup
	}
	snap := payment.Snapshot{Price: in.Price, PaidAmount: in.PaidAmount, Currency: currency, Status: status}.Normalize()
	if err := snap.Validate(); err != nil {
		return booking.Traveler{}, err
	}
	tr.ApplySnapshot(snap)
	if err := s.checkPassport(g, tr); err != nil {
		return booking.Traveler{}, err
	}
	return tr, nil
}

// applyPayment writes u onto tr after validating the resulting snapshot.
func applyPayment(tr *booking.Traveler, u PaymentUpdate) error {
	status, err := payment.ParseStatus(string(u.Status))
	if err != nil {
		return err
	}
	snap := payment.Snapshot{Price: tr.Price, PaidAmount: tr.PaidAmount, Currency: tr.Currency, Status: status}
	if u.Price != nil {
		snap.Price = *u.Price
	}
	if u.PaidAmount != nil {
		snap.PaidAmount = *u.PaidAmount
	}
	if u.Currency != nil {
		c, err := ledger.ParseCurrency(string(*u.Currency))
		if err != nil {
			return booking.Invalid("currency", "%v", err)
		}
		snap.Currency = c
	}
	snap = snap.Normalize()
	if err := snap.Validate(); err != nil {
		return err
	}
	tr.ApplySnapshot(snap)
	return nil
}

func (s *Service) checkPassport(g *booking.GroupBooking, tr booking.Traveler) error {
	return booking.CheckPassport(tr.FullName(), tr.PassportExpiry, g.DepartureDate, s.spec.Locations(g)...)
}

func (s *Service) traveler(g *booking.GroupBooking, travelerID string) (int, error) {
	i := g.Traveler(travelerID)
	if i < 0 {
		return -1, &booking.NotFoundError{Resource: "traveler", ID: travelerID}
	}
	return i, nil
}

func (s *Service) change(g *booking.GroupBooking, employeeID string, old *booking.Traveler, cur booking.Traveler, refunds []ledger.Amount) payment.Change {
	if employeeID == "" {
		employeeID = g.EmployeeID
	}
	c := payment.Change{
		Ref:        g.Ref(),
		TravelerID: cur.ID,
		AgencyID:   g.AgencyID,
		UserID:     employeeID,
		Label:      g.Label(cur),
		New:        cur.Snapshot(),
		Refunds:    refunds,
	}
	if old != nil {
		snap := old.Snapshot()
		c.Old = &snap
	}
	return c
}

func (s *Service) unsupported(feature string) error {
	return booking.Invalid("", "%s is not available for %s bookings", feature, strings.ToLower(s.spec.Noun))
}

func itineraryChanged(a, b *booking.GroupBooking) bool {
	return !a.DepartureDate.Equal(b.DepartureDate) ||
		a.Location != b.Location ||
		a.DepartureCity != b.DepartureCity ||
		a.ArrivalCity != b.ArrivalCity ||
		a.HotelName != b.HotelName
}

func describeBooking(a, b *booking.GroupBooking) string {
	var parts []string
	add := func(field, x, y string) {
		if x != y {
			parts = append(parts, fmt.Sprintf("%s: %q -> %q", field, x, y))
		}
	}
	add("Name", a.Name, b.Name)
	add("Location", a.Location, b.Location)
	add("Departure city", a.DepartureCity, b.DepartureCity)
	add("Arrival city", a.ArrivalCity, b.ArrivalCity)
	add("Hotel", a.HotelName, b.HotelName)
	add("Hotel booking", a.HotelBookingID, b.HotelBookingID)
	add("Departure date", a.DepartureDate.Format(time.DateOnly), b.DepartureDate.Format(time.DateOnly))
	add("Note", a.Note, b.Note)
	if len(parts) == 0 {
		return "No changes"
	}
	return strings.Join(parts, "; ")
}

func addBus(g *booking.GroupBooking, bus string) {
	if bus == "" {
		return
	}
	for _, b := range g.Buses {
		if b == bus {
			return
		}
	}
	g.Buses = append(g.Buses, bus)
}

func uniq(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
