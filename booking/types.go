/*
Package booking holds the booking documents and the rules shared by every
booking service.

PURPOSE:
  Booking services own two families of documents:

    Ticket        single passenger payer (bus, plane)
    GroupBooking  many travelers, each a payer (event, organized travel,
                  hotel reservation)

  Both translate into payment.Snapshot values so one reconciler serves
  every kind. This package also carries the passport guard, audit log
  helpers, the per-booking lock and the storage interfaces.

STATE MACHINES:
  status:         active -> cancelled -> active (reactivate)
  payment_status: driven by the payment package; independent of status

SEE ALSO:
  - tickets/service.go: Ticket lifecycle
  - groups/service.go: Group booking lifecycle
  - payment/plan.go: Transition table
*/
package booking

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/travel-ledger/ledger"
	"github.com/warp/travel-ledger/payment"
)

// =============================================================================
// SHARED TYPES
// =============================================================================

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// PaymentChunk is one installment on a ticket. Negative amounts are
// refunds and are kept for display only.
type PaymentChunk struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency ledger.Currency `json:"currency"`
	PaidAt   time.Time       `json:"paid_at"`
	Note     string          `json:"note,omitempty"`
}

// LogEntry is a human-readable audit line stored on the booking.
type LogEntry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	EmployeeID  string    `json:"employee_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// =============================================================================
// TICKET - Bus and plane bookings
// =============================================================================

type TicketType string

const (
	TicketBus   TicketType = "bus"
	TicketPlane TicketType = "plane"
)

func (t TicketType) Valid() bool { return t == TicketBus || t == TicketPlane }

// UIDPrefix is the prefix of human-facing ticket numbers.
func (t TicketType) UIDPrefix() string {
	if t == TicketBus {
		return "B"
	}
	return "A"
}

type Passenger struct {
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Phone          string     `json:"phone,omitempty"`
	PassportNumber string     `json:"passport_number,omitempty"`
	PassportExpiry *time.Time `json:"passport_expiry,omitempty"`
	BirthDate      *time.Time `json:"birth_date,omitempty"`
}

func (p Passenger) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type Ticket struct {
	ID                       string          `json:"id"`
	UID                      string          `json:"uid"`
	Type                     TicketType      `json:"type"`
	AgencyID                 string          `json:"agency_id"`
	EmployeeID               string          `json:"employee_id,omitempty"`
	BookingReference         string          `json:"booking_reference,omitempty"`
	OriginalBookingReference string          `json:"original_booking_reference,omitempty"`
	Operator                 string          `json:"operator,omitempty"`
	RouteNumber              string          `json:"route_number,omitempty"`
	DepartureLocation        string          `json:"departure_location"`
	ArrivalLocation          string          `json:"arrival_location"`
	DepartureDate            time.Time       `json:"departure_date"`
	ReturnDate               *time.Time      `json:"return_date,omitempty"`
	Passengers               []Passenger     `json:"passengers"`
	Price                    decimal.Decimal `json:"price"`
	Currency                 ledger.Currency `json:"currency"`
	PaymentStatus            payment.Status  `json:"payment_status"`
	PaymentChunks            []PaymentChunk  `json:"payment_chunks,omitempty"`
	Status                   Status          `json:"status"`
	CheckedIn                bool            `json:"checked_in"`
	Note                     string          `json:"note,omitempty"`
	Logs                     []LogEntry      `json:"logs,omitempty"`
	Deleted                  bool            `json:"deleted"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

func (t *Ticket) Ref() ledger.BookingRef { return ledger.TicketRef(t.ID) }

// PaidFromChunks is the net of all payment chunks.
func (t *Ticket) PaidFromChunks() decimal.Decimal {
	total := decimal.Zero
	for _, c := range t.PaymentChunks {
		total = total.Add(c.Amount)
	}
	return total
}

// Snapshot derives the payment state of the ticket. The paid amount of a
// partially paid ticket is the net of its payment chunks.
func (t *Ticket) Snapshot() payment.Snapshot {
	return payment.Snapshot{
		Price:      t.Price,
		PaidAmount: t.PaidFromChunks(),
		Currency:   t.Currency,
		Status:     t.PaymentStatus,
	}.Normalize()
}

// Label is used in ledger descriptions.
func (t *Ticket) Label() string {
	kind := "Plane ticket"
	if t.Type == TicketBus {
		kind = "Bus ticket"
	}
	label := kind + " " + t.UID
	if len(t.Passengers) > 0 {
		label += " - " + t.Passengers[0].FullName()
	}
	return label
}

func (t *Ticket) Clone() Ticket {
	c := *t
	c.Passengers = append([]Passenger(nil), t.Passengers...)
	c.PaymentChunks = append([]PaymentChunk(nil), t.PaymentChunks...)
	c.Logs = append([]LogEntry(nil), t.Logs...)
	return c
}

// =============================================================================
// GROUP BOOKING - Event, organized travel, hotel reservation
// =============================================================================

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationCompleted ReservationStatus = "completed"
)

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationPending, ReservationConfirmed, ReservationCancelled, ReservationCompleted:
		return true
	}
	return false
}

type Traveler struct {
	ID             string          `json:"id"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	Phone          string          `json:"phone,omitempty"`
	PassportNumber string          `json:"passport_number,omitempty"`
	PassportExpiry *time.Time      `json:"passport_expiry,omitempty"`
	BirthDate      *time.Time      `json:"birth_date,omitempty"`
	Price          decimal.Decimal `json:"price"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Currency       ledger.Currency `json:"currency"`
	PaymentStatus  payment.Status  `json:"payment_status"`
	Status         Status          `json:"status"`
	Bus            string          `json:"bus,omitempty"`
	HotelName      string          `json:"hotel_name,omitempty"`
	RoomType       string          `json:"room_type,omitempty"`
	RoomGroup      string          `json:"room_group,omitempty"`
	Note           string          `json:"note,omitempty"`
}

func (t Traveler) FullName() string {
	return strings.TrimSpace(t.FirstName + " " + t.LastName)
}

func (t Traveler) Snapshot() payment.Snapshot {
	return payment.Snapshot{
		Price:      t.Price,
		PaidAmount: t.PaidAmount,
		Currency:   t.Currency,
		Status:     t.PaymentStatus,
	}.Normalize()
}

// ApplySnapshot writes a normalized snapshot back onto the traveler.
func (t *Traveler) ApplySnapshot(s payment.Snapshot) {
	s = s.Normalize()
	t.Price = s.Price
	t.PaidAmount = s.PaidAmount
	t.Currency = s.Currency
	t.PaymentStatus = s.Status
}

type GroupBooking struct {
	ID                string             `json:"id"`
	UID               string             `json:"uid"`
	Kind              ledger.BookingKind `json:"kind"`
	AgencyID          string             `json:"agency_id"`
	EmployeeID        string             `json:"employee_id,omitempty"`
	Name              string             `json:"name"`
	Location          string             `json:"location,omitempty"`
	DepartureCity     string             `json:"departure_city,omitempty"`
	ArrivalCity       string             `json:"arrival_city,omitempty"`
	DepartureDate     time.Time          `json:"departure_date"`
	ReturnDate        *time.Time         `json:"return_date,omitempty"`
	HotelName         string             `json:"hotel_name,omitempty"`
	HotelBookingID    string             `json:"hotel_booking_id,omitempty"`
	ReservationStatus ReservationStatus  `json:"reservation_status,omitempty"`
	Currency          ledger.Currency    `json:"currency"`
	Travelers         []Traveler         `json:"travelers"`
	Buses             []string           `json:"buses,omitempty"`
	Note              string             `json:"note,omitempty"`
	Logs              []LogEntry         `json:"logs,omitempty"`
	Deleted           bool               `json:"deleted"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

func (g *GroupBooking) Ref() ledger.BookingRef { return ledger.BookingRef{Kind: g.Kind, ID: g.ID} }

// Traveler returns the index of the traveler with id, or -1.
func (g *GroupBooking) Traveler(id string) int {
	for i := range g.Travelers {
		if g.Travelers[i].ID == id {
			return i
		}
	}
	return -1
}

// Label is used in ledger descriptions.
func (g *GroupBooking) Label(t Traveler) string {
	name := g.Name
	if name == "" {
		name = g.UID
	}
	return name + " - " + t.FullName()
}

func (g *GroupBooking) Clone() GroupBooking {
	c := *g
	c.Travelers = append([]Traveler(nil), g.Travelers...)
	c.Buses = append([]string(nil), g.Buses...)
	c.Logs = append([]LogEntry(nil), g.Logs...)
	return c
}

// =============================================================================
// QUERIES
// =============================================================================

type TicketFilter struct {
	Type           TicketType
	AgencyID       string
	Status         Status
	PaymentStatus  payment.Status
	Search         string
	HotelBookingID string
	From, To       *time.Time
	IncludeDeleted bool
	Offset, Limit  int
}

type GroupFilter struct {
	Kind           ledger.BookingKind
	AgencyID       string
	Search         string
	HotelBookingID string
	From, To       *time.Time
	IncludeDeleted bool
	Offset, Limit  int
}

// Page applies offset/limit to n items and returns the slice bounds.
func Page(n, offset, limit int) (start, end int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end = n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}

// MatchesTicket applies f to t. Stores that cannot filter natively use it.
func (f TicketFilter) MatchesTicket(t *Ticket) bool {
	if !f.IncludeDeleted && t.Deleted {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.AgencyID != "" && t.AgencyID != f.AgencyID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.PaymentStatus != "" && t.PaymentStatus.Normalize() != f.PaymentStatus.Normalize() {
		return false
	}
	if f.From != nil && t.DepartureDate.Before(*f.From) {
		return false
	}
	if f.To != nil && t.DepartureDate.After(*f.To) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		hay := []string{t.UID, t.BookingReference, t.OriginalBookingReference, t.DepartureLocation, t.ArrivalLocation, t.Operator}
		for _, p := range t.Passengers {
			hay = append(hay, p.FullName(), p.Phone)
		}
		return containsAny(hay, q)
	}
	return true
}

// MatchesGroup applies f to g.
func (f GroupFilter) MatchesGroup(g *GroupBooking) bool {
	if !f.IncludeDeleted && g.Deleted {
		return false
	}
	if f.Kind != "" && g.Kind != f.Kind {
		return false
	}
	if f.AgencyID != "" && g.AgencyID != f.AgencyID {
		return false
	}
	if f.From != nil && g.DepartureDate.Before(*f.From) {
		return false
	}
	if f.To != nil && g.DepartureDate.After(*f.To) {
		return false
	}
	// substring match, case-insensitive
	if q := strings.ToLower(strings.TrimSpace(f.HotelBookingID)); q != "" && !containsAny([]string{g.HotelBookingID}, q) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		hay := []string{g.UID, g.Name, g.Location, g.DepartureCity, g.ArrivalCity, g.HotelName}
		for _, t := range g.Travelers {
			hay = append(hay, t.FullName(), t.Phone, t.PassportNumber)
		}
		return containsAny(hay, q)
	}
	return true
}

func containsAny(hay []string, q string) bool {
	for _, h := range hay {
		if strings.Contains(strings.ToLower(h), q) {
			return true
		}
	}
	return false
}

// =============================================================================
// AGENCY - Tenant owning bookings and ledger entries
// =============================================================================

type Agency struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
