package booking

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewLog builds an audit entry.
func NewLog(title, description, employeeID string, at time.Time) LogEntry {
	return LogEntry{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		EmployeeID:  employeeID,
		CreatedAt:   at,
	}
}

// NewUID returns a human-facing booking number: prefix plus six digits.
func NewUID(prefix string) string {
	return fmt.Sprintf("%s%06d", prefix, rand.Intn(1_000_000))
}

// DescribeTicketChanges lists the user-visible field changes between two
// versions of a ticket.
func DescribeTicketChanges(old, cur *Ticket) string {
	var d diff
	d.str("Booking reference", old.BookingReference, cur.BookingReference)
	d.str("Operator", old.Operator, cur.Operator)
	d.str("Route", old.RouteNumber, cur.RouteNumber)
	d.str("Departure", old.DepartureLocation, cur.DepartureLocation)
	d.str("Arrival", old.ArrivalLocation, cur.ArrivalLocation)
	d.date("Departure date", &old.DepartureDate, &cur.DepartureDate)
	d.date("Return date", old.ReturnDate, cur.ReturnDate)
	d.dec("Price", old.Price, cur.Price)
	d.str("Currency", string(old.Currency), string(cur.Currency))
	d.str("Payment status", string(old.PaymentStatus), string(cur.PaymentStatus))
	d.str("Status", string(old.Status), string(cur.Status))
	d.str("Note", old.Note, cur.Note)
	if len(old.Passengers) != len(cur.Passengers) {
		d.add(fmt.Sprintf("Passengers: %d -> %d", len(old.Passengers), len(cur.Passengers)))
	}
	return d.String()
}

// DescribeTravelerChanges lists the user-visible field changes of one traveler.
func DescribeTravelerChanges(old, cur Traveler) string {
	var d diff
	d.str("First name", old.FirstName, cur.FirstName)
	d.str("Last name", old.LastName, cur.LastName)
	d.str("Phone", old.Phone, cur.Phone)
	d.str("Passport", old.PassportNumber, cur.PassportNumber)
	d.date("Passport expiry", old.PassportExpiry, cur.PassportExpiry)
	d.dec("Price", old.Price, cur.Price)
	d.dec("Paid", old.PaidAmount, cur.PaidAmount)
	d.str("Currency", string(old.Currency), string(cur.Currency))
	d.str("Payment status", string(old.PaymentStatus), string(cur.PaymentStatus))
	d.str("Status", string(old.Status), string(cur.Status))
	d.str("Bus", old.Bus, cur.Bus)
	d.str("Room", old.RoomType, cur.RoomType)
	d.str("Room group", old.RoomGroup, cur.RoomGroup)
	return d.String()
}

type diff struct{ parts []string }

func (d *diff) add(s string) { d.parts = append(d.parts, s) }

func (d *diff) str(field, a, b string) {
	if a != b {
		d.add(fmt.Sprintf("%s: %q -> %q", field, a, b))
	}
}

func (d *diff) dec(field string, a, b decimal.Decimal) {
	if !a.Equal(b) {
		d.add(fmt.Sprintf("%s: %s -> %s", field, a.StringFixed(2), b.StringFixed(2)))
	}
}

func (d *diff) date(field string, a, b *time.Time) {
	switch {
	case a == nil && b == nil:
	case a == nil || b == nil || !a.Equal(*b):
		d.add(fmt.Sprintf("%s: %s -> %s", field, fmtDate(a), fmtDate(b)))
	}
}

func (d *diff) String() string {
	if len(d.parts) == 0 {
		return "No changes"
	}
	return strings.Join(d.parts, "; ")
}

func fmtDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}
