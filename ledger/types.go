/*
Package ledger provides the financial record of a travel agency's bookings.

PURPOSE:
  Every booking (bus/plane ticket, event, organized travel, hotel
  reservation) produces cash-flow entries: income collected, outcome
  refunded, and debt still owed. The ledger stores these entries keyed by
  a booking reference and a traveler slot so that reporting and debt
  dashboards can query it directly without re-deriving booking state.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount:      A positive decimal quantity with a currency
  - BookingRef:  Tagged reference to exactly one booking of one kind
  - Slot:        Typed traveler slot (base, debt, payment, refund, final)
  - Transaction: A ledger entry (income, outcome or debt)

SIGN CONVENTION:
  Amounts are always positive. Direction is carried by the Type field:
  income and outcome are settled cash flow, debt is money owed but not
  collected.

SLOTS:
  A traveler owns several independently addressable rows that describe
  different phases of its payment history:

    base      first income or the outstanding debt when unpaid
    debt      remaining balance while partially paid
    payment   later installment (timestamped, historical)
    refund    refund given (timestamped, historical)
    final     last installment that completed a partial payment

  Only base and debt are live. Timestamped slots are never looked up again.

SEE ALSO:
  - ledger.go: Operations scoped by booking reference and slot
  - store.go: Persistence interface
  - payment/reconciler.go: Decides which operations to run
*/
package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Money with a currency
// =============================================================================

type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyALL Currency = "ALL"
	CurrencyGBP Currency = "GBP"
	CurrencyCHF Currency = "CHF"

	DefaultCurrency = CurrencyEUR
)

// ParseCurrency normalizes a currency code. Empty input yields the default.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case "":
		return DefaultCurrency, nil
	case CurrencyEUR, CurrencyUSD, CurrencyALL, CurrencyGBP, CurrencyCHF:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown currency %q", ErrInvalidAmount, s)
}

type Amount struct {
	Value    decimal.Decimal
	Currency Currency
}

func NewAmountFromInt(value int64, currency Currency) Amount {
	return Amount{Value: decimal.NewFromInt(value), Currency: currency}
}

func (a Amount) Abs() Amount { return Amount{Value: a.Value.Abs(), Currency: a.Currency} }

func (a Amount) IsZero() bool     { return a.Value.IsZero() }
func (a Amount) IsPositive() bool { return a.Value.IsPositive() }

// Equal compares value and currency.
func (a Amount) Equal(b Amount) bool {
	return a.Currency == b.Currency && a.Value.Equal(b.Value)
}

func (a Amount) String() string { return a.Value.StringFixed(2) + " " + string(a.Currency) }

// =============================================================================
// BOOKING REFERENCE - Tagged union over booking kinds
// =============================================================================

type BookingKind string

const (
	KindTicket           BookingKind = "ticket"
	KindEvent            BookingKind = "event"
	KindOrganizedTravel  BookingKind = "organized_travel"
	KindHotelReservation BookingKind = "hotel_reservation"
)

func (k BookingKind) Valid() bool {
	switch k {
	case KindTicket, KindEvent, KindOrganizedTravel, KindHotelReservation:
		return true
	}
	return false
}

// BookingRef points at exactly one booking.
type BookingRef struct {
	Kind BookingKind `json:"kind"`
	ID   string      `json:"id"`
}

func TicketRef(id string) BookingRef { return BookingRef{Kind: KindTicket, ID: id} }
func EventRef(id string) BookingRef  { return BookingRef{Kind: KindEvent, ID: id} }
func TravelRef(id string) BookingRef { return BookingRef{Kind: KindOrganizedTravel, ID: id} }
func HotelRef(id string) BookingRef  { return BookingRef{Kind: KindHotelReservation, ID: id} }

func (r BookingRef) Valid() bool {
	return r.Kind.Valid() && strings.TrimSpace(r.ID) != ""
}

func (r BookingRef) String() string { return string(r.Kind) + ":" + r.ID }

// =============================================================================
// SLOT - Typed traveler slot key
// =============================================================================

type SlotKind string

const (
	SlotBase    SlotKind = "base"
	SlotDebt    SlotKind = "debt"
	SlotPayment SlotKind = "payment"
	SlotRefund  SlotKind = "refund"
	SlotFinal   SlotKind = "final"
)

// Slot identifies one row in a traveler's payment history.
// TravelerID is empty for single-ticket bookings. At is unix millis and is
// only set for payment and refund slots.
type Slot struct {
	TravelerID string   `json:"traveler_id,omitempty"`
	Kind       SlotKind `json:"kind"`
	At         int64    `json:"at,omitempty"`
}

func BaseSlot(travelerID string) Slot  { return Slot{TravelerID: travelerID, Kind: SlotBase} }
func DebtSlot(travelerID string) Slot  { return Slot{TravelerID: travelerID, Kind: SlotDebt} }
func FinalSlot(travelerID string) Slot { return Slot{TravelerID: travelerID, Kind: SlotFinal} }

func PaymentSlot(travelerID string, at time.Time) Slot {
	return Slot{TravelerID: travelerID, Kind: SlotPayment, At: at.UnixMilli()}
}

func RefundSlot(travelerID string, at time.Time) Slot {
	return Slot{TravelerID: travelerID, Kind: SlotRefund, At: at.UnixMilli()}
}

// Live reports whether the slot must stay reconciled with booking state.
func (s Slot) Live() bool { return s.Kind == SlotBase || s.Kind == SlotDebt }

func (s Slot) Valid() bool {
	switch s.Kind {
	case SlotBase, SlotDebt, SlotFinal:
		return s.At == 0
	case SlotPayment, SlotRefund:
		return s.At > 0
	}
	return false
}

// String renders the legacy composite key (id, id_debt, id_refund_<ts>, ...).
// Display only; storage keeps the parts in separate columns.
func (s Slot) String() string {
	switch s.Kind {
	case SlotBase:
		return s.TravelerID
	case SlotDebt, SlotFinal:
		return s.TravelerID + "_" + string(s.Kind)
	default:
		return s.TravelerID + "_" + string(s.Kind) + "_" + strconv.FormatInt(s.At, 10)
	}
}

// ParseSlot reverses Slot.String.
func ParseSlot(key string) (Slot, error) {
	for _, kind := range []SlotKind{SlotPayment, SlotRefund} {
		marker := "_" + string(kind) + "_"
		if i := strings.LastIndex(key, marker); i >= 0 {
			at, err := strconv.ParseInt(key[i+len(marker):], 10, 64)
			if err != nil || at <= 0 {
				return Slot{}, fmt.Errorf("%w: bad timestamp in %q", ErrInvalidSlot, key)
			}
			return Slot{TravelerID: key[:i], Kind: kind, At: at}, nil
		}
	}
	for _, kind := range []SlotKind{SlotDebt, SlotFinal} {
		suffix := "_" + string(kind)
		if strings.HasSuffix(key, suffix) {
			return Slot{TravelerID: strings.TrimSuffix(key, suffix), Kind: kind}, nil
		}
	}
	return BaseSlot(key), nil
}

// =============================================================================
// TRANSACTION - Ledger entry
// =============================================================================

type TransactionType string

const (
	TxIncome  TransactionType = "income"
	TxOutcome TransactionType = "outcome"
	TxDebt    TransactionType = "debt"
)

type TransactionStatus string

const (
	StatusPending TransactionStatus = "pending"
	StatusSettled TransactionStatus = "settled"
)

type TransactionID string

type Transaction struct {
	ID          TransactionID
	Ref         BookingRef
	Slot        Slot
	Amount      Amount
	Type        TransactionType
	Status      TransactionStatus
	AgencyID    string
	UserID      string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OpenDebt reports whether the entry is an outstanding Debt+Pending row.
func (t Transaction) OpenDebt() bool {
	return t.Type == TxDebt && t.Status == StatusPending
}

// Patch is a partial update. Nil fields are left unchanged.
// UpdatedAt is stamped by the Ledger from its clock.
type Patch struct {
	Amount      *decimal.Decimal
	Currency    *Currency
	Type        *TransactionType
	Status      *TransactionStatus
	Description *string
	UpdatedAt   time.Time
}

func (p Patch) Apply(tx *Transaction) {
	if p.Amount != nil {
		tx.Amount.Value = *p.Amount
	}
	if p.Currency != nil {
		tx.Amount.Currency = *p.Currency
	}
	if p.Type != nil {
		tx.Type = *p.Type
	}
	if p.Status != nil {
		tx.Status = *p.Status
	}
	if p.Description != nil {
		tx.Description = *p.Description
	}
	if !p.UpdatedAt.IsZero() {
		tx.UpdatedAt = p.UpdatedAt
	}
}

// Filter narrows a ledger query. Zero values match everything.
// Date matches the whole calendar day; From and To are inclusive days.
type Filter struct {
	Date     *time.Time
	From     *time.Time
	To       *time.Time
	Type     TransactionType
	Status   TransactionStatus
	AgencyID string
	UserID   string
	Ref      *BookingRef
	Limit    int
}

// Bounds returns the half-open [start, end) time window of the filter.
func (f Filter) Bounds() (start, end *time.Time) {
	if f.Date != nil {
		s := startOfDay(*f.Date)
		e := s.AddDate(0, 0, 1)
		return &s, &e
	}
	if f.From != nil {
		s := startOfDay(*f.From)
		start = &s
	}
	if f.To != nil {
		e := startOfDay(*f.To).AddDate(0, 0, 1)
		end = &e
	}
	return start, end
}

// Matches applies the filter to a single entry.
func (f Filter) Matches(tx Transaction) bool {
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.AgencyID != "" && tx.AgencyID != f.AgencyID {
		return false
	}
	if f.UserID != "" && tx.UserID != f.UserID {
		return false
	}
	if f.Ref != nil && tx.Ref != *f.Ref {
		return false
	}
	start, end := f.Bounds()
	if start != nil && tx.CreatedAt.Before(*start) {
		return false
	}
	if end != nil && !tx.CreatedAt.Before(*end) {
		return false
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DebtSummary totals the outstanding debt of one agency.
type DebtSummary struct {
	AgencyID string
	Count    int
	Totals   map[Currency]decimal.Decimal
}
