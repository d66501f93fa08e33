/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Booking documents
  (booking.Ticket, booking.GroupBooking, booking.Agency) already carry JSON
  tags and are returned as is. Ledger entries are flattened through
  TransactionDTO so the slot and amount read naturally on the wire.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Wrappers

DATES:
  Request dates accept "2006-01-02" or RFC 3339. Amounts accept JSON numbers
  or strings and are decoded straight into decimal.Decimal.

VALIDATION:
  DTOs are pure data carriers. Parsing happens in the to*Input helpers,
  business validation in the booking services.

SEE ALSO:
  - handlers.go: Uses these types
  - booking/types.go: Document types
*/
package api

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/travel-ledger/booking"
	"github.com/warp/travel-ledger/booking/groups"
	"github.com/warp/travel-ledger/booking/tickets"
	"github.com/warp/travel-ledger/ledger"
	"github.com/warp/travel-ledger/payment"
)

// =============================================================================
// SHARED
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ListResponse wraps one page of results.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit,omitempty"`
}

type AmountDTO struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
}

func toAmounts(in []AmountDTO, field string) ([]ledger.Amount, error) {
	out := make([]ledger.Amount, 0, len(in))
	for _, a := range in {
		cur, err := ledger.ParseCurrency(a.Currency)
		if err != nil {
			return nil, booking.Invalid(field, "%v", err)
		}
		out = append(out, ledger.Amount{Value: a.Amount, Currency: cur})
	}
	return out, nil
}

const dateLayout = "2006-01-02"

func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, booking.Invalid(field, "must be YYYY-MM-DD or RFC 3339, got %q", s)
	}
	return t, nil
}

// parseOptionalDate returns nil for an empty value.
func parseOptionalDate(field, s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := parseDate(field, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseDatePtr(field string, s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	return parseOptionalDate(field, *s)
}

func parseStatusPtr(s *string) (*payment.Status, error) {
	if s == nil {
		return nil, nil
	}
	st, err := payment.ParseStatus(*s)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func parseCurrencyPtr(field string, s *string) (*ledger.Currency, error) {
	if s == nil {
		return nil, nil
	}
	c, err := ledger.ParseCurrency(*s)
	if err != nil {
		return nil, booking.Invalid(field, "%v", err)
	}
	return &c, nil
}

// =============================================================================
// TICKETS
// =============================================================================

type PassengerDTO struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Phone          string `json:"phone,omitempty"`
	PassportNumber string `json:"passport_number,omitempty"`
	PassportExpiry string `json:"passport_expiry,omitempty"`
	BirthDate      string `json:"birth_date,omitempty"`
}

type PaymentChunkDTO struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
	PaidAt   string          `json:"paid_at,omitempty"`
	Note     string          `json:"note,omitempty"`
}

type CreateTicketRequest struct {
	AgencyID          string            `json:"agency_id"`
	EmployeeID        string            `json:"employee_id"`
	BookingReference  string            `json:"booking_reference"`
	Operator          string            `json:"operator"`
	RouteNumber       string            `json:"route_number"`
	DepartureLocation string            `json:"departure_location"`
	ArrivalLocation   string            `json:"arrival_location"`
	DepartureDate     string            `json:"departure_date"`
	ReturnDate        string            `json:"return_date"`
	Passengers        []PassengerDTO    `json:"passengers"`
	Price             decimal.Decimal   `json:"price"`
	Currency          string            `json:"currency"`
	PaymentStatus     string            `json:"payment_status"`
	PaymentChunks     []PaymentChunkDTO `json:"payment_chunks"`
	Note              string            `json:"note"`
}

type UpdateTicketRequest struct {
	EmployeeID        string           `json:"employee_id"`
	BookingReference  *string          `json:"booking_reference"`
	Operator          *string          `json:"operator"`
	RouteNumber       *string          `json:"route_number"`
	DepartureLocation *string          `json:"departure_location"`
	ArrivalLocation   *string          `json:"arrival_location"`
	DepartureDate     *string          `json:"departure_date"`
	ReturnDate        *string          `json:"return_date"`
	Passengers        []PassengerDTO   `json:"passengers"`
	Price             *decimal.Decimal `json:"price"`
	Currency          *string          `json:"currency"`
	PaymentStatus     *string          `json:"payment_status"`
	PaidAmount        *decimal.Decimal `json:"paid_amount"`
	Note              *string          `json:"note"`
}

type PaymentStatusRequest struct {
	EmployeeID string           `json:"employee_id"`
	Status     string           `json:"status"`
	PaidAmount *decimal.Decimal `json:"paid_amount"`
}

type AddPaymentRequest struct {
	EmployeeID string `json:"employee_id"`
	PaymentChunkDTO
}

// RefundTicketRequest is the body of cancel and refund.
type RefundTicketRequest struct {
	EmployeeID string      `json:"employee_id"`
	Refunds    []AmountDTO `json:"refunds"`
	Note       string      `json:"note"`
}

type CheckInRequest struct {
	EmployeeID string `json:"employee_id"`
	CheckedIn  *bool  `json:"checked_in"`
}

type AddLogRequest struct {
	EmployeeID  string `json:"employee_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func toPassengers(in []PassengerDTO) ([]booking.Passenger, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]booking.Passenger, 0, len(in))
	for _, p := range in {
		expiry, err := parseOptionalDate("passport_expiry", p.PassportExpiry)
		if err != nil {
			return nil, err
		}
		birth, err := parseOptionalDate("birth_date", p.BirthDate)
		if err != nil {
			return nil, err
		}
		out = append(out, booking.Passenger{
			FirstName:      p.FirstName,
			LastName:       p.LastName,
			Phone:          p.Phone,
			PassportNumber: p.PassportNumber,
			PassportExpiry: expiry,
			BirthDate:      birth,
		})
	}
	return out, nil
}

func toChunk(c PaymentChunkDTO) (booking.PaymentChunk, error) {
	cur := ledger.Currency("")
	if c.Currency != "" {
		parsed, err := ledger.ParseCurrency(c.Currency)
		if err != nil {
			return booking.PaymentChunk{}, booking.Invalid("currency", "%v", err)
		}
		cur = parsed
	}
	var paidAt time.Time
	if c.PaidAt != "" {
		t, err := parseDate("paid_at", c.PaidAt)
		if err != nil {
			return booking.PaymentChunk{}, err
		}
		paidAt = t
	}
	return booking.PaymentChunk{Amount: c.Amount, Currency: cur, PaidAt: paidAt, Note: c.Note}, nil
}

func (req CreateTicketRequest) toInput(typ booking.TicketType) (tickets.CreateInput, error) {
	in := tickets.CreateInput{
		Type:              typ,
		AgencyID:          req.AgencyID,
		EmployeeID:        req.EmployeeID,
		BookingReference:  req.BookingReference,
		Operator:          req.Operator,
		RouteNumber:       req.RouteNumber,
		DepartureLocation: req.DepartureLocation,
		ArrivalLocation:   req.ArrivalLocation,
		Price:             req.Price,
		Note:              req.Note,
	}
	var err error
	if req.DepartureDate != "" {
		if in.DepartureDate, err = parseDate("departure_date", req.DepartureDate); err != nil {
			return in, err
		}
	}
	if in.ReturnDate, err = parseOptionalDate("return_date", req.ReturnDate); err != nil {
		return in, err
	}
	if in.Passengers, err = toPassengers(req.Passengers); err != nil {
		return in, err
	}
	if in.Currency, err = ledger.ParseCurrency(req.Currency); err != nil {
		return in, booking.Invalid("currency", "%v", err)
	}
	if in.PaymentStatus, err = payment.ParseStatus(req.PaymentStatus); err != nil {
		return in, err
	}
	for _, c := range req.PaymentChunks {
		chunk, err := toChunk(c)
		if err != nil {
			return in, err
		}
		in.PaymentChunks = append(in.PaymentChunks, chunk)
	}
	return in, nil
}

func (req UpdateTicketRequest) toInput() (tickets.UpdateInput, error) {
	in := tickets.UpdateInput{
		EmployeeID:        req.EmployeeID,
		BookingReference:  req.BookingReference,
		Operator:          req.Operator,
		RouteNumber:       req.RouteNumber,
		DepartureLocation: req.DepartureLocation,
		ArrivalLocation:   req.ArrivalLocation,
		Price:             req.Price,
		PaidAmount:        req.PaidAmount,
		Note:              req.Note,
	}
	var err error
	if in.DepartureDate, err = parseDatePtr("departure_date", req.DepartureDate); err != nil {
		return in, err
	}
	if in.ReturnDate, err = parseDatePtr("return_date", req.ReturnDate); err != nil {
		return in, err
	}
	if in.Passengers, err = toPassengers(req.Passengers); err != nil {
		return in, err
	}
	if in.Currency, err = parseCurrencyPtr("currency", req.Currency); err != nil {
		return in, err
	}
	if in.PaymentStatus, err = parseStatusPtr(req.PaymentStatus); err != nil {
		return in, err
	}
	return in, nil
}

// =============================================================================
// GROUP BOOKINGS
// =============================================================================

type TravelerRequest struct {
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	Phone          string          `json:"phone"`
	PassportNumber string          `json:"passport_number"`
	PassportExpiry string          `json:"passport_expiry"`
	BirthDate      string          `json:"birth_date"`
	Price          decimal.Decimal `json:"price"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Currency       string          `json:"currency"`
	PaymentStatus  string          `json:"payment_status"`
	Bus            string          `json:"bus"`
	HotelName      string          `json:"hotel_name"`
	RoomType       string          `json:"room_type"`
	RoomGroup      string          `json:"room_group"`
	Note           string          `json:"note"`
}

type CreateGroupRequest struct {
	AgencyID       string            `json:"agency_id"`
	EmployeeID     string            `json:"employee_id"`
	Name           string            `json:"name"`
	Location       string            `json:"location"`
	DepartureCity  string            `json:"departure_city"`
	ArrivalCity    string            `json:"arrival_city"`
	DepartureDate  string            `json:"departure_date"`
	ReturnDate     string            `json:"return_date"`
	HotelName      string            `json:"hotel_name"`
	HotelBookingID string            `json:"hotel_booking_id"`
	Currency       string            `json:"currency"`
	Buses          []string          `json:"buses"`
	Note           string            `json:"note"`
	Travelers      []TravelerRequest `json:"travelers"`
}

type UpdateGroupRequest struct {
	EmployeeID     string   `json:"employee_id"`
	Name           *string  `json:"name"`
	Location       *string  `json:"location"`
	DepartureCity  *string  `json:"departure_city"`
	ArrivalCity    *string  `json:"arrival_city"`
	DepartureDate  *string  `json:"departure_date"`
	ReturnDate     *string  `json:"return_date"`
	HotelName      *string  `json:"hotel_name"`
	HotelBookingID *string  `json:"hotel_booking_id"`
	Note           *string  `json:"note"`
	Buses          []string `json:"buses"`
}

type AddTravelersRequest struct {
	EmployeeID string            `json:"employee_id"`
	Travelers  []TravelerRequest `json:"travelers"`
}

type TravelerPatchRequest struct {
	EmployeeID     string           `json:"employee_id"`
	FirstName      *string          `json:"first_name"`
	LastName       *string          `json:"last_name"`
	Phone          *string          `json:"phone"`
	PassportNumber *string          `json:"passport_number"`
	PassportExpiry *string          `json:"passport_expiry"`
	BirthDate      *string          `json:"birth_date"`
	Price          *decimal.Decimal `json:"price"`
	PaidAmount     *decimal.Decimal `json:"paid_amount"`
	Currency       *string          `json:"currency"`
	PaymentStatus  *string          `json:"payment_status"`
	Bus            *string          `json:"bus"`
	HotelName      *string          `json:"hotel_name"`
	RoomType       *string          `json:"room_type"`
	RoomGroup      *string          `json:"room_group"`
	Note           *string          `json:"note"`
}

type TravelerPaymentRequest struct {
	EmployeeID string           `json:"employee_id"`
	Status     string           `json:"status"`
	PaidAmount *decimal.Decimal `json:"paid_amount"`
	Price      *decimal.Decimal `json:"price"`
	Currency   *string          `json:"currency"`
}

type TravelerRefundDTO struct {
	TravelerID string      `json:"traveler_id"`
	Amounts    []AmountDTO `json:"amounts"`
}

type GroupRefundRequest struct {
	EmployeeID string              `json:"employee_id"`
	Refunds    []TravelerRefundDTO `json:"refunds"`
	Note       string              `json:"note"`
}

type AssignBusRequest struct {
	EmployeeID  string   `json:"employee_id"`
	Bus         string   `json:"bus"`
	TravelerIDs []string `json:"traveler_ids"`
}

type AssignRoomRequest struct {
	EmployeeID  string   `json:"employee_id"`
	TravelerIDs []string `json:"traveler_ids"`
	HotelName   string   `json:"hotel_name"`
	RoomType    string   `json:"room_type"`
	RoomGroup   string   `json:"room_group"`
}

type ReservationStatusRequest struct {
	EmployeeID string `json:"employee_id"`
	Status     string `json:"status"`
}

// EmployeeRequest is the optional body of actions that only need the actor.
type EmployeeRequest struct {
	EmployeeID string `json:"employee_id"`
}

func (req TravelerRequest) toInput() (groups.TravelerInput, error) {
	in := groups.TravelerInput{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Phone:          req.Phone,
		PassportNumber: req.PassportNumber,
		Price:          req.Price,
		PaidAmount:     req.PaidAmount,
		Currency:       ledger.Currency(strings.ToUpper(strings.TrimSpace(req.Currency))),
		Bus:            req.Bus,
		HotelName:      req.HotelName,
		RoomType:       req.RoomType,
		RoomGroup:      req.RoomGroup,
		Note:           req.Note,
	}
	var err error
	if in.PassportExpiry, err = parseOptionalDate("passport_expiry", req.PassportExpiry); err != nil {
		return in, err
	}
	if in.BirthDate, err = parseOptionalDate("birth_date", req.BirthDate); err != nil {
		return in, err
	}
	if in.PaymentStatus, err = payment.ParseStatus(req.PaymentStatus); err != nil {
		return in, err
	}
	return in, nil
}

func toTravelerInputs(in []TravelerRequest) ([]groups.TravelerInput, error) {
	out := make([]groups.TravelerInput, 0, len(in))
	for _, tr := range in {
		ti, err := tr.toInput()
		if err != nil {
			return nil, err
		}
		out = append(out, ti)
	}
	return out, nil
}

func (req CreateGroupRequest) toInput() (groups.CreateInput, error) {
	in := groups.CreateInput{
		AgencyID:       req.AgencyID,
		EmployeeID:     req.EmployeeID,
		Name:           req.Name,
		Location:       req.Location,
		DepartureCity:  req.DepartureCity,
		ArrivalCity:    req.ArrivalCity,
		HotelName:      req.HotelName,
		HotelBookingID: req.HotelBookingID,
		Currency:       ledger.Currency(req.Currency),
		Buses:          req.Buses,
		Note:           req.Note,
	}
	var err error
	if req.DepartureDate != "" {
		if in.DepartureDate, err = parseDate("departure_date", req.DepartureDate); err != nil {
			return in, err
		}
	}
	if in.ReturnDate, err = parseOptionalDate("return_date", req.ReturnDate); err != nil {
		return in, err
	}
	if in.Travelers, err = toTravelerInputs(req.Travelers); err != nil {
		return in, err
	}
	return in, nil
}

func (req UpdateGroupRequest) toInput() (groups.UpdateInput, error) {
	in := groups.UpdateInput{
		EmployeeID:     req.EmployeeID,
		Name:           req.Name,
		Location:       req.Location,
		DepartureCity:  req.DepartureCity,
		ArrivalCity:    req.ArrivalCity,
		HotelName:      req.HotelName,
		HotelBookingID: req.HotelBookingID,
		Note:           req.Note,
		Buses:          req.Buses,
	}
	var err error
	if req.DepartureDate != nil {
		t, err := parseDate("departure_date", *req.DepartureDate)
		if err != nil {
			return in, err
		}
		in.DepartureDate = &t
	}
	if in.ReturnDate, err = parseDatePtr("return_date", req.ReturnDate); err != nil {
		return in, err
	}
	return in, nil
}

func (req TravelerPatchRequest) toPatch() (groups.TravelerPatch, error) {
	p := groups.TravelerPatch{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Phone:          req.Phone,
		PassportNumber: req.PassportNumber,
		Price:          req.Price,
		PaidAmount:     req.PaidAmount,
		Bus:            req.Bus,
		HotelName:      req.HotelName,
		RoomType:       req.RoomType,
		RoomGroup:      req.RoomGroup,
		Note:           req.Note,
	}
	var err error
	if p.PassportExpiry, err = parseDatePtr("passport_expiry", req.PassportExpiry); err != nil {
		return p, err
	}
	if p.BirthDate, err = parseDatePtr("birth_date", req.BirthDate); err != nil {
		return p, err
	}
	if p.Currency, err = parseCurrencyPtr("currency", req.Currency); err != nil {
		return p, err
	}
	if p.PaymentStatus, err = parseStatusPtr(req.PaymentStatus); err != nil {
		return p, err
	}
	return p, nil
}

func (req TravelerPaymentRequest) toUpdate() (groups.PaymentUpdate, error) {
	status, err := payment.ParseStatus(req.Status)
	if err != nil {
		return groups.PaymentUpdate{}, err
	}
	cur, err := parseCurrencyPtr("currency", req.Currency)
	if err != nil {
		return groups.PaymentUpdate{}, err
	}
	return groups.PaymentUpdate{Status: status, PaidAmount: req.PaidAmount, Price: req.Price, Currency: cur}, nil
}

func (req GroupRefundRequest) toRefunds() ([]groups.RefundRequest, error) {
	out := make([]groups.RefundRequest, 0, len(req.Refunds))
	for _, r := range req.Refunds {
		amounts, err := toAmounts(r.Amounts, "amounts")
		if err != nil {
			return nil, err
		}
		out = append(out, groups.RefundRequest{TravelerID: r.TravelerID, Amounts: amounts})
	}
	return out, nil
}

// =============================================================================
// LEDGER
// =============================================================================

// TransactionDTO is a ledger entry in API responses.
type TransactionDTO struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	BookingID   string          `json:"booking_id"`
	TravelerID  string          `json:"traveler_id,omitempty"`
	Slot        string          `json:"slot"`
	SlotKind    string          `json:"slot_kind"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	AgencyID    string          `json:"agency_id"`
	UserID      string          `json:"user_id,omitempty"`
	Description string          `json:"description"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          string(tx.ID),
		Kind:        string(tx.Ref.Kind),
		BookingID:   tx.Ref.ID,
		TravelerID:  tx.Slot.TravelerID,
		Slot:        tx.Slot.String(),
		SlotKind:    string(tx.Slot.Kind),
		Amount:      tx.Amount.Value,
		Currency:    string(tx.Amount.Currency),
		Type:        string(tx.Type),
		Status:      string(tx.Status),
		AgencyID:    tx.AgencyID,
		UserID:      tx.UserID,
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   tx.UpdatedAt.Format(time.RFC3339),
	}
}

type DebtSummaryDTO struct {
	AgencyID string                     `json:"agency_id"`
	Count    int                        `json:"count"`
	Totals   map[string]decimal.Decimal `json:"totals"`
}

type CreateAgencyRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}
