/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	bookings. Every booking is created through the booking services, so the
	ledger rows a scenario leaves behind are exactly the ones real requests
	would produce.

AVAILABLE SCENARIOS:

	payment-lifecycle:  Tickets in every payment status, including a refund
	group-trip:         Event with a partial payer, organized travel to
	                    Istanbul, hotel reservation
	empty:              Agencies only

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create agencies
 3. Create bookings through the services
 4. Apply follow-up actions (payments, cancellations, refunds)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "group-trip"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler dependencies
  - booking/tickets, booking/groups: Services the loaders call
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/travel-ledger/booking"
	"github.com/warp/travel-ledger/booking/groups"
	"github.com/warp/travel-ledger/booking/tickets"
	"github.com/warp/travel-ledger/ledger"
	"github.com/warp/travel-ledger/payment"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "payment-lifecycle",
		Name:        "Payment Lifecycle",
		Description: "Bus and plane tickets: unpaid, installments, paid, cancelled with refund",
	},
	{
		ID:          "group-trip",
		Name:        "Group Trip",
		Description: "Event with mixed payers, organized travel to Istanbul, hotel reservation",
	},
	{
		ID:          "empty",
		Name:        "Empty",
		Description: "Agencies only, no bookings",
	},
}

const (
	demoAgency   = "ag-sunrise"
	demoEmployee = "emp-demo"
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		h.fail(w, r, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		h.fail(w, r, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	loaders := map[string]func(context.Context) error{
		"payment-lifecycle": h.loadPaymentLifecycleScenario,
		"group-trip":        h.loadGroupTripScenario,
		"empty":             func(context.Context) error { return nil },
	}
	load, ok := loaders[id]
	if !ok {
		return booking.Invalid("scenario_id", "unknown scenario %q", id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(ctx); err != nil {
		return err
	}
	if err := h.seedAgencies(ctx); err != nil {
		return err
	}
	if err := load(ctx); err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}
	h.currentScenario = id
	h.logger.Info("scenario loaded", "scenario", id)
	return nil
}

func (h *Handler) reset(ctx context.Context) error {
	if h.resetter == nil {
		return fmt.Errorf("reset is not supported by this store")
	}
	return h.resetter.Reset(ctx)
}

func (h *Handler) seedAgencies(ctx context.Context) error {
	for _, a := range []booking.Agency{
		{ID: demoAgency, Name: "Sunrise Travel"},
		{ID: "ag-adriatic", Name: "Adriatic Tours"},
	} {
		a.CreatedAt = h.now()
		if err := h.Agencies.SaveAgency(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadPaymentLifecycleScenario(ctx context.Context) error {
	departure := h.now().AddDate(0, 1, 0).Truncate(24 * time.Hour)
	ticket := func(typ booking.TicketType, ref, from, to, first, last string, price int64, status payment.Status) tickets.CreateInput {
		return tickets.CreateInput{
			Type:              typ,
			AgencyID:          demoAgency,
			EmployeeID:        demoEmployee,
			BookingReference:  ref,
			DepartureLocation: from,
			ArrivalLocation:   to,
			DepartureDate:     departure,
			Passengers:        []booking.Passenger{{FirstName: first, LastName: last}},
			Price:             decimal.NewFromInt(price),
			Currency:          ledger.CurrencyEUR,
			PaymentStatus:     status,
		}
	}

	// Unpaid plane ticket: one open debt
	if _, err := h.Tickets.Create(ctx, ticket(booking.TicketPlane, "PNR-AH1", "Tirana", "Rome", "Arta", "Hoxha", 180, payment.Unpaid)); err != nil {
		return err
	}

	// Bus ticket paid in two installments
	bus, err := h.Tickets.Create(ctx, ticket(booking.TicketBus, "BUS-77", "Tirana", "Ohrid", "Blendi", "Kola", 60, payment.Unpaid))
	if err != nil {
		return err
	}
	for _, amount := range []int64{20, 40} {
		if _, err := h.Tickets.AddPayment(ctx, bus.ID, booking.PaymentChunk{Amount: decimal.NewFromInt(amount), Note: "cash"}, demoEmployee); err != nil {
			return err
		}
	}

	// Plane ticket half paid
	half := ticket(booking.TicketPlane, "PNR-EM2", "Tirana", "Vienna", "Elira", "Meta", 300, payment.PartiallyPaid)
	half.PaymentChunks = []booking.PaymentChunk{{Amount: decimal.NewFromInt(150), Note: "deposit"}}
	if _, err := h.Tickets.Create(ctx, half); err != nil {
		return err
	}

	// Paid plane ticket cancelled with a partial refund
	paid, err := h.Tickets.Create(ctx, ticket(booking.TicketPlane, "PNR-GD3", "Tirana", "London", "Gent", "Duka", 250, payment.Paid))
	if err != nil {
		return err
	}
	refund := []ledger.Amount{ledger.NewAmountFromInt(200, ledger.CurrencyEUR)}
	if _, err := h.Tickets.Cancel(ctx, paid.ID, refund, "Flight rescheduled by the airline", demoEmployee); err != nil {
		return err
	}
	return nil
}

func (h *Handler) loadGroupTripScenario(ctx context.Context) error {
	now := h.now().Truncate(24 * time.Hour)
	passport := now.AddDate(3, 0, 0)
	ret := now.AddDate(0, 2, 5)

	event, ok := h.Groups[ledger.KindEvent]
	if !ok {
		return fmt.Errorf("no service for %s", ledger.KindEvent)
	}
	fest, err := event.Create(ctx, groups.CreateInput{
		AgencyID:      demoAgency,
		EmployeeID:    demoEmployee,
		Name:          "Summer Fest",
		Location:      "Durres",
		DepartureCity: "Tirana",
		DepartureDate: now.AddDate(0, 1, 0),
		Currency:      ledger.CurrencyEUR,
		Buses:         []string{"Bus 1", "Bus 2"},
		Travelers: []groups.TravelerInput{
			{FirstName: "Ana", LastName: "Berisha", Price: decimal.NewFromInt(500), PaidAmount: decimal.NewFromInt(200), PaymentStatus: payment.PartiallyPaid, Bus: "Bus 1"},
			{FirstName: "Besa", LastName: "Leka", Price: decimal.NewFromInt(500), PaymentStatus: payment.Paid, Bus: "Bus 1"},
			{FirstName: "Dritan", LastName: "Shehu", Price: decimal.NewFromInt(500), PaymentStatus: payment.Unpaid, Bus: "Bus 2"},
		},
	})
	if err != nil {
		return err
	}
	// Ana settles the rest
	if _, err := event.UpdateTravelerPayment(ctx, fest.ID, fest.Travelers[0].ID, groups.PaymentUpdate{Status: payment.Paid}, demoEmployee); err != nil {
		return err
	}

	travel, ok := h.Groups[ledger.KindOrganizedTravel]
	if !ok {
		return fmt.Errorf("no service for %s", ledger.KindOrganizedTravel)
	}
	if _, err := travel.Create(ctx, groups.CreateInput{
		AgencyID:      demoAgency,
		EmployeeID:    demoEmployee,
		Name:          "Istanbul Weekend",
		DepartureCity: "Tirana",
		ArrivalCity:   "Istanbul",
		DepartureDate: now.AddDate(0, 2, 0),
		ReturnDate:    &ret,
		Currency:      ledger.CurrencyEUR,
		Buses:         []string{"Coach A"},
		Travelers: []groups.TravelerInput{
			{FirstName: "Klea", LastName: "Dervishi", PassportNumber: "BA1234567", PassportExpiry: &passport, Price: decimal.NewFromInt(420), PaymentStatus: payment.Paid, Bus: "Coach A"},
			{FirstName: "Luan", LastName: "Gjoka", PassportNumber: "BA7654321", PassportExpiry: &passport, Price: decimal.NewFromInt(420), PaidAmount: decimal.NewFromInt(100), PaymentStatus: payment.PartiallyPaid, Bus: "Coach A"},
		},
	}); err != nil {
		return err
	}

	hotel, ok := h.Groups[ledger.KindHotelReservation]
	if !ok {
		return fmt.Errorf("no service for %s", ledger.KindHotelReservation)
	}
	res, err := hotel.Create(ctx, groups.CreateInput{
		AgencyID:       "ag-adriatic",
		EmployeeID:     demoEmployee,
		Name:           "Hotel Adriatik stay",
		Location:       "Durres",
		HotelName:      "Hotel Adriatik",
		HotelBookingID: "HB-2025-118",
		DepartureDate:  now.AddDate(0, 0, 20),
		Currency:       ledger.CurrencyEUR,
		Travelers: []groups.TravelerInput{
			{FirstName: "Mira", LastName: "Basha", Price: decimal.NewFromInt(240), PaymentStatus: payment.Unpaid, RoomType: "double", RoomGroup: "R1"},
			{FirstName: "Ilir", LastName: "Basha", Price: decimal.NewFromInt(240), PaymentStatus: payment.Unpaid, RoomType: "double", RoomGroup: "R1"},
		},
	})
	if err != nil {
		return err
	}
	if _, err := hotel.SetReservationStatus(ctx, res.ID, booking.ReservationConfirmed, demoEmployee); err != nil {
		return err
	}
	return nil
}
