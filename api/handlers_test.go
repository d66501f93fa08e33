/*
handlers_test.go - HTTP tests for the booking API

Tests drive the full router (middleware, handlers, services, ledger) over
an in-memory store and assert both the response and the ledger rows the
request left behind.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/travel-ledger/booking"
	"github.com/warp/travel-ledger/booking/groups"
	"github.com/warp/travel-ledger/booking/tickets"
	"github.com/warp/travel-ledger/ledger"
	"github.com/warp/travel-ledger/logging"
	"github.com/warp/travel-ledger/metrics"
	"github.com/warp/travel-ledger/payment"
	"github.com/warp/travel-ledger/store/memory"
)

type testEnv struct {
	store  *memory.Store
	ledger *ledger.Ledger
	h      *Handler
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	logger := logging.New(io.Discard, slog.LevelError)

	l := ledger.New(store, ledger.WithAgencies(store), ledger.WithMetrics(m), ledger.WithLogger(logger))
	rec := payment.NewReconciler(l, payment.WithMetrics(m), payment.WithLogger(logger))
	locks := booking.NewLocker()

	ticketSvc := tickets.NewService(tickets.Config{
		Store: store, Ledger: l, Reconciler: rec, Transactor: store, Locker: locks, Logger: logger,
	})
	var groupSvcs []*groups.Service
	for _, spec := range groups.Kinds {
		groupSvcs = append(groupSvcs, groups.NewService(spec, groups.Config{
			Store: store, Ledger: l, Reconciler: rec, Transactor: store, Locker: locks, Logger: logger,
		}))
	}

	h := NewHandler(Deps{
		Tickets:  ticketSvc,
		Groups:   groupSvcs,
		Ledger:   l,
		Agencies: store,
		Resetter: store,
		Replay:   NewReplayScheduler(ReplayJobs(ticketSvc, groupSvcs...), m, logger),
		Logger:   logger,
	})
	return &testEnv{
		store:  store,
		ledger: l,
		h:      h,
		router: NewRouter(h, RouterOptions{Logger: logger, Gatherer: reg}),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Employee-ID", "emp-http")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) transactions(t *testing.T, kind ledger.BookingKind, id string) []TransactionDTO {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/api/transactions?kind="+string(kind)+"&booking_id="+id, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[ListResponse[TransactionDTO]](t, rec).Items
}

func planeTicketBody(status string, price int) map[string]any {
	return map[string]any{
		"agency_id":          "ag-1",
		"booking_reference":  "PNR-42",
		"departure_location": "Tirana",
		"arrival_location":   "Milan",
		"departure_date":     "2025-09-01",
		"passengers":         []map[string]any{{"first_name": "Ana", "last_name": "Hoxha"}},
		"price":              price,
		"currency":           "eur",
		"payment_status":     status,
	}
}

// =============================================================================
// TICKETS
// =============================================================================

func TestTicket_UnpaidToPaidOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN: an unpaid plane ticket
	rec := env.do(t, http.MethodPost, "/api/plane/tickets", planeTicketBody("not_paid", 300))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tk := decodeBody[booking.Ticket](t, rec)
	assert.Equal(t, payment.Unpaid, tk.PaymentStatus)
	assert.Equal(t, "emp-http", tk.EmployeeID)

	rows := env.transactions(t, ledger.KindTicket, tk.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, "debt", rows[0].Type)
	assert.Equal(t, "pending", rows[0].Status)
	assert.Equal(t, "300", rows[0].Amount.String())

	// WHEN: it is marked paid
	rec = env.do(t, http.MethodPatch, "/api/plane/tickets/"+tk.ID+"/payment-status", map[string]any{"status": "paid"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: the debt became income and nothing is owed
	rows = env.transactions(t, ledger.KindTicket, tk.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, "income", rows[0].Type)
	assert.Equal(t, "300", rows[0].Amount.String())

	rec = env.do(t, http.MethodGet, "/api/transactions/debts/summary?agency_id=ag-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeBody[DebtSummaryDTO](t, rec).Count)
}

func TestTicket_InstallmentsAndOverpayment(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/bus/tickets", planeTicketBody("unpaid", 100))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tk := decodeBody[booking.Ticket](t, rec)
	assert.Equal(t, booking.TicketBus, tk.Type)

	rec = env.do(t, http.MethodPost, "/api/bus/tickets/"+tk.ID+"/payments", map[string]any{"amount": "40"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, payment.PartiallyPaid, decodeBody[booking.Ticket](t, rec).PaymentStatus)

	rec = env.do(t, http.MethodPost, "/api/bus/tickets/"+tk.ID+"/payments", map[string]any{"amount": 80})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/bus/tickets/"+tk.ID+"/payments", map[string]any{"amount": 60})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, payment.Paid, decodeBody[booking.Ticket](t, rec).PaymentStatus)
}

func TestTicket_WrongTypeIsNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/bus/tickets", planeTicketBody("unpaid", 50))
	require.Equal(t, http.StatusCreated, rec.Code)
	tk := decodeBody[booking.Ticket](t, rec)

	rec = env.do(t, http.MethodGet, "/api/plane/tickets/"+tk.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/plane/tickets/"+tk.ID+"/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/bus/tickets/"+tk.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTicket_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"no passengers", func(b map[string]any) { delete(b, "passengers") }},
		{"bad currency", func(b map[string]any) { b["currency"] = "XYZ" }},
		{"bad date", func(b map[string]any) { b["departure_date"] = "01/09/2025" }},
		{"bad status", func(b map[string]any) { b["payment_status"] = "maybe" }},
		{"partial without chunks", func(b map[string]any) { b["payment_status"] = "partially_paid" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := planeTicketBody("unpaid", 100)
			tt.mutate(body)
			rec := env.do(t, http.MethodPost, "/api/plane/tickets", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeBody[ErrorResponse](t, rec).Error)
		})
	}

	rec := env.do(t, http.MethodGet, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[ListResponse[TransactionDTO]](t, rec).Items)
}

func TestTicket_CancelRefundConflicts(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/plane/tickets", planeTicketBody("paid", 250))
	require.Equal(t, http.StatusCreated, rec.Code)
	tk := decodeBody[booking.Ticket](t, rec)
	base := "/api/plane/tickets/" + tk.ID

	// refund before cancel
	rec = env.do(t, http.MethodPost, base+"/refund", map[string]any{"refunds": []map[string]any{{"amount": 100}}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/cancel", map[string]any{"note": "client request"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, base+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// empty refund list
	rec = env.do(t, http.MethodPost, base+"/refund", map[string]any{"refunds": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/refund", map[string]any{"refunds": []map[string]any{{"amount": 100, "currency": "EUR"}}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, payment.Refunded, decodeBody[booking.Ticket](t, rec).PaymentStatus)

	var outcome []TransactionDTO
	for _, row := range env.transactions(t, ledger.KindTicket, tk.ID) {
		if row.Type == "outcome" {
			outcome = append(outcome, row)
		}
	}
	require.Len(t, outcome, 1)
	assert.Equal(t, "100", outcome[0].Amount.String())
	assert.Equal(t, "refund", outcome[0].SlotKind)
}

func TestTicket_FindByReferenceAndList(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/plane/tickets", planeTicketBody("unpaid", 100)).Code)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/plane/tickets", planeTicketBody("paid", 100)).Code)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/bus/tickets", planeTicketBody("unpaid", 100)).Code)

	rec := env.do(t, http.MethodGet, "/api/plane/tickets/reference/PNR-42", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]booking.Ticket](t, rec), 2)

	rec = env.do(t, http.MethodGet, "/api/plane/tickets?payment_status=paid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[ListResponse[booking.Ticket]](t, rec)
	assert.Equal(t, 1, page.Total)

	rec = env.do(t, http.MethodGet, "/api/plane/tickets?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTicket_CheckInLogsAndDelete(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/plane/tickets", planeTicketBody("unpaid", 100))
	require.Equal(t, http.StatusCreated, rec.Code)
	tk := decodeBody[booking.Ticket](t, rec)
	base := "/api/plane/tickets/" + tk.ID

	rec = env.do(t, http.MethodPost, base+"/check-in", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody[booking.Ticket](t, rec).CheckedIn)

	rec = env.do(t, http.MethodPost, base+"/logs", map[string]any{"title": "Called client"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	logs := decodeBody[booking.Ticket](t, rec).Logs
	require.NotEmpty(t, logs)
	assert.Equal(t, "Called client", logs[len(logs)-1].Title)

	rec = env.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, env.transactions(t, ledger.KindTicket, tk.ID))
}

// =============================================================================
// GROUP BOOKINGS
// =============================================================================

func eventBody(travelers ...map[string]any) map[string]any {
	return map[string]any{
		"agency_id":      "ag-1",
		"name":           "Summer Fest",
		"location":       "Durres",
		"departure_city": "Tirana",
		"departure_date": "2025-08-10",
		"currency":       "EUR",
		"travelers":      travelers,
	}
}

func TestEvent_PartialPaymentFlow(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN: a traveler who paid 200 of 500
	rec := env.do(t, http.MethodPost, "/api/events", eventBody(map[string]any{
		"first_name": "Ana", "price": 500, "paid_amount": 200, "payment_status": "partially_paid",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	g := decodeBody[booking.GroupBooking](t, rec)
	require.Len(t, g.Travelers, 1)
	tr := g.Travelers[0]

	rec = env.do(t, http.MethodGet, "/api/transactions/debts/summary?agency_id=ag-1", nil)
	summary := decodeBody[DebtSummaryDTO](t, rec)
	assert.Equal(t, 1, summary.Count)
	assert.Equal(t, "300", summary.Totals["EUR"].String())

	// WHEN: the traveler settles
	rec = env.do(t, http.MethodPatch, "/api/events/"+g.ID+"/travelers/"+tr.ID+"/payment-status", map[string]any{"status": "paid"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: nothing is owed and income totals the price
	rec = env.do(t, http.MethodGet, "/api/transactions/debts/summary?agency_id=ag-1", nil)
	assert.Equal(t, 0, decodeBody[DebtSummaryDTO](t, rec).Count)

	income := 0
	for _, row := range env.transactions(t, ledger.KindEvent, g.ID) {
		if row.Type == "income" {
			income += int(row.Amount.IntPart())
		}
	}
	assert.Equal(t, 500, income)
}

func TestEvent_TravelersBusesAndRefunds(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/events", eventBody(
		map[string]any{"first_name": "Ana", "price": 100, "payment_status": "paid"},
		map[string]any{"first_name": "Ben", "price": 100, "payment_status": "unpaid"},
	))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	g := decodeBody[booking.GroupBooking](t, rec)
	base := "/api/events/" + g.ID
	ana, ben := g.Travelers[0], g.Travelers[1]

	rec = env.do(t, http.MethodPost, base+"/assign-bus", map[string]any{"bus": "Bus 1", "traveler_ids": []string{ana.ID}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, base+"/travelers-by-bus", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	byBus := decodeBody[map[string][]booking.Traveler](t, rec)
	assert.Len(t, byBus["Bus 1"], 1)
	assert.Len(t, byBus[groups.Unassigned], 1)

	rec = env.do(t, http.MethodPost, base+"/refunds", map[string]any{
		"refunds": []map[string]any{{"traveler_id": ana.ID}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodDelete, base+"/travelers/"+ben.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody[booking.GroupBooking](t, rec).Travelers, 1)

	rec = env.do(t, http.MethodPost, base+"/travelers/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/transactions/debts/summary?agency_id=ag-1", nil)
	assert.Equal(t, 0, decodeBody[DebtSummaryDTO](t, rec).Count)
}

func TestOrganizedTravel_PassportRule(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]any{
		"agency_id":      "ag-1",
		"name":           "Istanbul Weekend",
		"departure_city": "Tirana",
		"arrival_city":   "Istanbul",
		"departure_date": "2025-10-01",
		"travelers": []map[string]any{{
			"first_name": "Klea", "price": 400, "payment_status": "unpaid", "passport_expiry": "2025-12-01",
		}},
	}
	rec := env.do(t, http.MethodPost, "/api/organized-travel", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	body["travelers"] = []map[string]any{{
		"first_name": "Klea", "price": 400, "payment_status": "unpaid", "passport_expiry": "2028-01-01",
	}}
	rec = env.do(t, http.MethodPost, "/api/organized-travel", body)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHotelReservation_StatusAndUnsupportedBus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/hotel-reservations", map[string]any{
		"agency_id":      "ag-1",
		"name":           "Adriatik stay",
		"hotel_name":       "Hotel Adriatik",
		"hotel_booking_id": "BK-55120",
		"departure_date":   "2025-07-01",
		"travelers":        []map[string]any{{"first_name": "Mira", "price": 240}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	g := decodeBody[booking.GroupBooking](t, rec)
	assert.Equal(t, ledger.KindHotelReservation, g.Kind)

	rec = env.do(t, http.MethodPatch, "/api/hotel-reservations/"+g.ID+"/status", map[string]any{"status": "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, booking.ReservationConfirmed, decodeBody[booking.GroupBooking](t, rec).ReservationStatus)

	rec = env.do(t, http.MethodPost, "/api/hotel-reservations/"+g.ID+"/assign-bus", map[string]any{"bus": "B", "traveler_ids": []string{g.Travelers[0].ID}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/hotel-reservations?hotel_booking_id=bk-551", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[ListResponse[booking.GroupBooking]](t, rec).Total)
	rec = env.do(t, http.MethodGet, "/api/hotel-reservations?hotel_booking_id=BK-9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decodeBody[ListResponse[booking.GroupBooking]](t, rec).Total)

	rec = env.do(t, http.MethodPost, "/api/hotel-reservations/"+g.ID+"/assign-room", map[string]any{
		"traveler_ids": []string{g.Travelers[0].ID}, "hotel_name": "Hotel Adriatik", "room_type": "single",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodGet, "/api/hotel-reservations/"+g.ID+"/travelers-by-hotel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	byHotel := decodeBody[map[string][]booking.Traveler](t, rec)
	assert.Len(t, byHotel["Hotel Adriatik"], 1)

	// the id belongs to another kind
	rec = env.do(t, http.MethodGet, "/api/events/"+g.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// LEDGER, AGENCIES, ADMIN
// =============================================================================

func TestTransactions_GetByID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/plane/tickets", planeTicketBody("unpaid", 90))
	require.Equal(t, http.StatusCreated, rec.Code)
	tk := decodeBody[booking.Ticket](t, rec)
	rows := env.transactions(t, ledger.KindTicket, tk.ID)
	require.Len(t, rows, 1)

	rec = env.do(t, http.MethodGet, "/api/transactions/"+rows[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tk.ID, decodeBody[TransactionDTO](t, rec).BookingID)

	rec = env.do(t, http.MethodGet, "/api/transactions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/transactions?booking_id=x&kind=boat", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/transactions?type=debt&agency_id=ag-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[ListResponse[TransactionDTO]](t, rec).Items, 1)
}

func TestAgencies(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/agencies", map[string]any{"id": "ag-1", "name": "Sunrise Travel"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/agencies", map[string]any{"name": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/agencies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	agencies := decodeBody[[]booking.Agency](t, rec)
	require.Len(t, agencies, 1)
	assert.Equal(t, "Sunrise Travel", agencies[0].Name)

	// ledger descriptions carry the agency name
	rec = env.do(t, http.MethodPost, "/api/plane/tickets", planeTicketBody("unpaid", 100))
	require.Equal(t, http.StatusCreated, rec.Code)
	tk := decodeBody[booking.Ticket](t, rec)
	rows := env.transactions(t, ledger.KindTicket, tk.ID)
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0].Description, "Sunrise Travel")
}

func TestTriggerReplay_RepairsDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodPost, "/api/plane/tickets", planeTicketBody("unpaid", 75))
	require.Equal(t, http.StatusCreated, rec.Code)
	tk := decodeBody[booking.Ticket](t, rec)
	_, err := env.ledger.DeleteAllForBooking(ctx, ledger.TicketRef(tk.ID))
	require.NoError(t, err)

	rec = env.do(t, http.MethodPost, "/api/admin/replay", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[struct {
		Results []ReplayResult `json:"results"`
	}](t, rec)

	fixed := map[string]int{}
	for _, r := range resp.Results {
		assert.Empty(t, r.Error)
		fixed[r.Kind] = r.Fixed
	}
	assert.Equal(t, 1, fixed["ticket"])
	assert.Len(t, env.transactions(t, ledger.KindTicket, tk.ID), 1)
}

func TestMetricsAndHealth(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/plane/tickets", planeTicketBody("unpaid", 10)).Code)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "travel_ledger_ledger_operations_total")

	rec = env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{booking.Invalid("price", "must not be negative"), http.StatusBadRequest},
		{booking.ErrNoRefunds, http.StatusBadRequest},
		{&booking.PassportError{Traveler: "Ana"}, http.StatusBadRequest},
		{&booking.NotFoundError{Resource: "ticket", ID: "x"}, http.StatusNotFound},
		{ledger.ErrTransactionNotFound, http.StatusNotFound},
		{booking.ErrAlreadyCancelled, http.StatusConflict},
		{ledger.ErrInvalidAmount, http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
