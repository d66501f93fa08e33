/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario correctly sets up the expected state:
	- Agencies are created
	- Bookings land in the expected payment states
	- Open debts match the unpaid remainder of every booking

These tests ensure scenarios work correctly and can be used as integration tests.
*/
package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/travel-ledger/booking"
	"github.com/warp/travel-ledger/ledger"
	"github.com/warp/travel-ledger/payment"
)

func debts(t *testing.T, env *testEnv, agencyID string) (int, string) {
	t.Helper()
	summary, err := env.ledger.DebtsSummary(context.Background(), agencyID)
	require.NoError(t, err)
	total := summary.Totals[ledger.CurrencyEUR]
	return summary.Count, total.String()
}

func TestScenario_PaymentLifecycle(t *testing.T) {
	// GIVEN: Payment lifecycle scenario
	// WHEN: Loading the scenario
	// THEN: Only the unpaid ticket and the unpaid half of the partial ticket are owed

	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.h.loadScenario(ctx, "payment-lifecycle"))

	planes, total, err := env.h.Tickets.List(ctx, booking.TicketFilter{Type: booking.TicketPlane})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	byRef := map[string]booking.Ticket{}
	for _, tk := range planes {
		byRef[tk.BookingReference] = tk
	}
	assert.Equal(t, payment.Unpaid, byRef["PNR-AH1"].PaymentStatus)
	assert.Equal(t, payment.PartiallyPaid, byRef["PNR-EM2"].PaymentStatus)
	assert.Equal(t, payment.Refunded, byRef["PNR-GD3"].PaymentStatus)
	assert.Equal(t, booking.StatusCancelled, byRef["PNR-GD3"].Status)

	buses, _, err := env.h.Tickets.List(ctx, booking.TicketFilter{Type: booking.TicketBus})
	require.NoError(t, err)
	require.Len(t, buses, 1)
	assert.Equal(t, payment.Paid, buses[0].PaymentStatus)
	assert.Len(t, buses[0].PaymentChunks, 2)

	count, sum := debts(t, env, demoAgency)
	assert.Equal(t, 2, count)
	assert.Equal(t, "330", sum)

	agencies, err := env.store.ListAgencies(ctx)
	require.NoError(t, err)
	assert.Len(t, agencies, 2)
}

func TestScenario_GroupTrip(t *testing.T) {
	// GIVEN: Group trip scenario
	// WHEN: Loading the scenario
	// THEN: Each group kind exists and the debts belong to the right agency

	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.h.loadScenario(ctx, "group-trip"))

	events, total, err := env.h.Groups[ledger.KindEvent].List(ctx, booking.GroupFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	for _, tr := range events[0].Travelers {
		if tr.FirstName == "Ana" {
			assert.Equal(t, payment.Paid, tr.PaymentStatus)
		}
	}

	hotels, _, err := env.h.Groups[ledger.KindHotelReservation].List(ctx, booking.GroupFilter{})
	require.NoError(t, err)
	require.Len(t, hotels, 1)
	assert.Equal(t, booking.ReservationConfirmed, hotels[0].ReservationStatus)

	// Dritan owes 500, Luan owes 320
	count, sum := debts(t, env, demoAgency)
	assert.Equal(t, 2, count)
	assert.Equal(t, "820", sum)

	count, sum = debts(t, env, "ag-adriatic")
	assert.Equal(t, 2, count)
	assert.Equal(t, "480", sum)
}

func TestScenario_ReloadReplacesData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.h.loadScenario(ctx, "group-trip"))
	require.NoError(t, env.h.loadScenario(ctx, "empty"))

	txs, err := env.ledger.FindAll(ctx, ledger.Filter{})
	require.NoError(t, err)
	assert.Empty(t, txs)

	_, total, err := env.h.Groups[ledger.KindEvent].List(ctx, booking.GroupFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestScenario_HTTP(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]ScenarioDTO](t, rec), len(scenarios))

	rec = env.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "payment-lifecycle"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "payment-lifecycle", decodeBody[ScenarioDTO](t, rec).ID)

	rec = env.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))

	rec = env.do(t, http.MethodGet, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[ListResponse[TransactionDTO]](t, rec).Items)
}
