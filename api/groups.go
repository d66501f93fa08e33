package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/warp/travel-ledger/booking"
	"github.com/warp/travel-ledger/booking/groups"
)

// groupHandlers serves one group booking kind.
type groupHandlers struct {
	*Handler
	svc *groups.Service
}

func (h *Handler) groupRoutes(svc *groups.Service) func(chi.Router) {
	gh := groupHandlers{Handler: h, svc: svc}
	return func(r chi.Router) {
		r.Get("/", gh.List)
		r.Post("/", gh.Create)
		r.Get("/{id}", gh.Get)
		r.Put("/{id}", gh.Update)
		r.Delete("/{id}", gh.Delete)
		r.Patch("/{id}/status", gh.SetStatus)
		r.Post("/{id}/travelers", gh.AddTravelers)
		r.Put("/{id}/travelers/{travelerId}", gh.UpdateTraveler)
		r.Delete("/{id}/travelers/{travelerId}", gh.RemoveTraveler)
		r.Patch("/{id}/travelers/{travelerId}/payment-status", gh.UpdateTravelerPayment)
		r.Post("/{id}/travelers/{travelerId}/cancel", gh.CancelTraveler)
		r.Post("/{id}/travelers/{travelerId}/reactivate", gh.ReactivateTraveler)
		r.Post("/{id}/refunds", gh.Refund)
		r.Post("/{id}/assign-bus", gh.AssignBus)
		r.Post("/{id}/assign-room", gh.AssignRoom)
		r.Get("/{id}/travelers-by-bus", gh.TravelersByBus)
		r.Get("/{id}/travelers-by-hotel", gh.TravelersByHotel)
	}
}

// List returns a page of bookings of this kind.
// GET ?agency_id=&search=&hotel_booking_id=&from=&to=&include_deleted=&offset=&limit=
func (gh groupHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := booking.GroupFilter{
		AgencyID:       q.Get("agency_id"),
		Search:         q.Get("search"),
		HotelBookingID: q.Get("hotel_booking_id"),
		IncludeDeleted: queryBool(r, "include_deleted"),
	}

	var err error
	if filter.From, err = parseOptionalDate("from", q.Get("from")); err != nil {
		gh.fail(w, r, "Invalid from date", err)
		return
	}
	if filter.To, err = parseOptionalDate("to", q.Get("to")); err != nil {
		gh.fail(w, r, "Invalid to date", err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		gh.fail(w, r, "Invalid offset", err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		gh.fail(w, r, "Invalid limit", err)
		return
	}

	items, total, err := gh.svc.List(r.Context(), filter)
	if err != nil {
		gh.fail(w, r, "Failed to list bookings", err)
		return
	}
	if items == nil {
		items = []booking.GroupBooking{}
	}
	writeJSON(w, http.StatusOK, ListResponse[booking.GroupBooking]{Items: items, Total: total, Offset: filter.Offset, Limit: filter.Limit})
}

func (gh groupHandlers) Get(w http.ResponseWriter, r *http.Request) {
	g, err := gh.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		gh.fail(w, r, "Booking not found", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (gh groupHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := decode(r, &req); err != nil {
		gh.fail(w, r, "Invalid request body", err)
		return
	}
	req.EmployeeID = actor(r, req.EmployeeID)
	in, err := req.toInput()
	if err != nil {
		gh.fail(w, r, "Invalid booking", err)
		return
	}

	g, err := gh.svc.Create(r.Context(), in)
	if err != nil {
		gh.fail(w, r, "Failed to create booking", err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (gh groupHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateGroupRequest
	if err := decode(r, &req); err != nil {
		gh.fail(w, r, "Invalid request body", err)
		return
	}
	req.EmployeeID = actor(r, req.EmployeeID)
	in, err := req.toInput()
	if err != nil {
		gh.fail(w, r, "Invalid booking", err)
		return
	}

	g, err := gh.svc.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		gh.fail(w, r, "Failed to update booking", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (gh groupHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	var req EmployeeRequest
	if err := decode(r, &req); err != nil {
		gh.fail(w, r, "Invalid request body", err)
		return
	}
	if err := gh.svc.Delete(r.Context(), chi.URLParam(r, "id"), actor(r, req.EmployeeID)); err != nil {
		gh.fail(w, r, "Failed to delete booking", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetStatus changes the reservation status of a hotel reservation.
func (gh groupHandlers) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req ReservationStatusRequest
	if err := decode(r, &req); err != nil {
		gh.fail(w, r, "Invalid request body", err)
		return
	}

	g, err := gh.svc.SetReservationStatus(r.Context(), chi.URLParam(r, "id"), booking.ReservationStatus(req.Status), actor(r, req.EmployeeID))
	if err != nil {
		gh.fail(w, r, "Failed to update reservation status", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// =============================================================================
// TRAVELERS
// =============================================================================

func (gh groupHandlers) AddTravelers(w http.ResponseWriter, r *http.Request) {
	var req AddTravelersRequest
	if err := decode(r, &req); err != nil {
		gh.fail(w, r, "Invalid request body", err)
		return
	}
	ins, err := toTravelerInputs(req.Travelers)
	if err != nil {
		gh.fail(w, r, "Invalid traveler", err)
		return
	}

	g, err := gh.svc.AddTravelers(r.Context(), chi.URLParam(r, "id"), ins, actor(r, req.EmployeeID))
	if err != nil {
		gh.fail(w, r, "Failed to add travelers", err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (gh groupHandlers) UpdateTraveler(w http.ResponseWriter, r *http.Request) {
	var req TravelerPatchRequest
	if err := decode(r, &req); err != nil {
		gh.fail(w, r, "Invalid request body", err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		gh.fail(w, r, "Invalid traveler", err)
		return
	}

	g, err := gh.svc.UpdateTraveler(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "travelerId"), patch, actor(r, req.EmployeeID))
	if err != nil {
		gh.fail(w, r, "Failed to update traveler", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// UpdateTravelerPayment sets the payment state of one traveler and
// reconciles the ledger.
func (gh groupHandlers) UpdateTravelerPayment(w http.ResponseWriter, r *http.Request) {
	var req TravelerPaymentRequest
	if err := decode(r, &req); err != nil {
		gh.fail(w, r, "Invalid request body", err)
		return
	}
	update, err := req.toUpdate()
	if err != nil {
		gh.fail(w, r, "Invalid payment", err)
		return
	}

	g, err := gh.svc.UpdateTravelerPayment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "travelerId"), update, actor(r, req.EmployeeID))
	if err != nil {
		gh.fail(w, r, "Failed to update payment status", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (gh groupHandlers) RemoveTraveler(w http.ResponseWriter, r *http.Request) {
	gh.travelerAction(w, r, "Failed to remove traveler", gh.svc.RemoveTraveler)
}

func (gh groupHandlers) CancelTraveler(w http.ResponseWriter, r *http.Request) {
	gh.travelerAction(w, r, "Failed to cancel traveler", gh.svc.CancelTraveler)
}

func (gh groupHandlers) ReactivateTraveler(w http.ResponseWriter, r *http.Request) {
	gh.travelerAction(w, r, "Failed to reactivate traveler", gh.svc.ReactivateTraveler)
}

type travelerActionFunc = func(ctx context.Context, id, travelerID, employeeID string) (*booking.GroupBooking, error)

func (gh groupHandlers) travelerAction(w http.ResponseWriter, r *http.Request, message string, action travelerActionFunc) {
	var req EmployeeRequest
	if err := decode(r, &req); err != nil {
		gh.fail(w, r, "Invalid request body", err)
		return
	}

	g, err := action(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "travelerId"), actor(r, req.EmployeeID))
	if err != nil {
		gh.fail(w, r, message, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// Refund refunds one or more travelers. Travelers without amounts get back
// everything they paid.
func (gh groupHandlers) Refund(w http.ResponseWriter, r *http.Request) {
	var req GroupRefundRequest
	if err := decode(r, &req); err != nil {
		gh.fail(w, r, "Invalid request body", err)
		return
	}
	refunds, err := req.toRefunds()
	if err != nil {
		gh.fail(w, r, "Invalid refunds", err)
		return
	}

	g, err := gh.svc.RefundTravelers(r.Context(), chi.URLParam(r, "id"), refunds, req.Note, actor(r, req.EmployeeID))
	if err != nil {
		gh.fail(w, r, "Failed to refund travelers", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// =============================================================================
// RESOURCES
// =============================================================================

func (gh groupHandlers) AssignBus(w http.ResponseWriter, r *http.Request) {
	var req AssignBusRequest
	if err := decode(r, &req); err != nil {
		gh.fail(w, r, "Invalid request body", err)
		return
	}

	g, err := gh.svc.AssignBus(r.Context(), chi.URLParam(r, "id"), req.Bus, req.TravelerIDs, actor(r, req.EmployeeID))
	if err != nil {
		gh.fail(w, r, "Failed to assign bus", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (gh groupHandlers) AssignRoom(w http.ResponseWriter, r *http.Request) {
	var req AssignRoomRequest
	if err := decode(r, &req); err != nil {
		gh.fail(w, r, "Invalid request body", err)
		return
	}

	g, err := gh.svc.AssignRoom(r.Context(), chi.URLParam(r, "id"), groups.RoomAssignment{
		TravelerIDs: req.TravelerIDs,
		HotelName:   req.HotelName,
		RoomType:    req.RoomType,
		RoomGroup:   req.RoomGroup,
	}, actor(r, req.EmployeeID))
	if err != nil {
		gh.fail(w, r, "Failed to assign room", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (gh groupHandlers) TravelersByBus(w http.ResponseWriter, r *http.Request) {
	byBus, err := gh.svc.TravelersByBus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		gh.fail(w, r, "Failed to group travelers", err)
		return
	}
	writeJSON(w, http.StatusOK, byBus)
}

func (gh groupHandlers) TravelersByHotel(w http.ResponseWriter, r *http.Request) {
	byHotel, err := gh.svc.TravelersByHotel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		gh.fail(w, r, "Failed to group travelers", err)
		return
	}
	writeJSON(w, http.StatusOK, byHotel)
}
