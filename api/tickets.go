package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/warp/travel-ledger/booking"
	"github.com/warp/travel-ledger/ledger"
	"github.com/warp/travel-ledger/payment"
)

// ticketHandlers serves one ticket type. Tickets of the other type are
// reported as not found.
type ticketHandlers struct {
	*Handler
	typ booking.TicketType
}

func (h *Handler) ticketRoutes(typ booking.TicketType) func(chi.Router) {
	th := ticketHandlers{Handler: h, typ: typ}
	return func(r chi.Router) {
		r.Get("/", th.List)
		r.Post("/", th.Create)
		r.Get("/reference/{ref}", th.FindByReference)
		r.Get("/{id}", th.Get)
		r.Put("/{id}", th.Update)
		r.Delete("/{id}", th.Delete)
		r.Patch("/{id}/payment-status", th.UpdatePaymentStatus)
		r.Post("/{id}/payments", th.AddPayment)
		r.Post("/{id}/cancel", th.Cancel)
		r.Post("/{id}/refund", th.Refund)
		r.Post("/{id}/reactivate", th.Reactivate)
		r.Post("/{id}/check-in", th.CheckIn)
		r.Post("/{id}/logs", th.AddLog)
	}
}

// load returns the ticket behind {id} when it has the handler's type.
func (th ticketHandlers) load(r *http.Request) (*booking.Ticket, error) {
	id := chi.URLParam(r, "id")
	t, err := th.Tickets.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if t.Type != th.typ {
		return nil, &booking.NotFoundError{Resource: string(th.typ) + " ticket", ID: id}
	}
	return t, nil
}

// List returns a page of tickets.
// GET ?agency_id=&status=&payment_status=&search=&from=&to=&include_deleted=&offset=&limit=
func (th ticketHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := booking.TicketFilter{
		Type:           th.typ,
		AgencyID:       q.Get("agency_id"),
		Status:         booking.Status(q.Get("status")),
		Search:         q.Get("search"),
		IncludeDeleted: queryBool(r, "include_deleted"),
	}

	var err error
	if ps := q.Get("payment_status"); ps != "" {
		if filter.PaymentStatus, err = payment.ParseStatus(ps); err != nil {
			th.fail(w, r, "Invalid payment status", err)
			return
		}
	}
	if filter.From, err = parseOptionalDate("from", q.Get("from")); err != nil {
		th.fail(w, r, "Invalid from date", err)
		return
	}
	if filter.To, err = parseOptionalDate("to", q.Get("to")); err != nil {
		th.fail(w, r, "Invalid to date", err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		th.fail(w, r, "Invalid offset", err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		th.fail(w, r, "Invalid limit", err)
		return
	}

	items, total, err := th.Tickets.List(r.Context(), filter)
	if err != nil {
		th.fail(w, r, "Failed to list tickets", err)
		return
	}
	if items == nil {
		items = []booking.Ticket{}
	}
	writeJSON(w, http.StatusOK, ListResponse[booking.Ticket]{Items: items, Total: total, Offset: filter.Offset, Limit: filter.Limit})
}

func (th ticketHandlers) Get(w http.ResponseWriter, r *http.Request) {
	t, err := th.load(r)
	if err != nil {
		th.fail(w, r, "Ticket not found", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// FindByReference returns every ticket of this type carrying the booking
// reference.
func (th ticketHandlers) FindByReference(w http.ResponseWriter, r *http.Request) {
	found, err := th.Tickets.FindByReference(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		th.fail(w, r, "Failed to find tickets", err)
		return
	}
	items := make([]booking.Ticket, 0, len(found))
	for _, t := range found {
		if t.Type == th.typ {
			items = append(items, t)
		}
	}
	writeJSON(w, http.StatusOK, items)
}

func (th ticketHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if err := decode(r, &req); err != nil {
		th.fail(w, r, "Invalid request body", err)
		return
	}
	req.EmployeeID = actor(r, req.EmployeeID)
	in, err := req.toInput(th.typ)
	if err != nil {
		th.fail(w, r, "Invalid ticket", err)
		return
	}

	t, err := th.Tickets.Create(r.Context(), in)
	if err != nil {
		th.fail(w, r, "Failed to create ticket", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (th ticketHandlers) Update(w http.ResponseWriter, r *http.Request) {
	if _, err := th.load(r); err != nil {
		th.fail(w, r, "Ticket not found", err)
		return
	}
	var req UpdateTicketRequest
	if err := decode(r, &req); err != nil {
		th.fail(w, r, "Invalid request body", err)
		return
	}
	req.EmployeeID = actor(r, req.EmployeeID)
	in, err := req.toInput()
	if err != nil {
		th.fail(w, r, "Invalid ticket", err)
		return
	}

	t, err := th.Tickets.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		th.fail(w, r, "Failed to update ticket", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (th ticketHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if _, err := th.load(r); err != nil {
		th.fail(w, r, "Ticket not found", err)
		return
	}
	var req EmployeeRequest
	if err := decode(r, &req); err != nil {
		th.fail(w, r, "Invalid request body", err)
		return
	}
	if err := th.Tickets.Delete(r.Context(), chi.URLParam(r, "id"), actor(r, req.EmployeeID)); err != nil {
		th.fail(w, r, "Failed to delete ticket", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdatePaymentStatus sets the payment status and reconciles the ledger.
// PATCH /{id}/payment-status {"status": "partially_paid", "paid_amount": 200}
func (th ticketHandlers) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := th.load(r); err != nil {
		th.fail(w, r, "Ticket not found", err)
		return
	}
	var req PaymentStatusRequest
	if err := decode(r, &req); err != nil {
		th.fail(w, r, "Invalid request body", err)
		return
	}
	status, err := payment.ParseStatus(req.Status)
	if err != nil {
		th.fail(w, r, "Invalid payment status", err)
		return
	}

	t, err := th.Tickets.UpdatePaymentStatus(r.Context(), chi.URLParam(r, "id"), status, req.PaidAmount, actor(r, req.EmployeeID))
	if err != nil {
		th.fail(w, r, "Failed to update payment status", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (th ticketHandlers) AddPayment(w http.ResponseWriter, r *http.Request) {
	if _, err := th.load(r); err != nil {
		th.fail(w, r, "Ticket not found", err)
		return
	}
	var req AddPaymentRequest
	if err := decode(r, &req); err != nil {
		th.fail(w, r, "Invalid request body", err)
		return
	}
	chunk, err := toChunk(req.PaymentChunkDTO)
	if err != nil {
		th.fail(w, r, "Invalid payment", err)
		return
	}

	t, err := th.Tickets.AddPayment(r.Context(), chi.URLParam(r, "id"), chunk, actor(r, req.EmployeeID))
	if err != nil {
		th.fail(w, r, "Failed to add payment", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Cancel cancels the ticket, optionally refunding in the same step.
func (th ticketHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	th.refundAction(w, r, "Failed to cancel ticket", th.Tickets.Cancel)
}

// Refund refunds an already cancelled ticket.
func (th ticketHandlers) Refund(w http.ResponseWriter, r *http.Request) {
	th.refundAction(w, r, "Failed to refund ticket", th.Tickets.Refund)
}

func (th ticketHandlers) refundAction(w http.ResponseWriter, r *http.Request, message string,
	action func(ctx context.Context, id string, refunds []ledger.Amount, note, employeeID string) (*booking.Ticket, error)) {
	if _, err := th.load(r); err != nil {
		th.fail(w, r, "Ticket not found", err)
		return
	}
	var req RefundTicketRequest
	if err := decode(r, &req); err != nil {
		th.fail(w, r, "Invalid request body", err)
		return
	}
	refunds, err := toAmounts(req.Refunds, "refunds")
	if err != nil {
		th.fail(w, r, "Invalid refunds", err)
		return
	}

	t, err := action(r.Context(), chi.URLParam(r, "id"), refunds, req.Note, actor(r, req.EmployeeID))
	if err != nil {
		th.fail(w, r, message, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (th ticketHandlers) Reactivate(w http.ResponseWriter, r *http.Request) {
	if _, err := th.load(r); err != nil {
		th.fail(w, r, "Ticket not found", err)
		return
	}
	var req EmployeeRequest
	if err := decode(r, &req); err != nil {
		th.fail(w, r, "Invalid request body", err)
		return
	}

	t, err := th.Tickets.Reactivate(r.Context(), chi.URLParam(r, "id"), actor(r, req.EmployeeID))
	if err != nil {
		th.fail(w, r, "Failed to reactivate ticket", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CheckIn marks the passenger as checked in. checked_in defaults to true.
func (th ticketHandlers) CheckIn(w http.ResponseWriter, r *http.Request) {
	if _, err := th.load(r); err != nil {
		th.fail(w, r, "Ticket not found", err)
		return
	}
	var req CheckInRequest
	if err := decode(r, &req); err != nil {
		th.fail(w, r, "Invalid request body", err)
		return
	}
	checkedIn := true
	if req.CheckedIn != nil {
		checkedIn = *req.CheckedIn
	}

	t, err := th.Tickets.CheckIn(r.Context(), chi.URLParam(r, "id"), checkedIn, actor(r, req.EmployeeID))
	if err != nil {
		th.fail(w, r, "Failed to check in", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (th ticketHandlers) AddLog(w http.ResponseWriter, r *http.Request) {
	if _, err := th.load(r); err != nil {
		th.fail(w, r, "Ticket not found", err)
		return
	}
	var req AddLogRequest
	if err := decode(r, &req); err != nil {
		th.fail(w, r, "Invalid request body", err)
		return
	}

	t, err := th.Tickets.AddLog(r.Context(), chi.URLParam(r, "id"), req.Title, req.Description, actor(r, req.EmployeeID))
	if err != nil {
		th.fail(w, r, "Failed to add log", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}
