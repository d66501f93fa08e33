/*
handlers.go - HTTP API handlers for the booking back office

PURPOSE:
  Exposes the booking services and the ledger via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the booking
  services. Handlers never touch the ledger directly for writes: every
  financial change goes through a service so the reconciler sees it.

ENDPOINTS:
  Tickets (bus and plane share one handler set, see tickets.go):
    GET/POST          /api/{bus|plane}/tickets
    GET/PUT/DELETE    /api/{bus|plane}/tickets/{id}
    PATCH             /api/{bus|plane}/tickets/{id}/payment-status
    POST              /api/{bus|plane}/tickets/{id}/{payments|cancel|refund|reactivate|check-in|logs}
    GET               /api/{bus|plane}/tickets/reference/{ref}

  Group bookings (one handler set per kind, see groups.go):
    /api/events, /api/organized-travel, /api/hotel-reservations

  Ledger (read-only):
    GET    /api/transactions                List with filters
    GET    /api/transactions/{id}           Single entry
    GET    /api/transactions/debts/summary  Open debt totals per currency

  Agencies:
    GET    /api/agencies                    List agencies
    POST   /api/agencies                    Create agency

  Admin:
    POST   /api/admin/replay                Run the ledger replay now

REQUEST FLOW:
  1. Parse HTTP request into a DTO
  2. Convert the DTO into a service input (dates, currencies, statuses)
  3. Call the booking service
  4. Serialize the document

ERROR HANDLING:
  Errors are returned as JSON {"error", "details"} with:
  - 400: Validation errors, invalid input, passport rule
  - 404: Booking, traveler or transaction not found
  - 409: State conflicts (already cancelled, already refunded)
  - 500: Storage and ledger failures

ACTOR:
  The acting employee comes from the body field employee_id, falling back
  to the X-Employee-ID header. There is no authentication layer.

SEE ALSO:
  - dto.go: Request/response data structures
  - tickets.go, groups.go: Booking handlers
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/travel-ledger/booking"
	"github.com/warp/travel-ledger/booking/groups"
	"github.com/warp/travel-ledger/booking/tickets"
	"github.com/warp/travel-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter wipes every stored document and ledger entry.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Tickets  *tickets.Service
	Groups   []*groups.Service
	Ledger   *ledger.Ledger
	Agencies booking.AgencyStore
	Resetter Resetter
	Replay   *ReplayScheduler
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Tickets  *tickets.Service
	Groups   map[ledger.BookingKind]*groups.Service
	Ledger   *ledger.Ledger
	Agencies booking.AgencyStore

	resetter Resetter
	replay   *ReplayScheduler
	logger   *slog.Logger
	now      func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		Tickets:  d.Tickets,
		Groups:   make(map[ledger.BookingKind]*groups.Service, len(d.Groups)),
		Ledger:   d.Ledger,
		Agencies: d.Agencies,
		resetter: d.Resetter,
		replay:   d.Replay,
		logger:   d.Logger,
		now:      d.Clock,
	}
	for _, svc := range d.Groups {
		h.Groups[svc.Spec().Kind] = svc
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.now == nil {
		h.now = func() time.Time { return time.Now().UTC() }
	}
	return h
}

// =============================================================================
// LEDGER ENDPOINTS
// =============================================================================

// ListTransactions returns ledger entries, newest first.
// GET /api/transactions?date=&from=&to=&type=&status=&agency_id=&user_id=&kind=&booking_id=&limit=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.Filter{
		Type:     ledger.TransactionType(q.Get("type")),
		Status:   ledger.TransactionStatus(q.Get("status")),
		AgencyID: q.Get("agency_id"),
		UserID:   q.Get("user_id"),
	}

	var err error
	if filter.Date, err = parseOptionalDate("date", q.Get("date")); err != nil {
		h.fail(w, r, "Invalid date", err)
		return
	}
	if filter.From, err = parseOptionalDate("from", q.Get("from")); err != nil {
		h.fail(w, r, "Invalid from date", err)
		return
	}
	if filter.To, err = parseOptionalDate("to", q.Get("to")); err != nil {
		h.fail(w, r, "Invalid to date", err)
		return
	}
	if id := q.Get("booking_id"); id != "" {
		ref := ledger.BookingRef{Kind: ledger.BookingKind(q.Get("kind")), ID: id}
		if !ref.Valid() {
			h.fail(w, r, "Invalid booking reference", booking.Invalid("kind", "unknown booking kind %q", q.Get("kind")))
			return
		}
		filter.Ref = &ref
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		h.fail(w, r, "Invalid limit", err)
		return
	}

	txs, err := h.Ledger.FindAll(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "Failed to list transactions", err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, ListResponse[TransactionDTO]{Items: dtos, Total: len(dtos), Limit: filter.Limit})
}

// GetTransaction returns a single ledger entry.
// GET /api/transactions/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Ledger.FindByID(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Transaction not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// DebtsSummary totals open debts of an agency, or of every agency when
// agency_id is omitted.
// GET /api/transactions/debts/summary?agency_id=
func (h *Handler) DebtsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Ledger.DebtsSummary(r.Context(), r.URL.Query().Get("agency_id"))
	if err != nil {
		h.fail(w, r, "Failed to summarize debts", err)
		return
	}

	totals := make(map[string]decimal.Decimal, len(summary.Totals))
	for cur, v := range summary.Totals {
		totals[string(cur)] = v
	}
	writeJSON(w, http.StatusOK, DebtSummaryDTO{AgencyID: summary.AgencyID, Count: summary.Count, Totals: totals})
}

// =============================================================================
// AGENCY ENDPOINTS
// =============================================================================

// ListAgencies returns all agencies.
func (h *Handler) ListAgencies(w http.ResponseWriter, r *http.Request) {
	agencies, err := h.Agencies.ListAgencies(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list agencies", err)
		return
	}
	if agencies == nil {
		agencies = []booking.Agency{}
	}
	writeJSON(w, http.StatusOK, agencies)
}

// CreateAgency creates or renames an agency.
func (h *Handler) CreateAgency(w http.ResponseWriter, r *http.Request) {
	var req CreateAgencyRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		h.fail(w, r, "Invalid agency", booking.Invalid("name", "is required"))
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	agency := booking.Agency{ID: req.ID, Name: strings.TrimSpace(req.Name), CreatedAt: h.now()}
	if err := h.Agencies.SaveAgency(r.Context(), agency); err != nil {
		h.fail(w, r, "Failed to create agency", err)
		return
	}
	writeJSON(w, http.StatusCreated, agency)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// TriggerReplay runs the ledger replay once and reports rows fixed per kind.
// POST /api/admin/replay
func (h *Handler) TriggerReplay(w http.ResponseWriter, r *http.Request) {
	if h.replay == nil {
		writeError(w, http.StatusServiceUnavailable, "Replay is not configured", nil)
		return
	}
	results := h.replay.RunNow(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps err onto an HTTP status and writes it. Server errors are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(message,
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()))
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case booking.IsNotFound(err):
		return http.StatusNotFound
	case booking.IsConflict(err):
		return http.StatusConflict
	case booking.IsClientError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return booking.Invalid("body", "%v", err)
	}
	return nil
}

// actor returns the acting employee: the body value or the X-Employee-ID header.
func actor(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return r.Header.Get("X-Employee-ID")
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, booking.Invalid(key, "must be a non-negative integer")
	}
	return n, nil
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}
